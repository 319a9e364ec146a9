package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the [Default] values and
// validates the result. Unknown keys are rejected. An empty document yields
// the defaults. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found. Settings
// that are legal but probably unintended are logged as warnings.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Corpus
	if cfg.Corpus.Path == "" {
		errs = append(errs, errors.New("corpus.path is required"))
	}

	// Cast
	if len(cfg.Cast.Speakers) == 0 {
		errs = append(errs, errors.New("cast.speakers must name at least one speaker"))
	}
	seen := make(map[string]int, len(cfg.Cast.Speakers))
	for i, name := range cfg.Cast.Speakers {
		prefix := fmt.Sprintf("cast.speakers[%d]", i)
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("%s is empty", prefix))
			continue
		}
		key := strings.ToLower(name)
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of cast.speakers[%d]", prefix, name, prev))
		}
		seen[key] = i
	}
	for i, name := range cfg.Cast.Opening {
		if _, ok := seen[strings.ToLower(name)]; !ok {
			errs = append(errs, fmt.Errorf("cast.opening[%d] %q is not in cast.speakers", i, name))
		}
	}
	if len(cfg.Cast.Opening) == 0 {
		slog.Warn("cast.opening is empty; a fresh scene will start with a random entrance")
	}

	// Lexicon
	if len(cfg.Lexicon.Punctuation) > 0 {
		for _, term := range cfg.Lexicon.Terminators {
			if !slices.Contains(cfg.Lexicon.Punctuation, term) {
				errs = append(errs, fmt.Errorf("lexicon.terminators %q is not listed in lexicon.punctuation", term))
			}
		}
	}

	// Generation
	g := cfg.Generation
	if g.MinLength < 0 || g.MaxLength < 0 || g.MaxRetries < 0 {
		errs = append(errs, errors.New("generation lengths and retries must not be negative"))
	}
	if g.MaxLength > 0 && g.MinLength >= g.MaxLength {
		errs = append(errs, fmt.Errorf("generation.min_length %d must be less than generation.max_length %d", g.MinLength, g.MaxLength))
	}

	// Scene
	errs = append(errs, validatePacing(cfg)...)

	// Storage
	if cfg.Storage.Backend == "" {
		errs = append(errs, errors.New("storage.backend is required"))
	} else if !slices.Contains(BackendNames, cfg.Storage.Backend) {
		slog.Warn("unknown storage backend name; may be a typo or a third-party backend",
			"name", cfg.Storage.Backend,
			"known", BackendNames,
		)
	}
	if cfg.Storage.Backend == BackendBadger && cfg.Storage.Dir == "" {
		slog.Warn("storage.dir is empty; the badger backend will run in memory")
	}

	// State
	if cfg.State.Path != "" && cfg.State.PostgresDSN != "" {
		errs = append(errs, errors.New("state.path and state.postgres_dsn are mutually exclusive"))
	}
	if cfg.State.PostgresDSN != "" && cfg.State.SceneID == "" {
		errs = append(errs, errors.New("state.scene_id is required with state.postgres_dsn"))
	}
	if cfg.State.Path == "" && cfg.State.PostgresDSN == "" {
		slog.Warn("no state persistence configured; the scene restarts on every run")
	}

	// Driver
	if !cfg.Driver.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("driver.mode %q is invalid; valid values: online, interactive", cfg.Driver.Mode))
	}
	if cfg.Driver.Mode == ModeOnline && cfg.Driver.Interval <= 0 {
		errs = append(errs, fmt.Errorf("driver.interval must be positive in online mode, got %s", cfg.Driver.Interval))
	}
	if cfg.Driver.Mode == ModeOnline && cfg.Driver.Interval > 0 && cfg.Driver.Interval < time.Second {
		slog.Warn("driver.interval is below one second", "interval", cfg.Driver.Interval)
	}

	// Discord
	if cfg.Discord.Token != "" && cfg.Discord.ChannelID == "" {
		errs = append(errs, errors.New("discord.channel_id is required when discord.token is set"))
	}
	if cfg.Discord.Token != "" && cfg.Driver.Mode == ModeInteractive {
		slog.Warn("discord is configured in interactive mode; every key press will post to the channel")
	}

	return errors.Join(errs...)
}

func validatePacing(cfg *Config) []error {
	var errs []error
	p := cfg.Scene
	if p.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("scene.cooldown %d must not be negative", p.Cooldown))
	}
	if p.CrowdChance < 2 {
		errs = append(errs, fmt.Errorf("scene.crowd_chance %d must be at least 2", p.CrowdChance))
	}
	if p.SoloChance < 2 {
		errs = append(errs, fmt.Errorf("scene.solo_chance %d must be at least 2", p.SoloChance))
	}
	if p.MaxOnStage < 1 {
		errs = append(errs, fmt.Errorf("scene.max_on_stage %d must be at least 1", p.MaxOnStage))
	}
	if p.MaxGroup < 1 {
		errs = append(errs, fmt.Errorf("scene.max_group %d must be at least 1", p.MaxGroup))
	}
	if len(cfg.Cast.Opening) > p.MaxOnStage && p.MaxOnStage > 0 {
		slog.Warn("cast.opening is larger than scene.max_on_stage; extra speakers stay off stage",
			"opening", len(cfg.Cast.Opening),
			"max_on_stage", p.MaxOnStage,
		)
	}
	return errs
}
