// Package config provides the configuration schema, loader, storage backend
// registry, and file watcher for the Verona dialogue bot.
package config

import (
	"time"

	"github.com/MrWong99/verona/internal/agent"
	"github.com/MrWong99/verona/internal/scene"
	"github.com/MrWong99/verona/pkg/lexicon"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// DriverMode selects what triggers the next line.
type DriverMode string

const (
	// ModeOnline emits a line on a fixed interval and publishes it to every
	// configured sink.
	ModeOnline DriverMode = "online"

	// ModeInteractive emits a line per key press in a terminal UI.
	ModeInteractive DriverMode = "interactive"
)

// IsValid reports whether m is a recognised driver mode.
func (m DriverMode) IsValid() bool {
	return m == ModeOnline || m == ModeInteractive
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader];
// fields absent from the file keep their [Default] values.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Cast       CastConfig       `yaml:"cast"`
	Lexicon    lexicon.Config   `yaml:"lexicon"`
	Generation GenerationConfig `yaml:"generation"`
	Scene      scene.Pacing     `yaml:"scene"`
	Storage    StorageConfig    `yaml:"storage"`
	State      StateConfig      `yaml:"state"`
	Driver     DriverConfig     `yaml:"driver"`
	Discord    DiscordConfig    `yaml:"discord"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for the health, metrics, and live feed
	// endpoints (e.g., ":8080"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`
}

// CorpusConfig locates the play text.
type CorpusConfig struct {
	// Path is a YAML corpus document or an HTML edition of the play.
	Path string `yaml:"path"`
}

// CastConfig lists who takes part in the scene.
type CastConfig struct {
	// Speakers are the roster names, matched case-insensitively against the
	// corpus. Order is significant only for display.
	Speakers []string `yaml:"speakers"`

	// Opening names the speakers who enter when a scene starts fresh.
	Opening []string `yaml:"opening"`
}

// GenerationConfig bounds sentence generation.
type GenerationConfig struct {
	MinLength  int `yaml:"min_length"`
	MaxLength  int `yaml:"max_length"`
	MaxRetries int `yaml:"max_retries"`

	// Seed makes every random draw reproducible when non-zero.
	Seed uint64 `yaml:"seed"`
}

// Limits returns the generation bounds as [agent.Limits].
func (g GenerationConfig) Limits() agent.Limits {
	return agent.Limits{MinLength: g.MinLength, MaxLength: g.MaxLength, MaxRetries: g.MaxRetries}
}

// StorageConfig selects where transition tables live.
type StorageConfig struct {
	// Backend names a registered backend: "memory" or "badger".
	Backend string `yaml:"backend"`

	// Dir is the data directory of on-disk backends.
	Dir string `yaml:"dir"`
}

// StateConfig selects where the scene is persisted between runs. At most one
// of Path and PostgresDSN should be set; with neither the scene lives in
// memory only.
type StateConfig struct {
	// Path is the JSON save file.
	Path string `yaml:"path"`

	// PostgresDSN is a PostgreSQL connection string.
	PostgresDSN string `yaml:"postgres_dsn"`

	// SceneID keys the scene row in PostgreSQL.
	SceneID string `yaml:"scene_id"`
}

// DriverConfig controls what advances the scene.
type DriverConfig struct {
	// Mode is "online" or "interactive".
	Mode DriverMode `yaml:"mode"`

	// Interval is the time between lines in online mode. Hot-reloadable.
	Interval time.Duration `yaml:"interval"`
}

// DiscordConfig enables posting every line to a Discord channel. Empty Token
// disables it.
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// DefaultCast is the roster used when none is configured.
var DefaultCast = []string{
	"Sampson", "Gregory", "Benvolio", "Tybalt", "Capulet", "Lady Capulet",
	"Montague", "Lady Montague", "Prince", "Romeo", "Paris", "Nurse",
	"Juliet", "Mercutio", "Friar Laurence", "Balthasar", "Apothecary",
	"Friar John",
}

// Default returns the configuration used for every field the file omits.
func Default() *Config {
	limits := agent.DefaultLimits()
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Corpus: CorpusConfig{Path: "romeo_and_juliet.html"},
		Cast: CastConfig{
			Speakers: append([]string{}, DefaultCast...),
			Opening:  []string{"Romeo", "Juliet"},
		},
		Lexicon: lexicon.Default(),
		Generation: GenerationConfig{
			MinLength:  limits.MinLength,
			MaxLength:  limits.MaxLength,
			MaxRetries: limits.MaxRetries,
		},
		Scene:   scene.DefaultPacing(),
		Storage: StorageConfig{Backend: BackendMemory},
		State:   StateConfig{Path: "save.json", SceneID: "default"},
		Driver:  DriverConfig{Mode: ModeInteractive, Interval: 5 * time.Minute},
	}
}
