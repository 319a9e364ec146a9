package config

import (
	"slices"
	"time"

	"github.com/MrWong99/verona/internal/scene"
)

// ConfigDiff describes what changed between two configs.
// Hot-reloadable fields carry their new value; everything else is listed in
// RestartRequired by its YAML path.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PacingChanged bool
	NewPacing     scene.Pacing

	IntervalChanged bool
	NewInterval     time.Duration

	// RestartRequired lists the changed sections that only take effect after
	// a restart (e.g. "corpus", "cast.speakers").
	RestartRequired []string
}

// Changed reports whether anything changed at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.PacingChanged || d.IntervalChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Scene != new.Scene {
		d.PacingChanged = true
		d.NewPacing = new.Scene
	}
	if old.Driver.Interval != new.Driver.Interval {
		d.IntervalChanged = true
		d.NewInterval = new.Driver.Interval
	}

	restart := func(path string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, path)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("corpus", old.Corpus != new.Corpus)
	restart("cast.speakers", !slices.Equal(old.Cast.Speakers, new.Cast.Speakers))
	restart("cast.opening", !slices.Equal(old.Cast.Opening, new.Cast.Opening))
	restart("lexicon", !lexiconEqual(old, new))
	restart("generation", old.Generation != new.Generation)
	restart("storage", old.Storage != new.Storage)
	restart("state", old.State != new.State)
	restart("driver.mode", old.Driver.Mode != new.Driver.Mode)
	restart("discord", old.Discord != new.Discord)

	return d
}

func lexiconEqual(old, new *Config) bool {
	a, b := old.Lexicon, new.Lexicon
	return slices.Equal(a.Punctuation, b.Punctuation) &&
		slices.Equal(a.Terminators, b.Terminators) &&
		slices.Equal(a.CapitalizedPrefixes, b.CapitalizedPrefixes) &&
		slices.Equal(a.CapitalizedWords, b.CapitalizedWords) &&
		slices.Equal(a.CapitalizedLetters, b.CapitalizedLetters)
}
