// Package scene runs the stage: who is on it, when somebody enters or leaves,
// and who speaks next.
//
// A [Director] owns the single mutable [State] of a scene. Every call to
// [Director.Advance] produces exactly one [Line], either a stage direction
// ("Enter ROMEO and JULIET") or a line of dialogue ("ROMEO: ..."), and mutates
// the state accordingly. [Snapshot] is the persisted form of the state, written
// after every line so that a restarted process picks up where it left off.
package scene

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	// ErrEmptyRoster is returned by [New] when no speakers are supplied, and
	// by [Director.Advance] when nobody is on stage and nobody can enter.
	ErrEmptyRoster = errors.New("scene: roster is empty")

	// ErrUnknownSpeaker is reported for a name that is not part of the roster.
	ErrUnknownSpeaker = errors.New("scene: unknown speaker")
)

// SpeakerError is returned by [Director.Advance] when the chosen speaker
// fails to produce a line.
type SpeakerError struct {
	Speaker string
	Err     error
}

func (e *SpeakerError) Error() string {
	return fmt.Sprintf("scene: %s: %v", e.Speaker, e.Err)
}

func (e *SpeakerError) Unwrap() error { return e.Err }

// Pacing tunes how often stage directions happen and how crowded the stage
// may get.
type Pacing struct {
	// Cooldown is the number of dialogue lines that must pass after a stage
	// direction before another one may be drawn. Default 3.
	Cooldown int `yaml:"cooldown"`

	// CrowdChance is the number of equally likely outcomes drawn once the
	// cooldown has passed while more than one speaker is on stage. Outcome 0
	// is an entrance, 1 an exit, everything else dialogue. Default 20.
	CrowdChance int `yaml:"crowd_chance"`

	// SoloChance is the outcome count used when at most one speaker is on
	// stage. Default 5.
	SoloChance int `yaml:"solo_chance"`

	// MaxOnStage caps the number of speakers on stage. Default 6.
	MaxOnStage int `yaml:"max_on_stage"`

	// MaxGroup is the largest number of speakers entering or leaving in one
	// stage direction. Default 3.
	MaxGroup int `yaml:"max_group"`
}

// DefaultPacing returns the default scene pacing.
func DefaultPacing() Pacing {
	return Pacing{Cooldown: 3, CrowdChance: 20, SoloChance: 5, MaxOnStage: 6, MaxGroup: 3}
}

// WithDefaults returns p with every non-positive field replaced by its
// [DefaultPacing] value. Cooldown may legitimately be zero.
func (p Pacing) WithDefaults() Pacing {
	d := DefaultPacing()
	if p.Cooldown < 0 {
		p.Cooldown = d.Cooldown
	}
	if p.CrowdChance <= 0 {
		p.CrowdChance = d.CrowdChance
	}
	if p.SoloChance <= 0 {
		p.SoloChance = d.SoloChance
	}
	if p.MaxOnStage <= 0 {
		p.MaxOnStage = d.MaxOnStage
	}
	if p.MaxGroup <= 0 {
		p.MaxGroup = d.MaxGroup
	}
	return p
}

// Kind classifies a [Line].
type Kind int

const (
	// Dialogue is a line spoken by one on-stage speaker.
	Dialogue Kind = iota

	// Entrance is a stage direction bringing speakers on stage.
	Entrance

	// Exit is a stage direction taking speakers off stage.
	Exit
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case Dialogue:
		return "dialogue"
	case Entrance:
		return "entrance"
	case Exit:
		return "exit"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Line is one unit of scene output.
type Line struct {
	// Kind says whether this is dialogue or a stage direction.
	Kind Kind

	// Speaker is the speaker's display name. Set for Dialogue only.
	Speaker string

	// Text is the spoken sentence. Set for Dialogue only.
	Text string

	// Names lists who entered or left, in the order they moved. Set for
	// stage directions only.
	Names []string
}

// IsDirection reports whether l is a stage direction.
func (l Line) IsDirection() bool {
	return l.Kind == Entrance || l.Kind == Exit
}

// String renders the line as it is printed and posted: "ROMEO: sentence",
// "Enter ROMEO", "Exit NURSE", or "Exeunt ROMEO and JULIET".
func (l Line) String() string {
	switch l.Kind {
	case Entrance:
		return "Enter " + JoinNames(upper(l.Names))
	case Exit:
		if len(l.Names) == 1 {
			return "Exit " + strings.ToUpper(l.Names[0])
		}
		return "Exeunt " + JoinNames(upper(l.Names))
	default:
		return strings.ToUpper(l.Speaker) + ": " + l.Text
	}
}

// JoinNames joins names the way stage directions do: "X", "X and Y", or
// "X, Y, and Z" for three or more.
func JoinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
}

func upper(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToUpper(n)
	}
	return out
}

// State is the complete mutable state of a scene.
type State struct {
	// OnStage lists the speakers currently on stage, in the order they
	// entered. Names are unique.
	OnStage []string

	// LinesSinceDirection counts dialogue lines since the last stage
	// direction.
	LinesSinceDirection int

	// LastLine is the most recent sentence spoken. Only meaningful when
	// HasLastLine is true.
	LastLine string

	// HasLastLine reports whether anybody has spoken yet.
	HasLastLine bool
}

// Snapshot is the persisted form of a [State]. Its JSON encoding matches the
// save file written by earlier versions of the bot.
type Snapshot struct {
	OnStage             []string `json:"onStage"`
	LinesSinceDirection int      `json:"linesSinceLastStageDirection"`
	LastSentence        *string  `json:"lastSentence"`
}

// Snapshot converts s to its persisted form.
func (s State) Snapshot() Snapshot {
	snap := Snapshot{
		OnStage:             append([]string{}, s.OnStage...),
		LinesSinceDirection: s.LinesSinceDirection,
	}
	if s.HasLastLine {
		last := s.LastLine
		snap.LastSentence = &last
	}
	return snap
}

// Empty reports whether the snapshot carries no scene at all.
func (s Snapshot) Empty() bool {
	return len(s.OnStage) == 0 && s.LinesSinceDirection == 0 && s.LastSentence == nil
}
