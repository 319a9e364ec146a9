package scene

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/verona/internal/agent"
)

// Director owns a scene's [State] and advances it one line at a time.
//
// All exported methods are safe for concurrent use; [Director.Advance] holds
// the director's lock for the whole tick, so two ticks never interleave.
type Director struct {
	mu sync.Mutex

	roster   []agent.Speaker          // roster order
	speakers map[string]agent.Speaker // name → speaker
	pacing   Pacing
	rng      *rand.Rand

	state State
}

// Option configures a [Director] during construction.
type Option func(*Director)

// WithPacing sets the scene pacing. Zero fields take [DefaultPacing] values.
func WithPacing(p Pacing) Option {
	return func(d *Director) { d.pacing = p.WithDefaults() }
}

// WithRand sets the random source for every stage decision.
func WithRand(r *rand.Rand) Option {
	return func(d *Director) {
		if r != nil {
			d.rng = r
		}
	}
}

// New creates a Director over roster with an empty stage.
//
// Speaker names must be unique. Returns [ErrEmptyRoster] for an empty roster.
func New(roster []agent.Speaker, opts ...Option) (*Director, error) {
	if len(roster) == 0 {
		return nil, ErrEmptyRoster
	}
	d := &Director{
		roster:   slices.Clone(roster),
		speakers: make(map[string]agent.Speaker, len(roster)),
		pacing:   DefaultPacing(),
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, sp := range roster {
		name := sp.Name()
		if _, dup := d.speakers[name]; dup {
			return nil, fmt.Errorf("scene: speaker %q listed twice", name)
		}
		d.speakers[name] = sp
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Roster returns the names of every speaker, in roster order.
func (d *Director) Roster() []string {
	names := make([]string, len(d.roster))
	for i, sp := range d.roster {
		names[i] = sp.Name()
	}
	return names
}

// Pacing returns the current pacing.
func (d *Director) Pacing() Pacing {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pacing
}

// SetPacing replaces the pacing. The new values apply from the next tick; a
// stage already above a lowered MaxOnStage simply stops admitting entrances.
func (d *Director) SetPacing(p Pacing) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pacing = p.WithDefaults()
}

// State returns a copy of the current state.
func (d *Director) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.state
	s.OnStage = slices.Clone(d.state.OnStage)
	return s
}

// Snapshot returns the persisted form of the current state.
func (d *Director) Snapshot() Snapshot {
	return d.State().Snapshot()
}

// Restore adopts a persisted state verbatim. Names not found in the roster
// (matched exactly, then case-insensitively) and repeated names are dropped;
// each unknown name is reported as an error wrapping [ErrUnknownSpeaker]. The
// remaining state is applied even when an error is returned.
func (d *Director) Restore(snap Snapshot) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var (
		errs    []error
		onStage = make([]string, 0, len(snap.OnStage))
	)
	for _, raw := range snap.OnStage {
		name, ok := d.lookup(raw)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q in saved stage", ErrUnknownSpeaker, raw))
			continue
		}
		if slices.Contains(onStage, name) {
			continue
		}
		onStage = append(onStage, name)
	}

	d.state = State{
		OnStage:             onStage,
		LinesSinceDirection: max(snap.LinesSinceDirection, 0),
	}
	if snap.LastSentence != nil {
		d.state.LastLine = *snap.LastSentence
		d.state.HasLastLine = true
	}
	return errors.Join(errs...)
}

// EnterNames brings the named speakers on stage, in order, ignoring those
// already there and stopping at MaxOnStage. It is used to open a fresh scene
// with a fixed entrance. ok is false when nobody moved; unknown names are
// reported as errors wrapping [ErrUnknownSpeaker].
func (d *Director) EnterNames(names ...string) (line Line, ok bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var (
		errs    []error
		entered []string
	)
	for _, raw := range names {
		name, known := d.lookup(raw)
		if !known {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownSpeaker, raw))
			continue
		}
		if slices.Contains(d.state.OnStage, name) || len(d.state.OnStage) >= d.pacing.MaxOnStage {
			continue
		}
		d.state.OnStage = append(d.state.OnStage, name)
		entered = append(entered, name)
	}
	if len(entered) == 0 {
		return Line{}, false, errors.Join(errs...)
	}
	d.state.LinesSinceDirection = 0
	return Line{Kind: Entrance, Names: entered}, true, errors.Join(errs...)
}

// Advance produces the next line of the scene.
//
// Once more than Cooldown dialogue lines have passed since the last stage
// direction, one of CrowdChance (several on stage) or SoloChance (at most one
// on stage) equally likely outcomes is drawn: 0 attempts an entrance, falling
// back to an exit; 1 attempts an exit, falling back to an entrance; anything
// else is dialogue. Within the cooldown the on-stage cast talks, unless the
// stage is empty, in which case somebody enters.
//
// A speaker failing to produce a sentence leaves the state untouched and
// returns the speaker's error.
func (d *Director) Advance(ctx context.Context) (Line, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.LinesSinceDirection > d.pacing.Cooldown {
		chance := d.pacing.SoloChance
		if len(d.state.OnStage) > 1 {
			chance = d.pacing.CrowdChance
		}
		switch d.rng.IntN(chance) {
		case 0:
			if line, ok := d.enter(); ok {
				return line, nil
			}
			if line, ok := d.exit(); ok {
				return line, nil
			}
			slog.Debug("scene: entrance and exit both impossible, continuing dialogue")
		case 1:
			if line, ok := d.exit(); ok {
				return line, nil
			}
			if line, ok := d.enter(); ok {
				return line, nil
			}
			slog.Debug("scene: exit and entrance both impossible, continuing dialogue")
		}
	}

	if len(d.state.OnStage) == 0 {
		if line, ok := d.enter(); ok {
			return line, nil
		}
		return Line{}, ErrEmptyRoster
	}
	return d.dialogue(ctx)
}

// Enter attempts an entrance outside the normal tick schedule. ok is false
// when nobody could enter.
func (d *Director) Enter() (Line, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enter()
}

// Exit attempts an exit outside the normal tick schedule. ok is false when
// the stage was empty.
func (d *Director) Exit() (Line, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exit()
}

// ── transitions (d.mu held) ──────────────────────────────────────────────────

func (d *Director) enter() (Line, bool) {
	offStage := make([]string, 0, len(d.roster))
	for _, sp := range d.roster {
		if !slices.Contains(d.state.OnStage, sp.Name()) {
			offStage = append(offStage, sp.Name())
		}
	}

	count := 1 + d.rng.IntN(d.pacing.MaxGroup)
	var entered []string
	for len(entered) < count && len(offStage) > 0 && len(d.state.OnStage) < d.pacing.MaxOnStage {
		i := d.rng.IntN(len(offStage))
		name := offStage[i]
		offStage = slices.Delete(offStage, i, i+1)
		d.state.OnStage = append(d.state.OnStage, name)
		entered = append(entered, name)
	}
	if len(entered) == 0 {
		return Line{}, false
	}
	d.state.LinesSinceDirection = 0
	return Line{Kind: Entrance, Names: entered}, true
}

func (d *Director) exit() (Line, bool) {
	count := 1 + d.rng.IntN(d.pacing.MaxGroup)
	var left []string
	for len(left) < count && len(d.state.OnStage) > 0 {
		i := d.rng.IntN(len(d.state.OnStage))
		left = append(left, d.state.OnStage[i])
		d.state.OnStage = slices.Delete(d.state.OnStage, i, i+1)
	}
	if len(left) == 0 {
		return Line{}, false
	}
	d.state.LinesSinceDirection = 0
	return Line{Kind: Exit, Names: left}, true
}

func (d *Director) dialogue(ctx context.Context) (Line, error) {
	name := d.state.OnStage[d.rng.IntN(len(d.state.OnStage))]
	sp := d.speakers[name]

	var (
		text string
		err  error
	)
	if d.state.HasLastLine {
		text, err = sp.RespondToSentence(ctx, d.state.LastLine)
	} else {
		text, err = sp.RandomSentence(ctx)
	}
	if err != nil {
		return Line{}, &SpeakerError{Speaker: name, Err: err}
	}

	d.state.LastLine = text
	d.state.HasLastLine = true
	d.state.LinesSinceDirection++
	return Line{Kind: Dialogue, Speaker: name, Text: text}, nil
}

// lookup resolves a name against the roster, exactly first and then
// case-insensitively.
func (d *Director) lookup(name string) (string, bool) {
	if _, ok := d.speakers[name]; ok {
		return name, true
	}
	for _, sp := range d.roster {
		if strings.EqualFold(sp.Name(), name) {
			return sp.Name(), true
		}
	}
	return "", false
}
