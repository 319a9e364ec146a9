package scene_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/MrWong99/verona/internal/agent"
	agentmock "github.com/MrWong99/verona/internal/agent/mock"
	"github.com/MrWong99/verona/internal/scene"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

func newSpeaker(name string) *agentmock.Speaker {
	return &agentmock.Speaker{
		NameResult:    name,
		RandomResult:  name + " opens.",
		RespondResult: name + " answers.",
	}
}

func roster(names ...string) []agent.Speaker {
	out := make([]agent.Speaker, len(names))
	for i, n := range names {
		out[i] = newSpeaker(n)
	}
	return out
}

var cast = []string{"Romeo", "Juliet", "Nurse", "Mercutio", "Tybalt", "Benvolio", "Capulet", "Friar Laurence"}

func newDirector(t *testing.T, speakers []agent.Speaker, opts ...scene.Option) *scene.Director {
	t.Helper()
	d, err := scene.New(speakers, append([]scene.Option{scene.WithRand(seeded(11))}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func ptr(s string) *string { return &s }

// constSource always yields v. With v odd in both halves, IntN(2) is 1 on
// every platform.
type constSource uint64

func (c constSource) Uint64() uint64 { return uint64(c) }

const oddSource = constSource(1<<32 | 1)

// ── construction ─────────────────────────────────────────────────────────────

func TestNew_EmptyRoster(t *testing.T) {
	t.Parallel()
	if _, err := scene.New(nil); !errors.Is(err, scene.ErrEmptyRoster) {
		t.Fatalf("err = %v, want ErrEmptyRoster", err)
	}
}

func TestNew_DuplicateName(t *testing.T) {
	t.Parallel()
	if _, err := scene.New(roster("Romeo", "Romeo")); err == nil {
		t.Fatal("expected error for duplicate speaker")
	}
}

func TestNew_InitialState(t *testing.T) {
	t.Parallel()
	d := newDirector(t, roster(cast...))
	st := d.State()
	if len(st.OnStage) != 0 || st.LinesSinceDirection != 0 || st.HasLastLine {
		t.Fatalf("initial state = %+v, want empty", st)
	}
	if got := d.Roster(); !slices.Equal(got, cast) {
		t.Errorf("Roster() = %v, want %v", got, cast)
	}
}

// ── Enter / Exit ─────────────────────────────────────────────────────────────

func TestEnter_NeverExceedsCap(t *testing.T) {
	t.Parallel()
	d := newDirector(t, roster(cast...))

	for range 20 {
		d.Enter()
		if n := len(d.State().OnStage); n > 6 {
			t.Fatalf("on stage = %d, want <= 6", n)
		}
	}
	if n := len(d.State().OnStage); n != 6 {
		t.Errorf("on stage after repeated entrances = %d, want 6", n)
	}
	if _, ok := d.Enter(); ok {
		t.Error("Enter on a full stage should fail")
	}
}

func TestEnter_EveryoneOnStage(t *testing.T) {
	t.Parallel()
	d := newDirector(t, roster("Romeo", "Juliet"))
	if err := d.Restore(scene.Snapshot{OnStage: []string{"Romeo", "Juliet"}}); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Enter(); ok {
		t.Fatal("Enter with nobody off stage should fail")
	}
}

func TestEnter_ResetsCounterAndGroupSize(t *testing.T) {
	t.Parallel()
	d := newDirector(t, roster(cast...))
	if err := d.Restore(scene.Snapshot{LinesSinceDirection: 9}); err != nil {
		t.Fatal(err)
	}

	line, ok := d.Enter()
	if !ok {
		t.Fatal("Enter failed on an empty stage")
	}
	if line.Kind != scene.Entrance {
		t.Errorf("Kind = %v, want entrance", line.Kind)
	}
	if n := len(line.Names); n < 1 || n > 3 {
		t.Errorf("entered %d speakers, want 1..3", n)
	}
	st := d.State()
	if st.LinesSinceDirection != 0 {
		t.Errorf("LinesSinceDirection = %d, want 0", st.LinesSinceDirection)
	}
	if !slices.Equal(st.OnStage, line.Names) {
		t.Errorf("OnStage = %v, want %v", st.OnStage, line.Names)
	}
}

func TestExit_EmptyStage(t *testing.T) {
	t.Parallel()
	d := newDirector(t, roster(cast...))
	if _, ok := d.Exit(); ok {
		t.Fatal("Exit on an empty stage should fail")
	}
}

func TestExit_RemovesFromStage(t *testing.T) {
	t.Parallel()
	d := newDirector(t, roster(cast...))
	if err := d.Restore(scene.Snapshot{OnStage: []string{"Romeo", "Juliet", "Nurse", "Tybalt"}, LinesSinceDirection: 5}); err != nil {
		t.Fatal(err)
	}

	line, ok := d.Exit()
	if !ok {
		t.Fatal("Exit failed")
	}
	if line.Kind != scene.Exit || len(line.Names) < 1 || len(line.Names) > 3 {
		t.Fatalf("line = %+v", line)
	}
	st := d.State()
	if len(st.OnStage)+len(line.Names) != 4 {
		t.Errorf("on stage %v after %v left, want 4 in total", st.OnStage, line.Names)
	}
	for _, n := range line.Names {
		if slices.Contains(st.OnStage, n) {
			t.Errorf("%s left but is still on stage", n)
		}
	}
	if st.LinesSinceDirection != 0 {
		t.Errorf("LinesSinceDirection = %d, want 0", st.LinesSinceDirection)
	}
}

func TestEnterNames(t *testing.T) {
	t.Parallel()
	d := newDirector(t, roster(cast...))

	line, ok, err := d.EnterNames("romeo", "Juliet", "Rosaline")
	if !ok {
		t.Fatal("EnterNames moved nobody")
	}
	if !errors.Is(err, scene.ErrUnknownSpeaker) {
		t.Errorf("err = %v, want ErrUnknownSpeaker for Rosaline", err)
	}
	if got := line.String(); got != "Enter ROMEO and JULIET" {
		t.Errorf("line = %q", got)
	}

	if _, ok, _ := d.EnterNames("Romeo"); ok {
		t.Error("EnterNames should not re-enter a speaker already on stage")
	}
}

// ── Advance ──────────────────────────────────────────────────────────────────

func TestAdvance_EmptyStageForcesEntrance(t *testing.T) {
	t.Parallel()
	d := newDirector(t, roster(cast...))

	line, err := d.Advance(context.Background())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if line.Kind != scene.Entrance {
		t.Fatalf("first line kind = %v, want entrance", line.Kind)
	}
}

func TestAdvance_DialogueWithinCooldown(t *testing.T) {
	t.Parallel()
	romeo := newSpeaker("Romeo")
	d := newDirector(t, []agent.Speaker{romeo, newSpeaker("Juliet")})
	if err := d.Restore(scene.Snapshot{OnStage: []string{"Romeo"}}); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	first, err := d.Advance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.Kind != scene.Dialogue || first.String() != "ROMEO: Romeo opens." {
		t.Fatalf("first = %q, want Romeo's opening line", first)
	}

	second, err := d.Advance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second.Text != "Romeo answers." {
		t.Errorf("second = %q, want a response", second)
	}
	if got := romeo.RespondToSentenceCalls; len(got) != 1 || got[0] != "Romeo opens." {
		t.Errorf("RespondToSentence calls = %v, want [Romeo opens.]", got)
	}

	st := d.State()
	if st.LinesSinceDirection != 2 || st.LastLine != "Romeo answers." || !st.HasLastLine {
		t.Errorf("state = %+v", st)
	}
}

func TestAdvance_SpeakerFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()
	romeo := newSpeaker("Romeo")
	romeo.RespondError = agent.ErrGenerationUnstable
	d := newDirector(t, []agent.Speaker{romeo})
	if err := d.Restore(scene.Snapshot{OnStage: []string{"Romeo"}, LinesSinceDirection: 1, LastSentence: ptr("Hark.")}); err != nil {
		t.Fatal(err)
	}
	before := d.State()

	_, err := d.Advance(context.Background())
	if !errors.Is(err, agent.ErrGenerationUnstable) {
		t.Fatalf("err = %v, want ErrGenerationUnstable", err)
	}
	var se *scene.SpeakerError
	if !errors.As(err, &se) || se.Speaker != "Romeo" {
		t.Errorf("err = %v, want SpeakerError for Romeo", err)
	}
	after := d.State()
	if after.LinesSinceDirection != before.LinesSinceDirection || after.LastLine != before.LastLine {
		t.Errorf("state changed from %+v to %+v", before, after)
	}
}

func TestAdvance_EnterFallsBackToExit(t *testing.T) {
	t.Parallel()
	// Everyone is on stage and the solo chance is 1, so every draw is an
	// attempted entrance that can only fall back to an exit.
	d := newDirector(t, roster("Romeo"), scene.WithPacing(scene.Pacing{SoloChance: 1}))
	if err := d.Restore(scene.Snapshot{OnStage: []string{"Romeo"}, LinesSinceDirection: 4}); err != nil {
		t.Fatal(err)
	}

	line, err := d.Advance(context.Background())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if got := line.String(); got != "Exit ROMEO" {
		t.Errorf("line = %q, want %q", got, "Exit ROMEO")
	}
}

func TestAdvance_ExitFallsBackToEnter(t *testing.T) {
	t.Parallel()
	// A solo chance of 2 with an odd source always draws outcome 1: an
	// attempted exit.
	pacing := scene.WithPacing(scene.Pacing{SoloChance: 2})

	tests := []struct {
		name    string
		onStage []string
		want    string
	}{
		{"exit when someone is on stage", []string{"Romeo"}, "Exit ROMEO"},
		{"entrance when the stage is empty", nil, "Enter ROMEO"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := newDirector(t, roster("Romeo"), pacing, scene.WithRand(rand.New(oddSource)))
			if err := d.Restore(scene.Snapshot{OnStage: tc.onStage, LinesSinceDirection: 4}); err != nil {
				t.Fatal(err)
			}

			line, err := d.Advance(context.Background())
			if err != nil {
				t.Fatalf("Advance: %v", err)
			}
			if got := line.String(); got != tc.want {
				t.Errorf("line = %q, want %q", got, tc.want)
			}
			if st := d.State(); st.LinesSinceDirection != 0 {
				t.Errorf("LinesSinceDirection = %d, want 0 after a direction", st.LinesSinceDirection)
			}
		})
	}
}

func TestAdvance_BranchDistribution(t *testing.T) {
	t.Parallel()
	d := newDirector(t, roster(cast...), scene.WithRand(seeded(2024)))
	ctx := context.Background()

	const trials = 10000
	counts := map[scene.Kind]int{}
	for range trials {
		if err := d.Restore(scene.Snapshot{OnStage: []string{"Juliet"}, LinesSinceDirection: 4, LastSentence: ptr("Ay me.")}); err != nil {
			t.Fatal(err)
		}
		line, err := d.Advance(ctx)
		if err != nil {
			t.Fatalf("Advance: %v", err)
		}
		counts[line.Kind]++
	}

	// One speaker on stage: five outcomes, so entrance:exit:dialogue = 1:1:3.
	want := map[scene.Kind]float64{scene.Entrance: 0.2, scene.Exit: 0.2, scene.Dialogue: 0.6}
	for k, p := range want {
		got := float64(counts[k]) / trials
		if got < p-0.03 || got > p+0.03 {
			t.Errorf("%v share = %.3f, want %.2f ± 0.03", k, got, p)
		}
	}
}

func TestAdvance_LongRunInvariants(t *testing.T) {
	t.Parallel()
	d := newDirector(t, roster(cast...))
	ctx := context.Background()

	for i := range 2000 {
		line, err := d.Advance(ctx)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		st := d.State()
		if len(st.OnStage) > 6 {
			t.Fatalf("tick %d: %d on stage", i, len(st.OnStage))
		}
		if line.Kind == scene.Dialogue && !slices.Contains(st.OnStage, line.Speaker) {
			t.Fatalf("tick %d: %s spoke from off stage", i, line.Speaker)
		}
		seen := map[string]bool{}
		for _, n := range st.OnStage {
			if seen[n] {
				t.Fatalf("tick %d: %s on stage twice", i, n)
			}
			seen[n] = true
		}
	}
}

// ── persistence ──────────────────────────────────────────────────────────────

func TestRestore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		snap        scene.Snapshot
		wantStage   []string
		wantLast    string
		wantHasLast bool
		wantErr     error
	}{
		{
			name:        "verbatim",
			snap:        scene.Snapshot{OnStage: []string{"Nurse", "Juliet"}, LinesSinceDirection: 2, LastSentence: ptr("Anon!")},
			wantStage:   []string{"Nurse", "Juliet"},
			wantLast:    "Anon!",
			wantHasLast: true,
		},
		{
			name:      "no last sentence",
			snap:      scene.Snapshot{OnStage: []string{"Romeo"}},
			wantStage: []string{"Romeo"},
		},
		{
			name:      "unknown name dropped",
			snap:      scene.Snapshot{OnStage: []string{"Romeo", "Rosaline"}},
			wantStage: []string{"Romeo"},
			wantErr:   scene.ErrUnknownSpeaker,
		},
		{
			name:      "case-insensitive and deduplicated",
			snap:      scene.Snapshot{OnStage: []string{"TYBALT", "Tybalt"}},
			wantStage: []string{"Tybalt"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := newDirector(t, roster(cast...))
			err := d.Restore(tc.snap)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			st := d.State()
			if !slices.Equal(st.OnStage, tc.wantStage) {
				t.Errorf("OnStage = %v, want %v", st.OnStage, tc.wantStage)
			}
			if st.LastLine != tc.wantLast || st.HasLastLine != tc.wantHasLast {
				t.Errorf("last = %q/%v, want %q/%v", st.LastLine, st.HasLastLine, tc.wantLast, tc.wantHasLast)
			}
			if st.LinesSinceDirection != tc.snap.LinesSinceDirection {
				t.Errorf("LinesSinceDirection = %d, want %d", st.LinesSinceDirection, tc.snap.LinesSinceDirection)
			}
		})
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	t.Parallel()
	d := newDirector(t, roster(cast...))
	in := scene.Snapshot{OnStage: []string{"Capulet", "Nurse"}, LinesSinceDirection: 3, LastSentence: ptr("Go to.")}
	if err := d.Restore(in); err != nil {
		t.Fatal(err)
	}
	out := d.Snapshot()
	if !slices.Equal(out.OnStage, in.OnStage) || out.LinesSinceDirection != 3 || out.LastSentence == nil || *out.LastSentence != "Go to." {
		t.Errorf("Snapshot() = %+v, want %+v", out, in)
	}
}

func TestSetPacing(t *testing.T) {
	t.Parallel()
	d := newDirector(t, roster(cast...))
	d.SetPacing(scene.Pacing{MaxOnStage: 2})

	p := d.Pacing()
	if p.MaxOnStage != 2 || p.CrowdChance != 20 {
		t.Errorf("Pacing() = %+v, want MaxOnStage 2 and default chances", p)
	}
	for range 10 {
		d.Enter()
	}
	if n := len(d.State().OnStage); n != 2 {
		t.Errorf("on stage = %d, want 2", n)
	}
}
