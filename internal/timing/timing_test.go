package timing

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ivlev/md2video/internal/config"
	"github.com/ivlev/md2video/internal/tts"
)

// stubEngine returns a fixed duration without touching the filesystem.
type stubEngine struct {
	duration float64
	words    []tts.Word
	err      error
	calls    int
}

func (e *stubEngine) Synthesize(ctx context.Context, text, voice string, speed float64, outPath string) (tts.Result, error) {
	e.calls++
	if e.err != nil {
		return tts.Result{}, e.err
	}
	return tts.Result{AudioPath: outPath, Duration: e.duration, Words: e.words}, nil
}

func (e *stubEngine) Voices(ctx context.Context) ([]tts.Voice, error) { return nil, nil }
func (e *stubEngine) Name() string                                    { return "stub" }

func TestResolveAuto(t *testing.T) {
	engine := &stubEngine{duration: 3.2}
	r := &Resolver{Engine: engine, Speed: 1.0, FallbackDuration: 3.0, WorkDir: t.TempDir()}

	scene := config.Scene{
		Script:   "hello world",
		Duration: config.Duration{Auto: true, PaddingBefore: 0.5, PaddingAfter: 1.0},
	}
	plan, err := r.Resolve(context.Background(), scene, 0, "en")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if want := 3.2 + 0.5 + 1.0; math.Abs(plan.Duration-want) > 1e-9 {
		t.Errorf("duration = %g, want %g", plan.Duration, want)
	}
	if plan.Delay != 0.5 {
		t.Errorf("delay = %g, want leading padding 0.5", plan.Delay)
	}
	if plan.AudioPath == "" || plan.AudioDuration != 3.2 {
		t.Errorf("audio = (%q, %g), want synthesized", plan.AudioPath, plan.AudioDuration)
	}
}

func TestResolveAutoWithoutScript(t *testing.T) {
	engine := &stubEngine{duration: 3.2}
	r := &Resolver{Engine: engine, FallbackDuration: 3.0, WorkDir: t.TempDir()}

	plan, err := r.Resolve(context.Background(), config.Scene{Duration: config.Duration{Auto: true}}, 0, "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if plan.Duration != 3.0 {
		t.Errorf("duration = %g, want fallback 3.0", plan.Duration)
	}
	if engine.calls != 0 {
		t.Errorf("engine called %d times for a scriptless scene", engine.calls)
	}
	if plan.AudioPath != "" {
		t.Errorf("audio path = %q, want none", plan.AudioPath)
	}
}

func TestResolveAutoWithoutEngine(t *testing.T) {
	r := &Resolver{FallbackDuration: 2.0, WorkDir: t.TempDir()}
	plan, err := r.Resolve(context.Background(), config.Scene{
		Script:   "still has a script",
		Duration: config.Duration{Auto: true},
	}, 0, "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if plan.Duration != 2.0 {
		t.Errorf("duration = %g, want fallback", plan.Duration)
	}
}

func TestResolveExplicit(t *testing.T) {
	engine := &stubEngine{duration: 10.0}
	r := &Resolver{Engine: engine, FallbackDuration: 3.0, WorkDir: t.TempDir()}

	scene := config.Scene{
		Script:   "narration",
		Duration: config.Duration{Seconds: 4.0, PaddingBefore: 0.25},
	}
	plan, err := r.Resolve(context.Background(), scene, 1, "en")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	// Explicit duration wins even when the audio runs longer.
	if plan.Duration != 4.0 {
		t.Errorf("duration = %g, want explicit 4.0", plan.Duration)
	}
	if plan.Delay != 0.25 {
		t.Errorf("delay = %g, want 0.25", plan.Delay)
	}
}

func TestResolveSynthesisError(t *testing.T) {
	wantErr := &tts.SynthesisError{Engine: "stub", Err: errors.New("boom")}
	engine := &stubEngine{err: wantErr}
	r := &Resolver{Engine: engine, FallbackDuration: 3.0, WorkDir: t.TempDir()}

	_, err := r.Resolve(context.Background(), config.Scene{
		Script:   "text",
		Duration: config.Duration{Auto: true},
	}, 0, "en")
	var se *tts.SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("Resolve error = %v, want SynthesisError", err)
	}
	if engine.calls != 1 {
		t.Errorf("engine called %d times, want exactly 1 (no retry)", engine.calls)
	}
}

func TestResolveCaptionsShifted(t *testing.T) {
	engine := &stubEngine{
		duration: 2.0,
		words: []tts.Word{
			{Text: "hello", Start: 0, End: 0.9},
			{Text: "world", Start: 1.0, End: 2.0},
		},
	}
	r := &Resolver{Engine: engine, Captions: true, FallbackDuration: 3.0, WorkDir: t.TempDir()}

	scene := config.Scene{
		Script:   "hello world",
		Duration: config.Duration{Auto: true, PaddingBefore: 0.5},
	}
	plan, err := r.Resolve(context.Background(), scene, 0, "en")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(plan.Words) != 2 {
		t.Fatalf("got %d words, want 2", len(plan.Words))
	}
	if plan.Words[0].Start != 0.5 || plan.Words[1].End != 2.5 {
		t.Errorf("words not shifted by delay: %+v", plan.Words)
	}
}

func TestResolveCaptionsEstimated(t *testing.T) {
	// Engine returns no word timestamps; estimation covers the audio window.
	engine := &stubEngine{duration: 4.0}
	r := &Resolver{Engine: engine, Captions: true, FallbackDuration: 3.0, WorkDir: t.TempDir()}

	plan, err := r.Resolve(context.Background(), config.Scene{
		Script:   "one two three",
		Duration: config.Duration{Auto: true},
	}, 0, "en")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(plan.Words) != 3 {
		t.Fatalf("got %d words, want 3", len(plan.Words))
	}
	if last := plan.Words[2]; math.Abs(last.End-4.0) > 1e-9 {
		t.Errorf("last word ends at %g, want exactly 4.0", last.End)
	}
}

func TestEstimateWords(t *testing.T) {
	words := EstimateWords("a bb cccc", 2.0)
	if len(words) != 3 {
		t.Fatalf("got %d words, want 3", len(words))
	}

	// Longer words get proportionally more time.
	if d1, d2 := words[1].End-words[1].Start, words[2].End-words[2].Start; d2 <= d1 {
		t.Errorf("durations not proportional to length: bb=%g cccc=%g", d1, d2)
	}

	prev := 0.0
	for i, w := range words {
		if w.Start < prev {
			t.Errorf("word %d overlaps previous: start %g < %g", i, w.Start, prev)
		}
		if w.End <= w.Start {
			t.Errorf("word %d has non-positive duration", i)
		}
		prev = w.End
	}
	if words[2].End != 2.0 {
		t.Errorf("last word ends at %g, want 2.0", words[2].End)
	}
}

func TestEstimateWordsEmpty(t *testing.T) {
	if got := EstimateWords("", 2.0); got != nil {
		t.Errorf("EstimateWords(\"\") = %v, want nil", got)
	}
	if got := EstimateWords("word", 0); got != nil {
		t.Errorf("EstimateWords(total=0) = %v, want nil", got)
	}
}
