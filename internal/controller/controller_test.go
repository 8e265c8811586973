package controller

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ivlev/md2video/internal/assembly"
	"github.com/ivlev/md2video/internal/config"
	"github.com/ivlev/md2video/internal/encoder"
	"github.com/ivlev/md2video/internal/surface"
	"github.com/ivlev/md2video/internal/tts"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"validation", &config.ValidationError{Field: "fps"}, KindValidation},
		{"synthesis", &tts.SynthesisError{Engine: "stub", Err: errors.New("x")}, KindSynthesis},
		{"capture", &surface.CaptureError{Frame: 3, Err: errors.New("x")}, KindCapture},
		{"encoding", &encoder.EncodingError{Err: errors.New("x")}, KindEncoding},
		{"assembly", &assembly.AssemblyError{Output: "o", Err: errors.New("x")}, KindAssembly},
		{"wrapped capture", fmt.Errorf("scene 2: %w", &surface.CaptureError{Frame: 0, Err: errors.New("x")}), KindCapture},
		{"cancelled", context.Canceled, KindCancelled},
		{"cancelled inside capture", &surface.CaptureError{Frame: 1, Err: context.Canceled}, KindCancelled},
		{"capture timeout keeps its scope", &surface.CaptureError{Frame: 1, Err: context.DeadlineExceeded}, KindCapture},
		{"bare deadline", context.DeadlineExceeded, KindTimeout},
		{"unknown", errors.New("mystery"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func testProject() *config.Project {
	return &config.Project{
		FPS: 30,
		Formats: []config.Format{
			{Name: "landscape", Width: 1920, Height: 1080},
			{Name: "portrait", Width: 1080, Height: 1920},
		},
		Scenes: []config.Scene{
			{Template: "stub:a", Duration: config.Duration{Seconds: 1}},
			{Template: "stub:b", Duration: config.Duration{Seconds: 1}},
			{Template: "stub:c", Duration: config.Duration{Seconds: 1}},
		},
	}
}

func TestSelectScenes(t *testing.T) {
	p := testProject()

	all, err := selectScenes(p, nil)
	if err != nil || len(all) != 3 {
		t.Fatalf("selectScenes(nil) = %v, %v", all, err)
	}

	subset, err := selectScenes(p, []int{2, 0, 2})
	if err != nil {
		t.Fatalf("selectScenes failed: %v", err)
	}
	if len(subset) != 2 || subset[0] != 2 || subset[1] != 0 {
		t.Errorf("subset = %v, want [2 0] deduplicated in request order", subset)
	}

	var ve *config.ValidationError
	if _, err := selectScenes(p, []int{5}); !errors.As(err, &ve) {
		t.Errorf("out-of-range error = %v, want ValidationError", err)
	}
	if _, err := selectScenes(p, []int{}); !errors.As(err, &ve) {
		t.Errorf("empty selection error = %v, want ValidationError", err)
	}
}

func TestSelectFormats(t *testing.T) {
	p := testProject()

	all, err := selectFormats(p, nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("selectFormats(nil) = %v, %v", all, err)
	}

	one, err := selectFormats(p, []string{"portrait"})
	if err != nil || len(one) != 1 || one[0].Width != 1080 {
		t.Fatalf("selectFormats(portrait) = %v, %v", one, err)
	}

	var ve *config.ValidationError
	if _, err := selectFormats(p, []string{"square"}); !errors.As(err, &ve) {
		t.Errorf("unknown format error = %v, want ValidationError", err)
	}
}

func TestSubmitRejectsInvalidProject(t *testing.T) {
	c := newTestController(t)

	p := testProject()
	p.FPS = 0
	var ve *config.ValidationError
	if _, err := c.Submit(p, nil, nil); !errors.As(err, &ve) {
		t.Fatalf("Submit error = %v, want ValidationError", err)
	}

	if _, err := c.Submit(testProject(), nil, []string{"nope"}); !errors.As(err, &ve) {
		t.Fatalf("Submit with unknown format = %v, want ValidationError", err)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	c := newTestController(t)
	if _, err := c.Status("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Status = %v, want ErrNotFound", err)
	}
	if err := c.Cancel("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel = %v, want ErrNotFound", err)
	}
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	c, err := New(Options{
		Surfaces: func(w, h int) (surface.Surface, error) {
			return nil, errors.New("not used")
		},
		PoolSize:   2,
		QueueDepth: 2,
		Encoder:    "libx264",
		WorkDir:    t.TempDir(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestNewRequiresFactory(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("New without factory succeeded, want error")
	}
}

func makeJob(states ...SubState) *job {
	j := &job{
		project:   testProject(),
		formatErr: make(map[string]error),
		done:      make(chan struct{}),
	}
	for i, st := range states {
		j.subs = append(j.subs, &subJob{scene: i, state: st})
	}
	return j
}

func TestFinishStates(t *testing.T) {
	tests := []struct {
		name      string
		subs      []SubState
		cancelled bool
		outputs   []string
		formatErr error
		want      JobState
	}{
		{"all done", []SubState{SubDone, SubDone}, false, []string{"a.mp4"}, nil, StateSucceeded},
		{"all failed", []SubState{SubFailed, SubFailed}, false, nil, nil, StateFailed},
		{"mixed", []SubState{SubDone, SubFailed}, false, []string{"a.mp4"}, nil, StatePartiallyFailed},
		{"cancelled wins", []SubState{SubDone, SubFailed}, true, nil, nil, StateCancelled},
		{"assembly failed everywhere", []SubState{SubDone, SubDone}, false, nil, errors.New("x"), StateFailed},
		{"assembly failed for one format", []SubState{SubDone, SubDone}, false, []string{"a.mp4"}, errors.New("x"), StatePartiallyFailed},
		{"never started counts as failed", []SubState{SubDone, SubPending}, false, []string{"a.mp4"}, nil, StatePartiallyFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(t)
			j := makeJob(tt.subs...)
			j.cancelled = tt.cancelled
			j.outputs = tt.outputs
			if tt.formatErr != nil {
				j.formatErr["landscape"] = tt.formatErr
			}

			c.finish(j, nil)
			if j.state != tt.want {
				t.Errorf("state = %q, want %q", j.state, tt.want)
			}
		})
	}
}

func TestProgress(t *testing.T) {
	j := makeJob(SubDone, SubCapturing, SubPending, SubFailed)
	j.subs[1].frame = 30
	j.subs[1].total = 60

	got := progressLocked(j)
	want := (1.0 + 0.5) / 4.0
	if got != want {
		t.Errorf("progress = %g, want %g", got, want)
	}
}

func TestMarkupFor(t *testing.T) {
	sc := config.Scene{Template: "pdf:deck.pdf#1"}
	if got := markupFor(sc); got != "pdf:deck.pdf#1" {
		t.Errorf("markupFor = %q, want template", got)
	}

	sc.Props = map[string]any{"markup": "pdf:deck-tall.pdf#1"}
	if got := markupFor(sc); got != "pdf:deck-tall.pdf#1" {
		t.Errorf("markupFor = %q, want markup prop", got)
	}
}

func TestTerminal(t *testing.T) {
	for st, want := range map[JobState]bool{
		StateQueued:          false,
		StateRunning:         false,
		StateSucceeded:       true,
		StatePartiallyFailed: true,
		StateFailed:          true,
		StateCancelled:       true,
	} {
		if got := st.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", st, got, want)
		}
	}
}
