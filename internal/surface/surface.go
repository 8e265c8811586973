// Package surface defines the rendering-surface capability the engine
// drives: load a markup document once, then per frame inject the animation
// variables and capture a PNG. Concrete bindings (headless browser, PDF
// renderer, generated cards) are swappable behind the same interface.
package surface

import (
	"context"
	"fmt"
)

// Variables are injected before every capture. Templates read them to
// derive visual state; Progress is the sole deterministic animation driver.
type Variables struct {
	Progress    float64
	Frame       int
	TotalFrames int
}

// Surface is one leased rendering handle. Calls on a handle are never
// interleaved across frames: the pipeline owns it exclusively for the
// duration of a sub-job.
type Surface interface {
	// Load prepares the markup document for capture.
	Load(ctx context.Context, markup string) error
	// SetVariables updates the animation state for the next capture.
	SetVariables(ctx context.Context, vars Variables) error
	// CaptureFrame renders the current state and returns PNG bytes.
	CaptureFrame(ctx context.Context) ([]byte, error)
	// Close releases the handle. Safe to call after a failed Load.
	Close() error
}

// Factory creates surface handles at a fixed output size. The controller
// leases handles through its pool; the factory is the only place new ones
// are made.
type Factory func(width, height int) (Surface, error)

// CaptureError wraps a rendering-surface failure. Scoped to one sub-job.
type CaptureError struct {
	Frame int
	Err   error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture frame %d: %v", e.Frame, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }
