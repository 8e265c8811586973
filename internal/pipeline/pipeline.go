// Package pipeline streams captured frames into an encoder sink through a
// bounded queue, so capture can run ahead of encoding without unbounded
// frame buffering.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ivlev/md2video/internal/schedule"
	"github.com/ivlev/md2video/internal/surface"
)

// Sink consumes encoded frames in order. *encoder.Stream satisfies it.
type Sink interface {
	WriteFrame(data []byte) error
}

// Options tune one pipeline run. Zero values pick defaults.
type Options struct {
	// QueueDepth bounds how many captured frames may wait for the sink.
	QueueDepth int
	// CaptureTimeout bounds each SetVariables/CaptureFrame call so a hung
	// surface fails the sub-job instead of wedging it.
	CaptureTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.QueueDepth <= 0 {
		o.QueueDepth = 8
	}
	if o.CaptureTimeout <= 0 {
		o.CaptureTimeout = 30 * time.Second
	}
}

// Run captures every frame of the schedule from surf and writes them to the
// sink in index order. It returns the first error from either side; on
// error or cancellation the queue is drained and both sides stop between
// frames. The caller owns surf and the sink lifecycle (Close or Abort).
func Run(ctx context.Context, surf surface.Surface, sched schedule.Schedule, sink Sink, opts Options) error {
	opts.setDefaults()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan []byte, opts.QueueDepth)
	captureErr := make(chan error, 1)

	go func() {
		defer close(frames)
		captureErr <- produce(ctx, surf, sched, frames, opts.CaptureTimeout)
	}()

	var written int
	var writeErr error
	for data := range frames {
		if writeErr != nil {
			continue // drain so the producer can exit
		}
		if err := sink.WriteFrame(data); err != nil {
			writeErr = err
			cancel()
			continue
		}
		written++
	}

	if writeErr != nil {
		<-captureErr
		return writeErr
	}
	if err := <-captureErr; err != nil {
		return err
	}
	if written != sched.Total {
		return fmt.Errorf("pipeline: wrote %d of %d frames", written, sched.Total)
	}
	return nil
}

func produce(ctx context.Context, surf surface.Surface, sched schedule.Schedule, out chan<- []byte, timeout time.Duration) error {
	for i := 0; i < sched.Total; i++ {
		// Cancellation is observed between frames, never mid-capture.
		if err := ctx.Err(); err != nil {
			return err
		}
		task := sched.Task(i)
		data, err := captureOne(ctx, surf, task, timeout)
		if err != nil {
			return &surface.CaptureError{Frame: i, Err: err}
		}
		select {
		case out <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func captureOne(ctx context.Context, surf surface.Surface, task schedule.FrameTask, timeout time.Duration) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := surf.SetVariables(callCtx, surface.Variables{
		Progress:    task.Progress,
		Frame:       task.Index,
		TotalFrames: task.Total,
	}); err != nil {
		return nil, err
	}
	return surf.CaptureFrame(callCtx)
}
