// Package schedule converts a resolved duration and frame rate into the
// ordered frame sequence that drives deterministic animation state.
package schedule

import "math"

// FrameTask is one frame of one scene. Progress is the sole animation
// driver: 0 at the first frame, exactly 1 at the last.
type FrameTask struct {
	Index    int
	Total    int
	Progress float64
}

// Schedule is the frame plan for one scene at a given frame rate. It is a
// pure value: rebuilding it from the same inputs yields identical tasks,
// and it never reads the clock.
type Schedule struct {
	Duration float64
	FPS      int
	Total    int
}

// New derives the schedule. Frame count = round(duration*fps), never less
// than one, so even a zero-length scene emits a frame.
func New(duration float64, fps int) Schedule {
	total := int(math.Round(duration * float64(fps)))
	if total < 1 {
		total = 1
	}
	return Schedule{Duration: duration, FPS: fps, Total: total}
}

// Task returns frame i of the schedule. A single-frame scene reports
// progress 1.0 rather than dividing by zero.
func (s Schedule) Task(i int) FrameTask {
	progress := 1.0
	if s.Total > 1 {
		progress = float64(i) / float64(s.Total-1)
		if progress < 0 {
			progress = 0
		}
		if progress > 1 {
			progress = 1
		}
	}
	return FrameTask{Index: i, Total: s.Total, Progress: progress}
}

// Tasks materializes the full ordered sequence.
func (s Schedule) Tasks() []FrameTask {
	tasks := make([]FrameTask, s.Total)
	for i := range tasks {
		tasks[i] = s.Task(i)
	}
	return tasks
}
