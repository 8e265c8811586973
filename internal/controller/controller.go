// Package controller orchestrates render jobs: it expands a submission into
// (scene, format) sub-jobs, runs them under the surface-handle limit, and
// assembles the finished segments per format.
package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/ivlev/md2video/internal/assembly"
	"github.com/ivlev/md2video/internal/config"
	"github.com/ivlev/md2video/internal/encoder"
	"github.com/ivlev/md2video/internal/surface"
	"github.com/ivlev/md2video/internal/system"
	"github.com/ivlev/md2video/internal/timing"
	"github.com/ivlev/md2video/internal/tts"
)

// JobState is the lifecycle of a whole submission.
type JobState string

const (
	StateQueued          JobState = "queued"
	StateRunning         JobState = "running"
	StateSucceeded       JobState = "succeeded"
	StatePartiallyFailed JobState = "partially_failed"
	StateFailed          JobState = "failed"
	StateCancelled       JobState = "cancelled"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	switch s {
	case StateSucceeded, StatePartiallyFailed, StateFailed, StateCancelled:
		return true
	}
	return false
}

// SubState is the lifecycle of one (scene, format) sub-job.
type SubState string

const (
	SubPending   SubState = "pending"
	SubCapturing SubState = "capturing"
	SubEncoding  SubState = "encoding"
	SubDone      SubState = "done"
	SubFailed    SubState = "failed"
)

// ErrNotFound is returned for unknown job IDs.
var ErrNotFound = errors.New("job not found")

// EncoderStream is the encoder instance a sub-job writes into.
// *encoder.Stream satisfies it.
type EncoderStream interface {
	WriteFrame(data []byte) error
	Close() (encoder.Segment, error)
	Abort()
}

// EncoderFactory spawns one encoder stream per sub-job.
type EncoderFactory func(ctx context.Context, cfg encoder.Config) (EncoderStream, error)

// AssembleFunc composes one format's segments into its final output.
type AssembleFunc func(ctx context.Context, in assembly.Input, outPath string) error

// Options configure a Controller. Zero values pick defaults sized to the
// host.
type Options struct {
	// Surfaces creates rendering handles. Required.
	Surfaces surface.Factory
	// TTS synthesizes voiceovers. Optional: auto scenes then use the
	// project's fallback duration.
	TTS tts.Engine
	// Encoders spawns encoder streams; defaults to ffmpeg via
	// encoder.NewStream.
	Encoders EncoderFactory
	// Assemble composes per-format outputs; defaults to
	// assembly.Concatenate.
	Assemble AssembleFunc
	// PoolSize bounds concurrently leased surface handles across all jobs.
	PoolSize int
	// QueueDepth bounds the per-sub-job frame queue.
	QueueDepth int
	// Encoder names the H.264 encoder; probed when empty.
	Encoder string
	// WorkDir receives intermediate audio and segment files.
	WorkDir string
	// CaptureTimeout bounds each surface call.
	CaptureTimeout time.Duration
	// Logger is the parent logger; a component logger is derived from it.
	Logger zerolog.Logger
	// OnProgress, when set, receives an event on every state change and
	// frame advance. Called from job goroutines; must be fast.
	OnProgress func(Event)
}

func (o *Options) setDefaults() error {
	if o.Surfaces == nil {
		return errors.New("controller: surface factory is required")
	}
	if o.PoolSize <= 0 {
		o.PoolSize = system.DefaultPoolSize()
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = system.DefaultQueueDepth()
	}
	if o.Encoder == "" {
		o.Encoder = system.BestH264Encoder()
	}
	if o.WorkDir == "" {
		o.WorkDir = os.TempDir()
	}
	if o.CaptureTimeout <= 0 {
		o.CaptureTimeout = 30 * time.Second
	}
	if o.Encoders == nil {
		o.Encoders = func(ctx context.Context, cfg encoder.Config) (EncoderStream, error) {
			return encoder.NewStream(ctx, cfg)
		}
	}
	if o.Assemble == nil {
		o.Assemble = assembly.Concatenate
	}
	return nil
}

// Event is one progress notification.
type Event struct {
	JobID       string
	State       JobState
	Scene       int
	Format      string
	SubState    SubState
	Frame       int
	TotalFrames int
	// Progress is the job-level completion in [0,1].
	Progress float64
}

// Controller owns the handle pool and the job table. Safe for concurrent
// use.
type Controller struct {
	opts Options
	sem  *semaphore.Weighted
	log  zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

// New builds a controller. The pool size is the hard concurrency limit:
// no more than PoolSize sub-jobs capture at once, across all jobs.
func New(opts Options) (*Controller, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	return &Controller{
		opts: opts,
		sem:  semaphore.NewWeighted(int64(opts.PoolSize)),
		log:  opts.Logger.With().Str("component", "controller").Logger(),
		jobs: make(map[string]*job),
	}, nil
}

type job struct {
	id      string
	project *config.Project
	// sceneIdx are the selected scene indices, in timeline order.
	sceneIdx []int
	formats  []config.Format

	state     JobState
	cancelled bool
	cancel    context.CancelFunc
	done      chan struct{}

	plans   []timing.Plan
	subs    []*subJob
	outputs []string
	// formatErr records per-format assembly failures.
	formatErr map[string]error
	err       error
}

type subJob struct {
	// sceneAt indexes job.sceneIdx/plans; scene is the project index.
	sceneAt int
	scene   int
	format  config.Format

	state SubState
	frame int
	total int
	err   error

	segPath     string
	segDuration float64
}

// Submit validates the project, expands it into sub-jobs and starts the
// job. scenes selects scene indices (nil means all); formats selects
// format names (nil means all). The returned ID is immediately queryable.
func (c *Controller) Submit(project *config.Project, scenes []int, formats []string) (string, error) {
	if err := project.Validate(); err != nil {
		return "", err
	}

	sceneIdx, err := selectScenes(project, scenes)
	if err != nil {
		return "", err
	}
	fmts, err := selectFormats(project, formats)
	if err != nil {
		return "", err
	}

	j := &job{
		id:        uuid.NewString(),
		project:   project,
		sceneIdx:  sceneIdx,
		formats:   fmts,
		state:     StateQueued,
		done:      make(chan struct{}),
		plans:     make([]timing.Plan, len(sceneIdx)),
		formatErr: make(map[string]error),
	}
	for at, si := range sceneIdx {
		for _, f := range fmts {
			j.subs = append(j.subs, &subJob{sceneAt: at, scene: si, format: f, state: SubPending})
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel

	c.mu.Lock()
	c.jobs[j.id] = j
	c.mu.Unlock()

	c.log.Info().Str("job", j.id).
		Int("scenes", len(sceneIdx)).Int("formats", len(fmts)).
		Msg("job submitted")
	go c.run(ctx, j)
	return j.id, nil
}

func selectScenes(p *config.Project, scenes []int) ([]int, error) {
	if scenes == nil {
		all := make([]int, len(p.Scenes))
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	if len(scenes) == 0 {
		return nil, &config.ValidationError{Field: "scenes", Reason: "empty scene selection"}
	}
	seen := make(map[int]bool, len(scenes))
	out := make([]int, 0, len(scenes))
	for _, i := range scenes {
		if i < 0 || i >= len(p.Scenes) {
			return nil, &config.ValidationError{Field: "scenes", Reason: fmt.Sprintf("index %d out of range", i)}
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	return out, nil
}

func selectFormats(p *config.Project, names []string) ([]config.Format, error) {
	if names == nil {
		return p.Formats, nil
	}
	if len(names) == 0 {
		return nil, &config.ValidationError{Field: "formats", Reason: "empty format selection"}
	}
	byName := make(map[string]config.Format, len(p.Formats))
	for _, f := range p.Formats {
		byName[f.Name] = f
	}
	out := make([]config.Format, 0, len(names))
	for _, n := range names {
		f, ok := byName[n]
		if !ok {
			return nil, &config.ValidationError{Field: "formats", Reason: fmt.Sprintf("unknown format %q", n)}
		}
		out = append(out, f)
	}
	return out, nil
}

// SubStatus reports one sub-job.
type SubStatus struct {
	Scene       int
	Format      string
	State       SubState
	Frame       int
	TotalFrames int
	ErrorKind   ErrorKind
	Error       string
}

// Status is a snapshot of one job.
type Status struct {
	ID       string
	State    JobState
	Progress float64
	Subs     []SubStatus
	// Outputs are the assembled files, one per fully succeeded format.
	Outputs []string
	// Error summarizes a job-level failure (validation, assembly).
	Error string
}

// Status returns a snapshot of the job.
func (c *Controller) Status(id string) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[id]
	if !ok {
		return Status{}, ErrNotFound
	}
	return c.snapshotLocked(j), nil
}

func (c *Controller) snapshotLocked(j *job) Status {
	st := Status{
		ID:       j.id,
		State:    j.state,
		Progress: progressLocked(j),
		Outputs:  append([]string(nil), j.outputs...),
	}
	for _, s := range j.subs {
		sub := SubStatus{
			Scene:       s.scene,
			Format:      s.format.Name,
			State:       s.state,
			Frame:       s.frame,
			TotalFrames: s.total,
		}
		if s.err != nil {
			sub.ErrorKind = Classify(s.err)
			sub.Error = s.err.Error()
		}
		st.Subs = append(st.Subs, sub)
	}
	if j.err != nil {
		st.Error = j.err.Error()
	}
	return st
}

// progressLocked counts finished sub-jobs plus the frame progress of
// active ones.
func progressLocked(j *job) float64 {
	if len(j.subs) == 0 {
		return 0
	}
	var sum float64
	for _, s := range j.subs {
		switch s.state {
		case SubDone:
			sum += 1
		case SubCapturing, SubEncoding:
			if s.total > 0 {
				sum += float64(s.frame) / float64(s.total)
			}
		}
	}
	return sum / float64(len(j.subs))
}

// Cancel requests cooperative cancellation. Running sub-jobs stop at the
// next frame boundary; partial segments are discarded. Idempotent; an
// already terminal job is left as-is.
func (c *Controller) Cancel(id string) error {
	c.mu.Lock()
	j, ok := c.jobs[id]
	if !ok {
		c.mu.Unlock()
		return ErrNotFound
	}
	if !j.state.Terminal() {
		j.cancelled = true
	}
	c.mu.Unlock()

	j.cancel()
	c.log.Info().Str("job", id).Msg("cancel requested")
	return nil
}

// Wait blocks until the job reaches a terminal state, or ctx is done.
func (c *Controller) Wait(ctx context.Context, id string) (Status, error) {
	c.mu.Lock()
	j, ok := c.jobs[id]
	c.mu.Unlock()
	if !ok {
		return Status{}, ErrNotFound
	}
	select {
	case <-j.done:
		return c.Status(id)
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func (c *Controller) emit(j *job, sub *subJob) {
	if c.opts.OnProgress == nil {
		return
	}
	c.mu.Lock()
	ev := Event{
		JobID:    j.id,
		State:    j.state,
		Progress: progressLocked(j),
	}
	if sub != nil {
		ev.Scene = sub.scene
		ev.Format = sub.format.Name
		ev.SubState = sub.state
		ev.Frame = sub.frame
		ev.TotalFrames = sub.total
	}
	c.mu.Unlock()
	c.opts.OnProgress(ev)
}
