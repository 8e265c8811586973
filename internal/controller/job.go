package controller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/md2video/internal/assembly"
	"github.com/ivlev/md2video/internal/config"
	"github.com/ivlev/md2video/internal/encoder"
	"github.com/ivlev/md2video/internal/pipeline"
	"github.com/ivlev/md2video/internal/schedule"
	"github.com/ivlev/md2video/internal/subtitle"
	"github.com/ivlev/md2video/internal/timing"
)

func (c *Controller) run(ctx context.Context, j *job) {
	defer close(j.done)
	defer j.cancel()
	log := c.log.With().Str("job", j.id).Logger()

	c.mu.Lock()
	j.state = StateRunning
	c.mu.Unlock()
	c.emit(j, nil)

	workDir := filepath.Join(c.opts.WorkDir, "md2video-"+j.id)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		c.finish(j, fmt.Errorf("work dir: %w", err))
		return
	}
	// Intermediate audio and segments are only needed until assembly; the
	// job keeps nothing behind on any terminal state.
	defer os.RemoveAll(workDir)

	// Timing is resolved once per scene; plans are format-independent.
	c.resolvePlans(ctx, j, workDir, log)

	// Sub-jobs run concurrently, bounded by the handle pool.
	var wg sync.WaitGroup
	for _, sub := range j.subs {
		if sub.state == SubFailed {
			continue
		}
		wg.Add(1)
		go func(sub *subJob) {
			defer wg.Done()
			c.runSub(ctx, j, sub, workDir, log)
		}(sub)
	}
	wg.Wait()

	if ctx.Err() == nil {
		c.assemble(ctx, j, log)
	}
	c.finish(j, nil)
	log.Info().Str("state", string(c.stateOf(j))).Msg("job finished")
}

func (c *Controller) resolvePlans(ctx context.Context, j *job, workDir string, log zerolog.Logger) {
	resolver := &timing.Resolver{
		Engine:           c.opts.TTS,
		Speed:            j.project.Voice.Speed,
		FallbackDuration: j.project.Voice.FallbackDuration,
		Captions:         j.project.Subtitles,
		WorkDir:          workDir,
	}
	for at, si := range j.sceneIdx {
		if ctx.Err() != nil {
			c.failScene(j, at, ctx.Err())
			continue
		}
		sc := j.project.Scenes[si]
		voice := sc.Voice
		if voice == "" {
			voice = j.project.Voice.DefaultVoice
		}
		plan, err := resolver.Resolve(ctx, sc, si, voice)
		if err != nil {
			log.Error().Err(err).Int("scene", si).Msg("timing resolution failed")
			c.failScene(j, at, err)
			continue
		}
		c.mu.Lock()
		j.plans[at] = plan
		c.mu.Unlock()
	}
}

// failScene marks every sub-job of one scene failed before it ran.
func (c *Controller) failScene(j *job, sceneAt int, err error) {
	c.mu.Lock()
	for _, s := range j.subs {
		if s.sceneAt == sceneAt && s.state == SubPending {
			s.state = SubFailed
			s.err = err
		}
	}
	c.mu.Unlock()
	c.emit(j, nil)
}

func (c *Controller) runSub(ctx context.Context, j *job, sub *subJob, workDir string, log zerolog.Logger) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		c.failSub(j, sub, err)
		return
	}
	defer c.sem.Release(1)

	if err := c.renderSub(ctx, j, sub, workDir); err != nil {
		log.Error().Err(err).
			Int("scene", sub.scene).Str("format", sub.format.Name).
			Msg("sub-job failed")
		c.failSub(j, sub, err)
		return
	}
	c.setSubState(j, sub, SubDone)
}

func (c *Controller) renderSub(ctx context.Context, j *job, sub *subJob, workDir string) error {
	c.mu.Lock()
	plan := j.plans[sub.sceneAt]
	c.mu.Unlock()

	sched := schedule.New(plan.Duration, j.project.FPS)
	c.mu.Lock()
	sub.total = sched.Total
	c.mu.Unlock()
	c.setSubState(j, sub, SubCapturing)

	surf, err := c.opts.Surfaces(sub.format.Width, sub.format.Height)
	if err != nil {
		return fmt.Errorf("create surface: %w", err)
	}
	defer surf.Close()

	sc := j.project.Scenes[sub.scene].ForFormat(sub.format.Name)
	loadCtx, cancelLoad := context.WithTimeout(ctx, c.opts.CaptureTimeout)
	err = surf.Load(loadCtx, markupFor(sc))
	cancelLoad()
	if err != nil {
		return fmt.Errorf("load scene %d: %w", sub.scene, err)
	}

	cfg := encoder.Config{
		OutputPath: filepath.Join(workDir, fmt.Sprintf("seg-%03d-%s.mp4", sub.scene, sub.format.Name)),
		Width:      sub.format.Width,
		Height:     sub.format.Height,
		FPS:        j.project.FPS,
		Encoder:    c.opts.Encoder,
		Quality:    j.project.Quality,
		VoicePath:  plan.AudioPath,
		VoiceDelay: plan.Delay,
	}
	if sc.Audio != nil {
		cfg.MusicPath = sc.Audio.Path
		cfg.MusicVolume = sc.Audio.Volume
	}
	stream, err := c.opts.Encoders(ctx, cfg)
	if err != nil {
		return err
	}

	sink := &countingSink{stream: stream, onFrame: func(n int) {
		c.mu.Lock()
		sub.frame = n
		c.mu.Unlock()
		c.emit(j, sub)
	}}
	err = pipeline.Run(ctx, surf, sched, sink, pipeline.Options{
		QueueDepth:     c.opts.QueueDepth,
		CaptureTimeout: c.opts.CaptureTimeout,
	})
	if err != nil {
		stream.Abort()
		return err
	}

	c.setSubState(j, sub, SubEncoding)
	seg, err := stream.Close()
	if err != nil {
		return err
	}

	c.mu.Lock()
	sub.segPath = seg.Path
	sub.segDuration = seg.Duration
	c.mu.Unlock()
	return nil
}

// markupFor picks the surface markup for a scene: an explicit per-format
// "markup" prop wins over the scene template reference.
func markupFor(sc config.Scene) string {
	if m, ok := sc.Props["markup"].(string); ok && m != "" {
		return m
	}
	return sc.Template
}

type countingSink struct {
	stream  pipeline.Sink
	n       int
	onFrame func(int)
}

func (s *countingSink) WriteFrame(data []byte) error {
	if err := s.stream.WriteFrame(data); err != nil {
		return err
	}
	s.n++
	s.onFrame(s.n)
	return nil
}

// assemble composes the final video for every format whose sub-jobs all
// succeeded, plus the caption file when subtitles are enabled.
func (c *Controller) assemble(ctx context.Context, j *job, log zerolog.Logger) {
	if err := os.MkdirAll(j.project.OutputDir, 0o755); err != nil {
		c.mu.Lock()
		j.err = &assembly.AssemblyError{Output: j.project.OutputDir, Err: err}
		c.mu.Unlock()
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range j.formats {
		in, ok := c.assemblyInput(j, f.Name)
		if !ok {
			continue
		}
		f := f
		outPath := filepath.Join(j.project.OutputDir, fmt.Sprintf("%s-%s.mp4", outputBase(j.project), f.Name))
		g.Go(func() error {
			if err := c.opts.Assemble(gctx, in, outPath); err != nil {
				log.Error().Err(err).Str("format", f.Name).Msg("assembly failed")
				c.mu.Lock()
				j.formatErr[f.Name] = err
				c.mu.Unlock()
				return nil // other formats still assemble
			}
			c.mu.Lock()
			j.outputs = append(j.outputs, outPath)
			c.mu.Unlock()

			if j.project.Subtitles {
				if err := c.writeCaptions(j, outPath); err != nil {
					log.Warn().Err(err).Str("format", f.Name).Msg("caption write failed")
				}
			}
			return nil
		})
	}
	g.Wait()
}

// assemblyInput gathers segments and resolved transitions for one format.
// Returns ok=false unless every scene of the format is Done.
func (c *Controller) assemblyInput(j *job, format string) (assembly.Input, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var in assembly.Input
	for at, si := range j.sceneIdx {
		var sub *subJob
		for _, s := range j.subs {
			if s.sceneAt == at && s.format.Name == format {
				sub = s
				break
			}
		}
		if sub == nil || sub.state != SubDone {
			return assembly.Input{}, false
		}
		in.Segments = append(in.Segments, assembly.Segment{
			Path:     sub.segPath,
			Duration: sub.segDuration,
		})
		if at > 0 {
			prev := j.project.Scenes[j.sceneIdx[at-1]]
			name, dur := j.project.ResolveTransition(prev, j.project.Scenes[si])
			in.Transitions = append(in.Transitions, assembly.Transition{Name: name, Duration: dur})
		}
	}
	return in, true
}

// writeCaptions emits the SRT next to the assembled output. Word times are
// scene-local; offsets accumulate realized durations minus transition
// overlap.
func (c *Controller) writeCaptions(j *job, outPath string) error {
	c.mu.Lock()
	var scenes []subtitle.SceneWords
	offset := 0.0
	for at, si := range j.sceneIdx {
		if at > 0 {
			prev := j.project.Scenes[j.sceneIdx[at-1]]
			name, dur := j.project.ResolveTransition(prev, j.project.Scenes[si])
			if name != "" && name != "none" && dur > 0 {
				offset -= dur
			}
		}
		plan := j.plans[at]
		scenes = append(scenes, subtitle.SceneWords{Words: plan.Words, Offset: offset})
		offset += plan.Duration
	}
	c.mu.Unlock()

	entries := subtitle.Build(scenes, subtitle.DefaultMaxWords)
	if len(entries) == 0 {
		return nil
	}
	srtPath := outPath[:len(outPath)-len(filepath.Ext(outPath))] + ".srt"
	return subtitle.WriteSRT(srtPath, entries)
}

func outputBase(p *config.Project) string {
	if p.Name != "" {
		return p.Name
	}
	return "video"
}

func (c *Controller) setSubState(j *job, sub *subJob, st SubState) {
	c.mu.Lock()
	sub.state = st
	c.mu.Unlock()
	c.emit(j, sub)
}

func (c *Controller) failSub(j *job, sub *subJob, err error) {
	c.mu.Lock()
	sub.state = SubFailed
	sub.err = err
	c.mu.Unlock()
	c.emit(j, sub)
}

func (c *Controller) stateOf(j *job) JobState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return j.state
}

// finish derives the terminal state. Cancellation wins; otherwise the
// sub-job and per-format assembly outcomes decide.
func (c *Controller) finish(j *job, jobErr error) {
	c.mu.Lock()
	if jobErr != nil {
		j.err = jobErr
	}

	var done, failed int
	for _, s := range j.subs {
		switch s.state {
		case SubDone:
			done++
		case SubFailed:
			failed++
		default:
			// Pending sub-jobs at finish time were never started.
			failed++
		}
	}

	switch {
	case j.cancelled:
		j.state = StateCancelled
	case j.err != nil:
		j.state = StateFailed
	case done == 0:
		j.state = StateFailed
	case failed > 0:
		j.state = StatePartiallyFailed
	case len(j.formatErr) > 0 && len(j.outputs) == 0:
		j.state = StateFailed
	case len(j.formatErr) > 0:
		j.state = StatePartiallyFailed
	default:
		j.state = StateSucceeded
	}

	if j.err == nil && len(j.formatErr) > 0 {
		for name, err := range j.formatErr {
			j.err = fmt.Errorf("format %s: %w", name, err)
			break
		}
	}
	c.mu.Unlock()
	c.emit(j, nil)
}
