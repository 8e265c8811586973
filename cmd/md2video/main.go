// Command md2video renders a declarative multi-scene project into one
// video per output format.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/md2video/internal/config"
	"github.com/ivlev/md2video/internal/controller"
	"github.com/ivlev/md2video/internal/surface"
	"github.com/ivlev/md2video/internal/system"
	"github.com/ivlev/md2video/internal/tts"
)

func main() {
	var (
		configPath = flag.String("config", "project.yaml", "project file")
		scenesArg  = flag.String("scenes", "", "comma-separated scene indices (default: all)")
		formatsArg = flag.String("formats", "", "comma-separated format names (default: all)")
		poolSize   = flag.Int("pool", 0, "surface handle pool size (default: per host)")
		queueDepth = flag.Int("queue", 0, "frame queue depth (default: per host)")
		encoderArg = flag.String("encoder", "", "H.264 encoder (default: probed)")
		workDir    = flag.String("workdir", "", "intermediate file directory (default: temp)")
		pdfDPI     = flag.Int("pdf-dpi", 150, "render DPI for pdf scenes")
		noTTS      = flag.Bool("no-tts", false, "skip voiceover synthesis")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	if err := run(log, *configPath, *scenesArg, *formatsArg, *poolSize, *queueDepth,
		*encoderArg, *workDir, *pdfDPI, *noTTS); err != nil {
		log.Error().Err(err).Msg("render failed")
		os.Exit(1)
	}
}

func run(log zerolog.Logger, configPath, scenesArg, formatsArg string,
	poolSize, queueDepth int, encoderName, workDir string, pdfDPI int, noTTS bool) error {

	if err := system.InitResourceLimits(); err != nil {
		log.Warn().Err(err).Msg("could not raise file limit")
	}

	project, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var engine tts.Engine
	if !noTTS {
		e, err := tts.NewEspeakEngine()
		if err != nil {
			log.Warn().Err(err).Msg("tts unavailable, auto scenes use fallback duration")
		} else {
			engine = e
			if cacheRoot, err := os.UserCacheDir(); err == nil {
				cached, err := tts.NewCachedEngine(e, filepath.Join(cacheRoot, "md2video", "tts"))
				if err != nil {
					log.Warn().Err(err).Msg("tts cache unavailable")
				} else {
					engine = cached
				}
			}
		}
	}

	scenes, err := parseScenes(scenesArg)
	if err != nil {
		return err
	}
	var formats []string
	if formatsArg != "" {
		formats = strings.Split(formatsArg, ",")
	}

	ctrl, err := controller.New(controller.Options{
		Surfaces: surface.Dispatch(map[string]surface.Factory{
			"pdf": surface.NewPDFSurface(pdfDPI),
			"qr":  surface.NewQRCardSurface(),
		}),
		TTS:        engine,
		PoolSize:   poolSize,
		QueueDepth: queueDepth,
		Encoder:    encoderName,
		WorkDir:    workDir,
		Logger:     log,
		OnProgress: progressPrinter(log),
	})
	if err != nil {
		return err
	}

	jobID, err := ctrl.Submit(project, scenes, formats)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		ctrl.Cancel(jobID)
	}()

	status, err := ctrl.Wait(context.Background(), jobID)
	if err != nil {
		return err
	}

	for _, out := range status.Outputs {
		log.Info().Str("output", out).Msg("written")
	}
	switch status.State {
	case controller.StateSucceeded:
		return nil
	case controller.StateCancelled:
		return fmt.Errorf("cancelled")
	default:
		for _, sub := range status.Subs {
			if sub.State == controller.SubFailed {
				log.Error().
					Int("scene", sub.Scene).Str("format", sub.Format).
					Str("kind", string(sub.ErrorKind)).
					Msg(sub.Error)
			}
		}
		if status.Error != "" {
			return fmt.Errorf("job %s: %s", status.State, status.Error)
		}
		return fmt.Errorf("job %s", status.State)
	}
}

func parseScenes(arg string) ([]int, error) {
	if arg == "" {
		return nil, nil
	}
	parts := strings.Split(arg, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		i, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("bad scene index %q", p)
		}
		out = append(out, i)
	}
	return out, nil
}

// progressPrinter logs sub-job transitions and coarse frame progress.
func progressPrinter(log zerolog.Logger) func(controller.Event) {
	return func(ev controller.Event) {
		if ev.SubState == "" {
			return
		}
		if ev.SubState == controller.SubCapturing && ev.Frame > 0 {
			// Frame events are noisy; report quarters.
			if ev.TotalFrames < 4 || ev.Frame%(ev.TotalFrames/4) != 0 {
				return
			}
		}
		log.Debug().
			Int("scene", ev.Scene).Str("format", ev.Format).
			Str("state", string(ev.SubState)).
			Int("frame", ev.Frame).Int("of", ev.TotalFrames).
			Float64("progress", ev.Progress).
			Msg("render progress")
	}
}
