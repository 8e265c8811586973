// Package encoder wraps a streaming ffmpeg process: configured once per
// sub-job, fed an ordered stream of PNG frames on stdin, closed to signal
// end-of-stream.
package encoder

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Config describes one encoder instance. Audio sources are attached at
// spawn time; frames arrive afterwards via WriteFrame.
type Config struct {
	OutputPath string
	Width      int
	Height     int
	FPS        int
	// Encoder names the H.264 implementation (libx264, h264_nvenc,
	// h264_videotoolbox). Quality maps to CRF or bitrate per encoder.
	Encoder string
	Quality int
	// VoicePath is the scene's voiceover track; VoiceDelay shifts it into
	// the scene by the leading padding.
	VoicePath  string
	VoiceDelay float64
	// MusicPath is an optional background track mixed at MusicVolume.
	MusicPath   string
	MusicVolume float64
}

// Segment is one encoded (scene, format) result, owned by the assembly
// stage once the stream closes cleanly.
type Segment struct {
	Path     string
	Duration float64
	Frames   int
}

// EncodingError wraps an encoder process failure. Scoped to one sub-job.
type EncodingError struct {
	Err error
	Log string
}

func (e *EncodingError) Error() string {
	if e.Log != "" {
		return fmt.Sprintf("encoder: %v: %s", e.Err, e.Log)
	}
	return fmt.Sprintf("encoder: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Stream is a running encoder process. Not safe for concurrent use: the
// pipeline is its single writer.
type Stream struct {
	cfg    Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	frames int

	stderrOnce sync.Once
	stderr     string
	stderrCh   chan string
}

// NewStream spawns ffmpeg reading piped PNG frames. The context bounds the
// whole encode; cancelling it kills the process.
func NewStream(ctx context.Context, cfg Config) (*Stream, error) {
	args := buildArgs(cfg)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &EncodingError{Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &EncodingError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &EncodingError{Err: fmt.Errorf("start ffmpeg: %w", err)}
	}

	// Drain stderr so ffmpeg cannot block on a full pipe.
	ch := make(chan string, 1)
	go func() {
		buf, _ := io.ReadAll(stderr)
		ch <- string(buf)
	}()

	return &Stream{cfg: cfg, cmd: cmd, stdin: stdin, stderrCh: ch}, nil
}

// WriteFrame pushes one PNG frame. Frames must arrive in strictly
// increasing index order; the stream counts them for the realized duration.
func (s *Stream) WriteFrame(data []byte) error {
	if _, err := s.stdin.Write(data); err != nil {
		return &EncodingError{Err: fmt.Errorf("write frame %d: %w", s.frames, err), Log: s.tail()}
	}
	s.frames++
	return nil
}

// Close signals end-of-stream and waits for the process. On success it
// returns the finished segment.
func (s *Stream) Close() (Segment, error) {
	s.stdin.Close()
	err := s.cmd.Wait()
	if err != nil {
		return Segment{}, &EncodingError{Err: err, Log: s.tail()}
	}
	return Segment{
		Path:     s.cfg.OutputPath,
		Duration: float64(s.frames) / float64(s.cfg.FPS),
		Frames:   s.frames,
	}, nil
}

// Abort kills the process and removes the partial output. Used on capture
// failure and cancellation so no partial segment reaches assembly.
func (s *Stream) Abort() {
	s.stdin.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
	os.Remove(s.cfg.OutputPath)
}

// tail returns the last stderr line for error messages.
func (s *Stream) tail() string {
	s.stderrOnce.Do(func() {
		select {
		case s.stderr = <-s.stderrCh:
		default:
		}
	})
	lines := strings.Split(strings.TrimSpace(s.stderr), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

func buildArgs(cfg Config) []string {
	args := []string{
		"-y",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-framerate", fmt.Sprint(cfg.FPS),
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-i", "-",
	}

	hasVoice := cfg.VoicePath != ""
	hasMusic := cfg.MusicPath != ""
	if hasVoice {
		args = append(args, "-i", cfg.VoicePath)
	}
	if hasMusic {
		args = append(args, "-stream_loop", "-1", "-i", cfg.MusicPath)
	}
	if !hasVoice && !hasMusic {
		// Silent scenes still get an audio track so every segment is
		// uniform for the assembly stage.
		args = append(args, "-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=44100")
	}

	args = append(args,
		"-c:v", cfg.Encoder,
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
	)
	args = append(args, qualityArgs(cfg.Encoder, cfg.Quality)...)

	delayMs := int(cfg.VoiceDelay * 1000)
	switch {
	case hasVoice && hasMusic:
		voice := "[1:a]volume=1.0[voice]"
		if delayMs > 0 {
			voice = fmt.Sprintf("[1:a]adelay=%d|%d,volume=1.0[voice]", delayMs, delayMs)
		}
		filter := fmt.Sprintf(
			"%s;[2:a]volume=%.2f[music];[voice][music]amix=inputs=2:duration=first:dropout_transition=2[aout]",
			voice, cfg.MusicVolume)
		args = append(args,
			"-filter_complex", filter,
			"-map", "0:v", "-map", "[aout]",
			"-c:a", "aac", "-shortest")
	case hasVoice:
		if delayMs > 0 {
			args = append(args, "-af", fmt.Sprintf("adelay=%d|%d", delayMs, delayMs))
		}
		// The frame stream defines the segment length; audio that outruns
		// an explicit scene duration is truncated at the boundary.
		args = append(args, "-c:a", "aac", "-shortest")
	case hasMusic:
		filter := fmt.Sprintf("[1:a]volume=%.2f[aout]", cfg.MusicVolume)
		args = append(args,
			"-filter_complex", filter,
			"-map", "0:v", "-map", "[aout]",
			"-c:a", "aac", "-shortest")
	default:
		args = append(args,
			"-map", "0:v", "-map", "1:a",
			"-c:a", "aac", "-shortest")
	}

	return append(args, cfg.OutputPath)
}

func qualityArgs(encoder string, quality int) []string {
	switch encoder {
	case "h264_videotoolbox":
		// VideoToolbox has spotty -q:v support; use bitrate instead.
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return []string{"-cq", fmt.Sprint(quality)}
	default:
		return []string{"-crf", fmt.Sprint(quality), "-preset", "medium"}
	}
}
