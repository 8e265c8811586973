package tts

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ivlev/md2video/internal/system"
)

// espeak-ng speaks ~175 words per minute at its default rate.
const espeakBaseRate = 175

// EspeakEngine synthesizes via the espeak-ng binary. It is the default
// offline binding; richer engines plug in behind the same interface.
type EspeakEngine struct {
	// Binary overrides the executable name, for tests and lookalikes.
	Binary string
}

func NewEspeakEngine() (*EspeakEngine, error) {
	if _, err := exec.LookPath("espeak-ng"); err != nil {
		return nil, &SynthesisError{Engine: "espeak-ng", Err: fmt.Errorf("not found in PATH: %w", err)}
	}
	return &EspeakEngine{}, nil
}

func (e *EspeakEngine) Name() string { return "espeak-ng" }

func (e *EspeakEngine) binary() string {
	if e.Binary != "" {
		return e.Binary
	}
	return "espeak-ng"
}

func (e *EspeakEngine) Synthesize(ctx context.Context, text, voice string, speed float64, outPath string) (Result, error) {
	if speed <= 0 {
		speed = 1.0
	}
	rate := int(espeakBaseRate * speed)
	args := []string{"-s", fmt.Sprint(rate), "-w", outPath}
	if voice != "" {
		args = append(args, "-v", voice)
	}
	args = append(args, "--", text)

	cmd := exec.CommandContext(ctx, e.binary(), args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, &SynthesisError{Engine: e.Name(), Err: fmt.Errorf("%v: %s", err, firstLine(out))}
	}

	duration, err := system.AudioDuration(ctx, outPath)
	if err != nil {
		return Result{}, &SynthesisError{Engine: e.Name(), Err: err}
	}
	return Result{AudioPath: outPath, Duration: duration}, nil
}

// Voices parses `espeak-ng --voices` output. Columns:
// Pty Language Age/Gender VoiceName File Other Languages
func (e *EspeakEngine) Voices(ctx context.Context) ([]Voice, error) {
	out, err := exec.CommandContext(ctx, e.binary(), "--voices").Output()
	if err != nil {
		return nil, &SynthesisError{Engine: e.Name(), Err: err}
	}
	return parseEspeakVoices(string(out)), nil
}

func parseEspeakVoices(out string) []Voice {
	var voices []Voice
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		if i == 0 {
			continue // header
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		gender := "neutral"
		switch {
		case strings.Contains(fields[2], "M"):
			gender = "male"
		case strings.Contains(fields[2], "F"):
			gender = "female"
		}
		voices = append(voices, Voice{
			ID:       fields[3],
			Language: fields[1],
			Gender:   gender,
		})
	}
	return voices
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
