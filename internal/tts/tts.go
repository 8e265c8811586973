package tts

import (
	"context"
	"fmt"
)

// Word is one word of the script with its position in the audio.
type Word struct {
	Text  string
	Start float64
	End   float64
}

// Result of one synthesis call.
type Result struct {
	AudioPath string
	Duration  float64
	// Words holds engine-provided word timestamps. Engines that cannot
	// report them leave this nil; the timing resolver estimates instead.
	Words []Word
}

// Voice describes one voice an engine offers.
type Voice struct {
	ID       string
	Language string
	Gender   string
}

// Engine is the text-to-speech capability the render engine consumes.
// Synthesize writes audio for text to outPath and reports its duration.
type Engine interface {
	Synthesize(ctx context.Context, text, voice string, speed float64, outPath string) (Result, error)
	Voices(ctx context.Context) ([]Voice, error)
	Name() string
}

// SynthesisError wraps a failure of the TTS collaborator. It is scoped to
// one sub-job and never retried by the engine.
type SynthesisError struct {
	Engine string
	Err    error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("tts %s: %v", e.Engine, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
