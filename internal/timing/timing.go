// Package timing resolves the authoritative duration of each scene and,
// when captions are wanted, word-level timestamps covering its script.
package timing

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ivlev/md2video/internal/config"
	"github.com/ivlev/md2video/internal/tts"
)

// Plan is the resolved timing for one scene. Duration is authoritative:
// the frame scheduler and the encoder both derive from it.
type Plan struct {
	// Duration is the total scene duration in seconds.
	Duration float64
	// AudioPath points at the synthesized voiceover, empty when the scene
	// has no script or no engine is available.
	AudioPath string
	// AudioDuration is the raw voiceover length, before padding.
	AudioDuration float64
	// Delay is the leading padding: the voiceover starts this many seconds
	// into the scene.
	Delay float64
	// Words are word timestamps positioned on the scene's own timeline
	// (already shifted by Delay). Nil unless captions were requested.
	Words []tts.Word
}

// Resolver turns a scene's duration policy into a Plan. It is the only
// component that blocks on the TTS engine.
type Resolver struct {
	// Engine may be nil: auto scenes then fall back to FallbackDuration
	// and no audio is attached.
	Engine tts.Engine
	// Speed is the synthesis speed multiplier.
	Speed float64
	// FallbackDuration is used for auto scenes without script or engine.
	FallbackDuration float64
	// Captions requests word timestamps in the plan.
	Captions bool
	// WorkDir receives synthesized wav files.
	WorkDir string
}

// Resolve produces the plan for one scene. The scene index only names the
// intermediate audio file.
func (r *Resolver) Resolve(ctx context.Context, scene config.Scene, index int, voice string) (Plan, error) {
	script := strings.TrimSpace(scene.Script)

	var audio tts.Result
	haveAudio := false
	if script != "" && r.Engine != nil {
		out := filepath.Join(r.WorkDir, fmt.Sprintf("scene-%03d.wav", index))
		res, err := r.Engine.Synthesize(ctx, script, voice, r.Speed, out)
		if err != nil {
			return Plan{}, err
		}
		audio = res
		haveAudio = true
	}

	plan := Plan{}
	if scene.Duration.Auto {
		switch {
		case haveAudio:
			plan.Duration = audio.Duration + scene.Duration.PaddingBefore + scene.Duration.PaddingAfter
			plan.Delay = scene.Duration.PaddingBefore
		default:
			plan.Duration = r.FallbackDuration
		}
	} else {
		plan.Duration = scene.Duration.Seconds
		plan.Delay = scene.Duration.PaddingBefore
	}

	if haveAudio {
		plan.AudioPath = audio.AudioPath
		plan.AudioDuration = audio.Duration
	}

	if r.Captions && script != "" {
		words := audio.Words
		if len(words) == 0 {
			window := plan.Duration
			if haveAudio {
				window = audio.Duration
			}
			words = EstimateWords(script, window)
		}
		if plan.Delay > 0 {
			shifted := make([]tts.Word, len(words))
			for i, w := range words {
				w.Start += plan.Delay
				w.End += plan.Delay
				shifted[i] = w
			}
			words = shifted
		}
		plan.Words = words
	}

	return plan, nil
}

// wordGap is the nominal pause inserted between estimated words.
const wordGap = 0.05

// EstimateWords distributes a duration over the words of text,
// proportionally to character count. The last word ends exactly at
// total; timestamps are non-overlapping and increasing.
func EstimateWords(text string, total float64) []tts.Word {
	fields := strings.Fields(text)
	if len(fields) == 0 || total <= 0 {
		return nil
	}

	totalChars := 0
	for _, w := range fields {
		totalChars += len(w)
	}
	if totalChars == 0 {
		return nil
	}

	gaps := float64(len(fields) - 1)
	gap := wordGap
	if gap*gaps > total*0.5 && gaps > 0 {
		gap = total * 0.5 / gaps
	}
	available := total - gap*gaps

	words := make([]tts.Word, 0, len(fields))
	cursor := 0.0
	for i, w := range fields {
		end := cursor + float64(len(w))/float64(totalChars)*available
		if i == len(fields)-1 {
			end = total
		}
		words = append(words, tts.Word{Text: w, Start: cursor, End: end})
		cursor = end + gap
	}
	return words
}
