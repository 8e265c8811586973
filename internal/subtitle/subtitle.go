// Package subtitle turns word timestamps into SRT caption files.
package subtitle

import (
	"fmt"
	"os"
	"strings"

	"github.com/ivlev/md2video/internal/tts"
)

// DefaultMaxWords is the caption line length used when none is given.
const DefaultMaxWords = 7

// SceneWords holds one scene's word timestamps plus the scene's start
// offset on the assembled timeline.
type SceneWords struct {
	Words  []tts.Word
	Offset float64
}

// Entry is one SRT cue on the assembled timeline.
type Entry struct {
	Start float64
	End   float64
	Text  string
}

// Build groups words into cues of at most maxWords, shifting each scene by
// its timeline offset. Scenes without words contribute nothing.
func Build(scenes []SceneWords, maxWords int) []Entry {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	var entries []Entry
	for _, sc := range scenes {
		for i := 0; i < len(sc.Words); i += maxWords {
			end := i + maxWords
			if end > len(sc.Words) {
				end = len(sc.Words)
			}
			group := sc.Words[i:end]

			texts := make([]string, len(group))
			for j, w := range group {
				texts[j] = w.Text
			}
			entries = append(entries, Entry{
				Start: sc.Offset + group[0].Start,
				End:   sc.Offset + group[len(group)-1].End,
				Text:  strings.Join(texts, " "),
			})
		}
	}
	return entries
}

// WriteSRT writes the cues in SubRip format.
func WriteSRT(path string, entries []Entry) error {
	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, Timestamp(e.Start), Timestamp(e.End), e.Text)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// Timestamp formats seconds as an SRT timestamp (HH:MM:SS,mmm).
func Timestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int(sec*1000 + 0.5)
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
