package subtitle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ivlev/md2video/internal/tts"
)

func words(texts ...string) []tts.Word {
	out := make([]tts.Word, len(texts))
	for i, w := range texts {
		out[i] = tts.Word{Text: w, Start: float64(i), End: float64(i) + 0.8}
	}
	return out
}

func TestBuildGrouping(t *testing.T) {
	scenes := []SceneWords{{Words: words("a", "b", "c", "d", "e")}}

	entries := Build(scenes, 2)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Text != "a b" || entries[2].Text != "e" {
		t.Errorf("grouping wrong: %+v", entries)
	}
	if entries[0].Start != 0 || entries[0].End != 1.8 {
		t.Errorf("entry 0 spans (%g, %g), want (0, 1.8)", entries[0].Start, entries[0].End)
	}
}

func TestBuildOffsets(t *testing.T) {
	scenes := []SceneWords{
		{Words: words("one")},
		{Words: words("two"), Offset: 3.5},
	}
	entries := Build(scenes, DefaultMaxWords)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[1].Start != 3.5 || entries[1].End != 4.3 {
		t.Errorf("offset entry spans (%g, %g), want (3.5, 4.3)", entries[1].Start, entries[1].End)
	}
}

func TestBuildSkipsEmptyScenes(t *testing.T) {
	entries := Build([]SceneWords{{Offset: 2}, {Words: words("x"), Offset: 5}}, 0)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
}

func TestTimestamp(t *testing.T) {
	tests := []struct {
		sec  float64
		want string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{61.25, "00:01:01,250"},
		{3723.042, "01:02:03,042"},
		{-1, "00:00:00,000"},
	}
	for _, tt := range tests {
		if got := Timestamp(tt.sec); got != tt.want {
			t.Errorf("Timestamp(%g) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}

func TestWriteSRT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.srt")
	entries := []Entry{
		{Start: 0, End: 1.5, Text: "hello there"},
		{Start: 2, End: 3, Text: "goodbye"},
	}
	if err := WriteSRT(path, entries); err != nil {
		t.Fatalf("WriteSRT failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	got := string(data)
	for _, want := range []string{
		"1\n00:00:00,000 --> 00:00:01,500\nhello there\n",
		"2\n00:00:02,000 --> 00:00:03,000\ngoodbye\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("srt missing %q:\n%s", want, got)
		}
	}
}
