package tts

import "testing"

const voicesOutput = `Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  af              --/M      Afrikaans          gmw/af
 5  en-us           --/M      English_(America)  gmw/en-US            (en 3)
 5  fr              --/F      French_(France)    roa/fr
 bad line
`

func TestParseEspeakVoices(t *testing.T) {
	voices := parseEspeakVoices(voicesOutput)
	if len(voices) != 3 {
		t.Fatalf("got %d voices, want 3", len(voices))
	}

	en := voices[1]
	if en.ID != "English_(America)" {
		t.Errorf("id = %q", en.ID)
	}
	if en.Language != "en-us" {
		t.Errorf("language = %q", en.Language)
	}
	if en.Gender != "male" {
		t.Errorf("gender = %q", en.Gender)
	}

	if voices[2].Gender != "female" {
		t.Errorf("fr gender = %q, want female", voices[2].Gender)
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine([]byte("line one\nline two")); got != "line one" {
		t.Errorf("firstLine = %q", got)
	}
	if got := firstLine([]byte("  padded  ")); got != "padded" {
		t.Errorf("firstLine = %q", got)
	}
}
