package prompts

import (
	"strings"
	"testing"
)

func TestSystemContainsVoiceRulesForEveryType(t *testing.T) {
	t.Parallel()

	for _, typ := range []InterviewType{LiveCoding, SystemDesign, PhoneScreen, Practice} {
		p := System(typ, Medium, "en")
		if !strings.Contains(p, "converted to speech") {
			t.Errorf("System(%q) missing voice rules", typ)
		}
		if !strings.Contains(p, "English") {
			t.Errorf("System(%q) missing language instruction", typ)
		}
	}
}

func TestSystemDifficultyChangesBody(t *testing.T) {
	t.Parallel()

	easy := System(LiveCoding, Easy, "en")
	hard := System(LiveCoding, Hard, "en")
	if easy == hard {
		t.Error("easy and hard prompts should differ")
	}
	if !strings.Contains(hard, "dynamic programming") {
		t.Errorf("hard live-coding prompt missing depth guidance:\n%s", hard)
	}
}

func TestSystemFallbacks(t *testing.T) {
	t.Parallel()

	// Unknown type falls back to the phone screen; unknown difficulty to medium.
	p := System("unknown", "extreme", "en")
	if !strings.Contains(p, "phone screen") {
		t.Errorf("unknown type should fall back to phone screen, got:\n%s", p)
	}
}

func TestSystemLanguageInstruction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		language string
		want     string
	}{
		{"en", "English"},
		{"", "English"},
		{"tr", "Turkish"},
		{"de", "German"},
		{"fr", `"fr"`},
	}
	for _, tt := range tests {
		p := System(PhoneScreen, Medium, tt.language)
		if !strings.Contains(p, tt.want) {
			t.Errorf("System(language=%q) missing %q", tt.language, tt.want)
		}
	}
}

func TestHintLevels(t *testing.T) {
	t.Parallel()

	h1 := Hint(1, 1)
	if !strings.Contains(h1, "hint 1") || !strings.Contains(h1, "data structure") {
		t.Errorf("level 1 hint = %q", h1)
	}

	h3 := Hint(3, 5)
	if !strings.Contains(h3, "pseudo-code") || !strings.Contains(h3, "5 requested") {
		t.Errorf("level 3 hint = %q", h3)
	}

	// Levels clamp to 1..3.
	if got := Hint(7, 7); !strings.Contains(got, "hint 3") {
		t.Errorf("Hint(7, 7) = %q, want clamped to level 3", got)
	}
	if got := Hint(0, 0); !strings.Contains(got, "hint 1") {
		t.Errorf("Hint(0, 0) = %q, want clamped to level 1", got)
	}
}

func TestTimeDirectives(t *testing.T) {
	t.Parallel()

	if got := TimeWarning(5); !strings.Contains(got, "5 minutes") {
		t.Errorf("TimeWarning(5) = %q", got)
	}
	if got := WrapUp(); !strings.Contains(got, "time is up") {
		t.Errorf("WrapUp() = %q", got)
	}
}

func TestValid(t *testing.T) {
	t.Parallel()

	if !LiveCoding.Valid() || !Practice.Valid() {
		t.Error("known interview types reported invalid")
	}
	if InterviewType("panel").Valid() {
		t.Error("unknown interview type reported valid")
	}
	if !Hard.Valid() || Difficulty("extreme").Valid() {
		t.Error("difficulty validity wrong")
	}
}
