package transcript

import (
	"strings"
	"testing"
)

var vocabulary = []string{
	"Kubernetes",
	"PostgreSQL",
	"goroutine",
	"dependency injection",
	"idempotency",
}

func TestCorrectSingleWordMishearing(t *testing.T) {
	t.Parallel()
	c := New(vocabulary)

	got, corrections := c.Correct("we deploy everything on kubernetties clusters")
	if !strings.Contains(got, "Kubernetes") {
		t.Errorf("corrected text = %q, want it to contain %q", got, "Kubernetes")
	}
	if len(corrections) != 1 {
		t.Fatalf("len(corrections) = %d, want 1", len(corrections))
	}
	if corrections[0].Corrected != "Kubernetes" {
		t.Errorf("Corrected = %q, want %q", corrections[0].Corrected, "Kubernetes")
	}
	if corrections[0].Confidence <= 0 {
		t.Errorf("Confidence = %v, want > 0", corrections[0].Confidence)
	}
}

func TestCorrectMultiWordTerm(t *testing.T) {
	t.Parallel()
	c := New(vocabulary)

	got, corrections := c.Correct("I used dependancy injexion for wiring")
	if !strings.Contains(got, "dependency injection") {
		t.Errorf("corrected text = %q, want it to contain %q", got, "dependency injection")
	}
	if len(corrections) != 1 {
		t.Fatalf("len(corrections) = %d, want 1", len(corrections))
	}
	if corrections[0].Original != "dependancy injexion" {
		t.Errorf("Original = %q, want the full misheard span", corrections[0].Original)
	}
}

func TestCorrectSplitWord(t *testing.T) {
	t.Parallel()
	c := New(vocabulary)

	got, _ := c.Correct("each request spawns a go routine")
	if !strings.Contains(got, "goroutine") {
		t.Errorf("corrected text = %q, want it to contain %q", got, "goroutine")
	}
}

func TestCorrectLeavesUnrelatedTextAlone(t *testing.T) {
	t.Parallel()
	c := New(vocabulary)

	in := "my favourite colour is blue"
	got, corrections := c.Correct(in)
	if got != in {
		t.Errorf("Correct(%q) = %q, want unchanged", in, got)
	}
	if len(corrections) != 0 {
		t.Errorf("len(corrections) = %d, want 0", len(corrections))
	}
}

func TestCorrectExactSpellingNotSubstituted(t *testing.T) {
	t.Parallel()
	c := New(vocabulary)

	in := "we run postgresql in production"
	_, corrections := c.Correct(in)
	for _, corr := range corrections {
		if corr.Original == "postgresql" {
			t.Errorf("exact spelling %q was substituted: %+v", corr.Original, corr)
		}
	}
}

func TestCorrectEmptyInputs(t *testing.T) {
	t.Parallel()

	c := New(vocabulary)
	if got, corrections := c.Correct(""); got != "" || corrections != nil {
		t.Errorf("Correct(\"\") = (%q, %v), want (\"\", nil)", got, corrections)
	}

	empty := New(nil)
	in := "cooper netties"
	if got, _ := empty.Correct(in); got != in {
		t.Errorf("empty vocabulary changed text: %q", got)
	}
}

func TestThresholdOptions(t *testing.T) {
	t.Parallel()

	// An impossibly high threshold disables all corrections.
	strict := New(vocabulary, WithPhoneticThreshold(1.01), WithFuzzyThreshold(1.01))
	in := "kubernetties everywhere"
	if got, _ := strict.Correct(in); got != in {
		t.Errorf("strict corrector changed text: %q", got)
	}
}
