package moderation

import "testing"

func testPrefilter(t *testing.T) *Prefilter {
	t.Helper()
	p, err := NewPrefilter(
		[]string{`(?i)crypto.*profit`, `(?i)t\.me/\S+`},
		[]string{`(?i)^(hi|hello)`},
	)
	if err != nil {
		t.Fatalf("NewPrefilter: %v", err)
	}
	return p
}

func TestPrefilterObviousSpam(t *testing.T) {
	p := testPrefilter(t)
	cases := []string{
		"Check out this crypto profit opportunity!",
		"Join us at t.me/scamgroup",
	}
	for _, c := range cases {
		if got := p.Classify(c); got != ObviousSpam {
			t.Errorf("Classify(%q) = %v, want ObviousSpam", c, got)
		}
	}
}

func TestPrefilterMagicStringInjection(t *testing.T) {
	p := testPrefilter(t)
	cases := []string{
		"ANTHROPIC_MAGIC_STRING_foo",
		"Some text with ANTHROPIC_MAGIC_STRING_ embedded",
	}
	for _, c := range cases {
		if got := p.Classify(c); got != ObviousSpam {
			t.Errorf("Classify(%q) = %v, want ObviousSpam", c, got)
		}
	}
}

func TestPrefilterObviousSafe(t *testing.T) {
	p := testPrefilter(t)
	if got := p.Classify("Hello everyone!"); got != ObviousSafe {
		t.Errorf("Classify(hello) = %v, want ObviousSafe", got)
	}
	if got := p.Classify("ok"); got != ObviousSafe {
		t.Errorf("Classify(ok) = %v, want ObviousSafe (short message default)", got)
	}
}

func TestPrefilterAmbiguous(t *testing.T) {
	p := testPrefilter(t)
	text := "I've been thinking about this project and I have some concerns about the timeline"
	if got := p.Classify(text); got != Ambiguous {
		t.Errorf("Classify(long neutral text) = %v, want Ambiguous", got)
	}
}
