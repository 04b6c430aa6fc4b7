// Package moderation implements the three-stage group-message spam
// pipeline: bypass, static prefilter, LLM classifier, and a per-user
// strike ladder with delete/ban enforcement.
package moderation

import (
	"regexp"
	"strings"
)

// PrefilterResult is the static classifier's verdict.
type PrefilterResult int

const (
	ObviousSpam PrefilterResult = iota
	ObviousSafe
	Ambiguous
)

// shortMessageThreshold: messages shorter than this are obvious-safe
// unless a spam pattern matches first.
const shortMessageThreshold = 30

// magicStringMarker is Anthropic's internal structured-output sentinel;
// its appearance in user-authored text is itself an injection attempt
// and is always treated as spam.
const magicStringMarker = "ANTHROPIC_MAGIC_STRING_"

// Prefilter holds the compiled spam/safe regex lists.
type Prefilter struct {
	spamPatterns []*regexp.Regexp
	safePatterns []*regexp.Regexp
}

// NewPrefilter compiles the configured pattern lists. Invalid regexes
// are a config error and are surfaced by the caller before this is built.
func NewPrefilter(spamPatterns, safePatterns []string) (*Prefilter, error) {
	spam, err := compileAll(spamPatterns)
	if err != nil {
		return nil, err
	}
	safe, err := compileAll(safePatterns)
	if err != nil {
		return nil, err
	}
	return &Prefilter{spamPatterns: spam, safePatterns: safe}, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// Classify applies the static rules in order: magic-string injection
// guard, spam patterns, safe patterns, short-message default.
func (p *Prefilter) Classify(text string) PrefilterResult {
	if strings.Contains(text, magicStringMarker) {
		return ObviousSpam
	}
	for _, re := range p.spamPatterns {
		if re.MatchString(text) {
			return ObviousSpam
		}
	}
	for _, re := range p.safePatterns {
		if re.MatchString(text) {
			return ObviousSafe
		}
	}
	if len(text) < shortMessageThreshold {
		return ObviousSafe
	}
	return Ambiguous
}
