// Package label implements data programming over radiology reports:
// labeling functions voting on report text, the resulting label
// matrix, and the resolution of votes into probabilistic labels.
package label

import (
	"fmt"
	"regexp"
	"strings"
)

// Vote is a labeling function's output for one document, following the
// label model convention: 0 abstain, 1 abnormal, 2 normal.
type Vote int8

const (
	Abstain  Vote = 0
	Abnormal Vote = 1
	Normal   Vote = 2
)

func (v Vote) String() string {
	switch v {
	case Abnormal:
		return "abnormal"
	case Normal:
		return "normal"
	default:
		return "abstain"
	}
}

func (v Vote) Valid() bool {
	return v == Abstain || v == Abnormal || v == Normal
}

// EvalFunc evaluates one document.
type EvalFunc func(d *Document) Vote

// LF is a labeling function: a named heuristic voting on report text.
type LF struct {
	Name string
	Eval EvalFunc
}

// Document is a single report prepared for labeling. Normalized is the
// lowercased, whitespace-collapsed text all heuristics match against;
// Impression holds the IMPRESSION section when the report has one.
type Document struct {
	ID         string
	Text       string
	Normalized string
	Impression string
}

var (
	spaceRegex      = regexp.MustCompile(`\s+`)
	impressionRegex = regexp.MustCompile(`impression\s*:\s*(.*?)(?:(?:findings|comparison|indication|technique|recommendation)s?\s*:|$)`)
)

// NewDocument normalizes raw report text for matching.
func NewDocument(id, text string) *Document {
	norm := strings.ToLower(strings.TrimSpace(text))
	norm = spaceRegex.ReplaceAllString(norm, " ")

	d := &Document{
		ID:         id,
		Text:       text,
		Normalized: norm,
	}

	if m := impressionRegex.FindStringSubmatch(norm); len(m) > 1 {
		d.Impression = strings.TrimSpace(m[1])
	}

	return d
}

// WordCount counts whitespace-separated tokens in the normalized text.
func (d *Document) WordCount() int {
	if d.Normalized == "" {
		return 0
	}
	return len(strings.Fields(d.Normalized))
}

// Merge combines base LFs with extras, rejecting duplicate names. With
// replace set, extras stand alone.
func Merge(base, extra []LF, replace bool) ([]LF, error) {
	src := base
	if replace {
		src = nil
	}

	out := make([]LF, 0, len(src)+len(extra))
	seen := make(map[string]bool, len(src)+len(extra))

	for _, lf := range append(append([]LF{}, src...), extra...) {
		if lf.Name == "" {
			return nil, fmt.Errorf("labeling function with empty name")
		}
		if lf.Eval == nil {
			return nil, fmt.Errorf("labeling function %s has no eval", lf.Name)
		}
		if seen[lf.Name] {
			return nil, fmt.Errorf("duplicate labeling function name: %s", lf.Name)
		}
		seen[lf.Name] = true
		out = append(out, lf)
	}

	return out, nil
}

// Names lists LF names in matrix column order.
func Names(lfs []LF) []string {
	names := make([]string, len(lfs))
	for i, lf := range lfs {
		names[i] = lf.Name
	}
	return names
}
