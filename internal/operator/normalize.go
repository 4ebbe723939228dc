// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package operator

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/pdiddy/refinement-engine/pkg/types"
)

// NormalizeEvidence standardizes every claim's evidence list: duplicates are
// dropped and the result is sorted lexicographically. With WithTrim it also
// trims surrounding whitespace and drops empty entries, which goes beyond
// plain de-duplication: ["a", " a"] becomes one entry instead of two.
type NormalizeEvidence struct {
	base
	trim bool
}

// NormalizeOption configures NormalizeEvidence.
type NormalizeOption func(*NormalizeEvidence)

// WithTrim makes the operator trim whitespace and drop empty evidence.
func WithTrim() NormalizeOption {
	return func(n *NormalizeEvidence) { n.trim = true }
}

// NewNormalizeEvidence creates the operator.
func NewNormalizeEvidence(opts ...NormalizeOption) *NormalizeEvidence {
	n := &NormalizeEvidence{base: base{name: types.OpNormalizeEvidence}}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Trims reports whether whitespace trimming is enabled.
func (n *NormalizeEvidence) Trims() bool { return n.trim }

// Apply normalizes evidence. It reports a modification when any list changed
// in content or order.
func (n *NormalizeEvidence) Apply(_ context.Context, state *types.KnowledgeState) (*types.KnowledgeState, bool) {
	next := state.Clone()
	modified := false

	for i, c := range next.Claims {
		evidence := c.Evidence
		if n.trim {
			evidence = TrimList(evidence)
		}
		norm := NormalizeList(evidence)
		if !slices.Equal(norm, c.Evidence) {
			modified = true
		}
		next.Claims[i].Evidence = norm
	}

	return next, modified
}

// NormalizeList returns the de-duplicated, sorted form of evidence.
func NormalizeList(evidence []string) []string {
	seen := make(map[string]bool, len(evidence))
	out := make([]string, 0, len(evidence))
	for _, e := range evidence {
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// TrimList trims every entry and drops the ones left empty.
func TrimList(evidence []string) []string {
	out := make([]string, 0, len(evidence))
	for _, e := range evidence {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
