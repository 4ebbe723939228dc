// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package operator

import (
	"context"
	"sort"

	"github.com/pdiddy/refinement-engine/pkg/types"
)

// DefaultSimilarityThreshold is used when a merge spec leaves it unset.
const DefaultSimilarityThreshold = 0.8

// MergeDuplicates folds claims whose evidence sets overlap. Similarity is
// |E1 ∩ E2| / min(|E1|, |E2|); pairs where either set is empty are skipped.
type MergeDuplicates struct {
	base
	threshold float64
}

// NewMergeDuplicates creates the operator with the given similarity
// threshold.
func NewMergeDuplicates(threshold float64) *MergeDuplicates {
	return &MergeDuplicates{
		base:      base{name: types.OpMergeDuplicates},
		threshold: threshold,
	}
}

// Threshold returns the configured similarity threshold.
func (m *MergeDuplicates) Threshold() float64 { return m.threshold }

// Apply compares every unordered pair in claim order. When a pair reaches
// the threshold the later claim is merged into the earlier one: evidence is
// unioned, confidence becomes the max of the two, the later claim and its
// relationship entry are removed, and a merge event is appended. A claim
// removed earlier in the pass takes part in no further comparisons, and a
// kept claim is compared using its evidence as merged so far.
func (m *MergeDuplicates) Apply(_ context.Context, state *types.KnowledgeState) (*types.KnowledgeState, bool) {
	next := state.Clone()
	removed := make(map[string]bool)

	for i := range next.Claims {
		if removed[next.Claims[i].ID] {
			continue
		}
		for j := i + 1; j < len(next.Claims); j++ {
			other := next.Claims[j]
			if removed[other.ID] {
				continue
			}

			sim, ok := Similarity(next.Claims[i], other)
			if !ok || sim < m.threshold {
				continue
			}

			next.Claims[i] = mergeInto(next.Claims[i], other)
			next.Audit = append(next.Audit, types.MergeEvent(m.name, next.Claims[i].ID, []string{other.ID}, sim, ""))
			removed[other.ID] = true
		}
	}

	dropClaims(next, removed)
	return next, len(removed) > 0
}

// Similarity returns the evidence-overlap similarity of two claims. ok is
// false when either evidence set is empty.
func Similarity(a, b types.Claim) (float64, bool) {
	ea, eb := a.EvidenceSet(), b.EvidenceSet()
	if len(ea) == 0 || len(eb) == 0 {
		return 0, false
	}

	overlap := 0
	for e := range ea {
		if _, ok := eb[e]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(min(len(ea), len(eb))), true
}

// mergeInto returns a new claim: kept with absorbed's evidence unioned in
// (sorted) and the higher of the two confidences.
func mergeInto(kept, absorbed types.Claim) types.Claim {
	set := kept.EvidenceSet()
	for _, e := range absorbed.Evidence {
		set[e] = struct{}{}
	}
	union := make([]string, 0, len(set))
	for e := range set {
		union = append(union, e)
	}
	sort.Strings(union)

	out := kept.WithEvidence(union)
	out.Confidence = max(kept.Confidence, absorbed.Confidence)
	return out
}
