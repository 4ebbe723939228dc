// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package operator

import (
	"context"

	"github.com/pdiddy/refinement-engine/pkg/types"
)

// DefaultMinConfidence is used when a remove-weak spec leaves it unset.
const DefaultMinConfidence = 0.3

// RemoveWeak drops claims whose confidence is strictly below a minimum.
type RemoveWeak struct {
	base
	minConfidence float64
}

// NewRemoveWeak creates the operator.
func NewRemoveWeak(minConfidence float64) *RemoveWeak {
	return &RemoveWeak{
		base:          base{name: types.OpRemoveWeak},
		minConfidence: minConfidence,
	}
}

// MinConfidence returns the configured cut-off.
func (r *RemoveWeak) MinConfidence() float64 { return r.minConfidence }

// Apply removes weak claims and their relationship entries, recording the
// removed IDs in one weak-removal event.
func (r *RemoveWeak) Apply(_ context.Context, state *types.KnowledgeState) (*types.KnowledgeState, bool) {
	next := state.Clone()

	removed := make(map[string]bool)
	var ids []string
	for _, c := range next.Claims {
		if c.Confidence < r.minConfidence {
			removed[c.ID] = true
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return next, false
	}

	dropClaims(next, removed)
	next.Audit = append(next.Audit, types.WeakRemovalEvent(r.name, ids, r.minConfidence))
	return next, true
}
