// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package operator defines the improvement operators applied by the
// refinement engine. Every operator is stateless between calls and honours
// the same contract: Apply never mutates its input state, and
// VerifyInvariants is the post-condition the engine checks afterwards.
package operator

import (
	"context"

	"github.com/pdiddy/refinement-engine/pkg/types"
)

// Operator is one transformation rule.
type Operator interface {
	// Name identifies the operator in records and logs. Names are unique
	// within a pipeline.
	Name() string

	// Apply returns a new state and whether it differs from the input in
	// any field the operator governs. The input state must be left
	// untouched.
	Apply(ctx context.Context, state *types.KnowledgeState) (*types.KnowledgeState, bool)

	// VerifyInvariants reports whether moving from old to next is allowed.
	VerifyInvariants(old, next *types.KnowledgeState) bool
}

// base carries the name and the shared invariant. Operators embed it.
type base struct {
	name string
}

func (b base) Name() string { return b.name }

// VerifyInvariants applies the shared reduction rule.
func (b base) VerifyInvariants(old, next *types.KnowledgeState) bool {
	return VerifyReduction(old, next)
}

// VerifyReduction is the shared invariant: claims may only disappear through
// an auditable removal. When next holds fewer claims than old, next's audit
// trail must extend old's, and the events appended since old must name
// every claim ID that vanished (as merged-away or weak-removed).
func VerifyReduction(old, next *types.KnowledgeState) bool {
	if next.Len() >= old.Len() {
		return true
	}
	if len(next.Audit) < len(old.Audit) {
		return false
	}

	explained := make(map[string]bool)
	for _, e := range next.Audit[len(old.Audit):] {
		if !e.ExplainsRemoval() {
			continue
		}
		for _, id := range e.Removed {
			explained[id] = true
		}
	}
	if len(explained) == 0 {
		return false
	}

	for _, c := range old.Claims {
		if next.Has(c.ID) {
			continue
		}
		if !explained[c.ID] {
			return false
		}
	}
	return true
}

// dropClaims returns state's claims minus removed, preserving order, and
// deletes relationship entries keyed by removed IDs. Missing keys are fine.
func dropClaims(state *types.KnowledgeState, removed map[string]bool) {
	if len(removed) == 0 {
		return
	}
	kept := state.Claims[:0]
	for _, c := range state.Claims {
		if !removed[c.ID] {
			kept = append(kept, c)
		}
	}
	state.Claims = kept
	for id := range removed {
		delete(state.Relationships, id)
	}
}
