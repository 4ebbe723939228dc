// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package operator

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pdiddy/refinement-engine/internal/ai"
	"github.com/pdiddy/refinement-engine/pkg/types"
)

const defaultMergeReason = "semantic similarity"

// ModelMergeDuplicates asks a text-generation backend which claims are
// semantic duplicates and merges them. Any backend or parse failure leaves
// the state unmodified.
type ModelMergeDuplicates struct {
	base
	backend ai.Backend
	logger  *slog.Logger
}

// NewModelMergeDuplicates creates the operator. A nil logger discards.
func NewModelMergeDuplicates(backend ai.Backend, logger *slog.Logger) *ModelMergeDuplicates {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ModelMergeDuplicates{
		base:    base{name: types.OpModelMergeDuplicates},
		backend: backend,
		logger:  logger,
	}
}

type promptClaim struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Evidence []string `json:"evidence"`
}

type mergeResponse struct {
	Merges []mergeInstruction `json:"merges"`
}

type mergeInstruction struct {
	Keep   string   `json:"keep"`
	Remove []string `json:"remove"`
	Reason string   `json:"reason"`
}

// Apply sends the claims to the backend and executes the returned merge
// instructions. Instructions naming an unknown or already-removed keep ID
// are skipped, as are unknown remove IDs.
func (m *ModelMergeDuplicates) Apply(ctx context.Context, state *types.KnowledgeState) (*types.KnowledgeState, bool) {
	if state.Len() < 2 {
		return state, false
	}

	claims := make([]promptClaim, len(state.Claims))
	for i, c := range state.Claims {
		claims[i] = promptClaim{ID: c.ID, Text: c.Text, Evidence: c.Evidence}
	}
	listing, err := json.MarshalIndent(claims, "", "  ")
	if err != nil {
		m.logger.Warn("encoding claims for merge prompt", "operator", m.name, "error", err)
		return state, false
	}

	prompt, err := render(mergePromptTmpl, struct{ Claims string }{Claims: string(listing)})
	if err != nil {
		m.logger.Warn("rendering merge prompt", "operator", m.name, "error", err)
		return state, false
	}

	reply, err := m.backend.Generate(ctx, prompt)
	if err != nil {
		m.logger.Warn("merge request failed", "operator", m.name, "error", err)
		return state, false
	}

	var resp mergeResponse
	if err := ai.DecodeJSON(reply, &resp); err != nil {
		m.logger.Warn("malformed merge response", "operator", m.name, "error", err)
		return state, false
	}
	if len(resp.Merges) == 0 {
		return state, false
	}

	next := state.Clone()
	pos := make(map[string]int, len(next.Claims))
	for i, c := range next.Claims {
		pos[c.ID] = i
	}
	removed := make(map[string]bool)

	for _, instr := range resp.Merges {
		keepIdx, ok := pos[instr.Keep]
		if !ok || removed[instr.Keep] {
			m.logger.Debug("skipping merge with unknown keep id", "operator", m.name, "keep", instr.Keep)
			continue
		}

		kept := next.Claims[keepIdx]
		var taken []string
		for _, id := range instr.Remove {
			idx, ok := pos[id]
			if !ok || id == instr.Keep || removed[id] {
				continue
			}
			kept = mergeInto(kept, next.Claims[idx])
			removed[id] = true
			taken = append(taken, id)
		}
		if len(taken) == 0 {
			continue
		}

		next.Claims[keepIdx] = kept
		reason := instr.Reason
		if reason == "" {
			reason = defaultMergeReason
		}
		next.Audit = append(next.Audit, types.MergeEvent(m.name, instr.Keep, taken, 0, reason))
	}

	if len(removed) == 0 {
		return state, false
	}
	dropClaims(next, removed)
	return next, true
}
