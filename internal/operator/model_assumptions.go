// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package operator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pdiddy/refinement-engine/internal/ai"
	"github.com/pdiddy/refinement-engine/pkg/types"
)

const (
	assumptionSampleSize = 3
	assumptionPrefix     = "[ASSUMPTION] "
	assumptionSection    = "assumptions"
	assumptionEvidence   = "derived by model"
	assumptionConfidence = 0.6
)

// ModelExtractAssumptions asks a text-generation backend for implicit
// assumptions behind the first few claims and adds them as new claims linked
// from the claims they support.
type ModelExtractAssumptions struct {
	base
	backend ai.Backend
	logger  *slog.Logger
}

// NewModelExtractAssumptions creates the operator. A nil logger discards.
func NewModelExtractAssumptions(backend ai.Backend, logger *slog.Logger) *ModelExtractAssumptions {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ModelExtractAssumptions{
		base:    base{name: types.OpModelExtractAssumptions},
		backend: backend,
		logger:  logger,
	}
}

type assumptionResponse struct {
	Assumptions []assumption `json:"assumptions"`
}

type assumption struct {
	Text            string   `json:"text"`
	RelatedClaimIDs []string `json:"related_claim_ids"`
	Confidence      *float64 `json:"confidence"`
}

// Apply adds one claim per returned assumption. New IDs are a<N> counting up
// from the current claim count + 1, skipping IDs already taken. Assumptions
// whose text already appears in the state are ignored so that a stable reply
// lets the run converge.
func (m *ModelExtractAssumptions) Apply(ctx context.Context, state *types.KnowledgeState) (*types.KnowledgeState, bool) {
	if state.Len() == 0 {
		return state, false
	}

	sample := state.Claims[:min(assumptionSampleSize, state.Len())]
	prompt, err := render(assumptionPromptTmpl, sample)
	if err != nil {
		m.logger.Warn("rendering assumption prompt", "operator", m.name, "error", err)
		return state, false
	}

	reply, err := m.backend.Generate(ctx, prompt)
	if err != nil {
		m.logger.Warn("assumption request failed", "operator", m.name, "error", err)
		return state, false
	}

	var resp assumptionResponse
	if err := ai.DecodeJSON(reply, &resp); err != nil {
		m.logger.Warn("malformed assumption response", "operator", m.name, "error", err)
		return state, false
	}
	if len(resp.Assumptions) == 0 {
		return state, false
	}

	next := state.Clone()
	texts := make(map[string]bool, len(next.Claims))
	for _, c := range next.Claims {
		texts[c.Text] = true
	}

	nextID := next.Len() + 1
	added := 0
	for _, a := range resp.Assumptions {
		body := strings.TrimSpace(a.Text)
		if body == "" {
			continue
		}
		text := assumptionPrefix + body
		if texts[text] {
			continue
		}

		id := fmt.Sprintf("a%d", nextID)
		for next.Has(id) {
			nextID++
			id = fmt.Sprintf("a%d", nextID)
		}
		nextID++

		confidence := assumptionConfidence
		if a.Confidence != nil {
			confidence = *a.Confidence
		}

		next.Claims = append(next.Claims, types.Claim{
			ID:         id,
			Text:       text,
			Evidence:   []string{assumptionEvidence},
			Section:    assumptionSection,
			Confidence: confidence,
		})
		texts[text] = true

		for _, related := range a.RelatedClaimIDs {
			next.Relationships[related] = append(next.Relationships[related], id)
		}
		next.Audit = append(next.Audit, types.AssumptionAddedEvent(m.name, id, a.RelatedClaimIDs))
		added++
	}

	if added == 0 {
		return state, false
	}
	return next, true
}
