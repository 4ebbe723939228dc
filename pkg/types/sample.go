// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// SampleState returns a small five-claim state that exercises every
// rule-based operator: c1 and c2 share half their evidence, c4 is weak, and
// c1 carries unnormalized evidence.
func SampleState() *KnowledgeState {
	s := NewKnowledgeState(
		Claim{
			ID:         "c1",
			Text:       "Fixed-point refinement reduces redundant claims",
			Evidence:   []string{"table 2", "section 4.1", "table 2"},
			Section:    "results",
			Confidence: 0.9,
		},
		Claim{
			ID:         "c2",
			Text:       "Iterative refinement removes duplicate claims",
			Evidence:   []string{"section 4.1", "figure 3"},
			Section:    "results",
			Confidence: 0.8,
		},
		Claim{
			ID:         "c3",
			Text:       "Operator order changes the final state",
			Evidence:   []string{"section 5"},
			Section:    "discussion",
			Confidence: 0.7,
		},
		Claim{
			ID:         "c4",
			Text:       "Refinement may improve downstream accuracy",
			Evidence:   []string{"anecdotal"},
			Section:    "discussion",
			Confidence: 0.4,
		},
		Claim{
			ID:         "c5",
			Text:       "Convergence occurs within a few iterations",
			Evidence:   []string{"figure 4"},
			Section:    "results",
			Confidence: 0.85,
		},
	)
	s.Relationships["c1"] = []string{"c3"}
	s.Relationships["c4"] = []string{"c1", "c5"}
	s.Metadata["source"] = "sample"
	return s
}
