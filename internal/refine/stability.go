// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package refine

import "github.com/pdiddy/refinement-engine/pkg/types"

// AnalyzeStability summarizes a finished run. It only reads rec.
func AnalyzeStability(rec *types.Record) types.Stability {
	counts := rec.ClaimCounts()

	s := types.Stability{
		IsMonotonic:      true,
		Converged:        rec.Converged(),
		ConvergenceSpeed: len(rec.Iterations),
	}
	if rec.ConvergenceIteration != nil {
		s.ConvergenceSpeed = *rec.ConvergenceIteration
	}

	for k := 1; k < len(counts); k++ {
		if counts[k] > counts[k-1] {
			s.IsMonotonic = false
			break
		}
	}

	for _, it := range rec.Iterations {
		s.TotalModifications += len(it.Modifications)
	}

	if len(counts) > 0 {
		s.FinalClaimCount = counts[len(counts)-1]
		s.ClaimReduction = counts[0] - s.FinalClaimCount
	}
	return s
}
