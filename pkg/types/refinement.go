// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Outcome is the terminal state of a refinement run.
type Outcome string

const (
	// OutcomeConverged means one full pass over all operators changed nothing.
	OutcomeConverged Outcome = "converged"

	// OutcomeExhausted means the iteration budget ran out first.
	OutcomeExhausted Outcome = "exhausted"
)

// Modification is one counted operator application within an iteration.
type Modification struct {
	Operator     string `json:"operator" yaml:"operator"`
	ClaimsBefore int    `json:"claims_before" yaml:"claims_before"`
	ClaimsAfter  int    `json:"claims_after" yaml:"claims_after"`
}

// Rejection is an operator application whose result failed the invariant
// check and was discarded.
type Rejection struct {
	Iteration    int    `json:"iteration" yaml:"iteration"`
	Operator     string `json:"operator" yaml:"operator"`
	ClaimsBefore int    `json:"claims_before" yaml:"claims_before"`
	ClaimsAfter  int    `json:"claims_after" yaml:"claims_after"`
}

// IterationSnapshot summarizes one pass over the operator list.
type IterationSnapshot struct {
	Iteration int `json:"iteration" yaml:"iteration"`

	// NumClaims is the claim count at the start of the iteration.
	NumClaims int `json:"num_claims" yaml:"num_claims"`

	Modifications []Modification `json:"modifications" yaml:"modifications"`
}

// Record is the full output of one refinement run.
type Record struct {
	Iterations []IterationSnapshot `json:"iterations" yaml:"iterations"`

	// ConvergenceIteration is nil when the run did not converge.
	ConvergenceIteration *int `json:"convergence_iteration" yaml:"convergence_iteration"`

	// TotalApplications is the sum of OperatorsApplied.
	TotalApplications int `json:"total_applications" yaml:"total_applications"`

	// OperatorsApplied counts counted modifications per operator name.
	OperatorsApplied map[string]int `json:"operators_applied" yaml:"operators_applied"`

	Rejections []Rejection `json:"rejections,omitempty" yaml:"rejections,omitempty"`

	Outcome Outcome `json:"outcome" yaml:"outcome"`

	FinalState *KnowledgeState `json:"final_state" yaml:"final_state"`
}

// Converged reports whether the run reached a fixed point.
func (r *Record) Converged() bool {
	return r.ConvergenceIteration != nil
}

// ClaimCounts returns the starting claim count of every recorded iteration.
func (r *Record) ClaimCounts() []int {
	counts := make([]int, len(r.Iterations))
	for i, it := range r.Iterations {
		counts[i] = it.NumClaims
	}
	return counts
}

// Stability is the post-hoc analysis of a Record.
type Stability struct {
	IsMonotonic bool `json:"is_monotonic" yaml:"is_monotonic"`
	Converged   bool `json:"converged" yaml:"converged"`

	// ConvergenceSpeed is the convergence iteration, or the number of
	// recorded iterations when the run did not converge. Read Converged to
	// tell the two apart.
	ConvergenceSpeed   int `json:"convergence_speed" yaml:"convergence_speed"`
	TotalModifications int `json:"total_modifications" yaml:"total_modifications"`
	ClaimReduction     int `json:"claim_reduction" yaml:"claim_reduction"`
	FinalClaimCount    int `json:"final_claim_count" yaml:"final_claim_count"`
}
