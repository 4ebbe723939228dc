// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report renders a refinement run and its stability analysis for
// people (text) and tools (JSON, YAML).
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/pdiddy/refinement-engine/internal/statefile"
	"github.com/pdiddy/refinement-engine/pkg/types"
)

// Format selects the rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts text, json or yaml (case-insensitive). Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q: use text, json or yaml", s)
	}
}

// Report is the rendered summary of one run.
type Report struct {
	RunID                string                    `json:"run_id" yaml:"run_id"`
	Operators            []string                  `json:"operators,omitempty" yaml:"operators,omitempty"`
	Outcome              types.Outcome             `json:"outcome" yaml:"outcome"`
	ConvergenceIteration *int                      `json:"convergence_iteration" yaml:"convergence_iteration"`
	Iterations           []types.IterationSnapshot `json:"iterations" yaml:"iterations"`
	OperatorsApplied     map[string]int            `json:"operators_applied" yaml:"operators_applied"`
	TotalApplications    int                       `json:"total_applications" yaml:"total_applications"`
	Rejections           []types.Rejection         `json:"rejections,omitempty" yaml:"rejections,omitempty"`
	Stability            types.Stability           `json:"stability" yaml:"stability"`
	FinalState           *types.KnowledgeState     `json:"final_state,omitempty" yaml:"final_state,omitempty"`
}

// New builds a report with a fresh run ID. operators lists the pipeline in
// order and may be nil when unknown (e.g. for a record loaded from disk).
func New(rec *types.Record, stability types.Stability, operators []string) *Report {
	return &Report{
		RunID:                uuid.NewString(),
		Operators:            operators,
		Outcome:              rec.Outcome,
		ConvergenceIteration: rec.ConvergenceIteration,
		Iterations:           rec.Iterations,
		OperatorsApplied:     rec.OperatorsApplied,
		TotalApplications:    rec.TotalApplications,
		Rejections:           rec.Rejections,
		Stability:            stability,
	}
}

// WithState attaches the final state to structured output.
func (r *Report) WithState(state *types.KnowledgeState) *Report {
	r.FinalState = state
	return r
}

// Write renders r to w.
func (r *Report) Write(w io.Writer, format Format) error {
	switch format {
	case FormatJSON, FormatYAML:
		data, err := statefile.Marshal(statefile.Format(format), r)
		if err != nil {
			return fmt.Errorf("marshaling report: %w", err)
		}
		_, err = w.Write(data)
		return err
	case FormatText, "":
		return r.writeText(w)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func (r *Report) writeText(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "run %s\n", r.RunID)
	if len(r.Operators) > 0 {
		fmt.Fprintf(&b, "operators: %s\n", strings.Join(r.Operators, " -> "))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "%-9s  %-6s  %s\n", "Iteration", "Claims", "Modifications")
	fmt.Fprintln(&b, strings.Repeat("-", 60))
	for _, it := range r.Iterations {
		mods := make([]string, len(it.Modifications))
		for i, m := range it.Modifications {
			mods[i] = fmt.Sprintf("%s (%d->%d)", m.Operator, m.ClaimsBefore, m.ClaimsAfter)
		}
		desc := strings.Join(mods, ", ")
		if desc == "" {
			desc = "none"
		}
		fmt.Fprintf(&b, "%-9d  %-6d  %s\n", it.Iteration, it.NumClaims, desc)
	}

	if len(r.Rejections) > 0 {
		fmt.Fprintf(&b, "\nrejected applications: %d\n", len(r.Rejections))
		for _, rj := range r.Rejections {
			fmt.Fprintf(&b, "  iteration %d: %s (%d->%d claims)\n", rj.Iteration, rj.Operator, rj.ClaimsBefore, rj.ClaimsAfter)
		}
	}

	b.WriteString("\n")
	if r.ConvergenceIteration != nil {
		fmt.Fprintf(&b, "outcome: %s at iteration %d\n", r.Outcome, *r.ConvergenceIteration)
	} else {
		fmt.Fprintf(&b, "outcome: %s after %d iterations\n", r.Outcome, len(r.Iterations))
	}

	names := make([]string, 0, len(r.OperatorsApplied))
	for name := range r.OperatorsApplied {
		names = append(names, name)
	}
	sort.Strings(names)
	applied := make([]string, len(names))
	for i, name := range names {
		applied[i] = fmt.Sprintf("%s=%d", name, r.OperatorsApplied[name])
	}
	fmt.Fprintf(&b, "applications: %d (%s)\n", r.TotalApplications, strings.Join(applied, ", "))

	s := r.Stability
	fmt.Fprintf(&b, "monotonic: %t, converged: %t, convergence speed: %d\n", s.IsMonotonic, s.Converged, s.ConvergenceSpeed)
	fmt.Fprintf(&b, "modifications: %d, claim reduction: %d, final claims: %d\n", s.TotalModifications, s.ClaimReduction, s.FinalClaimCount)

	_, err := io.WriteString(w, b.String())
	return err
}
