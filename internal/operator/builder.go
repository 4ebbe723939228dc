// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package operator

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pdiddy/refinement-engine/internal/ai"
	"github.com/pdiddy/refinement-engine/pkg/types"
)

// Deps carries collaborators needed by model-backed operators.
type Deps struct {
	Backend ai.Backend
	Logger  *slog.Logger
}

// Names lists every operator the builder understands.
func Names() []string {
	return []string{
		types.OpNormalizeEvidence,
		types.OpMergeDuplicates,
		types.OpRemoveWeak,
		types.OpModelMergeDuplicates,
		types.OpModelExtractAssumptions,
	}
}

// Build turns a configured pipeline into operators, preserving order. Unset
// thresholds fall back to the package defaults.
func Build(specs []types.OperatorSpec, deps Deps) ([]Operator, error) {
	ops := make([]Operator, 0, len(specs))
	for i, spec := range specs {
		op, err := buildOne(spec, deps)
		if err != nil {
			return nil, fmt.Errorf("operator %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func buildOne(spec types.OperatorSpec, deps Deps) (Operator, error) {
	switch spec.Name {
	case types.OpNormalizeEvidence:
		if spec.Trim {
			return NewNormalizeEvidence(WithTrim()), nil
		}
		return NewNormalizeEvidence(), nil
	case types.OpMergeDuplicates:
		threshold := DefaultSimilarityThreshold
		if spec.Threshold != nil {
			threshold = *spec.Threshold
		}
		return NewMergeDuplicates(threshold), nil
	case types.OpRemoveWeak:
		minConfidence := DefaultMinConfidence
		if spec.MinConfidence != nil {
			minConfidence = *spec.MinConfidence
		}
		return NewRemoveWeak(minConfidence), nil
	case types.OpModelMergeDuplicates:
		if deps.Backend == nil {
			return nil, fmt.Errorf("%s requires an AI backend", spec.Name)
		}
		return NewModelMergeDuplicates(deps.Backend, deps.Logger), nil
	case types.OpModelExtractAssumptions:
		if deps.Backend == nil {
			return nil, fmt.Errorf("%s requires an AI backend", spec.Name)
		}
		return NewModelExtractAssumptions(deps.Backend, deps.Logger), nil
	default:
		return nil, fmt.Errorf("unknown operator %q (known: %s)", spec.Name, strings.Join(Names(), ", "))
	}
}

// NeedsBackend reports whether any spec names a model-backed operator.
func NeedsBackend(specs []types.OperatorSpec) bool {
	for _, s := range specs {
		if s.Name == types.OpModelMergeDuplicates || s.Name == types.OpModelExtractAssumptions {
			return true
		}
	}
	return false
}

// ParseSpec parses the command-line form "name" or "name=value". The value
// sets the threshold of merge_duplicates or the minimum confidence of
// remove_weak; normalize_evidence accepts only "trim". Other operators take
// no value.
func ParseSpec(s string) (types.OperatorSpec, error) {
	name, value, hasValue := strings.Cut(strings.TrimSpace(s), "=")
	spec := types.OperatorSpec{Name: strings.TrimSpace(name)}
	if spec.Name == "" {
		return spec, fmt.Errorf("empty operator name in %q", s)
	}
	if !hasValue {
		return spec, nil
	}

	value = strings.TrimSpace(value)
	if spec.Name == types.OpNormalizeEvidence {
		if value != "trim" {
			return spec, fmt.Errorf("operator %s: unknown option %q (want trim)", spec.Name, value)
		}
		spec.Trim = true
		return spec, nil
	}

	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return spec, fmt.Errorf("operator %s: parsing value %q: %w", spec.Name, value, err)
	}
	switch spec.Name {
	case types.OpMergeDuplicates:
		spec.Threshold = &v
	case types.OpRemoveWeak:
		spec.MinConfidence = &v
	default:
		return spec, fmt.Errorf("operator %s takes no value", spec.Name)
	}
	return spec, nil
}
