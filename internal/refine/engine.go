// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package refine drives a knowledge state to a fixed point by applying an
// ordered list of operators until a full pass changes nothing or the
// iteration budget runs out.
package refine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdiddy/refinement-engine/internal/operator"
	"github.com/pdiddy/refinement-engine/pkg/types"
)

// ApplyEvent describes one operator application.
type ApplyEvent struct {
	Iteration    int
	Operator     string
	ClaimsBefore int
	ClaimsAfter  int
	Modified     bool

	// Rejected is set when the result failed the invariant check and was
	// discarded. ClaimsAfter then reports the discarded candidate.
	Rejected bool
	Duration time.Duration
}

// Observer receives progress callbacks from a run. Calls are made on the
// goroutine running Refine, in order.
type Observer interface {
	OperatorApplied(ev ApplyEvent)
	IterationCompleted(snap types.IterationSnapshot)
	RunCompleted(rec *types.Record)
}

// Config controls an Engine.
type Config struct {
	// MaxIterations caps the loop. Zero runs no iterations.
	MaxIterations int

	// Verbose logs diagnostics at Info instead of Debug.
	Verbose bool

	// Logger defaults to a discard logger.
	Logger *slog.Logger

	// Observer is optional.
	Observer Observer
}

// Engine applies operators in a fixed order. An Engine holds no per-run
// state and may be reused, but a single Refine call is strictly sequential.
type Engine struct {
	ops      []operator.Operator
	maxIter  int
	level    slog.Level
	logger   *slog.Logger
	observer Observer
}

// New validates the pipeline and returns an engine. Nil operators, empty or
// duplicate names and a negative iteration cap are rejected.
func New(ops []operator.Operator, cfg Config) (*Engine, error) {
	if len(ops) == 0 {
		return nil, errors.New("no operators configured")
	}
	if cfg.MaxIterations < 0 {
		return nil, fmt.Errorf("max iterations must be >= 0, got %d", cfg.MaxIterations)
	}

	seen := make(map[string]bool, len(ops))
	for i, op := range ops {
		if op == nil {
			return nil, fmt.Errorf("operator %d is nil", i)
		}
		name := op.Name()
		if name == "" {
			return nil, fmt.Errorf("operator %d has an empty name", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate operator %q", name)
		}
		seen[name] = true
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	level := slog.LevelDebug
	if cfg.Verbose {
		level = slog.LevelInfo
	}

	return &Engine{
		ops:      append([]operator.Operator(nil), ops...),
		maxIter:  cfg.MaxIterations,
		level:    level,
		logger:   logger,
		observer: cfg.Observer,
	}, nil
}

// Operators returns the operator names in application order.
func (e *Engine) Operators() []string {
	names := make([]string, len(e.ops))
	for i, op := range e.ops {
		names[i] = op.Name()
	}
	return names
}

// Refine runs the fixed-point loop on initial and returns the full record.
// initial is never modified. Operator failures never abort the run: a
// candidate failing its invariant check is discarded and logged, and the
// pass continues with the prior state.
func (e *Engine) Refine(ctx context.Context, initial *types.KnowledgeState) *types.Record {
	rec := &types.Record{
		Iterations:       []types.IterationSnapshot{},
		OperatorsApplied: make(map[string]int, len(e.ops)),
		Outcome:          types.OutcomeExhausted,
	}
	for _, op := range e.ops {
		rec.OperatorsApplied[op.Name()] = 0
	}

	state := initial
	for i := range e.maxIter {
		snap := types.IterationSnapshot{
			Iteration:     i,
			NumClaims:     state.Len(),
			Modifications: []types.Modification{},
		}
		anyModified := false

		for _, op := range e.ops {
			before := state.Len()
			start := time.Now()
			candidate, modified := op.Apply(ctx, state)
			ev := ApplyEvent{
				Iteration:    i,
				Operator:     op.Name(),
				ClaimsBefore: before,
				ClaimsAfter:  candidate.Len(),
				Modified:     modified,
				Duration:     time.Since(start),
			}

			if candidate == nil || !op.VerifyInvariants(state, candidate) {
				ev.Rejected = true
				rec.Rejections = append(rec.Rejections, types.Rejection{
					Iteration:    i,
					Operator:     op.Name(),
					ClaimsBefore: before,
					ClaimsAfter:  candidate.Len(),
				})
				e.logger.Log(ctx, e.level, "invariant violated, discarding result",
					"operator", op.Name(), "iteration", i,
					"claims_before", before, "claims_after", candidate.Len())
				e.notifyApply(ev)
				continue
			}

			state = candidate
			if modified {
				rec.OperatorsApplied[op.Name()]++
				rec.TotalApplications++
				snap.Modifications = append(snap.Modifications, types.Modification{
					Operator:     op.Name(),
					ClaimsBefore: before,
					ClaimsAfter:  state.Len(),
				})
				anyModified = true
			}
			e.notifyApply(ev)
		}

		rec.Iterations = append(rec.Iterations, snap)
		if e.observer != nil {
			e.observer.IterationCompleted(snap)
		}

		if !anyModified {
			converged := i
			rec.ConvergenceIteration = &converged
			rec.Outcome = types.OutcomeConverged
			e.logger.Log(ctx, e.level, "converged", "iteration", i, "claims", state.Len())
			break
		}
	}

	if rec.Outcome == types.OutcomeExhausted {
		e.logger.Log(ctx, e.level, "iteration budget exhausted",
			"max_iterations", e.maxIter, "claims", state.Len())
	}

	rec.FinalState = state
	if e.observer != nil {
		e.observer.RunCompleted(rec)
	}
	return rec
}

func (e *Engine) notifyApply(ev ApplyEvent) {
	if e.observer != nil {
		e.observer.OperatorApplied(ev)
	}
}

// Refine is a convenience wrapper building a throwaway engine.
func Refine(ctx context.Context, ops []operator.Operator, initial *types.KnowledgeState, maxIterations int, verbose bool) (*types.Record, error) {
	eng, err := New(ops, Config{MaxIterations: maxIterations, Verbose: verbose})
	if err != nil {
		return nil, err
	}
	return eng.Refine(ctx, initial), nil
}
