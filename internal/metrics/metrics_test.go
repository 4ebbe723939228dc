// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/refinement-engine/internal/operator"
	"github.com/pdiddy/refinement-engine/internal/refine"
	"github.com/pdiddy/refinement-engine/pkg/types"
)

func runSample(t *testing.T, c *Collector) *types.Record {
	t.Helper()
	ops := []operator.Operator{
		operator.NewNormalizeEvidence(),
		operator.NewMergeDuplicates(0.5),
		operator.NewRemoveWeak(0.5),
	}
	eng, err := refine.New(ops, refine.Config{MaxIterations: 10, Observer: c})
	require.NoError(t, err)
	return eng.Refine(context.Background(), types.SampleState())
}

func TestCollectorRecordsRun(t *testing.T) {
	c := NewCollector()
	rec := runSample(t, c)
	require.True(t, rec.Converged())

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Applications.WithLabelValues(types.OpMergeDuplicates)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Applications.WithLabelValues(types.OpRemoveWeak)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Runs.WithLabelValues(string(types.OutcomeConverged))))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.Claims))
	assert.Equal(t, 0, testutil.CollectAndCount(c.Rejections))
	assert.Equal(t, 1, testutil.CollectAndCount(c.Iterations))
}

func TestCollectorRejections(t *testing.T) {
	c := NewCollector()
	c.OperatorApplied(refine.ApplyEvent{Operator: "dropper", ClaimsBefore: 3, ClaimsAfter: 2, Modified: true, Rejected: true})
	c.OperatorApplied(refine.ApplyEvent{Operator: "dropper", ClaimsBefore: 3, ClaimsAfter: 2, Modified: true, Rejected: true})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Rejections.WithLabelValues("dropper")))
	assert.Equal(t, 0, testutil.CollectAndCount(c.Applications))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.Claims))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	runSample(t, a)
	assert.Equal(t, 0, testutil.CollectAndCount(b.Runs))
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector()
	runSample(t, c)

	path := filepath.Join(t.TempDir(), "nested", "refine.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `refinement_engine_operator_applications_total{operator="merge_duplicates"} 1`)
	assert.Contains(t, string(data), `refinement_engine_runs_total{outcome="converged"} 1`)
}
