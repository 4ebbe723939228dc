// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package operator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/refinement-engine/internal/ai"
	"github.com/pdiddy/refinement-engine/pkg/types"
)

func claim(id string, confidence float64, evidence ...string) types.Claim {
	return types.Claim{ID: id, Text: "claim " + id, Evidence: evidence, Section: "s", Confidence: confidence}
}

// staticBackend replies with the same text to every prompt.
func staticBackend(reply string) ai.Backend {
	return ai.BackendFunc(func(context.Context, string) (string, error) {
		return reply, nil
	})
}

// --- NormalizeEvidence ---

func TestNormalizeEvidence(t *testing.T) {
	state := types.NewKnowledgeState(
		claim("c1", 0.9, "b", "a", "b"),
		claim("c2", 0.9, " a ", "", "a"),
		claim("c3", 0.9, "a", "b"),
	)

	next, modified := NewNormalizeEvidence().Apply(context.Background(), state)
	require.True(t, modified)

	assert.Equal(t, []string{"a", "b"}, next.Claims[0].Evidence)
	assert.Equal(t, []string{"", " a ", "a"}, next.Claims[1].Evidence)
	assert.Equal(t, []string{"a", "b"}, next.Claims[2].Evidence)

	// Input untouched.
	assert.Equal(t, []string{"b", "a", "b"}, state.Claims[0].Evidence)
	assert.Equal(t, []string{" a ", "", "a"}, state.Claims[1].Evidence)
}

func TestNormalizeEvidenceIdempotent(t *testing.T) {
	state := types.NewKnowledgeState(
		claim("c1", 0.9, "z", "y", "z", "x"),
		claim("c2", 0.9),
	)
	op := NewNormalizeEvidence()

	once, modified := op.Apply(context.Background(), state)
	require.True(t, modified)

	twice, modified := op.Apply(context.Background(), once)
	assert.False(t, modified)
	assert.Equal(t, once.Claims, twice.Claims)
}

func TestNormalizeEvidenceAlreadyNormal(t *testing.T) {
	state := types.NewKnowledgeState(claim("c1", 0.9, "a", "b"))
	_, modified := NewNormalizeEvidence().Apply(context.Background(), state)
	assert.False(t, modified)
}

func TestNormalizeList(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, []string{}},
		{"sorted unique", []string{"a", "b"}, []string{"a", "b"}},
		{"duplicates", []string{"b", "a", "b", "a"}, []string{"a", "b"}},
		{"whitespace is content", []string{"a", " a"}, []string{" a", "a"}},
		{"empty entry kept", []string{"c", ""}, []string{"", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeList(tt.in))
		})
	}
}

func TestTrimList(t *testing.T) {
	assert.Equal(t, []string{"a", "a", "b"}, TrimList([]string{"  a", "a  ", "\tb\n"}))
	assert.Equal(t, []string{"c"}, TrimList([]string{"", "   ", "c"}))
}

func TestNormalizeEvidenceWithTrim(t *testing.T) {
	state := types.NewKnowledgeState(
		claim("c1", 0.9, "a", " a"),
		claim("c2", 0.9, " a ", "", "a"),
	)

	plain, modified := NewNormalizeEvidence().Apply(context.Background(), state)
	require.True(t, modified)
	assert.Equal(t, []string{" a", "a"}, plain.Claims[0].Evidence)
	assert.Equal(t, []string{"", " a ", "a"}, plain.Claims[1].Evidence)

	trimmed, modified := NewNormalizeEvidence(WithTrim()).Apply(context.Background(), state)
	require.True(t, modified)
	assert.Equal(t, []string{"a"}, trimmed.Claims[0].Evidence)
	assert.Equal(t, []string{"a"}, trimmed.Claims[1].Evidence)
}

// --- MergeDuplicates ---

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name   string
		a, b   types.Claim
		want   float64
		wantOK bool
	}{
		{"identical", claim("x", 1, "a", "b"), claim("y", 1, "a", "b"), 1, true},
		{"subset", claim("x", 1, "a"), claim("y", 1, "a", "b", "c"), 1, true},
		{"half", claim("x", 1, "a", "b"), claim("y", 1, "b", "c"), 0.5, true},
		{"disjoint", claim("x", 1, "a"), claim("y", 1, "b"), 0, true},
		{"duplicates ignored", claim("x", 1, "a", "a"), claim("y", 1, "a", "b"), 1, true},
		{"empty side", claim("x", 1), claim("y", 1, "a"), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Similarity(tt.a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestMergeDuplicates(t *testing.T) {
	state := types.NewKnowledgeState(
		claim("c1", 0.7, "a", "b"),
		claim("c2", 0.9, "b", "c"),
		claim("c3", 0.8, "x"),
	)
	state.Relationships["c2"] = []string{"c3"}
	state.Relationships["c3"] = []string{"c1"}

	op := NewMergeDuplicates(0.5)
	next, modified := op.Apply(context.Background(), state)
	require.True(t, modified)

	assert.Equal(t, []string{"c1", "c3"}, next.IDs())
	assert.Equal(t, []string{"a", "b", "c"}, next.Claims[0].Evidence)
	assert.InDelta(t, 0.9, next.Claims[0].Confidence, 1e-9)
	assert.NotContains(t, next.Relationships, "c2")
	assert.Equal(t, []string{"c1"}, next.Relationships["c3"])

	require.Len(t, next.Audit, 1)
	ev := next.Audit[0]
	assert.Equal(t, types.AuditMerge, ev.Kind)
	assert.Equal(t, "c1", ev.Kept)
	assert.Equal(t, []string{"c2"}, ev.Removed)
	assert.InDelta(t, 0.5, ev.Similarity, 1e-9)

	assert.True(t, op.VerifyInvariants(state, next))

	// Input untouched.
	assert.Len(t, state.Claims, 3)
	assert.Equal(t, []string{"a", "b"}, state.Claims[0].Evidence)
	assert.InDelta(t, 0.7, state.Claims[0].Confidence, 1e-9)
	assert.Empty(t, state.Audit)
}

func TestMergeDuplicatesRemovedClaimSkipped(t *testing.T) {
	// c2 merges into c1 first; c2 must not then absorb c3 even though they
	// match, while c1 (with merged evidence) does.
	state := types.NewKnowledgeState(
		claim("c1", 0.5, "a"),
		claim("c2", 0.5, "a", "b"),
		claim("c3", 0.5, "b"),
	)

	next, modified := NewMergeDuplicates(1.0).Apply(context.Background(), state)
	require.True(t, modified)
	assert.Equal(t, []string{"c1"}, next.IDs())
	assert.Equal(t, []string{"a", "b"}, next.Claims[0].Evidence)
	require.Len(t, next.Audit, 2)
	assert.Equal(t, []string{"c2"}, next.Audit[0].Removed)
	assert.Equal(t, []string{"c3"}, next.Audit[1].Removed)
}

func TestMergeDuplicatesEmptyEvidenceSkipped(t *testing.T) {
	state := types.NewKnowledgeState(claim("c1", 0.5), claim("c2", 0.5))
	next, modified := NewMergeDuplicates(0).Apply(context.Background(), state)
	assert.False(t, modified)
	assert.Len(t, next.Claims, 2)
}

func TestMergeDuplicatesBelowThreshold(t *testing.T) {
	state := types.NewKnowledgeState(claim("c1", 0.5, "a", "b"), claim("c2", 0.5, "b", "c"))
	next, modified := NewMergeDuplicates(0.8).Apply(context.Background(), state)
	assert.False(t, modified)
	assert.Len(t, next.Claims, 2)
	assert.Empty(t, next.Audit)
}

// --- RemoveWeak ---

func TestRemoveWeak(t *testing.T) {
	state := types.NewKnowledgeState(
		claim("c1", 0.2),
		claim("c2", 0.5),
		claim("c3", 0.49),
	)
	// c3 has no relationship entry; deleting it must not fail.
	state.Relationships["c1"] = []string{"c2"}
	state.Relationships["c2"] = []string{"c1"}

	op := NewRemoveWeak(0.5)
	next, modified := op.Apply(context.Background(), state)
	require.True(t, modified)

	assert.Equal(t, []string{"c2"}, next.IDs())
	assert.Equal(t, map[string][]string{"c2": {"c1"}}, next.Relationships)
	require.Len(t, next.Audit, 1)
	assert.Equal(t, types.AuditWeakRemoval, next.Audit[0].Kind)
	assert.Equal(t, []string{"c1", "c3"}, next.Audit[0].Removed)
	assert.InDelta(t, 0.5, next.Audit[0].Threshold, 1e-9)

	assert.True(t, op.VerifyInvariants(state, next))
	assert.Len(t, state.Claims, 3)
	assert.Len(t, state.Relationships, 2)
}

func TestRemoveWeakAtThresholdKept(t *testing.T) {
	state := types.NewKnowledgeState(claim("c1", 0.3))
	next, modified := NewRemoveWeak(0.3).Apply(context.Background(), state)
	assert.False(t, modified)
	assert.Len(t, next.Claims, 1)
	assert.Empty(t, next.Audit)
}

// --- VerifyReduction ---

func TestVerifyReduction(t *testing.T) {
	old := types.NewKnowledgeState(claim("c1", 1), claim("c2", 1), claim("c3", 1))
	old.Audit = []types.AuditEvent{types.MergeEvent("earlier", "c9", []string{"c2"}, 1, "")}

	shrink := func(events ...types.AuditEvent) *types.KnowledgeState {
		next := old.Clone()
		next.Claims = next.Claims[:1]
		next.Audit = append(next.Audit, events...)
		return next
	}

	tests := []struct {
		name string
		next *types.KnowledgeState
		want bool
	}{
		{"same size", old.Clone(), true},
		{
			"growth",
			func() *types.KnowledgeState {
				n := old.Clone()
				n.Claims = append(n.Claims, claim("c4", 1))
				return n
			}(),
			true,
		},
		{"silent reduction", shrink(), false},
		{
			"merge covers all",
			shrink(types.MergeEvent("m", "c1", []string{"c2", "c3"}, 1, "")),
			true,
		},
		{
			"merge and weak removal",
			shrink(
				types.MergeEvent("m", "c1", []string{"c2"}, 1, ""),
				types.WeakRemovalEvent("w", []string{"c3"}, 0.5),
			),
			true,
		},
		{
			"partial coverage",
			shrink(types.MergeEvent("m", "c1", []string{"c2"}, 1, "")),
			false,
		},
		{
			"assumption does not explain removal",
			shrink(types.AssumptionAddedEvent("a", "c2", nil), types.AssumptionAddedEvent("a", "c3", nil)),
			false,
		},
		{
			"truncated audit",
			func() *types.KnowledgeState {
				n := old.Clone()
				n.Claims = n.Claims[:1]
				n.Audit = nil
				return n
			}(),
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyReduction(old, tt.next))
		})
	}
}

// --- ModelMergeDuplicates ---

func TestModelMergeDuplicates(t *testing.T) {
	state := types.NewKnowledgeState(
		claim("c1", 0.6, "a"),
		claim("c2", 0.9, "b"),
		claim("c3", 0.5, "c"),
		claim("c4", 0.5, "d"),
	)
	state.Relationships["c2"] = []string{"c1"}

	var prompt string
	backend := ai.BackendFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "```json\n" + `{"merges": [
			{"keep": "c1", "remove": ["c2", "c1", "zz"], "reason": "same finding"},
			{"keep": "missing", "remove": ["c3"]},
			{"keep": "c4", "remove": ["c3"]}
		]}` + "\n```", nil
	})

	op := NewModelMergeDuplicates(backend, nil)
	next, modified := op.Apply(context.Background(), state)
	require.True(t, modified)
	assert.Contains(t, prompt, `"id": "c1"`)

	assert.Equal(t, []string{"c1", "c4"}, next.IDs())
	assert.Equal(t, []string{"a", "b"}, next.Claims[0].Evidence)
	assert.InDelta(t, 0.9, next.Claims[0].Confidence, 1e-9)
	assert.Equal(t, []string{"c", "d"}, next.Claims[1].Evidence)
	assert.NotContains(t, next.Relationships, "c2")

	require.Len(t, next.Audit, 2)
	assert.Equal(t, "same finding", next.Audit[0].Reason)
	assert.Equal(t, []string{"c2"}, next.Audit[0].Removed)
	assert.Equal(t, defaultMergeReason, next.Audit[1].Reason)

	assert.True(t, op.VerifyInvariants(state, next))
	assert.Len(t, state.Claims, 4)
}

func TestModelMergeDuplicatesNoChange(t *testing.T) {
	two := types.NewKnowledgeState(claim("c1", 1, "a"), claim("c2", 1, "b"))

	tests := []struct {
		name    string
		state   *types.KnowledgeState
		backend ai.Backend
	}{
		{"single claim", types.NewKnowledgeState(claim("c1", 1)), staticBackend(`{"merges":[{"keep":"c1","remove":["c1"]}]}`)},
		{"malformed", two, staticBackend("I could not decide.")},
		{"empty merges", two, staticBackend(`{"merges": []}`)},
		{"unknown ids only", two, staticBackend(`{"merges": [{"keep": "x", "remove": ["c2"]}]}`)},
		{"backend error", two, ai.BackendFunc(func(context.Context, string) (string, error) {
			return "", errors.New("service unavailable")
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, modified := NewModelMergeDuplicates(tt.backend, nil).Apply(context.Background(), tt.state)
			assert.False(t, modified)
			assert.Same(t, tt.state, next)
		})
	}
}

// --- ModelExtractAssumptions ---

func TestModelExtractAssumptions(t *testing.T) {
	state := types.NewKnowledgeState(
		claim("c1", 0.9, "a"),
		claim("a3", 0.9, "b"),
		claim("c3", 0.9, "c"),
		claim("c4", 0.9, "d"),
	)

	var prompt string
	backend := ai.BackendFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return `{"assumptions": [
			{"text": "Data is representative", "related_claim_ids": ["c1", "c3"], "confidence": 0.8},
			{"text": "  ", "related_claim_ids": ["c1"]},
			{"text": "Measurements are unbiased", "related_claim_ids": ["c1"]}
		]}`, nil
	})

	op := NewModelExtractAssumptions(backend, nil)
	next, modified := op.Apply(context.Background(), state)
	require.True(t, modified)

	// Only the first three claims are sampled.
	assert.Contains(t, prompt, "[c3]")
	assert.NotContains(t, prompt, "[c4]")

	require.Len(t, next.Claims, 6)
	first, second := next.Claims[4], next.Claims[5]
	assert.Equal(t, "a5", first.ID)
	assert.Equal(t, "[ASSUMPTION] Data is representative", first.Text)
	assert.Equal(t, []string{"derived by model"}, first.Evidence)
	assert.Equal(t, "assumptions", first.Section)
	assert.InDelta(t, 0.8, first.Confidence, 1e-9)
	assert.Equal(t, "a6", second.ID)
	assert.InDelta(t, 0.6, second.Confidence, 1e-9)

	assert.Equal(t, []string{"a5", "a6"}, next.Relationships["c1"])
	assert.Equal(t, []string{"a5"}, next.Relationships["c3"])
	assert.Equal(t, 2, next.CountKind(types.AuditAssumptionAdded))
	assert.True(t, op.VerifyInvariants(state, next))
	assert.Len(t, state.Claims, 4)
	assert.Empty(t, state.Relationships)

	// The same reply against the grown state adds nothing.
	again, modified := op.Apply(context.Background(), next)
	assert.False(t, modified)
	assert.Same(t, next, again)
}

func TestModelExtractAssumptionsSkipsTakenIDs(t *testing.T) {
	state := types.NewKnowledgeState(claim("c1", 1), claim("a4", 1), claim("c3", 1))
	next, modified := NewModelExtractAssumptions(staticBackend(`{"assumptions":[{"text":"x"}]}`), nil).
		Apply(context.Background(), state)
	require.True(t, modified)
	assert.Equal(t, "a5", next.Claims[3].ID)
}

func TestModelExtractAssumptionsNoChange(t *testing.T) {
	one := types.NewKnowledgeState(claim("c1", 1))

	tests := []struct {
		name    string
		state   *types.KnowledgeState
		backend ai.Backend
	}{
		{"no claims", types.NewKnowledgeState(), staticBackend(`{"assumptions":[{"text":"x"}]}`)},
		{"malformed", one, staticBackend(`{"assumptions": [`)},
		{"empty", one, staticBackend(`{"assumptions": []}`)},
		{"backend error", one, ai.BackendFunc(func(context.Context, string) (string, error) {
			return "", errors.New("timeout")
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, modified := NewModelExtractAssumptions(tt.backend, nil).Apply(context.Background(), tt.state)
			assert.False(t, modified)
			assert.Same(t, tt.state, next)
		})
	}
}

// --- Build / ParseSpec ---

func TestBuild(t *testing.T) {
	specs := []types.OperatorSpec{
		{Name: types.OpNormalizeEvidence},
		{Name: types.OpMergeDuplicates},
		{Name: types.OpRemoveWeak, MinConfidence: types.Float64(0.5)},
		{Name: types.OpModelMergeDuplicates},
		{Name: types.OpModelExtractAssumptions},
	}
	ops, err := Build(specs, Deps{Backend: staticBackend("{}")})
	require.NoError(t, err)
	require.Len(t, ops, 5)

	for i, op := range ops {
		assert.Equal(t, specs[i].Name, op.Name())
	}
	assert.InDelta(t, DefaultSimilarityThreshold, ops[1].(*MergeDuplicates).Threshold(), 1e-9)
	assert.InDelta(t, 0.5, ops[2].(*RemoveWeak).MinConfidence(), 1e-9)
}

func TestBuildKeepsExplicitZero(t *testing.T) {
	state := types.NewKnowledgeState(
		types.Claim{ID: "c1", Text: "faint", Evidence: []string{"x"}, Confidence: 0.1},
		types.Claim{ID: "c2", Text: "other", Evidence: []string{"x"}, Confidence: 0.2},
	)

	tests := []struct {
		name          string
		spec          string
		wantThreshold float64
		wantIDs       []string
	}{
		{name: "remove_weak zero keeps everything", spec: "remove_weak=0", wantThreshold: 0, wantIDs: []string{"c1", "c2"}},
		{name: "remove_weak unset uses default", spec: "remove_weak", wantThreshold: DefaultMinConfidence, wantIDs: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := ParseSpec(tt.spec)
			require.NoError(t, err)
			ops, err := Build([]types.OperatorSpec{spec}, Deps{})
			require.NoError(t, err)
			weak := ops[0].(*RemoveWeak)
			assert.InDelta(t, tt.wantThreshold, weak.MinConfidence(), 1e-9)

			next, _ := weak.Apply(context.Background(), state)
			assert.Equal(t, tt.wantIDs, next.IDs())
		})
	}

	ops, err := Build([]types.OperatorSpec{{Name: types.OpMergeDuplicates, Threshold: types.Float64(0)}}, Deps{})
	require.NoError(t, err)
	assert.InDelta(t, 0, ops[0].(*MergeDuplicates).Threshold(), 1e-9)

	ops, err = Build([]types.OperatorSpec{{Name: types.OpNormalizeEvidence, Trim: true}}, Deps{})
	require.NoError(t, err)
	assert.True(t, ops[0].(*NormalizeEvidence).Trims())
}

func TestBuildErrors(t *testing.T) {
	_, err := Build([]types.OperatorSpec{{Name: "shuffle"}}, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown operator "shuffle"`)

	_, err = Build([]types.OperatorSpec{{Name: types.OpModelMergeDuplicates}}, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an AI backend")
}

func TestNeedsBackend(t *testing.T) {
	assert.False(t, NeedsBackend(types.DefaultRefineConfig().Operators))
	assert.True(t, NeedsBackend([]types.OperatorSpec{{Name: types.OpModelExtractAssumptions}}))
}

func TestParseSpec(t *testing.T) {
	tests := []struct {
		in      string
		want    types.OperatorSpec
		wantErr string
	}{
		{in: "normalize_evidence", want: types.OperatorSpec{Name: "normalize_evidence"}},
		{in: "merge_duplicates=0.5", want: types.OperatorSpec{Name: "merge_duplicates", Threshold: types.Float64(0.5)}},
		{in: " remove_weak = 0.4 ", want: types.OperatorSpec{Name: "remove_weak", MinConfidence: types.Float64(0.4)}},
		{in: "", wantErr: "empty operator name"},
		{in: "remove_weak=high", wantErr: "parsing value"},
		{in: "normalize_evidence=trim", want: types.OperatorSpec{Name: "normalize_evidence", Trim: true}},
		{in: "normalize_evidence=1", wantErr: "unknown option"},
		{in: "model_merge_duplicates=1", wantErr: "takes no value"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSpec(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
