// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds the data model shared by the refinement engine, its
// operators, and the CLI: claims, knowledge states, audit events, refinement
// records, and configuration.
package types

import (
	"fmt"
	"sort"
)

// Claim is a single assertion extracted from a document together with the
// evidence that supports it.
//
// Claims are values. Operators never modify a Claim reachable from their
// input state; they build a new Claim (see WithEvidence, Clone) instead.
type Claim struct {
	// ID is unique within a KnowledgeState.
	ID string `json:"id" yaml:"id"`

	// Text is the claim statement.
	Text string `json:"text" yaml:"text"`

	// Evidence lists supporting quotes or locators. Semantically a set, but
	// may hold duplicates until normalized.
	Evidence []string `json:"evidence" yaml:"evidence"`

	// Section is the document section label the claim came from.
	Section string `json:"section" yaml:"section"`

	// Confidence is conventionally in [0,1]; the range is not enforced.
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Clone returns a copy of c that shares no memory with it.
func (c Claim) Clone() Claim {
	c.Evidence = cloneStrings(c.Evidence)
	return c
}

// WithEvidence returns a copy of c carrying the given evidence list.
func (c Claim) WithEvidence(evidence []string) Claim {
	c.Evidence = cloneStrings(evidence)
	return c
}

// EvidenceSet returns the distinct evidence strings of c.
func (c Claim) EvidenceSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Evidence))
	for _, e := range c.Evidence {
		set[e] = struct{}{}
	}
	return set
}

// KnowledgeState is the structured representation of one document: an
// ordered set of claims, a directed relationship graph, open metadata, and
// the audit trail of operator decisions.
//
// Claim order is significant: operators that compare claims pairwise walk
// them in slice order.
type KnowledgeState struct {
	// Claims is ordered; IDs are unique.
	Claims []Claim `json:"claims" yaml:"claims"`

	// Relationships maps a claim ID to related claim IDs. Entries may
	// reference claims that no longer exist.
	Relationships map[string][]string `json:"relationships" yaml:"relationships"`

	// Metadata is free-form (source document, extraction model, ...).
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Audit records every claim removal or addition made by an operator.
	Audit []AuditEvent `json:"audit,omitempty" yaml:"audit,omitempty"`
}

// NewKnowledgeState builds a state from claims in the given order.
func NewKnowledgeState(claims ...Claim) *KnowledgeState {
	s := &KnowledgeState{
		Relationships: map[string][]string{},
		Metadata:      map[string]string{},
	}
	for _, c := range claims {
		s.Claims = append(s.Claims, c.Clone())
	}
	return s
}

// Len returns the number of claims.
func (s *KnowledgeState) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Claims)
}

// IDs returns claim IDs in state order.
func (s *KnowledgeState) IDs() []string {
	ids := make([]string, len(s.Claims))
	for i, c := range s.Claims {
		ids[i] = c.ID
	}
	return ids
}

// Lookup returns the claim with the given ID.
func (s *KnowledgeState) Lookup(id string) (Claim, bool) {
	for _, c := range s.Claims {
		if c.ID == id {
			return c, true
		}
	}
	return Claim{}, false
}

// Has reports whether a claim with the given ID exists.
func (s *KnowledgeState) Has(id string) bool {
	_, ok := s.Lookup(id)
	return ok
}

// Clone returns a deep copy of s. Mutating the copy never affects s.
func (s *KnowledgeState) Clone() *KnowledgeState {
	if s == nil {
		return nil
	}
	out := &KnowledgeState{
		Claims:        make([]Claim, len(s.Claims)),
		Relationships: make(map[string][]string, len(s.Relationships)),
		Metadata:      make(map[string]string, len(s.Metadata)),
		Audit:         make([]AuditEvent, len(s.Audit)),
	}
	for i, c := range s.Claims {
		out.Claims[i] = c.Clone()
	}
	for k, v := range s.Relationships {
		out.Relationships[k] = cloneStrings(v)
	}
	for k, v := range s.Metadata {
		out.Metadata[k] = v
	}
	for i, e := range s.Audit {
		out.Audit[i] = e.Clone()
	}
	return out
}

// RelationshipKeys returns the relationship source IDs in sorted order.
func (s *KnowledgeState) RelationshipKeys() []string {
	keys := make([]string, 0, len(s.Relationships))
	for k := range s.Relationships {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AuditKind tags an AuditEvent.
type AuditKind string

const (
	AuditMerge           AuditKind = "merge"
	AuditWeakRemoval     AuditKind = "weak_removal"
	AuditAssumptionAdded AuditKind = "assumption_added"
)

// AuditEvent is one entry in a state's audit trail. Which fields are set
// depends on Kind:
//
//   - merge: Kept, Removed, and either Similarity (rule-based) or Reason
//     (model-backed).
//   - weak_removal: Removed, Threshold.
//   - assumption_added: ClaimID, Related.
type AuditEvent struct {
	Kind       AuditKind `json:"kind" yaml:"kind"`
	Operator   string    `json:"operator" yaml:"operator"`
	Kept       string    `json:"kept,omitempty" yaml:"kept,omitempty"`
	Removed    []string  `json:"removed,omitempty" yaml:"removed,omitempty"`
	Similarity float64   `json:"similarity,omitempty" yaml:"similarity,omitempty"`
	Reason     string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Threshold  float64   `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	ClaimID    string    `json:"claim_id,omitempty" yaml:"claim_id,omitempty"`
	Related    []string  `json:"related,omitempty" yaml:"related,omitempty"`
}

// MergeEvent records that removed claims were folded into kept.
func MergeEvent(operator, kept string, removed []string, similarity float64, reason string) AuditEvent {
	return AuditEvent{
		Kind:       AuditMerge,
		Operator:   operator,
		Kept:       kept,
		Removed:    cloneStrings(removed),
		Similarity: similarity,
		Reason:     reason,
	}
}

// WeakRemovalEvent records claims dropped for falling below threshold.
func WeakRemovalEvent(operator string, removed []string, threshold float64) AuditEvent {
	return AuditEvent{
		Kind:      AuditWeakRemoval,
		Operator:  operator,
		Removed:   cloneStrings(removed),
		Threshold: threshold,
	}
}

// AssumptionAddedEvent records a claim synthesized from existing claims.
func AssumptionAddedEvent(operator, claimID string, related []string) AuditEvent {
	return AuditEvent{
		Kind:     AuditAssumptionAdded,
		Operator: operator,
		ClaimID:  claimID,
		Related:  cloneStrings(related),
	}
}

// ExplainsRemoval reports whether the event accounts for claims leaving the
// state.
func (e AuditEvent) ExplainsRemoval() bool {
	return e.Kind == AuditMerge || e.Kind == AuditWeakRemoval
}

// Clone returns a copy of e that shares no memory with it.
func (e AuditEvent) Clone() AuditEvent {
	e.Removed = cloneStrings(e.Removed)
	e.Related = cloneStrings(e.Related)
	return e
}

// CountKind returns how many audit events of the given kind s carries.
func (s *KnowledgeState) CountKind(kind AuditKind) int {
	n := 0
	for _, e := range s.Audit {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Validate checks structural rules a state must satisfy before refinement:
// every claim has an ID and IDs are unique. Missing maps are allocated.
func (s *KnowledgeState) Validate() error {
	if s.Relationships == nil {
		s.Relationships = map[string][]string{}
	}
	if s.Metadata == nil {
		s.Metadata = map[string]string{}
	}
	seen := make(map[string]bool, len(s.Claims))
	for i, c := range s.Claims {
		if c.ID == "" {
			return fmt.Errorf("claim %d: empty id", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("claim %d: duplicate id %q", i, c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}
