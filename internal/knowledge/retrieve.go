// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/refinement-engine/pkg/types"
)

// QueryOptions holds parameters for claim base queries.
type QueryOptions struct {
	// Query is the full-text search string.
	Query string

	// DocID filters by document.
	DocID string

	// Section filters by section label.
	Section string

	// MinConfidence drops claims below this confidence.
	MinConfidence float64

	// MaxResults limits result count. Zero uses the store default and a
	// negative value means no limit.
	MaxResults int
}

// IsEmpty reports whether the query has no search terms or filters.
func (q QueryOptions) IsEmpty() bool {
	return q.Query == "" && q.DocID == "" && q.Section == "" && q.MinConfidence == 0
}

// QueryResult is a stored claim and the document it belongs to.
type QueryResult struct {
	types.Claim `yaml:",inline"`
	DocID       string `json:"doc_id" yaml:"doc_id"`
}

// Search queries the claim base. Full-text results are ranked by relevance
// (FTS5) or by confidence (LIKE fallback); filter-only results are sorted by
// document and claim position.
func (s *Store) Search(ctx context.Context, opts QueryOptions) ([]QueryResult, error) {
	maxResults := opts.MaxResults
	if maxResults == 0 {
		maxResults = s.maxResults
	}

	var (
		qb   strings.Builder
		args []any
	)

	useFTS := opts.Query != "" && s.fts
	if useFTS {
		qb.WriteString(
			`SELECT c.id, c.doc_id, c.text, c.section, c.confidence, c.evidence
			FROM claims_fts
			JOIN claims c ON c.rowid = claims_fts.rowid
			WHERE claims_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(
			`SELECT c.id, c.doc_id, c.text, c.section, c.confidence, c.evidence
			FROM claims c
			WHERE 1=1`)
		for _, term := range strings.Fields(opts.Query) {
			qb.WriteString(` AND c.text LIKE ? ESCAPE '\'`)
			args = append(args, "%"+escapeLike(term)+"%")
		}
	}

	if opts.DocID != "" {
		qb.WriteString(` AND c.doc_id = ?`)
		args = append(args, opts.DocID)
	}
	if opts.Section != "" {
		qb.WriteString(` AND c.section = ?`)
		args = append(args, opts.Section)
	}
	if opts.MinConfidence > 0 {
		qb.WriteString(` AND c.confidence >= ?`)
		args = append(args, opts.MinConfidence)
	}

	switch {
	case useFTS:
		qb.WriteString(` ORDER BY claims_fts.rank`)
	case opts.Query != "":
		qb.WriteString(` ORDER BY c.confidence DESC, c.doc_id, c.position`)
	default:
		qb.WriteString(` ORDER BY c.doc_id, c.position`)
	}

	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying claim base: %w", err)
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var (
			qr           QueryResult
			section      sql.NullString
			evidenceJSON sql.NullString
		)
		if err := rows.Scan(&qr.ID, &qr.DocID, &qr.Text, &section, &qr.Confidence, &evidenceJSON); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		qr.Section = section.String
		if evidenceJSON.Valid {
			json.Unmarshal([]byte(evidenceJSON.String), &qr.Evidence)
		}
		results = append(results, qr)
	}

	return results, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ErrNotFound is returned when a document or claim is not stored.
var ErrNotFound = errors.New("not found")

// LoadState rebuilds the stored state of docID: claims in their original
// order, relationships, metadata and audit trail.
func (s *Store) LoadState(ctx context.Context, docID string) (*types.KnowledgeState, error) {
	var metaJSON, auditJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT metadata, audit FROM documents WHERE id = ?`, docID,
	).Scan(&metaJSON, &auditJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", docID, ErrNotFound)
		}
		return nil, fmt.Errorf("looking up document: %w", err)
	}

	state := types.NewKnowledgeState()
	if metaJSON.Valid {
		if err := json.Unmarshal([]byte(metaJSON.String), &state.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	if auditJSON.Valid {
		if err := json.Unmarshal([]byte(auditJSON.String), &state.Audit); err != nil {
			return nil, fmt.Errorf("decoding audit trail: %w", err)
		}
	}

	claims, err := s.Search(ctx, QueryOptions{DocID: docID, MaxResults: -1})
	if err != nil {
		return nil, err
	}
	for _, qr := range claims {
		state.Claims = append(state.Claims, qr.Claim)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, target_id FROM relationships WHERE doc_id = ? ORDER BY source_id, position`, docID)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var src string
		var dst sql.NullString
		if err := rows.Scan(&src, &dst); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if !dst.Valid {
			if _, ok := state.Relationships[src]; !ok {
				state.Relationships[src] = []string{}
			}
			continue
		}
		state.Relationships[src] = append(state.Relationships[src], dst.String)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("stored state for %s: %w", docID, err)
	}
	return state, nil
}

// Trace returns the body of the source Markdown section a claim came from.
func (s *Store) Trace(ctx context.Context, docID, claimID string) (string, error) {
	var section sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT section FROM claims WHERE doc_id = ? AND id = ?`, docID, claimID,
	).Scan(&section)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("claim %s/%s: %w", docID, claimID, ErrNotFound)
		}
		return "", fmt.Errorf("looking up claim: %w", err)
	}

	mdPath := filepath.Join(s.documentsDir, docID+".md")
	content, err := os.ReadFile(mdPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", mdPath, err)
	}

	return extractSectionContext(string(content), section.String), nil
}

// extractSectionContext finds the named section in Markdown and returns
// its body text, stripping page markers.
func extractSectionContext(content, targetSection string) string {
	lines := strings.Split(content, "\n")
	var capturing bool
	var result []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "## ") || strings.HasPrefix(trimmed, "### ") {
			heading := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			if strings.EqualFold(heading, targetSection) {
				capturing = true
				continue
			} else if capturing {
				break
			}
		}

		if capturing {
			if strings.HasPrefix(trimmed, "<!-- page") {
				continue
			}
			result = append(result, line)
		}
	}

	return strings.TrimSpace(strings.Join(result, "\n"))
}
