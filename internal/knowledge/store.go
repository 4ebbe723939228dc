// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package knowledge keeps extracted and refined knowledge states in a SQLite
// claim base: ingest state files, search claim text, and load a document's
// claims back as a KnowledgeState.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/refinement-engine/internal/statefile"
	"github.com/pdiddy/refinement-engine/pkg/types"
)

const (
	statesDir   = "states"
	indexDir    = "index"
	dbFile      = "claims.db"
	stateSuffix = "-state.yaml"
)

// Store manages the claim base SQLite database.
type Store struct {
	db           *sql.DB
	knowledgeDir string
	documentsDir string
	maxResults   int

	// fts is false when the sqlite3 driver was built without FTS5; search
	// then falls back to LIKE matching.
	fts bool
}

// NewStore opens or creates the claim base at knowledgeDir/index/claims.db
// and creates the schema if it does not exist. documentsDir is where Trace
// looks for source Markdown.
func NewStore(cfg types.KnowledgeBaseConfig, documentsDir string) (*Store, error) {
	dbDir := filepath.Join(cfg.KnowledgeDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{
		db:           db,
		knowledgeDir: cfg.KnowledgeDir,
		documentsDir: documentsDir,
		maxResults:   maxResults,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// FullText reports whether searches use the FTS5 index.
func (s *Store) FullText() bool {
	return s.fts
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			metadata TEXT,
			audit TEXT,
			claim_count INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS claims (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			doc_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			text TEXT NOT NULL,
			section TEXT,
			confidence REAL,
			evidence TEXT,
			UNIQUE(doc_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_doc_id ON claims(doc_id)`,
		`CREATE TABLE IF NOT EXISTS relationships (
			doc_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			source_id TEXT NOT NULL,
			target_id TEXT,
			position INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_doc_id ON relationships(doc_id)`,
		`CREATE TABLE IF NOT EXISTS indexing_status (
			doc_id TEXT PRIMARY KEY,
			file_mod_time TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='claims_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		s.fts = true
		return nil
	}

	if _, err := s.db.Exec(`CREATE VIRTUAL TABLE claims_fts USING fts5(text, content=claims, content_rowid=rowid)`); err != nil {
		if strings.Contains(err.Error(), "no such module") {
			return nil
		}
		return fmt.Errorf("creating FTS table: %w", err)
	}

	triggers := []string{
		`CREATE TRIGGER claims_ai AFTER INSERT ON claims BEGIN
			INSERT INTO claims_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,
		`CREATE TRIGGER claims_ad AFTER DELETE ON claims BEGIN
			INSERT INTO claims_fts(claims_fts, rowid, text) VALUES('delete', old.rowid, old.text);
		END`,
		`CREATE TRIGGER claims_au AFTER UPDATE ON claims BEGIN
			INSERT INTO claims_fts(claims_fts, rowid, text) VALUES('delete', old.rowid, old.text);
			INSERT INTO claims_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,
	}
	for _, stmt := range triggers {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	s.fts = true
	return nil
}

// IngestSummary holds counts from an indexing run.
type IngestSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
}

// Total returns the number of documents processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Ingest reads state files from knowledgeDir/states/ and stores them. Files
// whose modification time matches the last indexing run are skipped. After
// any change export.yaml is rewritten.
func (s *Store) Ingest(ctx context.Context, w io.Writer) (IngestSummary, error) {
	dir := filepath.Join(s.knowledgeDir, statesDir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("reading states directory %s: %w", dir, err)
	}

	var summary IngestSummary

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), stateSuffix) {
			continue
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		docID := strings.TrimSuffix(entry.Name(), stateSuffix)
		path := filepath.Join(dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", docID, err)
			summary.Failed++
			continue
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		var storedModTime string
		err = s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM indexing_status WHERE doc_id = ?`, docID,
		).Scan(&storedModTime)

		if err == nil && storedModTime == modTime {
			fmt.Fprintf(w, "skipped %s\n", docID)
			summary.Skipped++
			continue
		}

		isUpdate := err == nil

		state, err := statefile.LoadState(path)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", docID, err)
			summary.Failed++
			continue
		}

		if err := s.Put(ctx, docID, state); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", docID, err)
			summary.Failed++
			continue
		}
		if err := s.markIndexed(ctx, docID, modTime); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", docID, err)
			summary.Failed++
			continue
		}

		if isUpdate {
			fmt.Fprintf(w, "updated %s (%d claims)\n", docID, state.Len())
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexing %s (%d claims)\n", docID, state.Len())
			summary.Indexed++
		}
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed)

	if summary.Indexed > 0 || summary.Updated > 0 {
		if err := s.ExportYAML(ctx, QueryOptions{}); err != nil {
			fmt.Fprintf(w, "warning: export.yaml write failed: %v\n", err)
		}
	}

	return summary, nil
}

// Put replaces everything stored for docID with state.
func (s *Store) Put(ctx context.Context, docID string, state *types.KnowledgeState) error {
	metaJSON, err := json.Marshal(state.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	auditJSON, err := json.Marshal(state.Audit)
	if err != nil {
		return fmt.Errorf("encoding audit trail: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM claims WHERE doc_id = ?`,
		`DELETE FROM relationships WHERE doc_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, docID); err != nil {
			return fmt.Errorf("clearing document %s: %w", docID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, metadata, audit, claim_count) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			metadata=excluded.metadata, audit=excluded.audit, claim_count=excluded.claim_count`,
		docID, string(metaJSON), string(auditJSON), state.Len(),
	)
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}

	claimStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO claims (id, doc_id, position, text, section, confidence, evidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing claim insert: %w", err)
	}
	defer claimStmt.Close()

	for i, c := range state.Claims {
		evidenceJSON, err := json.Marshal(c.Evidence)
		if err != nil {
			return fmt.Errorf("encoding evidence of claim %s: %w", c.ID, err)
		}
		if _, err := claimStmt.ExecContext(ctx,
			c.ID, docID, i, c.Text, c.Section, c.Confidence, string(evidenceJSON),
		); err != nil {
			return fmt.Errorf("inserting claim %s: %w", c.ID, err)
		}
	}

	relStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO relationships (doc_id, source_id, target_id, position) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing relationship insert: %w", err)
	}
	defer relStmt.Close()

	// A source with no targets is kept as a single row with a NULL target.
	for _, src := range state.RelationshipKeys() {
		if len(state.Relationships[src]) == 0 {
			if _, err := relStmt.ExecContext(ctx, docID, src, nil, 0); err != nil {
				return fmt.Errorf("inserting relationship %s: %w", src, err)
			}
			continue
		}
		for i, dst := range state.Relationships[src] {
			if _, err := relStmt.ExecContext(ctx, docID, src, dst, i); err != nil {
				return fmt.Errorf("inserting relationship %s -> %s: %w", src, dst, err)
			}
		}
	}

	return tx.Commit()
}

func (s *Store) markIndexed(ctx context.Context, docID, modTime string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO indexing_status (doc_id, file_mod_time) VALUES (?, ?)
		 ON CONFLICT(doc_id) DO UPDATE SET file_mod_time=excluded.file_mod_time`,
		docID, modTime,
	)
	if err != nil {
		return fmt.Errorf("updating indexing status: %w", err)
	}
	return nil
}

// Documents returns stored document IDs in sorted order.
func (s *Store) Documents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
