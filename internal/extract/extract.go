// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract builds an initial knowledge state from a Markdown document
// by asking a text-generation backend for the claims in each section.
package extract

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/refinement-engine/internal/ai"
	"github.com/pdiddy/refinement-engine/internal/statefile"
	"github.com/pdiddy/refinement-engine/pkg/types"
)

const (
	statesDir = "states"

	defaultSection    = "unknown"
	defaultConfidence = 0.5
)

// response is the JSON payload expected from the backend for one section.
type response struct {
	Claims []responseClaim `json:"claims"`
}

type responseClaim struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Evidence   []string `json:"evidence"`
	Section    string   `json:"section"`
	Confidence *float64 `json:"confidence"`
}

// BatchSummary holds counts from a batch extraction run.
type BatchSummary struct {
	Extracted int
	Skipped   int
	Failed    int
}

// Total returns the number of documents processed.
func (s BatchSummary) Total() int {
	return s.Extracted + s.Skipped + s.Failed
}

// HasFailures reports whether any documents failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// StatePath returns where the state extracted from docID is written.
func StatePath(knowledgeDir, docID string) string {
	return filepath.Join(knowledgeDir, statesDir, docID+"-state.yaml")
}

// ExtractAll processes every Markdown file in cfg.DocumentsDir and writes one
// state file per document under cfg.KnowledgeDir/states/. Documents older
// than their state file are skipped.
func ExtractAll(ctx context.Context, backend ai.Backend, cfg types.ExtractionConfig, model string, w io.Writer) (BatchSummary, error) {
	outDir := filepath.Join(cfg.KnowledgeDir, statesDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return BatchSummary{}, fmt.Errorf("creating output directory: %w", err)
	}

	entries, err := os.ReadDir(cfg.DocumentsDir)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("reading documents directory %s: %w", cfg.DocumentsDir, err)
	}

	var summary BatchSummary

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		docID := strings.TrimSuffix(entry.Name(), ".md")
		mdPath := filepath.Join(cfg.DocumentsDir, entry.Name())
		outPath := StatePath(cfg.KnowledgeDir, docID)

		changed, err := hasChanged(mdPath, outPath)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", docID, err)
			summary.Failed++
			continue
		}
		if !changed {
			fmt.Fprintf(w, "skipped %s\n", docID)
			summary.Skipped++
			continue
		}

		fmt.Fprintf(w, "extracting %s\n", docID)

		state, err := ExtractDocument(ctx, backend, docID, mdPath, model)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", docID, err)
			summary.Failed++
			continue
		}

		if err := statefile.SaveState(outPath, state); err != nil {
			fmt.Fprintf(w, "failed  %s: write error: %v\n", docID, err)
			summary.Failed++
			continue
		}

		fmt.Fprintf(w, "extracted %s (%d claims)\n", docID, state.Len())
		summary.Extracted++
	}

	return summary, nil
}

// ExtractDocument reads one Markdown file and extracts its claims section by
// section. model is recorded in the state metadata.
func ExtractDocument(ctx context.Context, backend ai.Backend, docID, mdPath, model string) (*types.KnowledgeState, error) {
	content, err := os.ReadFile(mdPath)
	if err != nil {
		return nil, fmt.Errorf("reading markdown %s: %w", mdPath, err)
	}
	return ExtractText(ctx, backend, docID, string(content), model)
}

// ExtractText extracts claims from Markdown content.
func ExtractText(ctx context.Context, backend ai.Backend, docID, content, model string) (*types.KnowledgeState, error) {
	state := types.NewKnowledgeState()
	state.Metadata["source"] = docID
	if model != "" {
		state.Metadata["model"] = model
	}

	for _, sec := range chunkByHeadings(content) {
		if strings.TrimSpace(sec.body) == "" {
			continue
		}

		prompt, err := renderPrompt(formatChunk(sec))
		if err != nil {
			return nil, fmt.Errorf("rendering prompt: %w", err)
		}

		reply, err := backend.Generate(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("extracting section %q: %w", sec.heading, err)
		}

		var resp response
		if err := ai.DecodeJSON(reply, &resp); err != nil {
			return nil, fmt.Errorf("section %q: %w", sec.heading, err)
		}

		claims, validationErrors := convertClaims(resp.Claims, state, docID, sec.heading)
		if len(validationErrors) > 0 {
			return nil, fmt.Errorf("validation errors in section %q: %s", sec.heading, strings.Join(validationErrors, "; "))
		}
		state.Claims = append(state.Claims, claims...)
	}

	return state, nil
}

// section represents a chunk of Markdown under one heading.
type section struct {
	heading string
	body    string
}

// chunkByHeadings splits Markdown into sections at ## and ### headings.
// Page markers like <!-- page 3 --> left behind by converters are dropped.
func chunkByHeadings(content string) []section {
	lines := strings.Split(content, "\n")
	var sections []section
	currentHeading := ""
	var bodyLines []string

	flush := func() {
		body := strings.Join(bodyLines, "\n")
		if currentHeading != "" || strings.TrimSpace(body) != "" {
			sections = append(sections, section{
				heading: currentHeading,
				body:    body,
			})
		}
		bodyLines = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if _, ok := parsePageMarker(trimmed); ok {
			continue
		}

		if isHeading(trimmed) {
			flush()
			currentHeading = stripHeadingPrefix(trimmed)
			continue
		}

		bodyLines = append(bodyLines, line)
	}

	flush()
	return sections
}

// isHeading returns true if the line starts with ## or ###.
func isHeading(line string) bool {
	return strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "### ")
}

func stripHeadingPrefix(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "#"))
}

// parsePageMarker extracts the page number from an HTML comment like <!-- page 3 -->.
func parsePageMarker(line string) (int, bool) {
	if !strings.HasPrefix(line, "<!-- page ") || !strings.HasSuffix(line, " -->") {
		return 0, false
	}
	inner := strings.TrimPrefix(line, "<!-- page ")
	inner = strings.TrimSuffix(inner, " -->")
	var page int
	if _, err := fmt.Sscanf(inner, "%d", &page); err != nil {
		return 0, false
	}
	return page, true
}

func formatChunk(sec section) string {
	if sec.heading == "" {
		return sec.body
	}
	return fmt.Sprintf("## %s\n\n%s", sec.heading, sec.body)
}

// convertClaims validates backend claims and turns them into state claims.
// A claim keeps its backend ID when that ID is non-empty and not yet used in
// state; otherwise it gets a stable content-derived ID.
func convertClaims(items []responseClaim, state *types.KnowledgeState, docID, heading string) ([]types.Claim, []string) {
	var result []types.Claim
	var errors []string
	taken := make(map[string]bool, state.Len()+len(items))
	for _, c := range state.Claims {
		taken[c.ID] = true
	}

	for i, item := range items {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			errors = append(errors, fmt.Sprintf("claim %d: empty text", i))
			continue
		}

		confidence := defaultConfidence
		if item.Confidence != nil {
			confidence = *item.Confidence
		}
		if confidence < 0.0 || confidence > 1.0 {
			errors = append(errors, fmt.Sprintf("claim %d: confidence %f out of range [0,1]", i, confidence))
			continue
		}

		sec := item.Section
		if sec == "" {
			sec = heading
		}
		if sec == "" {
			sec = defaultSection
		}

		id := item.ID
		if id == "" || taken[id] {
			id = stableID(docID, sec, text)
		}
		if taken[id] {
			// Same text twice in one section.
			continue
		}
		taken[id] = true

		result = append(result, types.Claim{
			ID:         id,
			Text:       text,
			Evidence:   item.Evidence,
			Section:    sec,
			Confidence: confidence,
		})
	}

	return result, errors
}

// stableID is the first 12 hex characters of SHA-256(docID + section + text).
func stableID(docID, section, text string) string {
	h := sha256.New()
	h.Write([]byte(docID))
	h.Write([]byte(section))
	h.Write([]byte(text))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// hasChanged reports whether the Markdown file is newer than the output file.
// Returns true if the output does not exist or the Markdown is more recent.
func hasChanged(mdPath, outPath string) (bool, error) {
	mdInfo, err := os.Stat(mdPath)
	if err != nil {
		return false, fmt.Errorf("stat markdown %s: %w", mdPath, err)
	}

	outInfo, err := os.Stat(outPath)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("stat output %s: %w", outPath, err)
	}

	return mdInfo.ModTime().After(outInfo.ModTime()), nil
}
