// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package statefile reads and writes knowledge states and refinement records.
// The format follows the file extension: .json is JSON, .yaml and .yml are
// YAML.
package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/refinement-engine/pkg/types"
)

// Format is a serialization format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf returns the format implied by path's extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported file extension %q (want .yaml, .yml or .json)", filepath.Ext(path))
	}
}

// LoadState reads and validates a knowledge state.
func LoadState(path string) (*types.KnowledgeState, error) {
	var state types.KnowledgeState
	if err := load(path, &state); err != nil {
		return nil, err
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("invalid state %s: %w", path, err)
	}
	return &state, nil
}

// SaveState writes a knowledge state, creating parent directories.
func SaveState(path string, state *types.KnowledgeState) error {
	return save(path, state)
}

// LoadRecord reads a refinement record.
func LoadRecord(path string) (*types.Record, error) {
	var rec types.Record
	if err := load(path, &rec); err != nil {
		return nil, err
	}
	if rec.FinalState != nil {
		if err := rec.FinalState.Validate(); err != nil {
			return nil, fmt.Errorf("invalid final state in %s: %w", path, err)
		}
	}
	return &rec, nil
}

// SaveRecord writes a refinement record, creating parent directories.
func SaveRecord(path string, rec *types.Record) error {
	return save(path, rec)
}

// Marshal encodes v in the given format.
func Marshal(format Format, v any) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatYAML:
		return yaml.Marshal(v)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func load(path string, v any) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, v)
	default:
		err = yaml.Unmarshal(data, v)
	}
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func save(path string, v any) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := Marshal(format, v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
