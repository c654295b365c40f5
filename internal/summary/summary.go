// Package summary records what a remediation run did: the machine-readable
// sibling of the log stream. The latest run always lives at
// .remedy/last_run.json; the full history goes to sqlite.
package summary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"remedy/internal/patch"
	"remedy/internal/rebuild"
)

// RunSummary is the persisted record of one remediation run.
//
// Success means the run changed something - at least one fix landed. It says
// nothing about whether the rebuild passed; Rebuild carries that separately,
// because a run that fixed source but tripped an unrelated build failure
// still made progress worth reporting.
type RunSummary struct {
	RunID          string          `json:"run_id"`
	Timestamp      string          `json:"timestamp"`
	FixesAttempted []patch.FixType `json:"fixes_attempted"`
	FixesApplied   []string        `json:"fixes_applied"`
	Success        bool            `json:"success"`
	Rebuild        *rebuild.Result `json:"rebuild,omitempty"`
}

// FilePath returns the latest-run artifact location for a project root.
func FilePath(root string) string {
	return filepath.Join(root, ".remedy", "last_run.json")
}

// New starts a summary for a fresh run.
func New() *RunSummary {
	return &RunSummary{
		RunID:          uuid.NewString(),
		Timestamp:      time.Now().Format(time.RFC3339),
		FixesAttempted: []patch.FixType{},
		FixesApplied:   []string{},
	}
}

// Attempted records that a fix type was handed to the patch engine.
func (s *RunSummary) Attempted(fix patch.FixType) {
	s.FixesAttempted = append(s.FixesAttempted, fix)
}

// Applied records a human-readable line for a fix that actually mutated a
// file, and flips the run to successful.
func (s *RunSummary) Applied(description string) {
	s.FixesApplied = append(s.FixesApplied, description)
	s.Success = true
}

// Write persists the summary, replacing any previous run's artifact.
func (s *RunSummary) Write(root string) error {
	path := FilePath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create summary dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// Load reads the latest-run artifact, for the status command.
func Load(root string) (*RunSummary, error) {
	data, err := os.ReadFile(FilePath(root))
	if err != nil {
		return nil, err
	}
	var s RunSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse summary: %w", err)
	}
	return &s, nil
}
