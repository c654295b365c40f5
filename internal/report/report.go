// Package report models the failure report produced by the integration
// harness and selects the most recent artifact from the results directory.
// The report is a read-only input: remedy never writes to it.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"remedy/internal/logging"
)

// ErrNoResults is returned when the results directory holds no artifacts.
// This is the only condition that aborts a run before any mutation.
var ErrNoResults = errors.New("no results artifact found")

// Test outcome status values as written by the harness.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

// Summary holds the harness-level counters.
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Fixed  int `json:"fixed"`
}

// TestOutcome is one test's result inside a FailureReport.
type TestOutcome struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Failed reports whether this outcome needs remediation.
func (t TestOutcome) Failed() bool {
	return t.Status == StatusFailed
}

// FailureReport is the harness artifact consumed by the remediation loop.
type FailureReport struct {
	Summary Summary       `json:"summary"`
	Tests   []TestOutcome `json:"tests"`
}

// Load parses a single results artifact.
func Load(path string) (*FailureReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results artifact: %w", err)
	}

	var rep FailureReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("parse results artifact %s: %w", filepath.Base(path), err)
	}

	logging.ReportDebug("Parsed %s: total=%d passed=%d failed=%d",
		filepath.Base(path), rep.Summary.Total, rep.Summary.Passed, rep.Summary.Failed)
	return &rep, nil
}

// LoadLatest selects the newest results_*.json in dir by filename ordering
// (the harness embeds a sortable timestamp in the name) and parses it.
// Returns the parsed report and the path that was chosen.
func LoadLatest(dir string) (*FailureReport, string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "results_*.json"))
	if err != nil {
		return nil, "", fmt.Errorf("scan results directory: %w", err)
	}
	if len(matches) == 0 {
		return nil, "", ErrNoResults
	}

	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	latest := matches[0]
	logging.Report("Using results artifact: %s", latest)

	rep, err := Load(latest)
	if err != nil {
		return nil, "", err
	}
	return rep, latest, nil
}
