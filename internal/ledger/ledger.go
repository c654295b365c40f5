// Package ledger persists per-fix-type attempt counts across invocations.
// The ledger is the circuit breaker that stops a transformation from being
// retried forever: once a count reaches the ceiling the fix is never
// attempted again until an operator resets the store.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"remedy/internal/logging"
)

// DefaultMaxAttempts is the attempt ceiling used when none is configured.
const DefaultMaxAttempts = 3

// Store is a persistent fix-type -> attempt-count map.
// It is loaded once at startup and flushed on every increment so that an
// interrupted run can never lose a recorded attempt.
type Store struct {
	path   string
	max    int
	counts map[string]int
}

// Load reads the ledger at path. A missing, corrupt or unreadable file is
// treated as an empty ledger - remediation must never be blocked by ledger
// corruption - so Load cannot fail.
func Load(path string, maxAttempts int) *Store {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	s := &Store{
		path:   path,
		max:    maxAttempts,
		counts: make(map[string]int),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.LedgerWarn("Ledger unreadable, starting fresh: %v", err)
		}
		return s
	}

	if err := json.Unmarshal(data, &s.counts); err != nil {
		logging.LedgerWarn("Ledger corrupt, starting fresh: %v", err)
		s.counts = make(map[string]int)
	}

	logging.Ledger("Loaded ledger with %d entries from %s", len(s.counts), path)
	return s
}

// MaxAttempts returns the configured ceiling.
func (s *Store) MaxAttempts() int {
	return s.max
}

// Count returns the recorded attempt count for a fix type (0 if absent).
func (s *Store) Count(fix string) int {
	return s.counts[fix]
}

// CanApply reports whether the fix type is still below the ceiling.
func (s *Store) CanApply(fix string) bool {
	return s.counts[fix] < s.max
}

// RecordApplied increments the count for a fix type, flushes the whole
// ledger to disk and returns the new count. The flush happens before the
// caller continues so a crash cannot exceed the ceiling on a later run.
func (s *Store) RecordApplied(fix string) (int, error) {
	s.counts[fix]++
	count := s.counts[fix]
	if err := s.flush(); err != nil {
		return count, fmt.Errorf("flush ledger: %w", err)
	}
	logging.Ledger("Recorded attempt %d/%d for %s", count, s.max, fix)
	return count, nil
}

// Counts returns a copy of all recorded counts, for status display.
func (s *Store) Counts() map[string]int {
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Reset deletes the persisted ledger and clears in-memory counts.
func (s *Store) Reset() error {
	s.counts = make(map[string]int)
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove ledger: %w", err)
	}
	logging.Ledger("Ledger reset: %s", s.path)
	return nil
}

// flush writes the full map, not an incremental merge: the ledger is small
// and last-writer-wins is the documented cross-process behavior. The write
// goes through a temp file and rename so readers never see a torn file.
func (s *Store) flush() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.counts, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
