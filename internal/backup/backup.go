// Package backup creates exactly-once pre-mutation snapshots of files.
// Each transformation family gets its own sibling backup so that several
// fixes against the same file cannot clobber each other's snapshot. An
// existing backup is never overwritten: the first pre-mutation state is the
// only one worth preserving.
package backup

import (
	"fmt"
	"os"

	"remedy/internal/logging"
)

// Manager snapshots files before their first mutation by a fix family.
type Manager struct{}

// NewManager creates a backup manager.
func NewManager() *Manager {
	return &Manager{}
}

// PathFor derives the backup path for a (file, family) pair.
func PathFor(path, family string) string {
	return path + "." + family + ".bak"
}

// Ensure snapshots path for the given fix family if no snapshot exists yet.
// Returns true when a new backup was written, false when one already
// existed (the file is already protected).
func (m *Manager) Ensure(path, family string) (bool, error) {
	backupPath := PathFor(path, family)

	if _, err := os.Stat(backupPath); err == nil {
		logging.BackupDebug("Backup already exists: %s", backupPath)
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat backup: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read original for backup: %w", err)
	}

	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return false, fmt.Errorf("write backup: %w", err)
	}

	logging.Backup("Created backup: %s", backupPath)
	return true, nil
}
