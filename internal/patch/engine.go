package patch

import (
	"fmt"
	"os"

	"remedy/internal/backup"
	"remedy/internal/ledger"
	"remedy/internal/logging"
)

// Engine applies transformations to files under the ledger and backup
// disciplines. It is the only place that writes patched text to disk.
type Engine struct {
	ledger  *ledger.Store
	backups *backup.Manager
}

// NewEngine creates an engine over the given ledger and backup manager.
func NewEngine(l *ledger.Store, b *backup.Manager) *Engine {
	return &Engine{ledger: l, backups: b}
}

// Apply runs one transformation against one file. The sequence is fixed:
// ledger gate, idempotency marker, defect signature, backup, rewrite,
// persist, record. It returns true only when the file was actually
// mutated. The idempotency marker - not the ledger - is what prevents
// double-patching; the ledger only breaks retry loops.
func (e *Engine) Apply(t Transformation, path string) (bool, error) {
	timer := logging.StartTimer(logging.CategoryPatch, fmt.Sprintf("Apply %s", t.Fix))
	defer timer.Stop()

	if !e.ledger.CanApply(string(t.Fix)) {
		logging.PatchDebug("Skipping %s: attempt ceiling reached (%d)",
			t.Fix, e.ledger.Count(string(t.Fix)))
		return false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read target %s: %w", path, err)
	}
	text := string(data)

	if t.Fixed != nil && t.Fixed(text) {
		logging.PatchDebug("Skipping %s: already fixed in %s", t.Fix, path)
		return false, nil
	}

	if t.Signature != nil && !t.Signature(text) {
		logging.PatchDebug("Skipping %s: defect signature absent in %s", t.Fix, path)
		return false, nil
	}

	if _, err := e.backups.Ensure(path, string(t.Fix)); err != nil {
		return false, fmt.Errorf("backup before %s: %w", t.Fix, err)
	}

	newText, applied := t.Rewrite(text)
	if !applied {
		// Anchor not found: this fix does not apply to the file's
		// current shape. Not an error, not worth a log line.
		return false, nil
	}

	if err := os.WriteFile(path, []byte(newText), 0644); err != nil {
		return false, fmt.Errorf("write patched %s: %w", path, err)
	}

	count, err := e.ledger.RecordApplied(string(t.Fix))
	if err != nil {
		// The patch landed; a failed flush only risks an extra retry
		// on a later run. Surface it but keep applied=true.
		logging.PatchWarn("Applied %s but ledger flush failed: %v", t.Fix, err)
		return true, err
	}

	logging.Patch("Applied %s to %s (attempt %d)", t.Fix, path, count)
	return true, nil
}
