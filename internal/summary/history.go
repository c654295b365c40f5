package summary

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"remedy/internal/logging"
)

// History is the append-only run archive. last_run.json only keeps the most
// recent run; the sqlite table keeps all of them so an operator can see
// whether the same fix keeps landing run after run.
type History struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// OpenHistory creates or opens the run history for a project root.
func OpenHistory(root string) (*History, error) {
	dbPath := filepath.Join(root, ".remedy", "history.db")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	h := &History{db: db, dbPath: dbPath}
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return h, nil
}

// Close closes the database connection.
func (h *History) Close() error {
	return h.db.Close()
}

// Path returns the database file path.
func (h *History) Path() string {
	return h.dbPath
}

func (h *History) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		success INTEGER NOT NULL,
		fixes_attempted_json TEXT,
		fixes_applied_json TEXT,
		rebuild_success INTEGER,
		rebuild_stage TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Record appends one run. History is best-effort from the loop's point of
// view: callers log the error and keep going.
func (h *History) Record(s *RunSummary) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	attempted, err := json.Marshal(s.FixesAttempted)
	if err != nil {
		return fmt.Errorf("encode attempted fixes: %w", err)
	}
	applied, err := json.Marshal(s.FixesApplied)
	if err != nil {
		return fmt.Errorf("encode applied fixes: %w", err)
	}

	var rebuildSuccess sql.NullBool
	var rebuildStage sql.NullString
	if s.Rebuild != nil {
		rebuildSuccess = sql.NullBool{Bool: s.Rebuild.Success, Valid: true}
		rebuildStage = sql.NullString{String: s.Rebuild.Stage, Valid: s.Rebuild.Stage != ""}
	}

	_, err = h.db.Exec(`
		INSERT INTO runs (run_id, timestamp, success, fixes_attempted_json, fixes_applied_json, rebuild_success, rebuild_stage)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, s.Timestamp, s.Success, string(attempted), string(applied), rebuildSuccess, rebuildStage)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	logging.History("Recorded run %s (success=%v)", s.RunID, s.Success)
	return nil
}

// Recent returns up to n runs, newest first.
func (h *History) Recent(n int) ([]RunSummary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rows, err := h.db.Query(`
		SELECT run_id, timestamp, success, fixes_attempted_json, fixes_applied_json
		FROM runs ORDER BY timestamp DESC, run_id LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var attempted, applied string
		if err := rows.Scan(&s.RunID, &s.Timestamp, &s.Success, &attempted, &applied); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(attempted), &s.FixesAttempted); err != nil {
			return nil, fmt.Errorf("decode attempted fixes for %s: %w", s.RunID, err)
		}
		if err := json.Unmarshal([]byte(applied), &s.FixesApplied); err != nil {
			return nil, fmt.Errorf("decode applied fixes for %s: %w", s.RunID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
