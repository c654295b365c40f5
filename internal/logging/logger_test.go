package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetState() {
	CloseAll()
	logsDir = ""
	workspace = ""
	config = loggingConfig{}
	logLevel = LevelInfo
}

func writeTestConfig(t *testing.T, root, content string) {
	t.Helper()
	configDir := filepath.Join(root, ".remedy")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

// TestDebugModeWritesCategoryFiles verifies that categories create their own
// date-stamped log files when debug_mode is enabled.
func TestDebugModeWritesCategoryFiles(t *testing.T) {
	tempDir := t.TempDir()
	writeTestConfig(t, tempDir, `
logging:
  debug_mode: true
  level: debug
`)

	resetState()
	defer resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if !IsDebugMode() {
		t.Fatal("Expected debug mode to be enabled")
	}

	Patch("Applied %s", "mutex-usage")
	Build("Rebuild started")
	LedgerWarn("Ledger corrupt")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	dir := filepath.Join(tempDir, ".remedy", "logs")
	for _, category := range []Category{CategoryPatch, CategoryBuild, CategoryLedger} {
		path := filepath.Join(dir, date+"_"+string(category)+".log")
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Expected log file for %s: %v", category, err)
		}
		if len(data) == 0 {
			t.Errorf("Log file for %s is empty", category)
		}
	}
}

// TestProductionModeIsSilent verifies no logs directory appears without
// debug_mode.
func TestProductionModeIsSilent(t *testing.T) {
	tempDir := t.TempDir()

	resetState()
	defer resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if IsDebugMode() {
		t.Fatal("Expected production mode without a config file")
	}

	Report("This must go nowhere")
	Classify("Neither must this")

	if _, err := os.Stat(filepath.Join(tempDir, ".remedy", "logs")); !os.IsNotExist(err) {
		t.Error("Logs directory must not exist in production mode")
	}
}

// TestCategoryFilter verifies per-category enable/disable.
func TestCategoryFilter(t *testing.T) {
	tempDir := t.TempDir()
	writeTestConfig(t, tempDir, `
logging:
  debug_mode: true
  level: debug
  categories:
    patch: true
    build: false
`)

	resetState()
	defer resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if !IsCategoryEnabled(CategoryPatch) {
		t.Error("patch category should be enabled")
	}
	if IsCategoryEnabled(CategoryBuild) {
		t.Error("build category should be disabled")
	}
	if !IsCategoryEnabled(CategoryLedger) {
		t.Error("unlisted categories default to enabled")
	}
}

// TestLevelFiltersDebug verifies the level gate.
func TestLevelFiltersDebug(t *testing.T) {
	tempDir := t.TempDir()
	writeTestConfig(t, tempDir, `
logging:
  debug_mode: true
  level: warn
`)

	resetState()
	defer resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	l := Get(CategoryPatch)
	l.Debug("invisible debug")
	l.Info("invisible info")
	l.Warn("visible warning")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(tempDir, ".remedy", "logs", date+"_patch.log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected patch log file: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "invisible") {
		t.Errorf("Level gate leaked suppressed lines: %s", content)
	}
	if !strings.Contains(content, "visible warning") {
		t.Errorf("Warning line missing: %s", content)
	}
}

// TestTimerLogsDuration verifies timers land in the category file.
func TestTimerLogsDuration(t *testing.T) {
	tempDir := t.TempDir()
	writeTestConfig(t, tempDir, `
logging:
  debug_mode: true
  level: debug
`)

	resetState()
	defer resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	timer := StartTimer(CategoryBuild, "Rebuild")
	time.Sleep(10 * time.Millisecond)
	d := timer.Stop()
	if d < 10*time.Millisecond {
		t.Errorf("Timer measured %v, expected at least 10ms", d)
	}
	CloseAll()

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(tempDir, ".remedy", "logs", date+"_build.log"))
	if err != nil {
		t.Fatalf("Expected build log file: %v", err)
	}
	if !strings.Contains(string(data), "Rebuild") {
		t.Errorf("Timer entry missing: %s", data)
	}
}
