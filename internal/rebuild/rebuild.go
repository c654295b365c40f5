// Package rebuild drives the configure/compile steps after patches land.
// It never interprets compiler output; it only reports which stage broke
// and carries the tail of the diagnostics for the logs.
package rebuild

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"remedy/internal/config"
	"remedy/internal/logging"
)

// Stage names for Result.Stage.
const (
	StagePrepare   = "prepare"
	StageConfigure = "configure"
	StageCompile   = "compile"
)

// maxDiagnosticsBytes caps captured subprocess output. Compiler error
// cascades easily run to megabytes; only the leading portion is useful.
const maxDiagnosticsBytes int64 = 256 * 1024

// Result describes one rebuild attempt.
type Result struct {
	Success     bool          `json:"success"`
	Stage       string        `json:"stage,omitempty"` // stage that failed, empty on success
	TimedOut    bool          `json:"timed_out,omitempty"`
	Diagnostics string        `json:"diagnostics,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

// Builder runs the configure and compile steps for a project root.
type Builder struct {
	root string
	cfg  config.RebuildConfig
}

// NewBuilder creates a builder for the given project root.
func NewBuilder(root string, cfg config.RebuildConfig) *Builder {
	return &Builder{root: root, cfg: cfg}
}

func (b *Builder) buildDir() string {
	if filepath.IsAbs(b.cfg.BuildDir) {
		return b.cfg.BuildDir
	}
	return filepath.Join(b.root, b.cfg.BuildDir)
}

func (b *Builder) configureCmd() []string {
	if len(b.cfg.ConfigureCmd) > 0 {
		return b.cfg.ConfigureCmd
	}
	return []string{"cmake", "-G", "Ninja", b.root, "-DCMAKE_BUILD_TYPE=Release"}
}

func (b *Builder) compileCmd() []string {
	if len(b.cfg.BuildCmd) > 0 {
		return b.cfg.BuildCmd
	}
	return []string{"ninja"}
}

// Run clears the stale CMake state and executes configure then compile.
// A missing build directory is a prepare-stage failure, not a fatal error:
// the remediation loop reports it and moves on.
func (b *Builder) Run(ctx context.Context) Result {
	timer := logging.StartTimer(logging.CategoryBuild, "Rebuild")
	defer timer.Stop()

	start := time.Now()
	dir := b.buildDir()

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		logging.BuildWarn("Build directory missing: %s", dir)
		return Result{
			Stage:       StagePrepare,
			Diagnostics: fmt.Sprintf("build directory does not exist: %s", dir),
			Duration:    time.Since(start),
		}
	}

	// Stale cache entries keep pointing at the old library paths the
	// build-file fixes just rewrote.
	b.clearCMakeState(dir)

	logging.Build("Configuring in %s", dir)
	if res, ok := b.step(ctx, dir, b.configureCmd(),
		time.Duration(b.cfg.ConfigureTimeoutSec)*time.Second, StageConfigure, start); !ok {
		return res
	}

	logging.Build("Compiling in %s", dir)
	if res, ok := b.step(ctx, dir, b.compileCmd(),
		time.Duration(b.cfg.BuildTimeoutSec)*time.Second, StageCompile, start); !ok {
		return res
	}

	logging.Build("Rebuild succeeded in %s", time.Since(start).Round(time.Millisecond))
	return Result{Success: true, Duration: time.Since(start)}
}

func (b *Builder) clearCMakeState(dir string) {
	cache := filepath.Join(dir, "CMakeCache.txt")
	if err := os.Remove(cache); err == nil {
		logging.BuildDebug("Removed %s", cache)
	}
	files := filepath.Join(dir, "CMakeFiles")
	if err := os.RemoveAll(files); err != nil {
		logging.BuildWarn("Could not clear %s: %v", files, err)
	}
}

// step runs one subprocess stage under its timeout. The bool return is
// false when the overall rebuild should stop with the given result.
func (b *Builder) step(ctx context.Context, dir string, argv []string, timeout time.Duration, stage string, start time.Time) (Result, bool) {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(stepCtx, argv[0], argv[1:]...)
	cmd.Dir = dir

	var buf bytes.Buffer
	limited := &limitedWriter{w: &buf, max: maxDiagnosticsBytes}
	cmd.Stdout = limited
	cmd.Stderr = limited

	logging.BuildDebug("Running %v (timeout %s)", argv, timeout)
	err := cmd.Run()
	if err == nil {
		return Result{}, true
	}

	res := Result{
		Stage:       stage,
		Diagnostics: buf.String(),
		Duration:    time.Since(start),
	}
	if limited.truncated {
		res.Diagnostics += fmt.Sprintf("\n[output truncated, %d bytes discarded]", limited.discarded)
	}

	if stepCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		logging.BuildError("%s killed after %s timeout", stage, timeout)
		return res, false
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		logging.BuildError("%s exited %d", stage, exitErr.ExitCode())
	} else {
		// Spawn failure (binary not found, permission). Still a rebuild
		// failure from the loop's point of view.
		res.Diagnostics = err.Error()
		logging.BuildError("%s failed to start: %v", stage, err)
	}
	return res, false
}

// limitedWriter caps captured output at max bytes and counts the overflow.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		if _, err := lw.w.Write(p[:remaining]); err != nil {
			return 0, err
		}
		lw.written = lw.max
		return n, nil
	}

	m, err := lw.w.Write(p)
	lw.written += int64(m)
	return n, err
}
