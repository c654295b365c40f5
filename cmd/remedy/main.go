package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"remedy/internal/config"
	"remedy/internal/ledger"
	"remedy/internal/logging"
	"remedy/internal/patch"
	"remedy/internal/remediate"
	"remedy/internal/report"
	"remedy/internal/summary"
	"remedy/internal/watch"
)

var (
	// Global flags
	verbose bool
	rootDir string
	timeout time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command. Running remedy with no subcommand
// performs a single remediation pass, which is what the CI hook wants.
var rootCmd = &cobra.Command{
	Use:   "remedy",
	Short: "remedy - automated remediation for the stabilizer plugin test loop",
	Long: `remedy reads the newest integration-test results artifact, classifies
the failing tests, applies the matching source and build-file fixes, and
rebuilds the plugin.

Every fix is idempotent, backed by a per-fix file backup, and capped by an
attempt ledger so a fix that never sticks cannot thrash forever.

Run without arguments to perform a single remediation pass.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(rootDir); err != nil {
			logger.Warn("File logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runOnce,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Perform a single remediation pass",
	Long: `Loads the newest results_*.json artifact, applies fixes for the failing
tests, rebuilds if anything changed, and writes .remedy/last_run.json.

The project root defaults to the current directory; pass --root when
invoking remedy from outside the plugin tree.

Exits non-zero when no results artifact exists: remediation without a
failure report would be guesswork.`,
	RunE: runOnce,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the results directory and remediate on new artifacts",
	Long: `Monitors the results directory and runs a remediation pass each time the
integration harness drops a new results_*.json. Ctrl-C stops the watcher.`,
	RunE: runWatch,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last run, attempt counts and recent history",
	RunE:  runStatus,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the attempt ledger so capped fixes become eligible again",
	RunE:  runReset,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "r", ".", "Plugin project root")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Overall operation timeout")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.Load(rootDir)
	if err != nil {
		return err
	}

	loop, err := remediate.NewLoop(rootDir, cfg)
	if err != nil {
		return err
	}
	defer loop.Close()

	s, err := loop.Run(ctx)
	if err != nil {
		if errors.Is(err, report.ErrNoResults) {
			return fmt.Errorf("no results artifact in %s: run the integration tests first", cfg.Results.Dir)
		}
		return err
	}

	printSummary(s)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	// Watch mode runs until interrupted; --timeout bounds each
	// remediation pass, not the watch itself.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(rootDir)
	if err != nil {
		return err
	}

	loop, err := remediate.NewLoop(rootDir, cfg)
	if err != nil {
		return err
	}
	defer loop.Close()

	resultsDir := cfg.Results.Dir
	if !filepath.IsAbs(resultsDir) {
		resultsDir = filepath.Join(rootDir, resultsDir)
	}

	w, err := watch.New(resultsDir, func(ctx context.Context, path string) {
		logger.Info("New results artifact", zap.String("path", path))
		passCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		s, err := loop.Run(passCtx)
		if err != nil {
			logger.Error("Remediation pass failed", zap.Error(err))
			return
		}
		printSummary(s)
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	logger.Info("Watching for results artifacts", zap.String("dir", resultsDir))
	<-ctx.Done()
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return err
	}

	s, err := summary.Load(rootDir)
	switch {
	case os.IsNotExist(err):
		fmt.Println("No runs recorded yet.")
	case err != nil:
		return err
	default:
		fmt.Printf("Last run:   %s (%s)\n", s.RunID, s.Timestamp)
		fmt.Printf("Success:    %v\n", s.Success)
		fmt.Printf("Attempted:  %d fixes\n", len(s.FixesAttempted))
		for _, line := range s.FixesApplied {
			fmt.Printf("  applied: %s\n", line)
		}
		if s.Rebuild != nil {
			if s.Rebuild.Success {
				fmt.Println("Rebuild:    ok")
			} else {
				fmt.Printf("Rebuild:    failed at %s stage (timed out: %v)\n",
					s.Rebuild.Stage, s.Rebuild.TimedOut)
			}
		}
	}

	ledgerPath := cfg.Ledger.Path
	if !filepath.IsAbs(ledgerPath) {
		ledgerPath = filepath.Join(rootDir, ledgerPath)
	}
	store := ledger.Load(ledgerPath, cfg.Ledger.MaxAttempts)
	counts := store.Counts()
	if len(counts) > 0 {
		fmt.Printf("\nAttempt ledger (ceiling %d):\n", store.MaxAttempts())
		for fix, n := range counts {
			marker := ""
			if !store.CanApply(fix) {
				marker = "  [capped]"
			}
			fmt.Printf("  %-24s %d%s\n", fix, n, marker)
		}
	}

	if hist, err := summary.OpenHistory(rootDir); err == nil {
		defer hist.Close()
		runs, err := hist.Recent(5)
		if err == nil && len(runs) > 0 {
			fmt.Println("\nRecent runs:")
			for _, r := range runs {
				fmt.Printf("  %s  success=%-5v applied=%d\n",
					r.Timestamp, r.Success, len(r.FixesApplied))
			}
		}
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return err
	}

	ledgerPath := cfg.Ledger.Path
	if !filepath.IsAbs(ledgerPath) {
		ledgerPath = filepath.Join(rootDir, ledgerPath)
	}
	store := ledger.Load(ledgerPath, cfg.Ledger.MaxAttempts)
	if err := store.Reset(); err != nil {
		return err
	}

	logger.Info("Attempt ledger cleared",
		zap.String("path", ledgerPath),
		zap.Int("ceiling", cfg.Ledger.MaxAttempts))
	fmt.Printf("Attempt ledger cleared; all %d fix types are eligible again.\n", len(patch.Catalog())+1)
	return nil
}

func printSummary(s *summary.RunSummary) {
	if s.Success {
		fmt.Printf("Applied %d fixes (%d attempted):\n", len(s.FixesApplied), len(s.FixesAttempted))
		for _, line := range s.FixesApplied {
			fmt.Printf("  - %s\n", line)
		}
	} else {
		fmt.Printf("No fixes applied (%d attempted).\n", len(s.FixesAttempted))
	}
	if s.Rebuild != nil {
		if s.Rebuild.Success {
			fmt.Println("Rebuild succeeded.")
		} else {
			fmt.Printf("Rebuild failed at %s stage.\n", s.Rebuild.Stage)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			if logger != nil {
				logger.Info("Received shutdown signal")
			}
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
