// Package remediate runs the report-classify-patch-rebuild cycle.
package remediate

import (
	"context"
	"fmt"
	"path/filepath"

	"remedy/internal/backup"
	"remedy/internal/classify"
	"remedy/internal/config"
	"remedy/internal/ledger"
	"remedy/internal/logging"
	"remedy/internal/patch"
	"remedy/internal/rebuild"
	"remedy/internal/report"
	"remedy/internal/summary"
)

// Rebuilder abstracts the build pipeline so the loop can be exercised
// without cmake and ninja on the host.
type Rebuilder interface {
	Run(ctx context.Context) rebuild.Result
}

// PreflightFunc handles environment-level failures the text catalog cannot
// express. It reports whether it changed anything.
type PreflightFunc func(ctx context.Context) (bool, error)

// Loop wires one remediation cycle together. Zero-value optional fields get
// working defaults from NewLoop.
type Loop struct {
	Root      string
	Cfg       *config.Config
	Rules     []classify.Rule
	Engine    *patch.Engine
	Catalog   map[patch.FixType]patch.Transformation
	Builder   Rebuilder
	Preflight PreflightFunc
	History   *summary.History
}

// NewLoop assembles a loop for a project root: ledger and rule overrides
// from .remedy/, the default catalog, the real builder. The history archive
// is opened lazily on the first successful run, best-effort; a run still
// works without it.
func NewLoop(root string, cfg *config.Config) (*Loop, error) {
	rules, err := classify.LoadRules(filepath.Join(root, ".remedy", "rules.yaml"))
	if err != nil {
		return nil, fmt.Errorf("load classification rules: %w", err)
	}
	if rules == nil {
		rules = classify.DefaultTable()
	}

	store := ledger.Load(resolve(root, cfg.Ledger.Path), cfg.Ledger.MaxAttempts)

	return &Loop{
		Root:    root,
		Cfg:     cfg,
		Rules:   rules,
		Engine:  patch.NewEngine(store, backup.NewManager()),
		Catalog: patch.Catalog(),
		Builder: rebuild.NewBuilder(root, cfg.Rebuild),
	}, nil
}

// Close releases the loop's resources.
func (l *Loop) Close() {
	if l.History != nil {
		l.History.Close()
	}
}

// Run executes one remediation cycle against the newest results artifact.
// A missing artifact is the only fatal condition; everything downstream
// degrades to a recorded, unsuccessful run.
func (l *Loop) Run(ctx context.Context) (*summary.RunSummary, error) {
	rep, path, err := report.LoadLatest(resolve(l.Root, l.Cfg.Results.Dir))
	if err != nil {
		return nil, err
	}
	logging.Report("Remediating from %s (%d/%d tests failed)",
		path, rep.Summary.Failed, rep.Summary.Total)

	// The history store is created here, not in NewLoop: a run that stops
	// on a missing artifact must leave the tree untouched, state dir
	// included.
	if l.History == nil {
		hist, err := summary.OpenHistory(l.Root)
		if err != nil {
			logging.HistoryWarn("Run history unavailable: %v", err)
		} else {
			l.History = hist
		}
	}

	s := summary.New()
	attempted := make(map[patch.FixType]bool)

	for _, test := range rep.Tests {
		if !test.Failed() {
			continue
		}
		for _, fix := range classify.Classify(l.Rules, test.Name) {
			if attempted[fix] {
				continue
			}
			attempted[fix] = true
			s.Attempted(fix)

			if fix == patch.FixPreflightEnv {
				l.runPreflight(ctx, s)
				continue
			}
			l.applyFix(fix, s)
		}
	}

	if len(s.FixesApplied) > 0 {
		res := l.Builder.Run(ctx)
		s.Rebuild = &res
	} else {
		logging.Report("No fixes applied; skipping rebuild")
	}

	if err := s.Write(l.Root); err != nil {
		return nil, err
	}
	if l.History != nil {
		if err := l.History.Record(s); err != nil {
			logging.HistoryWarn("Could not archive run %s: %v", s.RunID, err)
		}
	}
	return s, nil
}

func (l *Loop) applyFix(fix patch.FixType, s *summary.RunSummary) {
	tr, ok := l.Catalog[fix]
	if !ok {
		logging.PatchWarn("No transformation for fix %s", fix)
		return
	}

	target := l.targetPath(tr.Target)
	if target == "" {
		logging.PatchWarn("Fix %s has no configured target file", fix)
		return
	}

	applied, err := l.Engine.Apply(tr, target)
	if err != nil {
		// One broken target must not stop the other fixes.
		logging.PatchError("Fix %s against %s: %v", fix, target, err)
	}
	if applied {
		s.Applied(tr.Description)
	}
}

func (l *Loop) runPreflight(ctx context.Context, s *summary.RunSummary) {
	if l.Preflight == nil {
		logging.Report("Pre-flight failure reported; no handler configured")
		return
	}
	changed, err := l.Preflight(ctx)
	if err != nil {
		logging.PatchError("Pre-flight remediation: %v", err)
		return
	}
	if changed {
		s.Applied("Remediated pre-flight environment")
	}
}

func (l *Loop) targetPath(kind patch.TargetKind) string {
	var rel string
	switch kind {
	case patch.TargetFilterSource:
		rel = l.Cfg.Targets.FilterSource
	case patch.TargetBuildFile:
		rel = l.Cfg.Targets.BuildFile
	case patch.TargetSupportFile:
		rel = l.Cfg.Targets.SupportFile
	default:
		return ""
	}
	if rel == "" {
		return ""
	}
	return resolve(l.Root, rel)
}

func resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
