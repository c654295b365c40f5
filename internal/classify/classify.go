// Package classify maps failing test names to ordered fix candidates.
// Matching is deliberately dumb: case-sensitive substring lookup against an
// ordered rule table, first match wins. Test names are the only signal the
// results artifact carries, so anything smarter would be guessing.
package classify

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"remedy/internal/logging"
	"remedy/internal/patch"
)

// Rule binds a test-name fragment to the fixes tried when it matches.
// Fix order within a rule is significant: it is the order of application.
type Rule struct {
	Match string          `yaml:"match"`
	Fixes []patch.FixType `yaml:"fixes"`
}

// DefaultTable returns the built-in rule table. Earlier rules shadow later
// ones, so the more specific fragments come first.
func DefaultTable() []Rule {
	return []Rule{
		{
			Match: "Pre-flight",
			Fixes: []patch.FixType{patch.FixPreflightEnv},
		},
		{
			Match: "Build",
			Fixes: []patch.FixType{
				patch.FixBuildLibraryPath,
				patch.FixBuildRPath,
				patch.FixSymbolBridging,
			},
		},
		{
			Match: "Plugin Loading",
			Fixes: []patch.FixType{
				patch.FixSymbolBridging,
				patch.FixBuildRPath,
			},
		},
		{
			Match: "Basic Functionality",
			Fixes: []patch.FixType{
				patch.FixSettingsAccessCrash,
				patch.FixNullPointerGuard,
				patch.FixExceptionWrapping,
				patch.FixMutexDeclaration,
				patch.FixMutexUsage,
			},
		},
		{
			Match: "Crash Detection",
			Fixes: []patch.FixType{
				patch.FixExceptionWrapping,
				patch.FixNullPointerGuard,
				patch.FixMutexUsage,
			},
		},
	}
}

// Classify returns the fix candidates for a failing test, or nil when no
// rule matches. An unmatched test is logged and left alone.
func Classify(rules []Rule, testName string) []patch.FixType {
	for _, rule := range rules {
		if strings.Contains(testName, rule.Match) {
			logging.ClassifyDebug("Matched %q via rule %q", testName, rule.Match)
			return rule.Fixes
		}
	}
	logging.Classify("No rule matches failing test %q", testName)
	return nil
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a rule table override from a YAML file. A missing file is
// not an error; the caller falls back to DefaultTable.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s defines no rules", path)
	}

	for i, rule := range rf.Rules {
		if rule.Match == "" {
			return nil, fmt.Errorf("rule %d has an empty match fragment", i)
		}
		if len(rule.Fixes) == 0 {
			return nil, fmt.Errorf("rule %d (%q) names no fixes", i, rule.Match)
		}
		for _, fix := range rule.Fixes {
			if !patch.Known(fix) {
				return nil, fmt.Errorf("rule %d (%q) names unknown fix %q", i, rule.Match, fix)
			}
		}
	}

	logging.Classify("Loaded %d classification rules from %s", len(rf.Rules), path)
	return rf.Rules, nil
}
