package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remedy/internal/patch"
)

func TestClassifyFirstMatchWins(t *testing.T) {
	rules := DefaultTable()

	// "Build and Plugin Loading" carries two fragments; the earlier rule
	// in the table decides.
	got := Classify(rules, "Build and Plugin Loading")
	want := []patch.FixType{
		patch.FixBuildLibraryPath,
		patch.FixBuildRPath,
		patch.FixSymbolBridging,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fix candidates mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyKnownCategories(t *testing.T) {
	rules := DefaultTable()

	cases := []struct {
		name  string
		first patch.FixType
		count int
	}{
		{"Pre-flight Checks", patch.FixPreflightEnv, 1},
		{"Build Verification", patch.FixBuildLibraryPath, 3},
		{"Plugin Loading Test", patch.FixSymbolBridging, 2},
		{"Basic Functionality Test", patch.FixSettingsAccessCrash, 5},
		{"Crash Detection", patch.FixExceptionWrapping, 3},
	}
	for _, tc := range cases {
		got := Classify(rules, tc.name)
		require.Len(t, got, tc.count, "test %q", tc.name)
		assert.Equal(t, tc.first, got[0], "test %q", tc.name)
	}
}

func TestClassifyUnmatchedReturnsNil(t *testing.T) {
	assert.Nil(t, Classify(DefaultTable(), "Performance Regression"))
}

func TestClassifyIsCaseSensitive(t *testing.T) {
	assert.Nil(t, Classify(DefaultTable(), "build verification"))
}

func TestLoadRulesOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `rules:
  - match: "Stabilization Quality"
    fixes:
      - exception-wrapping
      - mutex-usage
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	got := Classify(rules, "Stabilization Quality Sweep")
	want := []patch.FixType{patch.FixExceptionWrapping, patch.FixMutexUsage}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("override rules mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRulesMissingFileIsNil(t *testing.T) {
	rules, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Nil(t, rules)
}

func TestLoadRulesRejectsUnknownFix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `rules:
  - match: "Build"
    fixes: [rewrite-everything]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown fix")
}

func TestLoadRulesRejectsEmptyMatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `rules:
  - match: ""
    fixes: [symbol-bridging]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := LoadRules(path)
	require.Error(t, err)
}
