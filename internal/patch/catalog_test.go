package patch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const filterFixture = `#include <obs-module.h>

struct stabilizer_filter {
    obs_source_t *context;
    bool enabled;
    float smoothing;
    uint32_t width;
    uint32_t height;
};

static void stabilizer_filter_update(void *data, obs_data_t *settings)
{
    struct stabilizer_filter *self = (struct stabilizer_filter *)data;
    self->smoothing = (float)obs_data_get_double(settings, "smoothing");
    self->enabled = obs_data_get_bool(settings, "enabled");
}

static struct obs_source_frame *stabilizer_filter_video(void *data, struct obs_source_frame *frame)
{
    stabilize_in_place(data, frame);

    return frame;
}
`

const buildFixture = `cmake_minimum_required(VERSION 3.16)
project(obs-stabilizer)

set(OBS_LIBRARY "/usr/lib/libobs.so")

set_target_properties(obs-stabilizer PROPERTIES
    INSTALL_RPATH "@loader_path"
)
`

const supportFixture = `#include <stdio.h>
#include <stdarg.h>

void plugin_support_init(void)
{
    printf("plugin support ready\n");
}
`

func TestCatalogEntries(t *testing.T) {
	catalog := Catalog()

	want := []FixType{
		FixSettingsAccessCrash,
		FixNullPointerGuard,
		FixExceptionWrapping,
		FixMutexDeclaration,
		FixMutexUsage,
		FixBuildLibraryPath,
		FixBuildRPath,
		FixSymbolBridging,
	}
	require.Len(t, catalog, len(want))
	for _, fix := range want {
		entry, ok := catalog[fix]
		require.True(t, ok, "missing catalog entry for %s", fix)
		assert.Equal(t, fix, entry.Fix)
		assert.NotNil(t, entry.Fixed, "%s has no idempotency marker", fix)
		assert.NotNil(t, entry.Rewrite, "%s has no rewrite", fix)
	}

	// Pre-flight failures have no text transformation; they must not
	// reach the rewrite path.
	_, ok := catalog[FixPreflightEnv]
	assert.False(t, ok)
}

// Every transformation's rewrite must plant its own idempotency marker, so
// a second pass over the fixed file is a no-op.
func TestTransformationsAreIdempotent(t *testing.T) {
	fixtures := map[TargetKind]string{
		TargetFilterSource: filterFixture,
		TargetBuildFile:    buildFixture,
		TargetSupportFile:  supportFixture,
	}

	for fix, entry := range Catalog() {
		text, ok := fixtures[entry.Target]
		require.True(t, ok, "%s targets unknown file kind", fix)
		require.False(t, entry.Fixed(text), "%s marker present in clean fixture", fix)
		if entry.Signature != nil && !entry.Signature(text) {
			// Some fixes only fire once a prerequisite fix landed;
			// covered by TestSourceFixSequence.
			continue
		}

		patched, applied := entry.Rewrite(text)
		require.True(t, applied, "%s did not apply to clean fixture", fix)
		assert.True(t, entry.Fixed(patched), "%s left no marker behind", fix)
	}
}

// The crash-hardening fixes compose: applied in order against one source
// file, each later fix anchors on what the earlier ones inserted.
func TestSourceFixSequence(t *testing.T) {
	catalog := Catalog()
	order := []FixType{
		FixSettingsAccessCrash,
		FixNullPointerGuard,
		FixExceptionWrapping,
		FixMutexDeclaration,
		FixMutexUsage,
	}

	text := filterFixture
	for _, fix := range order {
		entry := catalog[fix]
		require.False(t, entry.Fixed(text), "%s marker present before apply", fix)
		if entry.Signature != nil {
			require.True(t, entry.Signature(text), "%s signature absent", fix)
		}
		patched, applied := entry.Rewrite(text)
		require.True(t, applied, "%s did not apply", fix)
		require.True(t, entry.Fixed(patched), "%s marker missing after apply", fix)
		text = patched
	}

	assert.Contains(t, text, "WORKAROUND: Don't access settings")
	assert.Contains(t, text, "if (!filter || !frame || !filter->enabled)")
	assert.Contains(t, text, "try {")
	assert.Contains(t, text, "catch (const cv::Exception &e)")
	assert.Contains(t, text, "std::mutex mutex;")
	assert.Contains(t, text, "std::lock_guard<std::mutex> lock(filter->mutex);")

	// The lock must land inside the try block, after the null guard.
	tryAt := strings.Index(text, "try {")
	lockAt := strings.Index(text, "std::lock_guard")
	catchAt := strings.Index(text, "} catch")
	require.True(t, tryAt >= 0 && lockAt >= 0 && catchAt >= 0)
	assert.Less(t, tryAt, lockAt)
	assert.Less(t, lockAt, catchAt)
}

func TestNullPointerGuardPatchesOnlyMissingCallback(t *testing.T) {
	entry := Catalog()[FixNullPointerGuard]

	// Update callback already guarded: only the frame callback changes.
	preGuarded := strings.Replace(filterFixture,
		"    struct stabilizer_filter *self = (struct stabilizer_filter *)data;",
		`    struct stabilizer_filter *filter = (struct stabilizer_filter *)data;
    if (!filter) {
        return;
    }`, 1)
	require.False(t, entry.Fixed(preGuarded))

	patched, applied := entry.Rewrite(preGuarded)
	require.True(t, applied)
	assert.Equal(t, 1, strings.Count(patched, "if (!filter || !frame || !filter->enabled)"))
	assert.True(t, entry.Fixed(patched))
}

func TestBuildLibraryPathRewrite(t *testing.T) {
	entry := Catalog()[FixBuildLibraryPath]

	patched, applied := entry.Rewrite(buildFixture)
	require.True(t, applied)
	assert.NotContains(t, patched, "/usr/lib/libobs.so")
	assert.Contains(t, patched,
		`set(OBS_LIBRARY "/Applications/OBS.app/Contents/Frameworks/libobs.framework/Versions/A/libobs")`)
}

func TestBuildRPathAppendsSearchPaths(t *testing.T) {
	entry := Catalog()[FixBuildRPath]

	patched, applied := entry.Rewrite(buildFixture)
	require.True(t, applied)
	assert.Contains(t, patched, `INSTALL_RPATH "@loader_path;/opt/homebrew/lib;/usr/local/lib"`)
}

func TestSymbolBridgingAppends(t *testing.T) {
	entry := Catalog()[FixSymbolBridging]

	patched, applied := entry.Rewrite(supportFixture)
	require.True(t, applied)
	assert.True(t, strings.HasPrefix(patched, supportFixture), "bridging must append, not rewrite")
	assert.Contains(t, patched, "obs_register_source_s(info, sizeof(*info))")
	assert.Contains(t, patched, "blogva(log_level, format, args)")
	assert.True(t, entry.Fixed(patched))
}

func TestRewriteNoOpWhenAnchorMissing(t *testing.T) {
	entry := Catalog()[FixSettingsAccessCrash]

	const unrelated = "int main(void) { return 0; }\n"
	patched, applied := entry.Rewrite(unrelated)
	assert.False(t, applied)
	assert.Equal(t, unrelated, patched)
}
