package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCreatesSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "CMakeLists.txt")
	require.NoError(t, os.WriteFile(path, []byte("original\n"), 0644))

	m := NewManager()
	created, err := m.Ensure(path, "build-rpath")
	require.NoError(t, err)
	assert.True(t, created)

	data, err := os.ReadFile(PathFor(path, "build-rpath"))
	require.NoError(t, err)
	assert.Equal(t, "original\n", string(data))
}

func TestEnsureNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "source.cpp")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0644))

	m := NewManager()
	created, err := m.Ensure(path, "mutex-usage")
	require.NoError(t, err)
	require.True(t, created)

	// The file mutates; the snapshot must not follow it.
	require.NoError(t, os.WriteFile(path, []byte("second\n"), 0644))
	created, err = m.Ensure(path, "mutex-usage")
	require.NoError(t, err)
	assert.False(t, created)

	data, err := os.ReadFile(PathFor(path, "mutex-usage"))
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(data))
}

func TestEnsurePerFamilySnapshots(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "source.cpp")
	require.NoError(t, os.WriteFile(path, []byte("v1\n"), 0644))

	m := NewManager()
	_, err := m.Ensure(path, "null-pointer-guard")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("v2\n"), 0644))
	_, err = m.Ensure(path, "exception-wrapping")
	require.NoError(t, err)

	first, err := os.ReadFile(PathFor(path, "null-pointer-guard"))
	require.NoError(t, err)
	second, err := os.ReadFile(PathFor(path, "exception-wrapping"))
	require.NoError(t, err)
	assert.Equal(t, "v1\n", string(first))
	assert.Equal(t, "v2\n", string(second))
}

func TestEnsureMissingOriginalIsError(t *testing.T) {
	m := NewManager()
	_, err := m.Ensure(filepath.Join(t.TempDir(), "absent.cpp"), "mutex-usage")
	require.Error(t, err)
}

func TestPathFor(t *testing.T) {
	assert.Equal(t, "/x/a.cpp.mutex-usage.bak", PathFor("/x/a.cpp", "mutex-usage"))
}
