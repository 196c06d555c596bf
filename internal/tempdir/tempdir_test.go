package tempdir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager("tmp_create_", 10*time.Millisecond, time.Hour)
	m.Root = t.TempDir()
	return m
}

func TestCreateUniqueDirs(t *testing.T) {
	m := newTestManager(t)
	a, err := m.Create()
	require.NoError(t, err)
	b, err := m.Create()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.DirExists(t, a)
	assert.True(t, strings.HasPrefix(filepath.Base(a), m.Prefix))
}

func TestCleanupRemovesDir(t *testing.T) {
	m := newTestManager(t)
	dir, err := m.Create()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644))

	m.Cleanup(dir)
	assert.NoDirExists(t, dir)
}

func TestCleanupIgnoresForeignPaths(t *testing.T) {
	m := newTestManager(t)
	foreign := filepath.Join(m.Root, "precious")
	require.NoError(t, os.MkdirAll(foreign, 0o755))

	m.Cleanup(foreign)
	assert.DirExists(t, foreign, "cleanup must not touch non-prefixed dirs")
}

func TestSweepAgeFilter(t *testing.T) {
	m := newTestManager(t)

	old := filepath.Join(m.Root, m.Prefix+"old")
	require.NoError(t, os.MkdirAll(old, 0o755))
	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, stale, stale))

	fresh, err := m.Create()
	require.NoError(t, err)

	other := filepath.Join(m.Root, "unrelated")
	require.NoError(t, os.MkdirAll(other, 0o755))
	require.NoError(t, os.Chtimes(other, stale, stale))

	m.Sweep()

	assert.NoDirExists(t, old, "stale prefixed dir must be swept")
	assert.DirExists(t, fresh, "recent dir must survive")
	assert.DirExists(t, other, "non-prefixed dir must survive")
}
