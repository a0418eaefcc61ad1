package routes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routes.json")
	svc, err := NewService(path)
	require.NoError(t, err)
	return svc, path
}

func TestMissingFileYieldsEmptyIndex(t *testing.T) {
	svc, _ := newTestService(t)
	assert.Empty(t, svc.Slugs())

	_, ok := svc.Resolve("anything")
	assert.False(t, ok)
}

func TestAddResolvePersist(t *testing.T) {
	svc, path := newTestService(t)

	require.NoError(t, svc.Add("hello-world", "2026-01-01-hello-world"))
	folder, ok := svc.Resolve("hello-world")
	require.True(t, ok)
	assert.Equal(t, "2026-01-01-hello-world", folder)
	assert.True(t, svc.Has("hello-world"))

	// A fresh service sees the persisted entry.
	reloaded, err := NewService(path)
	require.NoError(t, err)
	folder, ok = reloaded.Resolve("hello-world")
	require.True(t, ok)
	assert.Equal(t, "2026-01-01-hello-world", folder)
}

func TestRemove(t *testing.T) {
	svc, path := newTestService(t)
	require.NoError(t, svc.Add("a", "f-a"))
	require.NoError(t, svc.Add("b", "f-b"))

	require.NoError(t, svc.Remove("a"))
	assert.False(t, svc.Has("a"))
	assert.True(t, svc.Has("b"))

	// Removing an absent slug is a no-op, not an error.
	require.NoError(t, svc.Remove("never-existed"))

	reloaded, err := NewService(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, reloaded.Slugs())
}

func TestSlugsSorted(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Add("zebra", "f1"))
	require.NoError(t, svc.Add("apple", "f2"))
	require.NoError(t, svc.Add("mango", "f3"))

	assert.Equal(t, []string{"apple", "mango", "zebra"}, svc.Slugs())
}

func TestUpdateCriticalSection(t *testing.T) {
	svc, path := newTestService(t)

	err := svc.Update(func(entries map[string]string) bool {
		entries["one"] = "f-one"
		entries["two"] = "f-two"
		return true
	})
	require.NoError(t, err)
	assert.True(t, svc.Has("one"))
	assert.True(t, svc.Has("two"))

	// An aborted update persists nothing.
	err = svc.Update(func(entries map[string]string) bool {
		return false
	})
	require.NoError(t, err)

	reloaded, err := NewService(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, reloaded.Slugs())
}

func TestCorruptIndexFileFailsLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewService(path)
	require.Error(t, err)
}
