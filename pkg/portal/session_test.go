package portal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempSessionPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "session.json")
}

func TestSessionStore_SaveLoadRoundTrip(t *testing.T) {
	path := tempSessionPath(t)

	store := NewSessionStore(path)
	require.NoError(t, store.Save(Session{User: "reviewer", Token: "tok-123"}))

	reloaded := NewSessionStore(path)
	require.NoError(t, reloaded.Load())
	require.NotNil(t, reloaded.Current())
	assert.Equal(t, "reviewer", reloaded.Current().User)
	assert.Equal(t, "tok-123", reloaded.Current().Token)
}

func TestSessionStore_LoadMissingFileIsEmpty(t *testing.T) {
	store := NewSessionStore(tempSessionPath(t))

	require.NoError(t, store.Load())
	assert.Nil(t, store.Current())
}

func TestSessionStore_ClearRemovesFile(t *testing.T) {
	path := tempSessionPath(t)
	store := NewSessionStore(path)
	require.NoError(t, store.Save(Session{User: "reviewer", Token: "tok"}))

	require.NoError(t, store.Clear())

	assert.Nil(t, store.Current())
	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSessionStore_InvalidateFiresHookOnce(t *testing.T) {
	store := NewSessionStore(tempSessionPath(t))
	require.NoError(t, store.Save(Session{User: "reviewer", Token: "tok"}))

	fired := 0
	store.OnInvalidated = func() { fired++ }

	store.Invalidate()
	store.Invalidate()

	assert.Equal(t, 1, fired)
	assert.Nil(t, store.Current())
}

func TestSessionStore_SaveReArmsInvalidation(t *testing.T) {
	store := NewSessionStore(tempSessionPath(t))
	require.NoError(t, store.Save(Session{User: "reviewer", Token: "tok"}))

	fired := 0
	store.OnInvalidated = func() { fired++ }

	store.Invalidate()
	require.NoError(t, store.Save(Session{User: "reviewer", Token: "tok2"}))
	store.Invalidate()

	assert.Equal(t, 2, fired)
}
