package credstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "credentials.json")

	store, err := NewFileStore(fileName)
	require.NoError(t, err)

	ctx := context.Background()

	_, found, err := store.Get(ctx, "auth_token")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "auth_token", "token-1"))
	require.NoError(t, store.Set(ctx, "user_data", `{"id":1}`))

	value, found, err := store.Get(ctx, "auth_token")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "token-1", value)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "credentials.json")
	ctx := context.Background()

	store, err := NewFileStore(fileName)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "auth_token", "token-1"))
	require.NoError(t, store.Close())

	reopened, err := NewFileStore(fileName)
	require.NoError(t, err)

	value, found, err := reopened.Get(ctx, "auth_token")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "token-1", value)
}

func TestFileStoreRemove(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "credentials.json")
	ctx := context.Background()

	store, err := NewFileStore(fileName)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "auth_token", "token-1"))
	require.NoError(t, store.Remove(ctx, "auth_token"))

	_, found, err := store.Get(ctx, "auth_token")
	require.NoError(t, err)
	assert.False(t, found)

	// removing an absent key is not an error
	require.NoError(t, store.Remove(ctx, "auth_token"))
}

func TestFileStoreFilePermissions(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "credentials.json")

	store, err := NewFileStore(fileName)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), "auth_token", "token-1"))

	info, err := os.Stat(fileName)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
