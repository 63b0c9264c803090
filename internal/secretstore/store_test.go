package secretstore

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidloop/deskagent/internal/errkind"
)

func TestStorePutGetDefault(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, store.Put(ctx, id, "", []byte("  test-key-123  \n")))
	got, err := store.GetDefault(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "test-key-123", string(got))
}

func TestStoreNamedVariablesIsolated(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, store.Put(ctx, id, "CLIENT_ID", []byte("id-123")))
	require.NoError(t, store.Put(ctx, id, "CLIENT_SECRET", []byte("secret-456")))

	got1, err := store.Get(ctx, id, "CLIENT_ID")
	require.NoError(t, err)
	assert.Equal(t, "id-123", string(got1))

	got2, err := store.Get(ctx, id, "CLIENT_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "secret-456", string(got2))
}

func TestStoreGetMissingIsNotFound(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()

	_, err := store.GetDefault(ctx, uuid.New())
	require.Error(t, err)
	assert.Equal(t, errkind.NotFound, errkind.Of(err))
}

func TestStoreDeleteAllIsolatesServers(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()
	id1, id2 := uuid.New(), uuid.New()

	require.NoError(t, store.Put(ctx, id1, "", []byte("k1")))
	require.NoError(t, store.Put(ctx, id2, "", []byte("k2")))

	require.NoError(t, store.DeleteAll(ctx, id1))

	_, err := store.GetDefault(ctx, id1)
	assert.Equal(t, errkind.NotFound, errkind.Of(err))

	got2, err := store.GetDefault(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, "k2", string(got2))
}

func TestStoreDeleteAllToleratesAbsence(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	require.NoError(t, store.DeleteAll(context.Background(), uuid.New()))
}

func TestStoreFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permissions not enforced on windows")
	}
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, store.Put(ctx, id, "", []byte("secret")))

	info, err := os.Stat(filepath.Join(dir, fileName(id, "")))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestReadKeyfileTrims(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.key")
	require.NoError(t, os.WriteFile(path, []byte("test-keyfile-content\n"), 0o600))

	content, err := ReadKeyfile(path)
	require.NoError(t, err)
	assert.Equal(t, "test-keyfile-content", string(content))
}

func TestReadKeyfileMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadKeyfile(filepath.Join(dir, "missing.key"))
	require.Error(t, err)
	assert.Equal(t, errkind.NotFound, errkind.Of(err))
}

func TestResolveKeyOrPathRaw(t *testing.T) {
	got, err := ResolveKeyOrPath("raw-secret-value")
	require.NoError(t, err)
	assert.Equal(t, "raw-secret-value", got)
}

func TestResolveKeyOrPathFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smithery.key")
	require.NoError(t, os.WriteFile(path, []byte("secret"), 0o600))

	got, err := ResolveKeyOrPath(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", got)
}
