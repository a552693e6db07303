package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FSStore {
	t.Helper()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestFSStore_WriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := "documents/t/2026/08/doc.pdf"
	data := []byte("%PDF-1.4 body")

	require.NoError(t, store.Write(ctx, key, data))

	got, err := store.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	size, err := store.Size(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
}

func TestFSStore_MissingKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Read(ctx, "documents/none.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Size(ctx, "documents/none.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := store.Exists(ctx, "documents/none.pdf")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFSStore_DeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := "documents/doomed.pdf"

	require.NoError(t, store.Write(ctx, key, []byte("x")))
	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key), "deleting a missing key is not an error")

	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFSStore_OverwriteReplacesContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := "documents/v.pdf"

	require.NoError(t, store.Write(ctx, key, []byte("first")))
	require.NoError(t, store.Write(ctx, key, []byte("second")))

	got, err := store.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestFSStore_RejectsTraversal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{
		"../outside",
		"a/../../outside",
		"/etc/passwd",
		".",
		"",
	} {
		err := store.Write(ctx, key, []byte("x"))
		assert.Error(t, err, "key %q must be rejected", key)
	}
}

func TestNewKey_Layout(t *testing.T) {
	tenantID := uuid.New()
	key := NewKey(tenantID, ".PDF")

	now := time.Now().UTC()
	prefix := fmt.Sprintf("documents/%s/%04d/%02d/", tenantID, now.Year(), int(now.Month()))
	assert.True(t, len(key) > len(prefix) && key[:len(prefix)] == prefix, "key %q", key)
	assert.Equal(t, ".pdf", filepath.Ext(key), "extension is lowercased")

	assert.NotEqual(t, key, NewKey(tenantID, "pdf"), "keys are unique per call")
}

func TestHashBytes(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashBytes(nil))
	assert.Equal(t, HashBytes([]byte("a")), HashBytes([]byte("a")))
	assert.NotEqual(t, HashBytes([]byte("a")), HashBytes([]byte("b")))
}

func TestWriteTemp(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteTemp(dir, "input-*.pdf", []byte("payload"))
	require.NoError(t, err)
	defer os.Remove(path)

	assert.Equal(t, dir, filepath.Dir(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}
