package lfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readObject drains a stored object through the streaming interface.
func readObject(t *testing.T, store *LocalStorage, repo, oid string) (string, string) {
	t.Helper()
	body, contentType, err := store.Get(context.Background(), repo, oid)
	require.NoError(t, err)
	defer func() { require.NoError(t, body.Close()) }()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	return string(data), contentType
}

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStorage(t.TempDir())

	meta := store.GetMetaResult(ctx, "testing", "test2.txt")
	assert.False(t, meta.Exists)

	err := store.Post(ctx, "testing", "test2.txt", strings.NewReader("hello world"), "text/plain")
	require.NoError(t, err)

	meta = store.GetMetaResult(ctx, "testing", "test2.txt")
	require.True(t, meta.Exists)
	assert.Equal(t, uint64(11), meta.Size)

	data, contentType := readObject(t, store, "testing", "test2.txt")
	assert.Equal(t, "hello world", data)
	assert.Equal(t, "text/plain", contentType)
}

func TestLocalStorageStreamsLargeObjects(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStorage(t.TempDir())

	// Well past any internal buffer size.
	payload := bytes.Repeat([]byte("0123456789abcdef"), 1<<16)
	require.NoError(t, store.Post(ctx, "testing", "big.bin", bytes.NewReader(payload), "application/octet-stream"))

	meta := store.GetMetaResult(ctx, "testing", "big.bin")
	require.True(t, meta.Exists)
	assert.Equal(t, uint64(len(payload)), meta.Size)

	data, contentType := readObject(t, store, "testing", "big.bin")
	assert.Equal(t, string(payload), data)
	assert.Equal(t, "application/octet-stream", contentType)
}

func TestLocalStoragePostReportsReadFailure(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStorage(t.TempDir())

	broken := io.MultiReader(strings.NewReader("partial"), failingReader{})
	err := store.Post(ctx, "testing", "broken.bin", broken, "text/plain")
	require.Error(t, err)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("source went away")
}

func TestLocalStorageOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStorage(t.TempDir())

	require.NoError(t, store.Post(ctx, "testing", "a.bin", strings.NewReader("first"), "text/plain"))
	require.NoError(t, store.Post(ctx, "testing", "a.bin", strings.NewReader("second one"), "application/json"))

	data, contentType := readObject(t, store, "testing", "a.bin")
	assert.Equal(t, "second one", data)
	assert.Equal(t, "application/json", contentType)
}

func TestLocalStorageMissingMimeFallsBack(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStorage(root)

	dir := filepath.Join(root, "testing", "objects")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "raw.bin"), []byte("x"), 0o644))

	data, contentType := readObject(t, store, "testing", "raw.bin")
	assert.Equal(t, "x", data)
	assert.Equal(t, "application/octet-stream", contentType)
}

func TestLocalStorageGetMissing(t *testing.T) {
	store := NewLocalStorage(t.TempDir())

	_, _, err := store.Get(context.Background(), "testing", "nope.bin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLocalStorageRejectsTraversalOids(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewLocalStorage(root)

	secret := filepath.Join(root, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("top"), 0o644))

	for _, oid := range []string{
		"../secret.txt",
		"..%2fsecret.txt",
		"noextension",
		"UPPER.TXT",
		"a/b.txt",
	} {
		meta := store.GetMetaResult(ctx, "testing", oid)
		assert.False(t, meta.Exists, "oid %q must not resolve", oid)

		_, _, err := store.Get(ctx, "testing", oid)
		assert.True(t, errors.Is(err, os.ErrNotExist), "oid %q must not be readable", oid)

		err = store.Post(ctx, "testing", oid, strings.NewReader("x"), "text/plain")
		assert.Error(t, err, "oid %q must not be writable", oid)
	}
}

func TestLocalStorageReposAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStorage(t.TempDir())

	require.NoError(t, store.Post(ctx, "alpha", "x.bin", strings.NewReader("a"), "text/plain"))

	meta := store.GetMetaResult(ctx, "beta", "x.bin")
	assert.False(t, meta.Exists)
}
