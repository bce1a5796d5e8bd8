package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutOpenDelete(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	n, err := store.Put(ctx, "abc.pdf", strings.NewReader("hello"), "application/pdf")
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	rc, err := store.Open(ctx, "abc.pdf")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "hello", string(data))

	blobs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	assert.Equal(t, "abc.pdf", blobs[0].Key)

	require.NoError(t, store.Delete(ctx, "abc.pdf"))
	assert.True(t, errors.Is(store.Delete(ctx, "abc.pdf"), ErrBlobNotFound))

	_, err = store.Open(ctx, "abc.pdf")
	assert.True(t, errors.Is(err, ErrBlobNotFound))
}

// failingReader yields some bytes and then an error, like a dropped upload.
type failingReader struct {
	sent bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, "partial"), nil
	}
	return 0, errors.New("connection reset")
}

func TestLocalStore_PutFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "broken.txt", &failingReader{}, "text/plain")
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStore_PutCancelled(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Put(ctx, "cancelled.bin", bytes.NewReader(make([]byte, 1024)), "")
	assert.True(t, errors.Is(err, context.Canceled))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"", "..", "../etc/passwd", "a/b", `a\b`, ".hidden"} {
		assert.Error(t, ValidateKey(key), key)
	}
	assert.NoError(t, ValidateKey("0b7f5c1e-7a2b-4c4e-9f51-3f1b1b1b1b1b.pdf"))
}

func TestLocalStore_Ping(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.Ping(context.Background()))
}
