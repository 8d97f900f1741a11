package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStorePutOpen(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	path := "receipts/abc/receipt.pdf"

	require.NoError(t, store.Put(ctx, path, strings.NewReader("receipt bytes")))

	rc, err := store.Open(ctx, path)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "receipt bytes", string(data))
}

func TestDiskStoreOpenMissing(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "receipts/nope.pdf")
	assert.Error(t, err)
}

func TestDiskStoreRemoveAll(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "receipts/req1/a.pdf", strings.NewReader("a")))
	require.NoError(t, store.Put(ctx, "receipts/req1/b.pdf", strings.NewReader("b")))
	require.NoError(t, store.Put(ctx, "receipts/req2/c.pdf", strings.NewReader("c")))

	require.NoError(t, store.RemoveAll(ctx, "receipts/req1"))

	_, err = store.Open(ctx, "receipts/req1/a.pdf")
	assert.Error(t, err)
	_, err = store.Open(ctx, "receipts/req2/c.pdf")
	assert.NoError(t, err)
}

func TestDiskStoreRejectsTraversal(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	err = store.Put(ctx, "../outside.txt", strings.NewReader("nope"))
	assert.Error(t, err)

	_, err = store.Open(ctx, "receipts/../../etc/passwd")
	assert.Error(t, err)
}
