package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBlobStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBlobStore("https://cdn.example/")

	url, err := store.Put(ctx, "a.json", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.json", url)

	content, err := store.Get(ctx, "a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(content))

	obj, err := store.Head(ctx, "a.json")
	require.NoError(t, err)
	assert.EqualValues(t, 7, obj.Size)

	_, err = store.Get(ctx, "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Head(ctx, "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBlobStorePutIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBlobStore("")

	_, created, err := store.PutIfAbsent(ctx, "k", []byte("first"))
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = store.PutIfAbsent(ctx, "k", []byte("second"))
	require.NoError(t, err)
	assert.False(t, created)

	content, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "first", string(content))
}

func TestMemoryBlobStoreListCursor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBlobStore("")
	for _, k := range []string{"p-3", "p-1", "q-1", "p-2"} {
		_, err := store.Put(ctx, k, []byte("x"))
		require.NoError(t, err)
	}

	page, err := store.List(ctx, "p-", "", 2)
	require.NoError(t, err)
	require.Len(t, page.Objects, 2)
	assert.Equal(t, "p-1", page.Objects[0].Key)
	assert.Equal(t, "p-2", page.Cursor)

	page, err = store.List(ctx, "p-", page.Cursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Objects, 1)
	assert.Equal(t, "p-3", page.Objects[0].Key)
	assert.Empty(t, page.Cursor)
}
