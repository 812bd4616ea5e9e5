package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	address, err := store.Put(ctx, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, HashBytes([]byte("payload")), address)

	data, err := store.Get(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	// Identical content stores once under one address.
	again, err := store.Put(ctx, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, address, again)
	assert.Equal(t, 1, store.Len())

	_, err = store.Get(ctx, "sha256:0000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCopiesData(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	payload := []byte("original")
	address, err := store.Put(ctx, payload)
	require.NoError(t, err)
	payload[0] = 'X'

	data, err := store.Get(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)
}
