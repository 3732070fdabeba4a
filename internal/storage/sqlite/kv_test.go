package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestKV(t *testing.T) (*KV, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "cart.db")
	kv, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv, path
}

func TestKV_RoundTrip(t *testing.T) {
	kv, _ := openTestKV(t)
	ctx := context.Background()

	_, found, err := kv.Get(ctx, "cart_u1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, kv.Set(ctx, "cart_u1", `[{"id":"p1"}]`))
	require.NoError(t, kv.Set(ctx, "cart_u1", `[{"id":"p2"}]`))

	v, found, err := kv.Get(ctx, "cart_u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[{"id":"p2"}]`, v)

	require.NoError(t, kv.Remove(ctx, "cart_u1"))
	_, found, err = kv.Get(ctx, "cart_u1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKV_PersistsAcrossReopen(t *testing.T) {
	kv, path := openTestKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "cart_guest", `[]`))
	require.NoError(t, kv.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	v, found, err := reopened.Get(ctx, "cart_guest")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[]`, v)
	assert.NoError(t, reopened.Ping(ctx))
}
