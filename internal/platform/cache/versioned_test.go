package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Versioned, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, "catalog", time.Minute), srv
}

func TestFetchJSONCachesLoaderResult(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	key, err := c.BuildKey(ctx, "products", "active")
	require.NoError(t, err)
	require.Equal(t, "catalog:products:active:v1", key)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return []string{"arroz", "azucar"}, nil
	}

	var first []string
	require.NoError(t, c.FetchJSON(ctx, key, &first, loader))
	var second []string
	require.NoError(t, c.FetchJSON(ctx, key, &second, loader))

	require.Equal(t, 1, calls)
	require.Equal(t, first, second)
}

func TestBumpChangesKey(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	before, err := c.BuildKey(ctx, "products")
	require.NoError(t, err)
	require.NoError(t, c.Bump(ctx))
	after, err := c.BuildKey(ctx, "products")
	require.NoError(t, err)

	require.NotEqual(t, before, after)
	require.Equal(t, "catalog:products:v2", after)
}

func TestFetchJSONPropagatesLoaderError(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var out []string
	err := c.FetchJSON(ctx, "catalog:x:v1", &out, func(context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, srv.Exists("catalog:x:v1"))
}

func TestNilClientFallsThroughToLoader(t *testing.T) {
	c := NewVersioned(nil, "catalog", time.Minute)
	ctx := context.Background()

	key, err := c.BuildKey(ctx, "products")
	require.NoError(t, err)
	require.Equal(t, "catalog:products", key)

	var out int
	require.NoError(t, c.FetchJSON(ctx, key, &out, func(context.Context) (any, error) { return 7, nil }))
	require.Equal(t, 7, out)
	require.NoError(t, c.Bump(ctx))
}

func TestNewPingsServer(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	client, err := New(context.Background(), Options{Addr: addr})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	srv.Close()
	_, err = New(context.Background(), Options{Addr: addr})
	require.Error(t, err)
}
