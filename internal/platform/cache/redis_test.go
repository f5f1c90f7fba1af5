package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(client, "settings", time.Minute)
	ctx := context.Background()

	_, err := store.Get(ctx, "system_name")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, store.Set(ctx, "system_name", "Betonara ERP"))
	assert.True(t, mr.Exists("settings:system_name"))
	v, err := store.Get(ctx, "system_name")
	require.NoError(t, err)
	assert.Equal(t, "Betonara ERP", v)

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, "system_name")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, store.Set(ctx, "k", "v"))
	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestNilStoreIsAlwaysMiss(t *testing.T) {
	var store *Store
	_, err := store.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrMiss)
	assert.NoError(t, store.Set(context.Background(), "x", "y"))
}

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	client, err := New(context.Background(), addr)
	require.NoError(t, err)
	_ = client.Close()

	mr.Close()
	_, err = New(context.Background(), addr)
	assert.Error(t, err)
}
