package redis

import (
	"context"
	"testing"

	"clinic-roomsync/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPing(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(&config.RedisConfig{Addr: mr.Addr(), PoolSize: 2})
	defer Close(client)

	require.NoError(t, Ping(context.Background(), client, 1))
	assert.Equal(t, 2, client.Options().PoolSize)
}

func TestPing_RetriesThenFails(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client := NewRedisClient(&config.RedisConfig{Addr: addr})
	defer Close(client)

	err := Ping(context.Background(), client, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestPing_StopsOnContextCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client := NewRedisClient(&config.RedisConfig{Addr: addr})
	defer Close(client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, Ping(ctx, client, 5))
}
