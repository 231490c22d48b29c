//go:build integration

package cache_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/illmade-knight/go-screenlets/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisGateway_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	g, err := cache.NewRedisGateway(ctx, &cache.RedisConfig{Addr: addr, CacheTTL: time.Minute}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	const collection = "it-UserPortraitScreenlet"

	t.Run("Set and Get", func(t *testing.T) {
		attrs := map[string]any{"userId": int64(42)}
		require.NoError(t, g.SetClean(ctx, collection, "userId-42", []byte("B"), attrs))
		require.NoError(t, g.SetClean(ctx, collection, "userId-42", []byte("B"), attrs))

		v, err := g.GetTyped(ctx, collection, "userId-42")
		require.NoError(t, err)
		assert.Equal(t, []byte("B"), v)

		stored, err := g.Attributes(ctx, collection, "userId-42")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"userId": "42"}, stored)
	})

	t.Run("Secondary tier", func(t *testing.T) {
		img := testImage()
		require.NoError(t, g.SetClean(ctx, collection, "portraitId-7-male", img, nil))

		got, err := g.GetSecondary(ctx, collection, "portraitId-7-male")
		require.NoError(t, err)
		assert.Equal(t, img.Bounds(), got.Bounds())
	})

	t.Run("Get Miss", func(t *testing.T) {
		_, err := g.GetTyped(ctx, collection, "non-existent-key")
		assert.True(t, errors.Is(err, cache.ErrNotFound))
	})
}
