package cache_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-screenlets/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 1, color.NRGBA{B: 255, A: 255})
	return img
}

func TestInMemoryGateway_Tiers(t *testing.T) {
	ctx := context.Background()
	const collection = "UserPortraitScreenlet"

	t.Run("Miss on both tiers", func(t *testing.T) {
		g := cache.NewInMemoryGateway()

		_, err := g.GetTyped(ctx, collection, "userId-1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, cache.ErrNotFound))

		_, err = g.GetSecondary(ctx, collection, "userId-1")
		assert.True(t, errors.Is(err, cache.ErrNotFound))
	})

	t.Run("Bytes go to the typed tier", func(t *testing.T) {
		g := cache.NewInMemoryGateway()

		err := g.SetClean(ctx, collection, "userId-42", []byte("png-bytes"), map[string]any{"userId": int64(42)})
		require.NoError(t, err)

		v, err := g.GetTyped(ctx, collection, "userId-42")
		require.NoError(t, err)
		assert.Equal(t, []byte("png-bytes"), v)

		_, err = g.GetSecondary(ctx, collection, "userId-42")
		assert.True(t, errors.Is(err, cache.ErrNotFound), "Image tier should stay empty")
	})

	t.Run("Images go to the secondary tier", func(t *testing.T) {
		g := cache.NewInMemoryGateway()
		img := testImage()

		require.NoError(t, g.SetClean(ctx, collection, "portraitId-7-male", img, nil))

		got, err := g.GetSecondary(ctx, collection, "portraitId-7-male")
		require.NoError(t, err)
		assert.Equal(t, img.Bounds(), got.Bounds())

		_, err = g.GetTyped(ctx, collection, "portraitId-7-male")
		assert.True(t, errors.Is(err, cache.ErrNotFound))
	})

	t.Run("Collections scope keys", func(t *testing.T) {
		g := cache.NewInMemoryGateway()
		require.NoError(t, g.SetClean(ctx, "A", "k", []byte("a"), nil))

		_, err := g.GetTyped(ctx, "B", "k")
		assert.True(t, errors.Is(err, cache.ErrNotFound))
	})

	t.Run("Nil values are rejected", func(t *testing.T) {
		g := cache.NewInMemoryGateway()
		err := g.SetClean(ctx, collection, "k", nil, nil)
		assert.True(t, errors.Is(err, cache.ErrUnsupportedValue))
	})
}

func TestInMemoryGateway_SetCleanIsIdempotent(t *testing.T) {
	// Arrange
	ctx := context.Background()
	g := cache.NewInMemoryGateway()
	attrs := map[string]any{"userId": int64(42)}

	// Act
	require.NoError(t, g.SetClean(ctx, "c", "userId-42", []byte("B"), attrs))
	first, ok := g.Entry("c", "userId-42")
	require.True(t, ok)
	require.NoError(t, g.SetClean(ctx, "c", "userId-42", []byte("B"), attrs))
	second, ok := g.Entry("c", "userId-42")
	require.True(t, ok)

	// Assert
	assert.Equal(t, 1, g.Len(), "A repeated write must not add entries")
	assert.Equal(t, first.Value, second.Value)
	assert.Equal(t, first.Attributes, second.Attributes)
}

func TestInMemoryGateway_AttributesAreCopied(t *testing.T) {
	ctx := context.Background()
	g := cache.NewInMemoryGateway()
	attrs := map[string]any{"userId": int64(1)}

	require.NoError(t, g.SetClean(ctx, "c", "k", []byte("v"), attrs))
	attrs["userId"] = int64(2)

	e, ok := g.Entry("c", "k")
	require.True(t, ok)
	assert.Equal(t, int64(1), e.Attributes["userId"])
}

func TestInMemoryGateway_NilAttributesKeepStored(t *testing.T) {
	ctx := context.Background()
	g := cache.NewInMemoryGateway()
	require.NoError(t, g.SetClean(ctx, "c", "k", testImage(), map[string]any{"userId": int64(42)}))

	require.NoError(t, g.SetClean(ctx, "c", "k", []byte("v"), nil))
	e, ok := g.Entry("c", "k")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"userId": int64(42)}, e.Attributes)

	require.NoError(t, g.SetClean(ctx, "c", "k", []byte("v"), map[string]any{}))
	e, _ = g.Entry("c", "k")
	assert.Empty(t, e.Attributes, "an empty map replaces the stored attributes")
}

func TestInMemoryGateway_ConcurrentDisjointKeys(t *testing.T) {
	ctx := context.Background()
	g := cache.NewInMemoryGateway()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		key := fmt.Sprintf("userId-%d", i)
		go func() {
			defer wg.Done()
			_ = g.SetClean(ctx, "c", key, []byte(key), nil)
		}()
		go func() {
			defer wg.Done()
			_, _ = g.GetTyped(ctx, "c", key)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent access did not complete")
	}

	assert.Equal(t, 50, g.Len())
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("userId-%d", i)
		v, err := g.GetTyped(ctx, "c", key)
		require.NoError(t, err)
		assert.Equal(t, []byte(key), v)
	}
}
