package cache

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TieredConfig holds configuration for a TieredGateway.
type TieredConfig struct {
	// PromoteTimeout bounds the background copy of a far hit into the near gateway.
	PromoteTimeout time.Duration
}

// TieredGateway reads through a fast near gateway (usually in memory) in
// front of a shared far gateway. Far hits are promoted into the near gateway
// in the background; writes go to both.
type TieredGateway struct {
	near           Gateway
	far            Gateway
	promoteTimeout time.Duration
	logger         zerolog.Logger
	wg             sync.WaitGroup
}

// NewTieredGateway creates a gateway layering near over far.
func NewTieredGateway(cfg *TieredConfig, near, far Gateway, logger zerolog.Logger) (*TieredGateway, error) {
	if near == nil || far == nil {
		return nil, errors.New("tiered gateway needs both a near and a far gateway")
	}
	timeout := 5 * time.Second
	if cfg != nil && cfg.PromoteTimeout > 0 {
		timeout = cfg.PromoteTimeout
	}
	return &TieredGateway{
		near:           near,
		far:            far,
		promoteTimeout: timeout,
		logger:         logger.With().Str("component", "TieredGateway").Logger(),
	}, nil
}

// GetTyped checks near, then far.
func (t *TieredGateway) GetTyped(ctx context.Context, collection, key string) (any, error) {
	if v, err := t.near.GetTyped(ctx, collection, key); err == nil {
		return v, nil
	}
	v, err := t.far.GetTyped(ctx, collection, key)
	if err != nil {
		return nil, err
	}
	t.promote(ctx, collection, key, v)
	return v, nil
}

// GetSecondary checks near, then far.
func (t *TieredGateway) GetSecondary(ctx context.Context, collection, key string) (image.Image, error) {
	if img, err := t.near.GetSecondary(ctx, collection, key); err == nil {
		return img, nil
	}
	img, err := t.far.GetSecondary(ctx, collection, key)
	if err != nil {
		return nil, err
	}
	t.promote(ctx, collection, key, img)
	return img, nil
}

// promote copies a far hit into near. Attributes are not known on the read
// path, so any the near entry already has are kept.
func (t *TieredGateway) promote(ctx context.Context, collection, key string, value any) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.promoteTimeout)
		defer cancel()
		if err := t.near.SetClean(writeCtx, collection, key, value, nil); err != nil {
			t.logger.Warn().Err(err).Str("key", key).Msg("Failed to promote entry to near cache.")
		}
	}()
}

// SetClean writes far first so near never holds an entry far rejected.
func (t *TieredGateway) SetClean(ctx context.Context, collection, key string, value any, attributes map[string]any) error {
	if err := t.far.SetClean(ctx, collection, key, value, attributes); err != nil {
		return err
	}
	if err := t.near.SetClean(ctx, collection, key, value, attributes); err != nil {
		t.logger.Warn().Err(err).Str("key", key).Msg("Failed to write near cache.")
	}
	return nil
}

// Close waits for pending promotions and closes both gateways.
func (t *TieredGateway) Close() error {
	t.wg.Wait()
	var errs []error
	if err := t.near.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing near cache: %w", err))
	}
	if err := t.far.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing far cache: %w", err))
	}
	return errors.Join(errs...)
}
