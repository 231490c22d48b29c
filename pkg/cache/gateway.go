// Package cache provides keyed, collection-scoped storage for screenlet results.
// Every backend keeps two tiers under the same logical key: a typed tier holding
// the value as written (usually the raw payload bytes) and a secondary tier
// holding a decoded image.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// ErrNotFound is returned by lookups that miss.
var ErrNotFound = errors.New("cache entry not found")

// ErrUnsupportedValue is returned by SetClean when a backend cannot store the value's type.
var ErrUnsupportedValue = errors.New("unsupported cache value type")

// Gateway is the access contract interactors use. Implementations must allow
// concurrent reads and writes to disjoint keys without one blocking the other.
type Gateway interface {
	// GetTyped returns the value stored in the typed tier.
	GetTyped(ctx context.Context, collection, key string) (any, error)
	// GetSecondary returns the decoded image stored under the same key.
	GetSecondary(ctx context.Context, collection, key string) (image.Image, error)
	// SetClean stores value and its attributes as a clean (synchronised) entry.
	// An image.Image goes to the secondary tier, anything else to the typed tier.
	// Writing the same key, value and attributes twice leaves the same state as once.
	// Nil attributes leave any attributes already stored for the key in place.
	SetClean(ctx context.Context, collection, key string, value any, attributes map[string]any) error
	io.Closer
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode cached image: %w", err)
	}
	return img, nil
}

// stringAttributes flattens attributes for backends that only store strings.
func stringAttributes(attributes map[string]any) map[string]string {
	out := make(map[string]string, len(attributes))
	for k, v := range attributes {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
