package cache

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path"

	"github.com/rs/zerolog"
)

// GCSGatewayConfig holds configuration specific to the GCS gateway.
type GCSGatewayConfig struct {
	BucketName   string
	ObjectPrefix string
}

// GCSGateway stores each cache slot as objects in a bucket:
// <prefix>/<collection>/<key> for the typed tier and the same name with a
// ".png" suffix for the secondary tier. Attributes travel as object metadata.
type GCSGateway struct {
	client GCSClient
	config GCSGatewayConfig
	logger zerolog.Logger
}

// NewGCSGateway creates a gateway backed by Google Cloud Storage.
func NewGCSGateway(gcsClient GCSClient, config GCSGatewayConfig, logger zerolog.Logger) (*GCSGateway, error) {
	if gcsClient == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if config.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	return &GCSGateway{
		client: gcsClient,
		config: config,
		logger: logger.With().Str("component", "GCSGateway").Logger(),
	}, nil
}

func (g *GCSGateway) objectName(collection, key string) string {
	return path.Join(g.config.ObjectPrefix, collection, key)
}

func (g *GCSGateway) read(ctx context.Context, name string) ([]byte, error) {
	r, err := g.client.Bucket(g.config.BucketName).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("object '%s': %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("gcs read for %s: %w", name, err)
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs read for %s: %w", name, err)
	}
	return data, nil
}

// GetTyped returns the bytes of the typed-tier object.
func (g *GCSGateway) GetTyped(ctx context.Context, collection, key string) (any, error) {
	data, err := g.read(ctx, g.objectName(collection, key))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// GetSecondary decodes the ".png" object.
func (g *GCSGateway) GetSecondary(ctx context.Context, collection, key string) (image.Image, error) {
	data, err := g.read(ctx, g.objectName(collection, key)+".png")
	if err != nil {
		return nil, err
	}
	return decodeImage(data)
}

// SetClean uploads the value, overwriting any previous object of the same name.
func (g *GCSGateway) SetClean(ctx context.Context, collection, key string, value any, attributes map[string]any) error {
	name := g.objectName(collection, key)
	contentType := "application/octet-stream"
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case image.Image:
		encoded, err := encodePNG(v)
		if err != nil {
			return err
		}
		name += ".png"
		contentType = "image/png"
		data = encoded
	default:
		return fmt.Errorf("gcs gateway cannot store %T: %w", value, ErrUnsupportedValue)
	}

	w := g.client.Bucket(g.config.BucketName).Object(name).NewWriter(ctx, contentType, stringAttributes(attributes))
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		g.logger.Error().Err(err).Str("object", name).Msg("Failed to write object.")
		return fmt.Errorf("gcs write for %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		g.logger.Error().Err(err).Str("object", name).Msg("Failed to finalize object.")
		return fmt.Errorf("gcs close for %s: %w", name, err)
	}
	g.logger.Debug().Str("object", name).Int("bytes", len(data)).Msg("Stored object in GCS.")
	return nil
}

// Close is a no-op as the storage client's lifecycle is managed externally.
func (g *GCSGateway) Close() error {
	return nil
}
