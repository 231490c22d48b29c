package cache

import (
	"context"
	"fmt"
	"image"
	"net/url"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore gateway.
type FirestoreConfig struct {
	ProjectID string
	// CollectionPrefix is prepended to every cache collection name.
	CollectionPrefix string
}

// FirestoreGateway keeps one document per cache key. The typed tier lives in
// the "data" field, the secondary tier in "image" (PNG) and the attributes in
// "attributes". Suitable for low volume deployments.
type FirestoreGateway struct {
	client *firestore.Client
	prefix string
	logger zerolog.Logger
}

// NewFirestoreGateway creates a gateway over an externally managed client.
func NewFirestoreGateway(cfg *FirestoreConfig, client *firestore.Client, logger zerolog.Logger) (*FirestoreGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}

	logger.Info().Str("project_id", cfg.ProjectID).Str("prefix", cfg.CollectionPrefix).Msg("FirestoreGateway initialized.")
	return &FirestoreGateway{
		client: client,
		prefix: cfg.CollectionPrefix,
		logger: logger.With().Str("component", "FirestoreGateway").Logger(),
	}, nil
}

// doc maps a cache key to a document. Keys may contain '/', which Firestore
// treats as a path separator, so they are escaped.
func (g *FirestoreGateway) doc(collection, key string) *firestore.DocumentRef {
	return g.client.Collection(g.prefix + collection).Doc(url.PathEscape(key))
}

func (g *FirestoreGateway) field(ctx context.Context, collection, key, field string) (any, error) {
	snap, err := g.doc(collection, key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("document '%s/%s': %w", collection, key, ErrNotFound)
		}
		g.logger.Error().Err(err).Str("key", key).Msg("Failed to get document from Firestore.")
		return nil, fmt.Errorf("firestore get for %s: %w", key, err)
	}
	v, err := snap.DataAt(field)
	if err != nil || v == nil {
		return nil, fmt.Errorf("field %s of '%s/%s': %w", field, collection, key, ErrNotFound)
	}
	return v, nil
}

// GetTyped returns the bytes stored in the document's data field.
func (g *FirestoreGateway) GetTyped(ctx context.Context, collection, key string) (any, error) {
	return g.field(ctx, collection, key, "data")
}

// GetSecondary decodes the document's image field.
func (g *FirestoreGateway) GetSecondary(ctx context.Context, collection, key string) (image.Image, error) {
	v, err := g.field(ctx, collection, key, "image")
	if err != nil {
		return nil, err
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("image field of '%s/%s' holds %T: %w", collection, key, v, ErrNotFound)
	}
	return decodeImage(data)
}

// SetClean merges the tier field and, when given, replaces the attributes of the document.
func (g *FirestoreGateway) SetClean(ctx context.Context, collection, key string, value any, attributes map[string]any) error {
	field := "data"
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
		field = "image"
		data = encoded
	default:
		return fmt.Errorf("firestore gateway cannot store %T: %w", value, ErrUnsupportedValue)
	}
	doc := map[string]any{
		field:     data,
		"updated": time.Now().UTC(),
	}
	paths := []firestore.FieldPath{{field}, {"updated"}}
	if attributes != nil {
		doc["attributes"] = attributes
		paths = append(paths, firestore.FieldPath{"attributes"})
	}
	_, err := g.doc(collection, key).Set(ctx, doc, firestore.Merge(paths...))
	if err != nil {
		g.logger.Error().Err(err).Str("key", key).Msg("Failed to write document to Firestore.")
		return fmt.Errorf("firestore set for %s: %w", key, err)
	}
	g.logger.Debug().Str("key", key).Msg("Successfully wrote data to Firestore.")
	return nil
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (g *FirestoreGateway) Close() error {
	return nil
}
