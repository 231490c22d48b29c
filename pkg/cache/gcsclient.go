package cache

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
)

// ====================================================================================
// Interfaces over the Google Cloud Storage client, so the GCSGateway can be unit
// tested without a real bucket.
// ====================================================================================

// GCSClient abstracts the top-level *storage.Client.
type GCSClient interface {
	Bucket(name string) GCSBucketHandle
}

// GCSBucketHandle abstracts a *storage.BucketHandle.
type GCSBucketHandle interface {
	Object(name string) GCSObjectHandle
}

// GCSObjectHandle abstracts a *storage.ObjectHandle. NewReader must return an
// error matching ErrNotFound when the object does not exist.
type GCSObjectHandle interface {
	NewWriter(ctx context.Context, contentType string, metadata map[string]string) io.WriteCloser
	NewReader(ctx context.Context) (io.ReadCloser, error)
}

// --- Adapters to wrap the concrete Google Cloud Storage client ---

type gcsClientAdapter struct {
	client *storage.Client
}

// NewGCSClientAdapter makes a *storage.Client conform to GCSClient.
func NewGCSClientAdapter(client *storage.Client) GCSClient {
	if client == nil {
		return nil
	}
	return &gcsClientAdapter{client: client}
}

func (a *gcsClientAdapter) Bucket(name string) GCSBucketHandle {
	return &gcsBucketHandleAdapter{handle: a.client.Bucket(name)}
}

type gcsBucketHandleAdapter struct {
	handle *storage.BucketHandle
}

func (a *gcsBucketHandleAdapter) Object(name string) GCSObjectHandle {
	return &gcsObjectHandleAdapter{handle: a.handle.Object(name)}
}

type gcsObjectHandleAdapter struct {
	handle *storage.ObjectHandle
}

func (a *gcsObjectHandleAdapter) NewWriter(ctx context.Context, contentType string, metadata map[string]string) io.WriteCloser {
	w := a.handle.NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	return w
}

func (a *gcsObjectHandleAdapter) NewReader(ctx context.Context) (io.ReadCloser, error) {
	r, err := a.handle.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, errors.Join(ErrNotFound, err)
	}
	return r, err
}
