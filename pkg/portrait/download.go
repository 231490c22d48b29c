package portrait

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/illmade-knight/go-screenlets/pkg/cache"
	"github.com/illmade-knight/go-screenlets/pkg/connector"
	"github.com/illmade-knight/go-screenlets/pkg/interactor"
	"github.com/illmade-knight/go-screenlets/pkg/session"
	"github.com/rs/zerolog"
)

// Collection is the cache collection portraits are stored in.
const Collection = "UserPortraitScreenlet"

// Portrait is the result of a download.
type Portrait struct {
	Image image.Image
	// UserID is the owner of the portrait, zero when only image attributes were supplied.
	UserID int64
}

// DownloadOperation is the interactor operation for one portrait download.
// It implements interactor.CacheableOperation.
type DownloadOperation struct {
	mode    Mode
	builder *Builder
	gateway cache.Gateway
	logger  zerolog.Logger

	plan Plan
}

// NewDownloadOperation creates the operation. gateway may be nil, in which
// case every cache read misses and nothing is written.
func NewDownloadOperation(mode Mode, builder *Builder, gateway cache.Gateway, logger zerolog.Logger) *DownloadOperation {
	return &DownloadOperation{
		mode:    mode,
		builder: builder,
		gateway: gateway,
		logger:  logger.With().Str("component", "PortraitDownload").Str("cache_key", mode.CacheKey()).Logger(),
	}
}

// NewDownloadInteractor wires a DownloadOperation into an Interactor.
func NewDownloadInteractor(mode Mode, builder *Builder, gateway cache.Gateway, logger zerolog.Logger, opts ...interactor.Option) *interactor.Interactor[Portrait] {
	op := NewDownloadOperation(mode, builder, gateway, logger)
	return interactor.New[Portrait](op, append([]interactor.Option{interactor.WithLogger(logger)}, opts...)...)
}

// Plan returns the plan chosen by the last CreateConnector call.
func (o *DownloadOperation) Plan() Plan {
	return o.plan
}

// CreateConnector selects a plan against the session and builds it.
func (o *DownloadOperation) CreateConnector(_ context.Context, sess *session.Session) (connector.Connector, error) {
	o.plan = Select(o.mode, sess)
	o.logger.Debug().Stringer("plan", o.plan.Kind).Msg("Selected download plan.")
	return o.builder.Build(o.plan, sess)
}

// CompletedConnector decodes the downloaded image and resolves its owner.
func (o *DownloadOperation) CompletedConnector(c connector.Connector) (Portrait, error) {
	if err := c.LastError(); err != nil {
		return Portrait{}, err
	}
	data := c.ResultData()
	if len(data) == 0 {
		return Portrait{}, connector.NewNotAvailableError(errors.New("empty portrait payload"))
	}
	img, err := Decode(data)
	if err != nil {
		return Portrait{}, err
	}

	userID := o.plan.UserID
	if chain, ok := c.(*connector.Chain); ok {
		if src, ok := chain.Steps()[0].(AttributeSource); ok {
			if _, owner, err := ImageRequestFromAttributes(src.UserAttributes()); err == nil {
				userID = owner
			}
		}
	}
	return Portrait{Image: img, UserID: userID}, nil
}

// ReadFromCache looks for the raw payload first and a decoded image second.
func (o *DownloadOperation) ReadFromCache(ctx context.Context, c connector.Connector) bool {
	if o.gateway == nil {
		c.Rehydrate(nil, connector.NewNotAvailableError(errors.New("no cache configured")))
		return false
	}
	key := o.mode.CacheKey()

	v, err := o.gateway.GetTyped(ctx, Collection, key)
	if data, ok := v.([]byte); err == nil && ok && len(data) > 0 {
		_, decErr := Decode(data)
		if decErr == nil {
			o.logger.Debug().Msg("Typed cache hit.")
			c.Rehydrate(data, nil)
			return true
		}
		err = decErr
	}
	logMiss(o.logger, err, "Typed cache miss.")

	img, err := o.gateway.GetSecondary(ctx, Collection, key)
	if err == nil && img != nil {
		data, encErr := EncodePNG(img)
		if encErr == nil {
			o.logger.Debug().Msg("Image cache hit.")
			c.Rehydrate(data, nil)
			return true
		}
		err = encErr
	}
	logMiss(o.logger, err, "Image cache miss.")

	c.Rehydrate(nil, connector.NewNotAvailableError(fmt.Errorf("portrait %s not cached", key)))
	return false
}

// WriteToCache stores the downloaded payload under the mode's key. Payloads
// that do not decode as an image are never stored.
func (o *DownloadOperation) WriteToCache(ctx context.Context, c connector.Connector) error {
	if o.gateway == nil {
		return nil
	}
	data := c.ResultData()
	if len(data) == 0 {
		return nil
	}
	if _, err := Decode(data); err != nil {
		return fmt.Errorf("not caching portrait %s: %w", o.mode.CacheKey(), err)
	}
	return o.gateway.SetClean(ctx, Collection, o.mode.CacheKey(), data, o.mode.CacheAttributes())
}

func logMiss(logger zerolog.Logger, err error, msg string) {
	if err != nil && !errors.Is(err, cache.ErrNotFound) {
		logger.Warn().Err(err).Msg(msg)
		return
	}
	logger.Debug().Msg(msg)
}

// Decode parses image bytes. Undecodable payloads are Malformed.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, connector.NewMalformedError(fmt.Errorf("failed to decode portrait: %w", err))
	}
	return img, nil
}

// EncodePNG is the representation a decoded image is served in.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode portrait: %w", err)
	}
	return buf.Bytes(), nil
}
