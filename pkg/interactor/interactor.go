// Package interactor runs one UI-triggered operation: it builds the operation's
// connector, consults the cache according to a strategy, executes the remote
// call when needed, writes fresh results back and reports exactly one outcome.
package interactor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-screenlets/pkg/connector"
	"github.com/illmade-knight/go-screenlets/pkg/session"
	"github.com/rs/zerolog"
)

// Operation is the part of an interactor that differs per use case.
type Operation[R any] interface {
	// CreateConnector builds the call or chain for this run. It must be a pure
	// function of the operation's input and sess. A nil connector with a nil
	// error means nothing can be fetched.
	CreateConnector(ctx context.Context, sess *session.Session) (connector.Connector, error)
	// CompletedConnector turns the finished connector into the operation's
	// result. It runs on the delivery context, once per run, on success and failure.
	CompletedConnector(c connector.Connector) (R, error)
}

// CacheableOperation is an Operation whose results can be served from a cache.
type CacheableOperation[R any] interface {
	Operation[R]
	// ReadFromCache rehydrates c from the cache and reports a hit. On a miss it
	// leaves c with a NotAvailable error.
	ReadFromCache(ctx context.Context, c connector.Connector) bool
	// WriteToCache stores a network result. Failures are not fatal to the run.
	WriteToCache(ctx context.Context, c connector.Connector) error
}

// ErrAlreadyStarted is returned when Start is called a second time.
var ErrAlreadyStarted = errors.New("interactor has already been started")

// Source records where a run's outcome came from.
type Source int

const (
	SourceNone Source = iota
	SourceCache
	SourceNetwork
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceNetwork:
		return "network"
	default:
		return "none"
	}
}

// Interactor runs an Operation exactly once. Create a new one for a retry.
type Interactor[R any] struct {
	op       Operation[R]
	strategy CacheStrategy
	deliver  Deliverer
	token    string
	logger   zerolog.Logger

	started atomic.Bool
	source  atomic.Int32
	done    chan struct{}
}

// Option configures an Interactor.
type Option func(*options)

type options struct {
	strategy CacheStrategy
	deliver  Deliverer
	token    string
	logger   zerolog.Logger
}

// WithStrategy selects how the cache is consulted. The default is CacheFirst.
func WithStrategy(s CacheStrategy) Option {
	return func(o *options) { o.strategy = s }
}

// WithDeliverer sets the context completion callbacks run on. The default runs
// them on the interactor's own goroutine.
func WithDeliverer(d Deliverer) Option {
	return func(o *options) {
		if d != nil {
			o.deliver = d
		}
	}
}

// WithToken binds the run to the UI operation that triggered it. Callers use
// it to ignore results of superseded runs. A random token is used otherwise.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates an Interactor for op.
func New[R any](op Operation[R], opts ...Option) *Interactor[R] {
	o := options{
		strategy: CacheFirst,
		deliver:  Immediate,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.token == "" {
		o.token = uuid.NewString()
	}
	return &Interactor[R]{
		op:       op,
		strategy: o.strategy,
		deliver:  o.deliver,
		token:    o.token,
		logger: o.logger.With().
			Str("component", "Interactor").
			Str("interaction_id", o.token).
			Str("operation", fmt.Sprintf("%T", op)).
			Logger(),
		done: make(chan struct{}),
	}
}

// Token returns the UI operation token this run is bound to.
func (i *Interactor[R]) Token() string {
	return i.token
}

// Done is closed after the completion callback has returned.
func (i *Interactor[R]) Done() <-chan struct{} {
	return i.done
}

// Source reports where the outcome came from. It is valid once Done is closed.
func (i *Interactor[R]) Source() Source {
	return Source(i.source.Load())
}

// Start builds the operation's connector and runs it in the background.
// onComplete is called exactly once, through the deliverer, with the result or
// the error. Start itself only fails on misuse.
func (i *Interactor[R]) Start(ctx context.Context, sess *session.Session, onComplete func(R, error)) error {
	if onComplete == nil {
		return errors.New("onComplete callback cannot be nil")
	}
	if !i.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	c, err := i.op.CreateConnector(ctx, sess)
	if err == nil && c == nil {
		err = connector.NewNotAvailableError(errors.New("operation produced no connector"))
	}
	if err != nil {
		i.logger.Debug().Err(err).Msg("Connector could not be created.")
		go i.complete(nil, err, onComplete)
		return nil
	}

	go i.run(ctx, c, onComplete)
	return nil
}

// Run starts the interactor and blocks until its outcome is delivered.
func Run[R any](ctx context.Context, i *Interactor[R], sess *session.Session) (R, error) {
	var (
		result R
		runErr error
	)
	if err := i.Start(ctx, sess, func(r R, err error) {
		result, runErr = r, err
	}); err != nil {
		return result, err
	}
	select {
	case <-i.Done():
		return result, runErr
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

func (i *Interactor[R]) run(ctx context.Context, c connector.Connector, onComplete func(R, error)) {
	cacheable, isCacheable := i.op.(CacheableOperation[R])
	strategy := i.strategy
	if !isCacheable {
		strategy = RemoteOnly
	}

	source := SourceNetwork
	switch strategy {
	case CacheOnly:
		source = SourceCache
		if !cacheable.ReadFromCache(ctx, c) {
			i.logger.Debug().Msg("Cache miss with cache-only strategy.")
		}

	case CacheFirst:
		if cacheable.ReadFromCache(ctx, c) {
			i.logger.Debug().Msg("Cache hit, skipping remote call.")
			source = SourceCache
			break
		}
		i.logger.Debug().Msg("Cache miss, executing remote call.")
		i.execute(ctx, c)

	case RemoteFirst:
		i.execute(ctx, c)
		if netErr := c.LastError(); netErr != nil && isCacheable {
			if cacheable.ReadFromCache(ctx, c) {
				i.logger.Warn().Err(netErr).Msg("Remote call failed, served from cache.")
				source = SourceCache
			} else {
				c.Rehydrate(nil, netErr)
			}
		}

	default:
		i.execute(ctx, c)
	}

	if source == SourceNetwork && isCacheable && c.LastError() == nil {
		if err := cacheable.WriteToCache(ctx, c); err != nil {
			i.logger.Warn().Err(err).Msg("Failed to write result to cache.")
		}
	}

	i.source.Store(int32(source))
	i.complete(c, nil, onComplete)
}

func (i *Interactor[R]) execute(ctx context.Context, c connector.Connector) {
	if err := c.Execute(ctx); err != nil {
		i.logger.Error().Err(err).Msg("Remote call failed.")
	}
}

// complete hands the outcome to the delivery context. c is nil when no
// connector could be built, in which case cause is reported.
func (i *Interactor[R]) complete(c connector.Connector, cause error, onComplete func(R, error)) {
	i.deliver(func() {
		defer close(i.done)
		var zero R
		if c == nil {
			onComplete(zero, cause)
			return
		}
		result, err := i.op.CompletedConnector(c)
		if lastErr := c.LastError(); lastErr != nil {
			onComplete(zero, lastErr)
			return
		}
		if err != nil {
			onComplete(zero, err)
			return
		}
		onComplete(result, nil)
	})
}
