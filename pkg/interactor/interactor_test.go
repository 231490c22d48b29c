package interactor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-screenlets/pkg/connector"
	"github.com/illmade-knight/go-screenlets/pkg/interactor"
	"github.com/illmade-knight/go-screenlets/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConnector completes with a preset payload or error.
type fakeConnector struct {
	connector.Result
	data     []byte
	err      error
	executed atomic.Int32
}

func (f *fakeConnector) Execute(_ context.Context) error {
	f.executed.Add(1)
	f.Rehydrate(f.data, f.err)
	return f.err
}

// remoteOp is an Operation without a cache.
type remoteOp struct {
	conn      connector.Connector
	createErr error
}

func (o *remoteOp) CreateConnector(_ context.Context, _ *session.Session) (connector.Connector, error) {
	return o.conn, o.createErr
}

func (o *remoteOp) CompletedConnector(c connector.Connector) (string, error) {
	return string(c.ResultData()), nil
}

// cachedOp adds a map-backed cache to remoteOp.
type cachedOp struct {
	remoteOp
	mu       sync.Mutex
	stored   []byte
	reads    int
	writes   int
	writeErr error
}

func (o *cachedOp) ReadFromCache(_ context.Context, c connector.Connector) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reads++
	if o.stored == nil {
		c.Rehydrate(nil, connector.NewNotAvailableError(errors.New("cache miss")))
		return false
	}
	c.Rehydrate(o.stored, nil)
	return true
}

func (o *cachedOp) WriteToCache(_ context.Context, c connector.Connector) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes++
	if o.writeErr != nil {
		return o.writeErr
	}
	o.stored = c.ResultData()
	return nil
}

func runOp[R any](t *testing.T, op interactor.Operation[R], opts ...interactor.Option) (*interactor.Interactor[R], R, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	it := interactor.New(op, opts...)
	r, err := interactor.Run(ctx, it, session.New("http://portal", nil, time.Second))
	return it, r, err
}

func TestInteractor_CacheFirst(t *testing.T) {
	t.Run("Hit skips the network", func(t *testing.T) {
		// Arrange
		conn := &fakeConnector{data: []byte("remote")}
		op := &cachedOp{remoteOp: remoteOp{conn: conn}, stored: []byte("cached")}

		// Act
		it, result, err := runOp[string](t, op)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "cached", result)
		assert.Equal(t, int32(0), conn.executed.Load())
		assert.Equal(t, 0, op.writes)
		assert.Equal(t, interactor.SourceCache, it.Source())
	})

	t.Run("Miss executes and writes back", func(t *testing.T) {
		conn := &fakeConnector{data: []byte("remote")}
		op := &cachedOp{remoteOp: remoteOp{conn: conn}}

		it, result, err := runOp[string](t, op)

		require.NoError(t, err)
		assert.Equal(t, "remote", result)
		assert.Equal(t, int32(1), conn.executed.Load())
		assert.Equal(t, []byte("remote"), op.stored)
		assert.Equal(t, interactor.SourceNetwork, it.Source())
	})

	t.Run("Network failure is not written back", func(t *testing.T) {
		conn := &fakeConnector{err: connector.NewTransportError(500, nil)}
		op := &cachedOp{remoteOp: remoteOp{conn: conn}}

		_, _, err := runOp[string](t, op)

		assert.ErrorIs(t, err, connector.ErrTransport)
		assert.Equal(t, 0, op.writes)
	})

	t.Run("Write-back failure does not fail the run", func(t *testing.T) {
		conn := &fakeConnector{data: []byte("remote")}
		op := &cachedOp{remoteOp: remoteOp{conn: conn}, writeErr: errors.New("disk full")}

		_, result, err := runOp[string](t, op)

		require.NoError(t, err)
		assert.Equal(t, "remote", result)
		assert.Equal(t, 1, op.writes)
	})
}

func TestInteractor_OtherStrategies(t *testing.T) {
	t.Run("Remote first serves the network result", func(t *testing.T) {
		conn := &fakeConnector{data: []byte("remote")}
		op := &cachedOp{remoteOp: remoteOp{conn: conn}, stored: []byte("cached")}

		_, result, err := runOp[string](t, op, interactor.WithStrategy(interactor.RemoteFirst))

		require.NoError(t, err)
		assert.Equal(t, "remote", result)
		assert.Equal(t, 0, op.reads)
	})

	t.Run("Remote first falls back to the cache", func(t *testing.T) {
		conn := &fakeConnector{err: connector.NewTransportError(503, nil)}
		op := &cachedOp{remoteOp: remoteOp{conn: conn}, stored: []byte("cached")}

		it, result, err := runOp[string](t, op, interactor.WithStrategy(interactor.RemoteFirst))

		require.NoError(t, err)
		assert.Equal(t, "cached", result)
		assert.Equal(t, interactor.SourceCache, it.Source())
	})

	t.Run("Remote first keeps the network error on a double miss", func(t *testing.T) {
		conn := &fakeConnector{err: connector.NewTransportError(503, nil)}
		op := &cachedOp{remoteOp: remoteOp{conn: conn}}

		_, _, err := runOp[string](t, op, interactor.WithStrategy(interactor.RemoteFirst))

		assert.ErrorIs(t, err, connector.ErrTransport)
	})

	t.Run("Remote only ignores the cache on read", func(t *testing.T) {
		conn := &fakeConnector{data: []byte("remote")}
		op := &cachedOp{remoteOp: remoteOp{conn: conn}, stored: []byte("cached")}

		_, result, err := runOp[string](t, op, interactor.WithStrategy(interactor.RemoteOnly))

		require.NoError(t, err)
		assert.Equal(t, "remote", result)
		assert.Equal(t, 0, op.reads)
		assert.Equal(t, []byte("remote"), op.stored)
	})

	t.Run("Cache only reports not available on a miss", func(t *testing.T) {
		conn := &fakeConnector{data: []byte("remote")}
		op := &cachedOp{remoteOp: remoteOp{conn: conn}}

		_, _, err := runOp[string](t, op, interactor.WithStrategy(interactor.CacheOnly))

		assert.ErrorIs(t, err, connector.ErrNotAvailable)
		assert.Equal(t, int32(0), conn.executed.Load())
	})

	t.Run("Non-cacheable operations always go remote", func(t *testing.T) {
		conn := &fakeConnector{data: []byte("remote")}

		it, result, err := runOp[string](t, &remoteOp{conn: conn}, interactor.WithStrategy(interactor.CacheOnly))

		require.NoError(t, err)
		assert.Equal(t, "remote", result)
		assert.Equal(t, interactor.SourceNetwork, it.Source())
	})
}

func TestInteractor_ConnectorCreation(t *testing.T) {
	t.Run("Creation error is delivered", func(t *testing.T) {
		cause := connector.NewInvalidArgumentError(errors.New("bad input"))

		_, _, err := runOp[string](t, &remoteOp{createErr: cause})

		assert.ErrorIs(t, err, connector.ErrInvalidArgument)
	})

	t.Run("Nil connector is not available", func(t *testing.T) {
		_, _, err := runOp[string](t, &remoteOp{})

		assert.ErrorIs(t, err, connector.ErrNotAvailable)
	})
}

func TestInteractor_StartContract(t *testing.T) {
	it := interactor.New[string](&remoteOp{conn: &fakeConnector{data: []byte("x")}}, interactor.WithToken("op-1"))
	sess := session.New("http://portal", nil, time.Second)

	assert.Equal(t, "op-1", it.Token())
	assert.Error(t, it.Start(context.Background(), sess, nil), "nil callback is rejected")

	var calls atomic.Int32
	require.NoError(t, it.Start(context.Background(), sess, func(string, error) { calls.Add(1) }))
	assert.ErrorIs(t, it.Start(context.Background(), sess, func(string, error) { calls.Add(1) }), interactor.ErrAlreadyStarted)

	<-it.Done()
	assert.Equal(t, int32(1), calls.Load())
}

func TestInteractor_GeneratesToken(t *testing.T) {
	a := interactor.New[string](&remoteOp{})
	b := interactor.New[string](&remoteOp{})

	assert.NotEmpty(t, a.Token())
	assert.NotEqual(t, a.Token(), b.Token())
}

func TestInteractor_DeliversOnSerialDeliverer(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deliverer := interactor.NewSerialDeliverer(4)
	go deliverer.Run(ctx)

	var order []string
	var mu sync.Mutex
	record := func(name string) func(string, error) {
		return func(r string, _ error) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name+":"+r)
		}
	}

	// Act
	first := interactor.New[string](&remoteOp{conn: &fakeConnector{data: []byte("a")}}, interactor.WithDeliverer(deliverer.Deliver))
	require.NoError(t, first.Start(ctx, nil, record("first")))
	<-first.Done()
	second := interactor.New[string](&remoteOp{conn: &fakeConnector{data: []byte("b")}}, interactor.WithDeliverer(deliverer.Deliver))
	require.NoError(t, second.Start(ctx, nil, record("second")))
	<-second.Done()

	// Assert
	mu.Lock()
	assert.Equal(t, []string{"first:a", "second:b"}, order)
	mu.Unlock()

	cancel()
	select {
	case <-deliverer.Stopped():
	case <-time.After(time.Second):
		t.Fatal("deliverer did not stop")
	}
}

func TestSerialDeliverer_DrainsOnCancel(t *testing.T) {
	deliverer := interactor.NewSerialDeliverer(0)
	var ran atomic.Int32
	for range 3 {
		deliverer.Deliver(func() { ran.Add(1) })
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	deliverer.Run(ctx)

	assert.Equal(t, int32(3), ran.Load())
}

func TestSerialDeliverer_RunsInlineAfterStop(t *testing.T) {
	// Arrange
	deliverer := interactor.NewSerialDeliverer(1)
	ctx, cancel := context.WithCancel(context.Background())
	go deliverer.Run(ctx)
	cancel()
	select {
	case <-deliverer.Stopped():
	case <-time.After(time.Second):
		t.Fatal("deliverer did not stop")
	}

	// Act
	var got []string
	for _, payload := range []string{"a", "b"} {
		it := interactor.New[string](&remoteOp{conn: &fakeConnector{data: []byte(payload)}}, interactor.WithDeliverer(deliverer.Deliver))
		require.NoError(t, it.Start(context.Background(), nil, func(r string, _ error) { got = append(got, r) }))
		select {
		case <-it.Done():
		case <-time.After(time.Second):
			t.Fatal("completion was not delivered after the deliverer stopped")
		}
	}

	// Assert
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestSerialDeliverer_DeliversQueuedDuringShutdown(t *testing.T) {
	deliverer := interactor.NewSerialDeliverer(1)
	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Int32

	var posters sync.WaitGroup
	for range 8 {
		posters.Add(1)
		go func() {
			defer posters.Done()
			deliverer.Deliver(func() { ran.Add(1) })
		}()
	}
	cancel()
	deliverer.Run(ctx)
	posters.Wait()

	assert.Equal(t, int32(8), ran.Load())
}
