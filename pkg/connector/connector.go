// Package connector provides the remote calls that interactors run: single
// requests against the portal server and chains of requests whose later steps
// depend on earlier results.
package connector

import (
	"context"
	"sync"
)

// Connector is a single unit of remote work. Execute blocks until the call
// completes and records the outcome on the connector itself; the same error is
// also returned for convenience.
type Connector interface {
	Execute(ctx context.Context) error
	// ResultData is the payload of a successful call, nil otherwise.
	ResultData() []byte
	// LastError is the single error recorded by the last execution, if any.
	LastError() error
	// Rehydrate replaces the recorded outcome. Only the cache read path uses it,
	// to serve a stored payload in place of a network result.
	Rehydrate(data []byte, err error)
}

// Result holds the outcome fields shared by every connector. Embed it to get
// ResultData, LastError and Rehydrate.
type Result struct {
	mu   sync.RWMutex
	data []byte
	err  error
}

// ResultData returns the recorded payload.
func (r *Result) ResultData() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data
}

// LastError returns the recorded error.
func (r *Result) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Rehydrate overwrites the recorded outcome.
func (r *Result) Rehydrate(data []byte, err error) {
	r.record(data, err)
}

func (r *Result) record(data []byte, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		data = nil
	}
	r.data = data
	r.err = err
}
