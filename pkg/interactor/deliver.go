package interactor

import (
	"context"
	"sync"
)

// Deliverer runs a completion on the context allowed to touch UI-owned state.
type Deliverer func(func())

// Immediate runs the completion on the calling goroutine.
func Immediate(f func()) {
	f()
}

// SerialDeliverer funnels completions into one goroutine, in posting order,
// the way a UI main loop would. Once Run has been cancelled, completions run
// on the posting goroutine so none is ever lost.
type SerialDeliverer struct {
	queue chan func()
	once  sync.Once
	done  chan struct{}

	mu       sync.Mutex
	stopping bool
	inflight sync.WaitGroup
}

// NewSerialDeliverer creates a deliverer with room for buffer pending completions.
func NewSerialDeliverer(buffer int) *SerialDeliverer {
	if buffer <= 0 {
		buffer = 16
	}
	return &SerialDeliverer{
		queue: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Deliver queues f. It blocks while the queue is full. After Run has been
// cancelled it runs f directly.
func (d *SerialDeliverer) Deliver(f func()) {
	d.mu.Lock()
	if d.stopping {
		d.mu.Unlock()
		f()
		return
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	defer d.inflight.Done()
	d.queue <- f
}

// Run executes queued completions until ctx is cancelled, then drains what is
// already queued or being queued. It must be called at most once.
func (d *SerialDeliverer) Run(ctx context.Context) {
	defer d.once.Do(func() { close(d.done) })
	for {
		select {
		case f := <-d.queue:
			f()
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

func (d *SerialDeliverer) drain() {
	d.mu.Lock()
	d.stopping = true
	d.mu.Unlock()

	settled := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(settled)
	}()
	for {
		select {
		case f := <-d.queue:
			f()
		case <-settled:
			for {
				select {
				case f := <-d.queue:
					f()
				default:
					return
				}
			}
		}
	}
}

// Stopped is closed when Run returns.
func (d *SerialDeliverer) Stopped() <-chan struct{} {
	return d.done
}
