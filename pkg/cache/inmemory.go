package cache

import (
	"context"
	"fmt"
	"image"
	"maps"
	"sync"
	"time"
)

// Entry is one logical cache slot.
type Entry struct {
	Value      any
	Image      image.Image
	Attributes map[string]any
	Updated    time.Time
}

type entryKey struct {
	collection string
	key        string
}

// InMemoryGateway is a thread-safe, in-memory Gateway. Entries live in a
// sync.Map so readers and writers of different keys never contend on a shared lock.
type InMemoryGateway struct {
	entries sync.Map // entryKey -> *Entry
	// writes serialises writers per key.
	writes sync.Map // entryKey -> *sync.Mutex
	now    func() time.Time
}

// NewInMemoryGateway creates an empty in-memory gateway.
func NewInMemoryGateway() *InMemoryGateway {
	return &InMemoryGateway{now: time.Now}
}

// GetTyped retrieves the typed-tier value.
func (g *InMemoryGateway) GetTyped(_ context.Context, collection, key string) (any, error) {
	e, ok := g.load(collection, key)
	if !ok || e.Value == nil {
		return nil, fmt.Errorf("key '%s/%s': %w", collection, key, ErrNotFound)
	}
	return e.Value, nil
}

// GetSecondary retrieves the image tier.
func (g *InMemoryGateway) GetSecondary(_ context.Context, collection, key string) (image.Image, error) {
	e, ok := g.load(collection, key)
	if !ok || e.Image == nil {
		return nil, fmt.Errorf("image '%s/%s': %w", collection, key, ErrNotFound)
	}
	return e.Image, nil
}

// SetClean stores value in the tier matching its type. Entries are replaced,
// never mutated, so concurrent readers always see a consistent snapshot.
func (g *InMemoryGateway) SetClean(_ context.Context, collection, key string, value any, attributes map[string]any) error {
	if value == nil {
		return fmt.Errorf("nil value for key '%s/%s': %w", collection, key, ErrUnsupportedValue)
	}
	k := entryKey{collection: collection, key: key}
	lock, _ := g.writes.LoadOrStore(k, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	next := &Entry{}
	if prev, ok := g.entries.Load(k); ok {
		*next = *prev.(*Entry)
	}
	if img, ok := value.(image.Image); ok {
		next.Image = img
	} else {
		next.Value = value
	}
	if attributes != nil {
		next.Attributes = maps.Clone(attributes)
	}
	next.Updated = g.now()
	g.entries.Store(k, next)
	return nil
}

// Entry returns a copy of the stored slot, for inspection.
func (g *InMemoryGateway) Entry(collection, key string) (Entry, bool) {
	e, ok := g.load(collection, key)
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of stored slots across all collections.
func (g *InMemoryGateway) Len() int {
	n := 0
	g.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close is a no-op for the in-memory implementation.
func (g *InMemoryGateway) Close() error {
	return nil
}

func (g *InMemoryGateway) load(collection, key string) (*Entry, bool) {
	v, ok := g.entries.Load(entryKey{collection: collection, key: key})
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}
