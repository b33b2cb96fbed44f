package runtime

import (
	"sync"

	"slotmap/storage"
)

// overlay buffers the writes of one transaction on top of the committed
// database. Reads see buffered writes first. Nothing reaches the base until
// flush, so an aborted transaction leaves no trace.
type overlay struct {
	base storage.Database

	mu     sync.RWMutex
	writes map[string][]byte
	order  []string
}

var _ storage.Database = (*overlay)(nil)

func newOverlay(base storage.Database) *overlay {
	return &overlay{
		base:   base,
		writes: make(map[string][]byte),
	}
}

func (o *overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	if _, ok := o.writes[k]; !ok {
		o.order = append(o.order, k)
	}
	o.writes[k] = append([]byte(nil), value...)
	return nil
}

func (o *overlay) Get(key []byte) ([]byte, error) {
	o.mu.RLock()
	value, ok := o.writes[string(key)]
	o.mu.RUnlock()
	if ok {
		return append([]byte(nil), value...), nil
	}
	return o.base.Get(key)
}

func (o *overlay) Has(key []byte) (bool, error) {
	o.mu.RLock()
	_, ok := o.writes[string(key)]
	o.mu.RUnlock()
	if ok {
		return true, nil
	}
	return o.base.Has(key)
}

func (o *overlay) Write(batch *storage.Batch) error {
	return batch.Replay(o.Put)
}

// Close is a no-op; the overlay does not own the base.
func (o *overlay) Close() {}

// dirty returns the number of distinct keys written.
func (o *overlay) dirty() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.order)
}

// flush commits every buffered write to the base in one atomic batch.
func (o *overlay) flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.order) == 0 {
		return nil
	}
	batch := new(storage.Batch)
	for _, k := range o.order {
		batch.Put([]byte(k), o.writes[k])
	}
	if err := o.base.Write(batch); err != nil {
		return err
	}
	o.writes = make(map[string][]byte)
	o.order = nil
	return nil
}
