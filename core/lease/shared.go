package lease

import (
	"context"

	"github.com/ppacher/webthings-mqtt-gateway/pkg/mutex"
)

// SharedStore serializes access to a Store. The serving goroutine
// runs each message decision inside Do so observers like the metrics
// collector never see a half-applied decision
type SharedStore struct {
	l     *mutex.Mutex // context.Context aware mutex to protect store
	store *Store
}

// NewSharedStore wraps s
func NewSharedStore(s *Store) *SharedStore {
	return &SharedStore{
		l:     mutex.New(),
		store: s,
	}
}

// Do calls fn with exclusive access to the store. It returns ctx.Err()
// if the store could not be locked before ctx is done
func (sh *SharedStore) Do(ctx context.Context, fn func(*Store)) error {
	if !sh.l.TryLock(ctx) {
		return ctx.Err()
	}
	defer sh.l.Unlock()

	fn(sh.store)

	return nil
}

// Pool returns the pool of the wrapped store. Pools are immutable so
// no locking is required
func (sh *SharedStore) Pool() Pool {
	return sh.store.pool
}
