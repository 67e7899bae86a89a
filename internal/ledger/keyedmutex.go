package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/yourorg/biblioteca/internal/domain"
)

// keyedMutex serializes work per key (book ID). Locks for different keys
// never contend. Acquisition is bounded: a caller that cannot get the
// lock within maxWait fails with ErrLockTimeout instead of queuing
// indefinitely.
type keyedMutex struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	maxWait time.Duration
}

func newKeyedMutex(maxWait time.Duration) *keyedMutex {
	return &keyedMutex{
		locks:   make(map[string]chan struct{}),
		maxWait: maxWait,
	}
}

// Lock acquires the lock for key, honoring ctx cancellation and the
// configured bounded wait. On success the caller must call Unlock.
func (k *keyedMutex) Lock(ctx context.Context, key string) error {
	k.mu.Lock()
	ch, ok := k.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[key] = ch
	}
	k.mu.Unlock()

	timer := time.NewTimer(k.maxWait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return domain.ErrLockTimeout
	}
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	ch := k.locks[key]
	k.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case <-ch:
	default:
		// Unlock without a matching Lock is a programming error; leave
		// the channel untouched rather than block.
	}
}
