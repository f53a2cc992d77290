package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Local is the in-process tier. Entries expire at their write-time TTL;
// reads never extend it.
type Local struct {
	items *ttlcache.Cache[string, []byte]
}

// NewLocal creates a local tier holding at most capacity entries
// (0 means unbounded). Call Start to run expired-entry cleanup.
func NewLocal(capacity uint64) *Local {
	opts := []ttlcache.Option[string, []byte]{
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []byte](capacity))
	}
	return &Local{items: ttlcache.New[string, []byte](opts...)}
}

// Start blocks, deleting expired entries, until Stop is called.
func (l *Local) Start() { l.items.Start() }

func (l *Local) Stop() { l.items.Stop() }

func (l *Local) Get(_ context.Context, key string) ([]byte, bool, error) {
	item := l.items.Get(key)
	if item == nil || item.IsExpired() {
		return nil, false, nil
	}
	return item.Value(), true, nil
}

func (l *Local) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	l.items.Set(key, value, ttl)
	return nil
}

func (l *Local) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	item, found := l.items.GetOrSet(key, value, ttlcache.WithTTL[string, []byte](ttl))
	if found && item.IsExpired() {
		// not yet swept by the cleanup loop
		l.items.Set(key, value, ttl)
		return true, nil
	}
	return !found, nil
}

// Len reports the number of entries, expired ones not yet swept included.
func (l *Local) Len() int { return l.items.Len() }
