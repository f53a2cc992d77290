package cache

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"api-rate-validator/internal/logging"
	"api-rate-validator/internal/metrics"
)

// Tiered answers from the local tier first and falls back to the shared tier.
// A shared hit is copied into the local tier for whatever TTL it has left.
// Writes go to the shared tier first so a failed write is never visible
// locally. With a nil shared tier it behaves as a single-process cache.
type Tiered struct {
	local  *Local
	shared *Shared
	log    logr.Logger
}

func NewTiered(local *Local, shared *Shared, log logr.Logger) *Tiered {
	return &Tiered{local: local, shared: shared, log: log.WithName("cache")}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if value, found, _ := t.local.Get(ctx, key); found {
		metrics.RecordLookup(TierLocal, metrics.ResultHit)
		return value, true, nil
	}
	metrics.RecordLookup(TierLocal, metrics.ResultMiss)

	if t.shared == nil {
		return nil, false, nil
	}

	value, remaining, found, err := t.shared.Lookup(ctx, key)
	if err != nil {
		metrics.RecordLookup(TierShared, metrics.ResultError)
		return nil, false, err
	}
	if !found {
		metrics.RecordLookup(TierShared, metrics.ResultMiss)
		return nil, false, nil
	}
	metrics.RecordLookup(TierShared, metrics.ResultHit)

	if remaining > 0 {
		_ = t.local.Set(ctx, key, value, remaining)
		t.log.V(logging.VERBOSE).Info("backfilled local tier", "key", key, "ttl", remaining)
	}
	return value, true, nil
}

func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if t.shared != nil {
		err := t.shared.Set(ctx, key, value, ttl)
		metrics.RecordWrite(TierShared, err)
		if err != nil {
			return err
		}
	}
	err := t.local.Set(ctx, key, value, ttl)
	metrics.RecordWrite(TierLocal, err)
	return err
}

// Add stores value only if no tier knows the key. The shared tier decides
// when present; the local tier is only a fast negative answer.
func (t *Tiered) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if t.shared == nil {
		ok, err := t.local.Add(ctx, key, value, ttl)
		if ok || err != nil {
			metrics.RecordWrite(TierLocal, err)
		}
		return ok, err
	}

	if _, found, _ := t.local.Get(ctx, key); found {
		metrics.RecordLookup(TierLocal, metrics.ResultHit)
		return false, nil
	}

	ok, err := t.shared.Add(ctx, key, value, ttl)
	metrics.RecordWrite(TierShared, err)
	if err != nil || !ok {
		return false, err
	}
	err = t.local.Set(ctx, key, value, ttl)
	metrics.RecordWrite(TierLocal, err)
	return true, err
}

var (
	_ Cache = (*Tiered)(nil)
	_ Adder = (*Tiered)(nil)
	_ Cache = (*Local)(nil)
	_ Adder = (*Local)(nil)
	_ Cache = (*Shared)(nil)
	_ Adder = (*Shared)(nil)
)
