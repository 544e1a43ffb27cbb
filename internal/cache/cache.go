// Package cache memoizes trained bundles by dataset content so repeated
// predictions on the same data never retrain.
package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/KaramelBytes/healthrisk-cli/internal/model"
)

// Key derives a cache key from a dataset content hash and anything else that changes
// the trained result (normalization policies, training options).
func Key(contentHash uint64, settings ...any) string {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], contentHash)
	_, _ = d.Write(buf[:])
	for _, s := range settings {
		_, _ = fmt.Fprintf(d, "|%+v", s)
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// TrainFunc produces a bundle on a cache miss.
type TrainFunc func() (*model.Bundle, error)

// Artifacts maps dataset keys to trained bundles. Entries live until the caller
// invalidates them; there is no eviction.
type Artifacts struct {
	mu       sync.RWMutex
	entries  map[string]*model.Bundle
	gens     map[string]uint64
	epoch    uint64
	inflight map[string]int
	group    singleflight.Group
	log      *zap.Logger
}

// version identifies the invalidation state a training run started under.
type version struct {
	gen, epoch uint64
}

// New returns an empty cache. A nil logger discards output.
func New(log *zap.Logger) *Artifacts {
	if log == nil {
		log = zap.NewNop()
	}
	return &Artifacts{
		entries:  make(map[string]*model.Bundle),
		gens:     make(map[string]uint64),
		inflight: make(map[string]int),
		log:      log,
	}
}

// Get returns the bundle stored under key.
func (a *Artifacts) Get(key string) (*model.Bundle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.entries[key]
	return b, ok
}

// Put stores a bundle, replacing any previous entry.
func (a *Artifacts) Put(key string, b *model.Bundle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[key] = b
}

// GetOrTrain returns the cached bundle or runs train once, even when many callers
// miss the same key concurrently. Failed training is not cached, and neither is a
// bundle whose key was invalidated while it trained. The context only bounds this
// caller's wait; the shared training run continues for other waiters.
func (a *Artifacts) GetOrTrain(ctx context.Context, key string, train TrainFunc) (*model.Bundle, error) {
	if b, ok := a.Get(key); ok {
		a.log.Debug("artifact cache hit", zap.String("key", key))
		return b, nil
	}
	ch := a.group.DoChan(key, func() (any, error) {
		if b, ok := a.Get(key); ok {
			return b, nil
		}
		v := a.begin(key)
		a.log.Info("artifact cache miss, training", zap.String("key", key))
		b, err := train()
		if !a.finish(key, v, b, err) && err == nil {
			a.log.Info("key invalidated during training, result not cached", zap.String("key", key))
		}
		if err != nil {
			return nil, err
		}
		return b, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Bundle), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Artifacts) begin(key string) version {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inflight[key]++
	return version{gen: a.gens[key], epoch: a.epoch}
}

// finish stores b if no invalidation happened since begin, and reports whether it did.
func (a *Artifacts) finish(key string, v version, b *model.Bundle, err error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inflight[key]--; a.inflight[key] <= 0 {
		delete(a.inflight, key)
	}
	if err != nil || b == nil || v != (version{gen: a.gens[key], epoch: a.epoch}) {
		return false
	}
	a.entries[key] = b
	return true
}

// Invalidate drops one entry and reports whether it existed or was being trained.
// A training run in flight for key still answers its waiters but is not cached.
func (a *Artifacts) Invalidate(key string) bool {
	a.mu.Lock()
	_, ok := a.entries[key]
	delete(a.entries, key)
	flying := a.inflight[key] > 0
	if ok || flying {
		a.gens[key]++
	}
	a.mu.Unlock()
	if flying {
		a.group.Forget(key)
	}
	if ok || flying {
		a.log.Info("artifact cache entry invalidated", zap.String("key", key), zap.Bool("in_flight", flying))
	}
	return ok || flying
}

// Purge drops every entry and discards results of training runs in flight.
func (a *Artifacts) Purge() {
	a.mu.Lock()
	a.entries = make(map[string]*model.Bundle)
	a.epoch++
	flying := make([]string, 0, len(a.inflight))
	for k := range a.inflight {
		flying = append(flying, k)
	}
	a.mu.Unlock()
	for _, k := range flying {
		a.group.Forget(k)
	}
}

// Len is the number of cached bundles.
func (a *Artifacts) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// Keys lists cached keys in sorted order.
func (a *Artifacts) Keys() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.entries))
	for k := range a.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
