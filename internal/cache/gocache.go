package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dropDatabas3/entitycache/internal/entity"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// GoCacheBackend envuelve patrickmn/go-cache: un backend con TTL de
// expiración dura, pensado para desarrollo y testing donde conviene que la
// memoria se acote sola. El TTL no participa de la semántica de freshness
// (esa sigue siendo journal/edad); solo acota residencia.
type GoCacheBackend struct {
	c         *gocache.Cache
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewGoCache crea el backend. defaultTTL <= 0 significa sin expiración.
func NewGoCache(defaultTTL time.Duration) *GoCacheBackend {
	if defaultTTL <= 0 {
		defaultTTL = gocache.NoExpiration
	}
	b := &GoCacheBackend{c: gocache.New(defaultTTL, time.Minute)}
	b.c.OnEvicted(func(string, interface{}) { b.evictions.Add(1) })
	return b
}

func (b *GoCacheBackend) Get(ctx context.Context, key Key) (*Entry, error) {
	v, ok := b.c.Get(key.String())
	if !ok {
		b.misses.Add(1)
		return nil, nil
	}
	e, ok := v.(*Entry)
	if !ok {
		b.misses.Add(1)
		return nil, nil
	}
	b.hits.Add(1)
	return e, nil
}

func (b *GoCacheBackend) Put(ctx context.Context, key Key, entry *Entry) error {
	stored := *entry
	b.c.SetDefault(key.String(), &stored)
	return nil
}

func (b *GoCacheBackend) Delete(ctx context.Context, key Key) error {
	b.c.Delete(key.String())
	return nil
}

func (b *GoCacheBackend) InvalidateTenant(ctx context.Context, tenant uuid.UUID) (uint64, error) {
	return b.deletePrefix(TenantPrefix(tenant)), nil
}

func (b *GoCacheBackend) InvalidateEntityType(ctx context.Context, tenant uuid.UUID, et entity.Type) (uint64, error) {
	return b.deletePrefix(TenantTypePrefix(tenant, et)), nil
}

func (b *GoCacheBackend) deletePrefix(prefix string) uint64 {
	var removed uint64
	for k := range b.c.Items() {
		if strings.HasPrefix(k, prefix) {
			b.c.Delete(k)
			removed++
		}
	}
	return removed
}

func (b *GoCacheBackend) Stats(ctx context.Context) (Stats, error) {
	var mem uint64
	for _, item := range b.c.Items() {
		if e, ok := item.Object.(*Entry); ok {
			mem += uint64(len(e.Value) + entryOverhead)
		}
	}
	return Stats{
		Driver:      "gocache",
		Hits:        b.hits.Load(),
		Misses:      b.misses.Load(),
		EntryCount:  uint64(b.c.ItemCount()),
		MemoryBytes: mem,
		Evictions:   b.evictions.Load(),
	}, nil
}

func (b *GoCacheBackend) Close() error {
	b.c.Flush()
	return nil
}
