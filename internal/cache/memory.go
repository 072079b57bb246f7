package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/dropDatabas3/entitycache/internal/entity"
	"github.com/google/uuid"
)

// entryOverhead aproxima el costo fijo por entrada (struct + map bucket)
// para el contador memory_bytes.
const entryOverhead = 96

// MemoryBackend es el backend in-process por defecto: N shards, cada uno
// con su propio RWMutex y su map. La sincronización es por shard, nunca un
// lock global; dos keys en shards distintos no se bloquean entre sí.
type MemoryBackend struct {
	shards []memoryShard
	mask   uint64

	hits   atomic.Uint64
	misses atomic.Uint64
	bytes  atomic.Int64
	closed atomic.Bool
}

type memoryShard struct {
	mu   sync.RWMutex
	data map[string]*Entry
}

// NewMemory crea el backend con la cantidad de shards indicada, redondeada
// a la próxima potencia de dos. Con shards <= 0 usa 32.
func NewMemory(shards int) *MemoryBackend {
	if shards <= 0 {
		shards = 32
	}
	n := 1
	for n < shards {
		n <<= 1
	}
	b := &MemoryBackend{
		shards: make([]memoryShard, n),
		mask:   uint64(n - 1),
	}
	for i := range b.shards {
		b.shards[i].data = make(map[string]*Entry)
	}
	return b
}

func (b *MemoryBackend) shard(k string) *memoryShard {
	return &b.shards[xxhash.Sum64String(k)&b.mask]
}

func (b *MemoryBackend) Get(ctx context.Context, key Key) (*Entry, error) {
	if b.closed.Load() {
		return nil, ErrBackendUnavailable
	}
	k := key.String()
	s := b.shard(k)
	s.mu.RLock()
	e, ok := s.data[k]
	s.mu.RUnlock()
	if !ok {
		b.misses.Add(1)
		return nil, nil
	}
	b.hits.Add(1)
	return e, nil
}

func (b *MemoryBackend) Put(ctx context.Context, key Key, entry *Entry) error {
	if b.closed.Load() {
		return ErrBackendUnavailable
	}
	// Copia propia: la entrada guardada es inmutable, un Get concurrente
	// nunca observa un valor a medio escribir.
	stored := *entry
	k := key.String()
	s := b.shard(k)
	s.mu.Lock()
	if prev, ok := s.data[k]; ok {
		b.bytes.Add(-int64(len(prev.Value) + entryOverhead))
	}
	s.data[k] = &stored
	s.mu.Unlock()
	b.bytes.Add(int64(len(stored.Value) + entryOverhead))
	return nil
}

func (b *MemoryBackend) Delete(ctx context.Context, key Key) error {
	if b.closed.Load() {
		return ErrBackendUnavailable
	}
	k := key.String()
	s := b.shard(k)
	s.mu.Lock()
	if prev, ok := s.data[k]; ok {
		b.bytes.Add(-int64(len(prev.Value) + entryOverhead))
		delete(s.data, k)
	}
	s.mu.Unlock()
	return nil
}

func (b *MemoryBackend) InvalidateTenant(ctx context.Context, tenant uuid.UUID) (uint64, error) {
	return b.deletePrefix(TenantPrefix(tenant))
}

func (b *MemoryBackend) InvalidateEntityType(ctx context.Context, tenant uuid.UUID, et entity.Type) (uint64, error) {
	return b.deletePrefix(TenantTypePrefix(tenant, et))
}

// deletePrefix barre shard por shard. No es atómico respecto de Gets
// puntuales (no hace falta); cada shard se limpia bajo su propio lock.
func (b *MemoryBackend) deletePrefix(prefix string) (uint64, error) {
	if b.closed.Load() {
		return 0, ErrBackendUnavailable
	}
	var removed uint64
	for i := range b.shards {
		s := &b.shards[i]
		s.mu.Lock()
		for k, e := range s.data {
			if strings.HasPrefix(k, prefix) {
				b.bytes.Add(-int64(len(e.Value) + entryOverhead))
				delete(s.data, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed, nil
}

func (b *MemoryBackend) Stats(ctx context.Context) (Stats, error) {
	if b.closed.Load() {
		return Stats{}, ErrBackendUnavailable
	}
	var count uint64
	for i := range b.shards {
		s := &b.shards[i]
		s.mu.RLock()
		count += uint64(len(s.data))
		s.mu.RUnlock()
	}
	mem := b.bytes.Load()
	if mem < 0 {
		mem = 0
	}
	return Stats{
		Driver:      "memory",
		Hits:        b.hits.Load(),
		Misses:      b.misses.Load(),
		EntryCount:  count,
		MemoryBytes: uint64(mem),
	}, nil
}

func (b *MemoryBackend) Close() error {
	b.closed.Store(true)
	for i := range b.shards {
		s := &b.shards[i]
		s.mu.Lock()
		s.data = make(map[string]*Entry)
		s.mu.Unlock()
	}
	return nil
}
