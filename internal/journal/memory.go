package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory es un Journal en memoria: una secuencia global estrictamente
// creciente más la última marca por scope. Útil para desarrollo, testing y
// despliegues de un solo proceso; la durabilidad real la da el journal de
// postgres.
type Memory struct {
	mu    sync.RWMutex
	seq   uint64
	marks map[string]uint64
	log   []Entry
}

// NewMemory crea un journal vacío.
func NewMemory() *Memory {
	return &Memory{marks: make(map[string]uint64)}
}

func (m *Memory) CurrentWatermark(ctx context.Context, scope Scope) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.marks[scope.String()], nil
}

func (m *Memory) Record(ctx context.Context, scope Scope) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	wm := m.seq
	m.marks[scope.String()] = wm
	m.log = append(m.log, Entry{Scope: scope, Watermark: wm, OccurredAt: time.Now().UTC()})
	return wm, nil
}

func (m *Memory) Entries(ctx context.Context, tenant uuid.UUID, since uint64) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry
	for _, e := range m.log {
		if e.Scope.Tenant() == tenant && e.Watermark > since {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) Prune(ctx context.Context, tenant uuid.UUID, before time.Time) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// La última marca de cada scope sobrevive aunque sea vieja.
	latest := make(map[string]uint64)
	for _, e := range m.log {
		if e.Scope.Tenant() == tenant {
			latest[e.Scope.String()] = e.Watermark
		}
	}

	kept := m.log[:0]
	var removed uint64
	for _, e := range m.log {
		drop := e.Scope.Tenant() == tenant &&
			e.OccurredAt.Before(before) &&
			e.Watermark != latest[e.Scope.String()]
		if drop {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.log = kept
	return removed, nil
}
