package cache

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/dropDatabas3/entitycache/internal/entity"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Entry es la unidad que se guarda en el backend: el valor serializado, el
// instante de cacheo y el watermark observado al poblarlo. No lleva TTL
// propio: la staleness se define contra el journal (Consistent) o contra la
// edad wall-clock (BestEffort), nunca ambos.
type Entry struct {
	Value     []byte    `json:"value"`
	CachedAt  time.Time `json:"cached_at"`
	Watermark uint64    `json:"watermark"`
	// Checksum blake2b-256 del valor serializado. Detecta valores rotos o
	// torn en backends externos; un mismatch se trata como miss + evict.
	Checksum [32]byte `json:"checksum"`
}

// NewEntry arma una Entry sellada con su checksum.
func NewEntry(value []byte, cachedAt time.Time, watermark uint64) *Entry {
	return &Entry{
		Value:     value,
		CachedAt:  cachedAt,
		Watermark: watermark,
		Checksum:  blake2b.Sum256(value),
	}
}

// Verify reporta si el valor sigue íntegro respecto de su checksum.
func (e *Entry) Verify() bool {
	sum := blake2b.Sum256(e.Value)
	return subtle.ConstantTimeCompare(sum[:], e.Checksum[:]) == 1
}

// Stats son los contadores agregados del backend.
type Stats struct {
	Driver      string `json:"driver"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	EntryCount  uint64 `json:"entry_count"`
	MemoryBytes uint64 `json:"memory_bytes"`
	Evictions   uint64 `json:"evictions"`
}

// HitRate devuelve hits/(hits+misses), 0 si no hubo tráfico.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Backend es el store key/value de bajo nivel para entradas cacheadas.
//
// Las operaciones por key son atómicas: un Put compitiendo con un Get sobre
// la misma key nunca devuelve un valor torn. Las operaciones bulk no
// necesitan ser atómicas respecto de lecturas puntuales; alcanza con que
// eventualmente no quede ninguna entrada que matchee.
type Backend interface {
	// Get devuelve la entrada o (nil, nil) si no existe.
	Get(ctx context.Context, key Key) (*Entry, error)
	Put(ctx context.Context, key Key, entry *Entry) error
	Delete(ctx context.Context, key Key) error

	// InvalidateTenant borra todas las entradas del tenant y devuelve cuántas.
	InvalidateTenant(ctx context.Context, tenant uuid.UUID) (uint64, error)
	// InvalidateEntityType borra las entradas de un tipo dentro del tenant.
	InvalidateEntityType(ctx context.Context, tenant uuid.UUID, et entity.Type) (uint64, error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}
