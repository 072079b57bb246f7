package cache

import (
	"time"
)

// Freshness es la tolerancia a staleness que el caller declara en cada
// lectura. No hay default implícito a nivel API: quien lee, firma.
type Freshness struct {
	consistent   bool
	maxStaleness time.Duration
}

// Consistent exige un valor cuyo watermark sea al menos el watermark actual
// del journal para la key al momento de iniciar la lectura. Correctitud por
// sobre latencia.
func Consistent() Freshness {
	return Freshness{consistent: true}
}

// BestEffort acepta cualquier entrada cacheada dentro de maxStaleness de
// antigüedad, sin consultar el journal. Latencia por sobre correctitud; la
// staleness queda expuesta en Read.IsStale para logging/alerting.
func BestEffort(maxStaleness time.Duration) Freshness {
	return Freshness{maxStaleness: maxStaleness}
}

func (f Freshness) IsConsistent() bool { return f.consistent }

// MaxStaleness devuelve la tolerancia de BestEffort; cero para Consistent.
func (f Freshness) MaxStaleness() time.Duration {
	if f.consistent {
		return 0
	}
	return f.maxStaleness
}

func (f Freshness) String() string {
	if f.consistent {
		return "consistent"
	}
	return "best_effort(" + f.maxStaleness.String() + ")"
}

// Read es el sobre de una lectura: el valor más la metadata de frescura.
// El caller siempre puede calcular la staleness (now - CachedAt).
type Read[T any] struct {
	Value    T
	CachedAt time.Time
	// IsStale marca que la entrada excede la tolerancia pedida (solo puede
	// darse bajo BestEffort; una lectura Consistent nunca devuelve stale).
	IsStale bool
	// Watermark con el que se guardó la entrada (0 si el journal no estaba
	// disponible al poblarla).
	Watermark uint64
	// FromCache distingue hit (true) de fetch-then-serve (false).
	FromCache bool
}

// Staleness devuelve la antigüedad del valor al momento de la llamada.
func (r *Read[T]) Staleness() time.Duration {
	d := time.Since(r.CachedAt)
	if d < 0 {
		return 0
	}
	return d
}
