package logger

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Campos estándar del dominio cache. Usar estos helpers en vez de
// zap.String suelto mantiene los nombres consistentes entre componentes.

// TenantID crea el campo del tenant.
func TenantID(v uuid.UUID) zap.Field {
	return zap.Stringer("tenant_id", v)
}

// EntityID crea el campo del id de entidad.
func EntityID(v uuid.UUID) zap.Field {
	return zap.Stringer("entity_id", v)
}

// EntityType crea el campo del tipo de entidad.
func EntityType(v interface{ String() string }) zap.Field {
	return zap.String("entity_type", v.String())
}

// CacheKey crea el campo de la key completa.
func CacheKey(v string) zap.Field {
	return zap.String("cache_key", v)
}

// Watermark crea el campo del watermark observado.
func Watermark(v uint64) zap.Field {
	return zap.Uint64("watermark", v)
}

// Freshness crea el campo de la política de la lectura.
func Freshness(v string) zap.Field {
	return zap.String("freshness", v)
}

// Staleness crea el campo de antigüedad de una entrada.
func Staleness(v time.Duration) zap.Field {
	return zap.Duration("staleness", v)
}

// Driver crea el campo del backend en uso.
func Driver(v string) zap.Field {
	return zap.String("driver", v)
}

// Count crea un campo de cantidad genérico.
func Count(v uint64) zap.Field {
	return zap.Uint64("count", v)
}

// Err crea el campo de error estándar.
func Err(err error) zap.Field {
	return zap.Error(err)
}
