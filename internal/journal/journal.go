// Package journal implementa el ledger de invalidación: un registro
// append-only de "este scope fue mutado", con watermarks estrictamente
// crecientes. El cache lo consulta; solo el mutation path lo escribe.
//
// Contrato con el resto del sistema: todo componente que commitea una
// escritura sobre una entidad debe llamar Record(scope) inmediatamente
// después del commit y antes de reportar éxito hacia arriba. Ese es el
// único punto de acople entre el cache y el resto del sistema.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/entitycache/internal/entity"
	"github.com/google/uuid"
)

// Errores del journal.
var (
	// ErrUnavailable indica que el ledger no está accesible (conexión caída,
	// etc.). El cache degrada a fetch directo; nunca es fatal para lecturas.
	ErrUnavailable = errors.New("journal: unavailable")

	// ErrWatermarkRegression indica que se observó un watermark menor al ya
	// conocido para un scope. Operacionalmente esperable (reset del ledger);
	// el cache desaloja la entrada afectada y sigue.
	ErrWatermarkRegression = errors.New("journal: watermark regression")
)

// ScopeKind distingue la granularidad de un scope.
type ScopeKind uint8

const (
	// ScopeKey apunta a una entidad puntual.
	ScopeKey ScopeKind = iota
	// ScopeEntityType cubre todas las entidades de un tipo dentro del tenant.
	ScopeEntityType
	// ScopeTenant cubre todo el tenant (invalidación bulk).
	ScopeTenant
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeKey:
		return "key"
	case ScopeEntityType:
		return "entity_type"
	case ScopeTenant:
		return "tenant"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Scope identifica qué se mutó. Inmutable; construir solo con los
// constructores (el tenant es obligatorio en los tres niveles).
type Scope struct {
	kind       ScopeKind
	tenant     uuid.UUID
	entityType entity.Type
	entityID   uuid.UUID
}

// KeyScope construye el scope puntual de una entidad.
func KeyScope(tenant uuid.UUID, et entity.Type, id uuid.UUID) Scope {
	return Scope{kind: ScopeKey, tenant: tenant, entityType: et, entityID: id}
}

// TypeScope construye el scope (tenant, entity_type).
func TypeScope(tenant uuid.UUID, et entity.Type) Scope {
	return Scope{kind: ScopeEntityType, tenant: tenant, entityType: et}
}

// TenantScope construye el scope de tenant completo.
func TenantScope(tenant uuid.UUID) Scope {
	return Scope{kind: ScopeTenant, tenant: tenant}
}

func (s Scope) Kind() ScopeKind         { return s.kind }
func (s Scope) Tenant() uuid.UUID       { return s.tenant }
func (s Scope) EntityType() entity.Type { return s.entityType }
func (s Scope) EntityID() uuid.UUID     { return s.entityID }

// String devuelve una representación canónica, usable como map key.
func (s Scope) String() string {
	switch s.kind {
	case ScopeKey:
		return fmt.Sprintf("k/%s/%s/%s", s.tenant, s.entityType, s.entityID)
	case ScopeEntityType:
		return fmt.Sprintf("t/%s/%s", s.tenant, s.entityType)
	default:
		return fmt.Sprintf("T/%s", s.tenant)
	}
}

// Entry es una entrada del ledger. Nunca se muta ni se reescribe.
type Entry struct {
	Scope      Scope
	Watermark  uint64
	OccurredAt time.Time
}

// Journal es el ledger de invalidación.
//
// Record asigna el próximo watermark (estrictamente creciente dentro de la
// instancia) y lo asocia al scope. CurrentWatermark devuelve el último
// watermark registrado exactamente en ese scope, 0 si nunca se registró.
// La lectura Consistent compara contra el máximo de los tres scopes que
// encierran una key; por eso un Record a nivel tenant invalida todo lo de
// abajo sin tocar los scopes puntuales.
type Journal interface {
	CurrentWatermark(ctx context.Context, scope Scope) (uint64, error)
	Record(ctx context.Context, scope Scope) (uint64, error)

	// Entries devuelve las entradas de un tenant con watermark > since,
	// en orden creciente. Para debugging y reconciliación.
	Entries(ctx context.Context, tenant uuid.UUID, since uint64) ([]Entry, error)

	// Prune descarta entradas anteriores a before. Nunca descarta la última
	// marca de un scope: el watermark vigente sobrevive siempre.
	Prune(ctx context.Context, tenant uuid.UUID, before time.Time) (uint64, error)
}
