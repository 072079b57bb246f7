// Package cache implementa el read-through cache multi-tenant: keys
// tenant-scoped, política de freshness explícita, backends pluggables y el
// orquestador que compone backend + journal + fetcher.
//
// La regla central: staleness y aislamiento de tenant son contratos de tipo,
// no convenciones. Una key no se puede construir sin tenant y toda lectura
// declara cuánta staleness tolera.
package cache

import (
	"fmt"

	"github.com/dropDatabas3/entitycache/internal/entity"
	"github.com/google/uuid"
)

// separator entre tenant y el resto de la key en el encoding binario.
const keySeparator = 0xFF

// EncodedKeyLen es el tamaño fijo del encoding binario de una key:
// tenant (16) + separator (1) + tipo (1) + entity (16).
const EncodedKeyLen = 34

// Key es la key tenant-scoped del cache. Los campos son privados y no hay
// constructor parcial: no existe camino de código que produzca una key sin
// tenant, lo que elimina colisiones cross-tenant por construcción.
type Key struct {
	tenant     uuid.UUID
	entityType entity.Type
	entityID   uuid.UUID
}

// NewKey construye una key. Los tres componentes son obligatorios.
func NewKey(tenant uuid.UUID, et entity.Type, id uuid.UUID) (Key, error) {
	if tenant == uuid.Nil {
		return Key{}, fmt.Errorf("%w: tenant vacío", ErrInvalidKey)
	}
	if !et.Valid() {
		return Key{}, fmt.Errorf("%w: entity type %d", ErrInvalidKey, uint8(et))
	}
	if id == uuid.Nil {
		return Key{}, fmt.Errorf("%w: entity id vacío", ErrInvalidKey)
	}
	return Key{tenant: tenant, entityType: et, entityID: id}, nil
}

func (k Key) Tenant() uuid.UUID       { return k.tenant }
func (k Key) EntityType() entity.Type { return k.entityType }
func (k Key) EntityID() uuid.UUID     { return k.entityID }

// Encode serializa la key al formato binario de tamaño fijo. El tenant va
// primero: todas las keys de un tenant comparten prefijo, y los backends
// ordenados pueden barrer un tenant con un range scan.
func (k Key) Encode() [EncodedKeyLen]byte {
	var b [EncodedKeyLen]byte
	copy(b[0:16], k.tenant[:])
	b[16] = keySeparator
	b[17] = k.entityType.Byte()
	copy(b[18:34], k.entityID[:])
	return b
}

// DecodeKey reconstruye una key desde su encoding binario.
func DecodeKey(b []byte) (Key, error) {
	if len(b) != EncodedKeyLen {
		return Key{}, fmt.Errorf("%w: largo %d", ErrInvalidKey, len(b))
	}
	if b[16] != keySeparator {
		return Key{}, fmt.Errorf("%w: separator inválido", ErrInvalidKey)
	}
	et, ok := entity.TypeFromByte(b[17])
	if !ok {
		return Key{}, fmt.Errorf("%w: entity type byte %d", ErrInvalidKey, b[17])
	}
	tenant, err := uuid.FromBytes(b[0:16])
	if err != nil {
		return Key{}, fmt.Errorf("%w: tenant: %v", ErrInvalidKey, err)
	}
	id, err := uuid.FromBytes(b[18:34])
	if err != nil {
		return Key{}, fmt.Errorf("%w: entity id: %v", ErrInvalidKey, err)
	}
	return Key{tenant: tenant, entityType: et, entityID: id}, nil
}

// String devuelve la forma textual "tenant/tipo/id". Se usa como key de
// singleflight y en los backends de key-value textual (redis, gocache).
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.tenant, k.entityType, k.entityID)
}

// TenantPrefix es el prefijo textual que comparten todas las keys de un
// tenant. Cierra con "/" para que un tenant no matchee prefijos de otro.
func TenantPrefix(tenant uuid.UUID) string {
	return tenant.String() + "/"
}

// TenantTypePrefix es el prefijo textual de (tenant, tipo).
func TenantTypePrefix(tenant uuid.UUID, et entity.Type) string {
	return fmt.Sprintf("%s/%s/", tenant, et)
}
