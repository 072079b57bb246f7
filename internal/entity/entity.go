// Package entity define el dominio cacheable: el enum cerrado de tipos de
// entidad y la capability Cacheable que debe implementar cualquier tipo que
// quiera pasar por el cache. Sin reflection: cada tipo concreto declara su
// Type de forma explícita.
package entity

import (
	"fmt"

	"github.com/google/uuid"
)

// Type identifica la clase de entidad. El valor numérico es el discriminante
// estable que se serializa en las keys del cache; no reordenar.
type Type uint8

const (
	TypeTrajectory Type = iota
	TypeScope
	TypeArtifact
	TypeNote
	TypeTurn
	TypeLock
	TypeMessage
	TypeAgent
	TypeDelegation
	TypeHandoff
	TypeConflict
	TypeEdge
	TypeEvolutionSnapshot
	TypeSummarizationPolicy

	typeSentinel // mantener al final
)

var typeNames = [...]string{
	TypeTrajectory:          "trajectory",
	TypeScope:               "scope",
	TypeArtifact:            "artifact",
	TypeNote:                "note",
	TypeTurn:                "turn",
	TypeLock:                "lock",
	TypeMessage:             "message",
	TypeAgent:               "agent",
	TypeDelegation:          "delegation",
	TypeHandoff:             "handoff",
	TypeConflict:            "conflict",
	TypeEdge:                "edge",
	TypeEvolutionSnapshot:   "evolution_snapshot",
	TypeSummarizationPolicy: "summarization_policy",
}

// Valid reporta si t es un discriminante conocido.
func (t Type) Valid() bool { return t < typeSentinel }

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("type(%d)", uint8(t))
	}
	return typeNames[t]
}

// Byte devuelve el discriminante de un byte usado en el encoding de keys.
func (t Type) Byte() byte { return byte(t) }

// TypeFromByte reconstruye un Type desde su discriminante.
// ok=false si el byte no corresponde a ningún tipo conocido.
func TypeFromByte(b byte) (Type, bool) {
	t := Type(b)
	return t, t.Valid()
}

// ParseType acepta el nombre en snake_case ("note", "evolution_snapshot").
func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if name == s {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("entity: unknown type %q", s)
}

// Types devuelve todos los tipos conocidos (orden por discriminante).
func Types() []Type {
	out := make([]Type, typeSentinel)
	for i := range out {
		out[i] = Type(i)
	}
	return out
}

// Cacheable es la capability que implementa cada tipo de dominio que quiere
// pasar por el cache. EntityType() debe responder también sobre el zero
// value del tipo: la capa genérica lo invoca sin tener una instancia real.
type Cacheable interface {
	EntityType() Type
	EntityID() uuid.UUID
	TenantID() uuid.UUID
}
