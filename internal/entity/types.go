package entity

import (
	"time"

	"github.com/google/uuid"
)

// Tipos concretos del dominio. Solo los campos que viajan por el cache;
// el system of record guarda bastante más.

// Trajectory es la raíz de trabajo de un tenant.
type Trajectory struct {
	TrajectoryID uuid.UUID `json:"trajectory_id"`
	Tenant       uuid.UUID `json:"tenant_id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Trajectory) EntityType() Type      { return TypeTrajectory }
func (t Trajectory) EntityID() uuid.UUID { return t.TrajectoryID }
func (t Trajectory) TenantID() uuid.UUID { return t.Tenant }

// Artifact es una pieza de conocimiento extraída dentro de una trajectory.
type Artifact struct {
	ArtifactID   uuid.UUID `json:"artifact_id"`
	TrajectoryID uuid.UUID `json:"trajectory_id"`
	Tenant       uuid.UUID `json:"tenant_id"`
	Name         string    `json:"name"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Artifact) EntityType() Type      { return TypeArtifact }
func (a Artifact) EntityID() uuid.UUID { return a.ArtifactID }
func (a Artifact) TenantID() uuid.UUID { return a.Tenant }

// Note es una anotación durable, potencialmente compartida entre trajectories.
type Note struct {
	NoteID    uuid.UUID `json:"note_id"`
	Tenant    uuid.UUID `json:"tenant_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Note) EntityType() Type      { return TypeNote }
func (n Note) EntityID() uuid.UUID { return n.NoteID }
func (n Note) TenantID() uuid.UUID { return n.Tenant }
