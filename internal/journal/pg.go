package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/entitycache/internal/entity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG es el Journal durable sobre postgres: una tabla append-only con un
// watermark bigserial. El serial garantiza monotonicidad estricta aun con
// varios procesos escribiendo.
//
// Schema en migrations/postgres (0001_change_journal_up.sql).
type PG struct {
	pool *pgxpool.Pool
}

// NewPG crea el journal sobre un pool existente. No toma ownership: cerrar
// el pool es responsabilidad de quien lo creó.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

// OpenPG abre un pool propio a partir del DSN y verifica la conexión.
func OpenPG(ctx context.Context, dsn string) (*PG, *pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("journal: parse dsn: %w", err)
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 8
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("journal: pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("journal: ping: %w", err)
	}
	return NewPG(pool), pool, nil
}

// scopeCols descompone un Scope en las columnas nullable de la tabla.
func scopeCols(s Scope) (kind int16, et *int16, id *uuid.UUID) {
	kind = int16(s.Kind())
	switch s.Kind() {
	case ScopeKey:
		t := int16(s.EntityType())
		e := s.EntityID()
		return kind, &t, &e
	case ScopeEntityType:
		t := int16(s.EntityType())
		return kind, &t, nil
	default:
		return kind, nil, nil
	}
}

func (p *PG) CurrentWatermark(ctx context.Context, scope Scope) (uint64, error) {
	kind, et, id := scopeCols(scope)
	var wm int64
	err := p.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(watermark), 0)
		FROM change_journal
		WHERE tenant_id = $1 AND scope_kind = $2
		  AND entity_type IS NOT DISTINCT FROM $3
		  AND entity_id IS NOT DISTINCT FROM $4`,
		scope.Tenant(), kind, et, id).Scan(&wm)
	if err != nil {
		return 0, fmt.Errorf("%w: current_watermark: %v", ErrUnavailable, err)
	}
	return uint64(wm), nil
}

func (p *PG) Record(ctx context.Context, scope Scope) (uint64, error) {
	kind, et, id := scopeCols(scope)
	var wm int64
	err := p.pool.QueryRow(ctx, `
		INSERT INTO change_journal (tenant_id, scope_kind, entity_type, entity_id)
		VALUES ($1, $2, $3, $4)
		RETURNING watermark`,
		scope.Tenant(), kind, et, id).Scan(&wm)
	if err != nil {
		return 0, fmt.Errorf("%w: record: %v", ErrUnavailable, err)
	}
	return uint64(wm), nil
}

func (p *PG) Entries(ctx context.Context, tenant uuid.UUID, since uint64) ([]Entry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT watermark, scope_kind, entity_type, entity_id, occurred_at
		FROM change_journal
		WHERE tenant_id = $1 AND watermark > $2
		ORDER BY watermark`,
		tenant, int64(since))
	if err != nil {
		return nil, fmt.Errorf("%w: entries: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			wm         int64
			kind       int16
			et         *int16
			id         *uuid.UUID
			occurredAt time.Time
		)
		if err := rows.Scan(&wm, &kind, &et, &id, &occurredAt); err != nil {
			return nil, fmt.Errorf("%w: entries scan: %v", ErrUnavailable, err)
		}
		var scope Scope
		switch {
		case ScopeKind(kind) == ScopeKey && et != nil && id != nil:
			scope = KeyScope(tenant, entity.Type(*et), *id)
		case ScopeKind(kind) == ScopeEntityType && et != nil:
			scope = TypeScope(tenant, entity.Type(*et))
		case ScopeKind(kind) == ScopeTenant:
			scope = TenantScope(tenant)
		default:
			// Fila que viola chk_scope (columnas NULL que el kind exige):
			// mejor cortar que derreferenciar un nil.
			return nil, fmt.Errorf("%w: entries: fila malformada (watermark=%d scope_kind=%d)", ErrUnavailable, wm, kind)
		}
		out = append(out, Entry{Scope: scope, Watermark: uint64(wm), OccurredAt: occurredAt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: entries rows: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (p *PG) Prune(ctx context.Context, tenant uuid.UUID, before time.Time) (uint64, error) {
	// La última marca por scope no se borra: es el watermark vigente.
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM change_journal cj
		WHERE cj.tenant_id = $1 AND cj.occurred_at < $2
		  AND cj.watermark NOT IN (
			SELECT MAX(watermark)
			FROM change_journal
			WHERE tenant_id = $1
			GROUP BY scope_kind, entity_type, entity_id
		  )`,
		tenant, before)
	if err != nil {
		return 0, fmt.Errorf("%w: prune: %v", ErrUnavailable, err)
	}
	return uint64(tag.RowsAffected()), nil
}
