// Package pg implementa el StorageFetcher contra el system of record en
// Postgres. Las entidades viven serializadas (jsonb) en la tabla entities,
// con PK (tenant_id, entity_type, entity_id): el tenant siempre forma parte
// del predicado, nunca un filtro opcional.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/entitycache/internal/cache"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Fetcher struct{ pool *pgxpool.Pool }

// Config es el tuning opcional del pool.
type Config struct {
	MaxConns        int
	ConnMaxLifetime string
}

// New abre el pool y verifica conectividad con un ping.
func New(ctx context.Context, dsn string, cfg Config) (*Fetcher, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(cfg.ConnMaxLifetime); err == nil {
			pcfg.MaxConnLifetime = d
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}
	return &Fetcher{pool: pool}, nil
}

// NewWithPool envuelve un pool ya construido (tests, wiring compartido).
func NewWithPool(pool *pgxpool.Pool) *Fetcher { return &Fetcher{pool: pool} }

// Pool expone el pool interno para usos avanzados (metrics/migraciones).
func (f *Fetcher) Pool() *pgxpool.Pool {
	if f == nil {
		return nil
	}
	return f.pool
}

// Close cierra el pool subyacente (idempotente).
func (f *Fetcher) Close() {
	if f != nil && f.pool != nil {
		f.pool.Close()
	}
}

// Fetch devuelve el payload serializado de la entidad, o (nil, nil) si no
// existe. Los errores salen tipados como *cache.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, key cache.Key) ([]byte, error) {
	const q = `SELECT payload FROM entities
	           WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3`

	var payload []byte
	err := f.pool.QueryRow(ctx, q, key.Tenant(), int16(key.EntityType().Byte()), key.EntityID()).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return payload, nil
}

// Upsert escribe una entidad en el system of record (seed/CLI/tests).
func (f *Fetcher) Upsert(ctx context.Context, key cache.Key, payload []byte) error {
	const q = `INSERT INTO entities (tenant_id, entity_type, entity_id, payload, updated_at)
	           VALUES ($1, $2, $3, $4, now())
	           ON CONFLICT (tenant_id, entity_type, entity_id)
	           DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`
	if _, err := f.pool.Exec(ctx, q, key.Tenant(), int16(key.EntityType().Byte()), key.EntityID(), payload); err != nil {
		return classify(err)
	}
	return nil
}

// Delete elimina una entidad del system of record.
func (f *Fetcher) Delete(ctx context.Context, key cache.Key) error {
	const q = `DELETE FROM entities
	           WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3`
	if _, err := f.pool.Exec(ctx, q, key.Tenant(), int16(key.EntityType().Byte()), key.EntityID()); err != nil {
		return classify(err)
	}
	return nil
}

// classify mapea errores de pg a la taxonomía del fetcher. Permisos
// insuficientes (42501, RLS) son PermissionDenied; el resto es IO
// transitorio y el caller decide si reintenta.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42501", "28000":
			return cache.NewFetchError(cache.FetchPermissionDenied, err)
		case "22P02", "22021":
			return cache.NewFetchError(cache.FetchSerialization, err)
		}
	}
	return cache.NewFetchError(cache.FetchTransientIO, err)
}
