package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropDatabas3/entitycache/internal/entity"
	"github.com/dropDatabas3/entitycache/internal/journal"
	"github.com/dropDatabas3/entitycache/internal/metrics"
	"github.com/dropDatabas3/entitycache/internal/observability/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// StorageFetcher es el hook al system of record para resolver miss/stale.
// Devuelve el valor serializado, o (nil, nil) si la entidad no existe.
// Los errores deben ser *FetchError; el cache no reintenta.
//
// El orquestador garantiza a lo sumo un Fetch in-flight por key, sin
// importar cuántos callers concurrentes lleguen.
type StorageFetcher interface {
	Fetch(ctx context.Context, key Key) ([]byte, error)
}

// FetcherFunc adapta una función a StorageFetcher.
type FetcherFunc func(ctx context.Context, key Key) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, key Key) ([]byte, error) { return f(ctx, key) }

// ReadThroughConfig configura el orquestador.
type ReadThroughConfig struct {
	// Logger opcional; default logger.Named("cache").
	Logger *zap.Logger
}

// ReadThrough es el orquestador read-through: compone backend + journal +
// fetcher. Una sola instancia por proceso, construida en el arranque e
// inyectada por referencia a los consumidores; no hay singleton escondido.
//
// Máquina de estados conceptual por key:
//
//	Absent → Fetching → Fresh → PossiblyStale → Fetching → Fresh …
//
// con Absent/Fresh alcanzables también vía delete/invalidación bulk.
type ReadThrough struct {
	backend Backend
	jnl     journal.Journal
	fetcher StorageFetcher
	log     *zap.Logger
	sf      singleflight.Group
}

// NewReadThrough arma el orquestador. Los tres colaboradores son
// obligatorios.
func NewReadThrough(backend Backend, jnl journal.Journal, fetcher StorageFetcher, cfg ReadThroughConfig) (*ReadThrough, error) {
	if backend == nil || jnl == nil || fetcher == nil {
		return nil, fmt.Errorf("cache: backend, journal y fetcher son obligatorios")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Named("cache")
	}
	return &ReadThrough{backend: backend, jnl: jnl, fetcher: fetcher, log: log}, nil
}

// Backend expone el backend para wiring avanzado (stats endpoint).
func (c *ReadThrough) Backend() Backend { return c.backend }

// Journal expone el journal (mutation path del resto del sistema).
func (c *ReadThrough) Journal() journal.Journal { return c.jnl }

// Stats devuelve los contadores del backend.
func (c *ReadThrough) Stats(ctx context.Context) (Stats, error) {
	return c.backend.Stats(ctx)
}

// Close cierra el backend.
func (c *ReadThrough) Close() error { return c.backend.Close() }

func freshnessLabel(f Freshness) string {
	if f.IsConsistent() {
		return "consistent"
	}
	return "best_effort"
}

// readResult es el resultado interno (pre-deserialización) de una lectura.
type readResult struct {
	entry     *Entry
	stale     bool
	fromCache bool
}

// RawRead es el resultado de una lectura de bajo nivel, sin deserializar.
type RawRead struct {
	Value     []byte
	CachedAt  time.Time
	Watermark uint64
	IsStale   bool
	FromCache bool
}

// GetRaw es la lectura de bajo nivel sobre bytes serializados. La capa
// genérica (Get) es la API pública normal; esto queda exportado para
// consumidores que manejan su propia serialización (p.ej. el endpoint
// HTTP que hace passthrough del payload).
//
// Devuelve (nil, nil) si la entidad no existe en el system of record.
func (c *ReadThrough) GetRaw(ctx context.Context, key Key, f Freshness) (*RawRead, error) {
	res, err := c.getEntry(ctx, key, f)
	if err != nil || res == nil {
		return nil, err
	}
	return &RawRead{
		Value:     res.entry.Value,
		CachedAt:  res.entry.CachedAt,
		Watermark: res.entry.Watermark,
		IsStale:   res.stale,
		FromCache: res.fromCache,
	}, nil
}

func (c *ReadThrough) getEntry(ctx context.Context, key Key, f Freshness) (*readResult, error) {
	entry, err := c.backend.Get(ctx, key)
	if err != nil {
		// Backend caído: degradar a always-miss. Toda lectura va al fetcher
		// hasta que el backend se recupere; nunca es un error para el caller.
		metrics.CacheBackendDegradedTotal.WithLabelValues("get").Inc()
		c.log.Warn("backend get degraded to miss", logger.CacheKey(key.String()), logger.Err(err))
		entry = nil
	}

	if entry != nil && !entry.Verify() {
		metrics.CacheChecksumFailuresTotal.Inc()
		c.log.Warn("checksum mismatch, evicting entry", logger.CacheKey(key.String()))
		c.deleteQuiet(ctx, key)
		entry = nil
	}

	if entry != nil {
		if f.IsConsistent() {
			wm, ok := c.observeWatermark(ctx, key)
			switch {
			case !ok:
				// Journal inaccesible: no se puede verificar consistencia
				// desde el cache; leer del origen es trivialmente consistente.
			case entry.Watermark > wm:
				// Regression: el ledger quedó por detrás de la entrada
				// (reset operacional). Desalojar y refetchear, jamás panic.
				metrics.CacheWatermarkRegressionsTotal.Inc()
				c.log.Warn("watermark regression, evicting entry",
					logger.CacheKey(key.String()), logger.Watermark(entry.Watermark), zap.Uint64("journal_watermark", wm))
				c.deleteQuiet(ctx, key)
			case entry.Watermark == wm:
				metrics.CacheHitsTotal.WithLabelValues("consistent").Inc()
				return &readResult{entry: entry, fromCache: true}, nil
			}
			// Watermark viejo: cae al fetch sin descartar la entrada todavía.
		} else {
			age := time.Since(entry.CachedAt)
			if age <= f.MaxStaleness() {
				metrics.CacheHitsTotal.WithLabelValues("best_effort").Inc()
				return &readResult{entry: entry, fromCache: true}, nil
			}
			// Más vieja que la tolerancia: servir stale marcado y refrescar
			// atrás (stale-while-revalidate). El caller eligió latencia; el
			// refresh corre desacoplado y sobrevive al caller.
			metrics.CacheStaleServedTotal.Inc()
			c.log.Debug("serving stale entry, refreshing in background",
				logger.CacheKey(key.String()), logger.Staleness(age))
			go func() {
				if _, err := c.fetchShared(context.WithoutCancel(ctx), key); err != nil {
					c.log.Debug("background refresh failed", logger.CacheKey(key.String()), logger.Err(err))
				}
			}()
			return &readResult{entry: entry, stale: true, fromCache: true}, nil
		}
	}

	metrics.CacheMissesTotal.WithLabelValues(freshnessLabel(f)).Inc()
	fetched, err := c.fetchShared(ctx, key)
	if err != nil {
		return nil, err
	}
	if fetched == nil {
		return nil, nil
	}
	return &readResult{entry: fetched}, nil
}

// fetchShared se cuelga del fetch in-flight de la key, o lo crea. Un caller
// que cancela se desengancha sin matar el fetch compartido: el resto de los
// waiters (y el backend) se benefician igual de su resultado.
func (c *ReadThrough) fetchShared(ctx context.Context, key Key) (*Entry, error) {
	ch := c.sf.DoChan(key.String(), func() (interface{}, error) {
		return c.fetchAndStore(context.WithoutCancel(ctx), key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.CacheCoalescedWaitersTotal.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		entry, _ := res.Val.(*Entry)
		return entry, nil
	}
}

// fetchAndStore ejecuta el único fetch de la key y puebla el backend.
// Devuelve (nil, nil) para "no existe".
func (c *ReadThrough) fetchAndStore(ctx context.Context, key Key) (*Entry, error) {
	wmBefore, jok := c.observeWatermark(ctx, key)

	start := time.Now()
	value, err := c.fetcher.Fetch(ctx, key)
	metrics.CacheFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		// Nunca cachear fallas como negativos; la entrada previa (si la hay)
		// queda intacta y recuperable por BestEffort.
		metrics.CacheFetchesTotal.WithLabelValues("error").Inc()
		return nil, &FetchFailedError{Err: err}
	}
	if value == nil {
		metrics.CacheFetchesTotal.WithLabelValues("not_found").Inc()
		// Borrar cualquier remanente stale; "no existe" se reporta arriba.
		c.deleteQuiet(ctx, key)
		return nil, nil
	}
	metrics.CacheFetchesTotal.WithLabelValues("ok").Inc()

	wm := wmBefore
	if jok {
		if wmAfter, ok := c.observeWatermark(ctx, key); ok && wmAfter > wmBefore {
			// El scope avanzó durante el fetch: exactamente un refetch
			// acotado para no servir un valor ya pisado, y se acepta lo que
			// venga (sin livelock).
			value2, err2 := c.fetcher.Fetch(ctx, key)
			switch {
			case err2 != nil:
				c.log.Warn("bounded refetch failed, keeping first result",
					logger.CacheKey(key.String()), logger.Err(err2))
			case value2 == nil:
				metrics.CacheFetchesTotal.WithLabelValues("not_found").Inc()
				c.deleteQuiet(ctx, key)
				return nil, nil
			default:
				value = value2
				if wmFinal, ok := c.observeWatermark(ctx, key); ok {
					wmAfter = wmFinal
				}
			}
			wm = wmAfter
		}
	}

	entry := NewEntry(value, time.Now().UTC(), wm)
	if perr := c.backend.Put(ctx, key, entry); perr != nil {
		// Servir igual: el backend degradado no voltea la lectura.
		metrics.CacheBackendDegradedTotal.WithLabelValues("put").Inc()
		c.log.Warn("backend put degraded", logger.CacheKey(key.String()), logger.Err(perr))
	}
	return entry, nil
}

// observeWatermark devuelve el máximo watermark de los tres scopes que
// encierran la key (key, tenant+tipo, tenant): las invalidaciones bulk
// suben los scopes anchos y deben pisar a las entradas puntuales.
func (c *ReadThrough) observeWatermark(ctx context.Context, key Key) (uint64, bool) {
	scopes := [3]journal.Scope{
		journal.KeyScope(key.Tenant(), key.EntityType(), key.EntityID()),
		journal.TypeScope(key.Tenant(), key.EntityType()),
		journal.TenantScope(key.Tenant()),
	}
	var max uint64
	for _, s := range scopes {
		wm, err := c.jnl.CurrentWatermark(ctx, s)
		if err != nil {
			metrics.CacheJournalDegradedTotal.Inc()
			c.log.Warn("journal degraded", logger.CacheKey(key.String()), logger.Err(err))
			return 0, false
		}
		if wm > max {
			max = wm
		}
	}
	return max, true
}

func (c *ReadThrough) deleteQuiet(ctx context.Context, key Key) {
	if err := c.backend.Delete(ctx, key); err != nil {
		metrics.CacheBackendDegradedTotal.WithLabelValues("delete").Inc()
		c.log.Warn("backend delete degraded", logger.CacheKey(key.String()), logger.Err(err))
	}
}

// ─────────────────────────── invalidación ───────────────────────────

// InvalidateKey registra el scope puntual en el journal y borra la entrada
// del backend. El registro va primero: es el backstop crash-safe; el delete
// es solo la optimización eager.
func (c *ReadThrough) InvalidateKey(ctx context.Context, key Key) error {
	scope := journal.KeyScope(key.Tenant(), key.EntityType(), key.EntityID())
	if _, err := c.jnl.Record(ctx, scope); err != nil {
		return fmt.Errorf("cache: record invalidation: %w", err)
	}
	c.deleteQuiet(ctx, key)
	metrics.CacheInvalidationsTotal.WithLabelValues("key").Inc()
	return nil
}

// InvalidateTenant registra el bump de scope tenant (visible para lecturas
// Consistent in-flight) y borra todas las entradas del tenant. Devuelve
// cuántas entradas se eliminaron del backend.
func (c *ReadThrough) InvalidateTenant(ctx context.Context, tenant uuid.UUID) (uint64, error) {
	if _, err := c.jnl.Record(ctx, journal.TenantScope(tenant)); err != nil {
		return 0, fmt.Errorf("cache: record tenant invalidation: %w", err)
	}
	count, err := c.backend.InvalidateTenant(ctx, tenant)
	if err != nil {
		metrics.CacheBackendDegradedTotal.WithLabelValues("invalidate_tenant").Inc()
		c.log.Warn("tenant invalidation degraded, journal bump recorded",
			logger.TenantID(tenant), logger.Err(err))
		return 0, nil
	}
	metrics.CacheInvalidationsTotal.WithLabelValues("tenant").Inc()
	c.log.Info("tenant invalidated", logger.TenantID(tenant), logger.Count(count))
	return count, nil
}

// InvalidateEntityType es la variante (tenant, tipo) de InvalidateTenant.
func (c *ReadThrough) InvalidateEntityType(ctx context.Context, tenant uuid.UUID, et entity.Type) (uint64, error) {
	if _, err := c.jnl.Record(ctx, journal.TypeScope(tenant, et)); err != nil {
		return 0, fmt.Errorf("cache: record type invalidation: %w", err)
	}
	count, err := c.backend.InvalidateEntityType(ctx, tenant, et)
	if err != nil {
		metrics.CacheBackendDegradedTotal.WithLabelValues("invalidate_entity_type").Inc()
		c.log.Warn("entity type invalidation degraded, journal bump recorded",
			logger.TenantID(tenant), logger.EntityType(et), logger.Err(err))
		return 0, nil
	}
	metrics.CacheInvalidationsTotal.WithLabelValues("entity_type").Inc()
	return count, nil
}

// ─────────────────────────── API genérica ───────────────────────────

// Get busca una entidad bajo la freshness dada. Devuelve (nil, nil) si la
// entidad no existe: el caller siempre distingue "no existe" de "no se
// pudo determinar" (error).
//
// T se especifica como type parameter; su zero value debe responder
// EntityType() (ver entity.Cacheable).
func Get[T entity.Cacheable](ctx context.Context, c *ReadThrough, tenant, id uuid.UUID, f Freshness) (*Read[T], error) {
	var zero T
	key, err := NewKey(tenant, zero.EntityType(), id)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		res, err := c.getEntry(ctx, key, f)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, nil
		}
		var v T
		if uerr := json.Unmarshal(res.entry.Value, &v); uerr != nil {
			// Valor indecodeable: desalojar y reintentar una única vez por
			// el camino del fetch; si el origen también viene roto, es error.
			metrics.CacheChecksumFailuresTotal.Inc()
			c.deleteQuiet(ctx, key)
			if attempt == 0 {
				continue
			}
			return nil, &FetchFailedError{Err: NewFetchError(FetchSerialization, uerr)}
		}
		return &Read[T]{
			Value:     v,
			CachedAt:  res.entry.CachedAt,
			IsStale:   res.stale,
			Watermark: res.entry.Watermark,
			FromCache: res.fromCache,
		}, nil
	}
}

// RecordMutation registra en el journal la mutación de v y hace
// write-through del valor nuevo con el watermark fresco. Llamar después de
// que el commit al system of record quede firme y antes de reportar éxito
// hacia arriba: ningún observador externo puede ver el valor nuevo sin que
// el watermark nuevo sea visible.
//
// El write-through es una optimización (le ahorra el refetch al próximo
// lector); la correctitud la da el Record.
func RecordMutation[T entity.Cacheable](ctx context.Context, c *ReadThrough, v T) (uint64, error) {
	key, err := NewKey(v.TenantID(), v.EntityType(), v.EntityID())
	if err != nil {
		return 0, err
	}
	wm, err := c.jnl.Record(ctx, journal.KeyScope(key.Tenant(), key.EntityType(), key.EntityID()))
	if err != nil {
		return 0, fmt.Errorf("cache: record mutation: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		// El journal ya quedó registrado: la correctitud está a salvo,
		// solo se pierde la optimización.
		c.log.Warn("write-through marshal failed", logger.CacheKey(key.String()), logger.Err(err))
		return wm, nil
	}
	entry := NewEntry(data, time.Now().UTC(), wm)
	if perr := c.backend.Put(ctx, key, entry); perr != nil {
		metrics.CacheBackendDegradedTotal.WithLabelValues("put").Inc()
		c.log.Warn("write-through put degraded", logger.CacheKey(key.String()), logger.Err(perr))
	}
	return wm, nil
}

// RecordDeletion registra la eliminación de una entidad: journal primero
// como backstop, delete eager del backend después.
func RecordDeletion[T entity.Cacheable](ctx context.Context, c *ReadThrough, tenant, id uuid.UUID) (uint64, error) {
	var zero T
	key, err := NewKey(tenant, zero.EntityType(), id)
	if err != nil {
		return 0, err
	}
	wm, err := c.jnl.Record(ctx, journal.KeyScope(key.Tenant(), key.EntityType(), key.EntityID()))
	if err != nil {
		return 0, fmt.Errorf("cache: record deletion: %w", err)
	}
	c.deleteQuiet(ctx, key)
	return wm, nil
}
