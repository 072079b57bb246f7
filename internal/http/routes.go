package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dropDatabas3/entitycache/internal/cache"
	"github.com/dropDatabas3/entitycache/internal/entity"
	"github.com/dropDatabas3/entitycache/internal/journal"
	"github.com/dropDatabas3/entitycache/internal/rate"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps agrupa lo que el router necesita del resto del servicio.
type Deps struct {
	Cache       *cache.ReadThrough
	AdminAPIKey string
	// AdminLimiter opcional; nil deshabilita el rate limit.
	AdminLimiter rate.Limiter
}

// NewRouter arma el chi.Mux con la superficie operacional completa:
//
//	GET  /healthz
//	GET  /readyz
//	GET  /metrics
//	GET  /v1/cache/stats
//	GET  /v1/entities/{tenantID}/{entityType}/{entityID}
//	POST /v1/cache/invalidate/tenants/{tenantID}            (admin)
//	POST /v1/cache/invalidate/tenants/{tenantID}/types/{t}  (admin)
//	POST /v1/cache/invalidate/keys                          (admin)
//	GET  /v1/journal/{tenantID}                             (admin)
//	POST /v1/journal/{tenantID}/prune                       (admin)
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(WithRequestID, WithAccessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if _, err := deps.Cache.Stats(req.Context()); err != nil {
			WriteError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/v1/cache/stats", func(w http.ResponseWriter, req *http.Request) {
		st, err := deps.Cache.Stats(req.Context())
		if err != nil {
			WriteError(w, http.StatusServiceUnavailable, "backend_unavailable", err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, st)
	})

	r.Get("/v1/entities/{tenantID}/{entityType}/{entityID}", handleGetEntity(deps.Cache))

	r.Group(func(r chi.Router) {
		r.Use(RequireAdminKey(deps.AdminAPIKey), WithRateLimit(deps.AdminLimiter))

		r.Post("/v1/cache/invalidate/tenants/{tenantID}", handleInvalidateTenant(deps.Cache))
		r.Post("/v1/cache/invalidate/tenants/{tenantID}/types/{entityType}", handleInvalidateType(deps.Cache))
		r.Post("/v1/cache/invalidate/keys", handleInvalidateKey(deps.Cache))
		r.Get("/v1/journal/{tenantID}", handleJournalEntries(deps.Cache.Journal()))
		r.Post("/v1/journal/{tenantID}/prune", handleJournalPrune(deps.Cache.Journal()))
	})

	return r
}

func urlTenant(r *http.Request) (uuid.UUID, bool) {
	t, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	return t, err == nil
}

func urlEntityType(r *http.Request) (entity.Type, bool) {
	et, err := entity.ParseType(chi.URLParam(r, "entityType"))
	return et, err == nil
}

// parseFreshness interpreta los query params de la lectura:
// ?freshness=consistent (default) | best_effort, ?max_staleness=30s.
func parseFreshness(r *http.Request) (cache.Freshness, bool) {
	switch r.URL.Query().Get("freshness") {
	case "", "consistent":
		return cache.Consistent(), true
	case "best_effort":
		raw := r.URL.Query().Get("max_staleness")
		if raw == "" {
			raw = "30s"
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return cache.Freshness{}, false
		}
		return cache.BestEffort(d), true
	default:
		return cache.Freshness{}, false
	}
}

func handleGetEntity(c *cache.ReadThrough) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := urlTenant(r)
		if !ok {
			WriteError(w, http.StatusBadRequest, "invalid_tenant", "tenant id inválido")
			return
		}
		et, ok := urlEntityType(r)
		if !ok {
			WriteError(w, http.StatusBadRequest, "invalid_entity_type", "tipo de entidad desconocido")
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "entityID"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_entity_id", "entity id inválido")
			return
		}
		f, ok := parseFreshness(r)
		if !ok {
			WriteError(w, http.StatusBadRequest, "invalid_freshness", "freshness=consistent|best_effort, max_staleness=duración")
			return
		}

		key, err := cache.NewKey(tenant, et, id)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_key", err.Error())
			return
		}
		read, err := c.GetRaw(r.Context(), key, f)
		if err != nil {
			if cache.IsFetchFailed(err) {
				WriteError(w, http.StatusBadGateway, "fetch_failed", err.Error())
				return
			}
			WriteError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		if read == nil {
			WriteError(w, http.StatusNotFound, "not_found", "la entidad no existe")
			return
		}

		h := w.Header()
		h.Set("Content-Type", "application/json; charset=utf-8")
		h.Set("X-Cache-Watermark", strconv.FormatUint(read.Watermark, 10))
		h.Set("X-Cache-Stale", strconv.FormatBool(read.IsStale))
		if read.FromCache {
			h.Set("X-Cache", "hit")
		} else {
			h.Set("X-Cache", "miss")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(read.Value)
	}
}

func handleInvalidateTenant(c *cache.ReadThrough) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := urlTenant(r)
		if !ok {
			WriteError(w, http.StatusBadRequest, "invalid_tenant", "tenant id inválido")
			return
		}
		count, err := c.InvalidateTenant(r.Context(), tenant)
		if err != nil {
			WriteError(w, http.StatusServiceUnavailable, "journal_unavailable", err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"invalidated": count})
	}
}

func handleInvalidateType(c *cache.ReadThrough) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := urlTenant(r)
		if !ok {
			WriteError(w, http.StatusBadRequest, "invalid_tenant", "tenant id inválido")
			return
		}
		et, ok := urlEntityType(r)
		if !ok {
			WriteError(w, http.StatusBadRequest, "invalid_entity_type", "tipo de entidad desconocido")
			return
		}
		count, err := c.InvalidateEntityType(r.Context(), tenant, et)
		if err != nil {
			WriteError(w, http.StatusServiceUnavailable, "journal_unavailable", err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"invalidated": count})
	}
}

type invalidateKeyReq struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
}

func handleInvalidateKey(c *cache.ReadThrough) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req invalidateKeyReq
		if !ReadJSON(w, r, &req) {
			return
		}
		et, err := entity.ParseType(req.EntityType)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_entity_type", "tipo de entidad desconocido")
			return
		}
		key, err := cache.NewKey(req.TenantID, et, req.EntityID)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_key", err.Error())
			return
		}
		if err := c.InvalidateKey(r.Context(), key); err != nil {
			WriteError(w, http.StatusServiceUnavailable, "journal_unavailable", err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"invalidated": 1})
	}
}

type journalEntryDTO struct {
	Scope      string    `json:"scope"`
	Watermark  uint64    `json:"watermark"`
	OccurredAt time.Time `json:"occurred_at"`
}

func handleJournalEntries(j journal.Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := urlTenant(r)
		if !ok {
			WriteError(w, http.StatusBadRequest, "invalid_tenant", "tenant id inválido")
			return
		}
		var since uint64
		if raw := r.URL.Query().Get("since"); raw != "" {
			v, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "invalid_since", "since debe ser un watermark")
				return
			}
			since = v
		}
		entries, err := j.Entries(r.Context(), tenant, since)
		if err != nil {
			WriteError(w, http.StatusServiceUnavailable, "journal_unavailable", err.Error())
			return
		}
		out := make([]journalEntryDTO, 0, len(entries))
		for _, e := range entries {
			out = append(out, journalEntryDTO{
				Scope:      e.Scope.String(),
				Watermark:  e.Watermark,
				OccurredAt: e.OccurredAt,
			})
		}
		WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
	}
}

type pruneReq struct {
	Before time.Time `json:"before"`
}

func handleJournalPrune(j journal.Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := urlTenant(r)
		if !ok {
			WriteError(w, http.StatusBadRequest, "invalid_tenant", "tenant id inválido")
			return
		}
		var req pruneReq
		if !ReadJSON(w, r, &req) {
			return
		}
		if req.Before.IsZero() {
			WriteError(w, http.StatusBadRequest, "invalid_before", "before debe ser RFC3339")
			return
		}
		pruned, err := j.Prune(r.Context(), tenant, req.Before)
		if err != nil {
			WriteError(w, http.StatusServiceUnavailable, "journal_unavailable", err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"pruned": pruned})
	}
}
