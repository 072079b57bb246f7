package http

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/dropDatabas3/entitycache/internal/observability/logger"
	"github.com/dropDatabas3/entitycache/internal/rate"
	"go.uber.org/zap"
)

// WithRequestID genera (o propaga) el X-Request-ID y lo deja en el header
// de respuesta antes de entrar al handler.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			var b [8]byte
			_, _ = rand.Read(b[:])
			rid = hex.EncodeToString(b[:])
		}
		w.Header().Set("X-Request-ID", rid)
		l := logger.L().With(zap.String("request_id", rid))
		next.ServeHTTP(w, r.WithContext(logger.ToContext(r.Context(), l)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// WithAccessLog loggea método, path, status y latencia por request.
func WithAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.From(r.Context()).Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// WithRateLimit frena operaciones admin abusivas. Con limiter nil es un
// no-op; si el limiter falla (redis caído) la request pasa, el rate limit
// nunca voltea una operación legítima.
func WithRateLimit(l rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), r.Header.Get("X-Admin-Key"))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter degraded", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds()+1)))
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "demasiadas operaciones admin")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdminKey protege los endpoints mutables con X-Admin-Key. Si la
// key configurada está vacía, los endpoints quedan deshabilitados (403):
// fail-closed, nunca abierto por omisión.
func RequireAdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				WriteError(w, http.StatusForbidden, "admin_disabled", "admin api key no configurada")
				return
			}
			got := r.Header.Get("X-Admin-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "admin api key inválida")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
