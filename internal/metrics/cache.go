package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Cache-related Prometheus metrics. Defined in a standalone package to avoid
// import cycles between the cache core and the HTTP/ops packages.

var (
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Hits servidos desde el backend, por política de freshness",
	}, []string{"freshness"})

	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Misses (ausente o stale) que fueron al fetcher, por política",
	}, []string{"freshness"})

	CacheFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_fetches_total",
		Help: "Fetches al system of record por resultado (ok|not_found|error)",
	}, []string{"result"})

	CacheFetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_fetch_duration_seconds",
		Help:    "Latencia del fetch al system of record",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	CacheCoalescedWaitersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_coalesced_waiters_total",
		Help: "Callers que se colgaron de un fetch in-flight ajeno",
	})

	CacheBackendDegradedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_backend_degraded_total",
		Help: "Operaciones de backend que fallaron y degradaron a miss",
	}, []string{"op"})

	CacheJournalDegradedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_journal_degraded_total",
		Help: "Consultas al journal que fallaron y degradaron a fetch directo",
	})

	CacheWatermarkRegressionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_watermark_regressions_total",
		Help: "Entradas desalojadas por watermark por delante del journal",
	})

	CacheStaleServedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_stale_served_total",
		Help: "Lecturas BestEffort servidas stale (is_stale=true)",
	})

	CacheChecksumFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_checksum_failures_total",
		Help: "Entradas descartadas por checksum inválido",
	})

	CacheInvalidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_invalidations_total",
		Help: "Invalidaciones por alcance (key|entity_type|tenant)",
	}, []string{"scope"})
)

// RegisterCache registers the cache metrics on the given registry (or the
// default one if nil). Safe to call more than once.
func RegisterCache(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		CacheHitsTotal,
		CacheMissesTotal,
		CacheFetchesTotal,
		CacheFetchDuration,
		CacheCoalescedWaitersTotal,
		CacheBackendDegradedTotal,
		CacheJournalDegradedTotal,
		CacheWatermarkRegressionsTotal,
		CacheStaleServedTotal,
		CacheChecksumFailuresTotal,
		CacheInvalidationsTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
