// Package httpapi exposes a wait.Store over HTTP: GET/POST against
// /rec/{record_id}/{record_version}, with OLDEST/NEWEST pointer
// literals and a bounded-wait timeout query parameter.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/smurn/renat/internal/wait"
)

const (
	minTimeout = 0
	maxTimeout = 60 * time.Second
)

// Server wires a wait.Store to an http.Handler.
type Server struct {
	store *wait.Store
	log   *zap.Logger
	reg   *prometheus.Registry
	mux   chi.Router

	metrics *metrics
}

type metrics struct {
	hits           prometheus.Gauge
	misses         prometheus.Gauge
	puts           prometheus.Gauge
	idempotentPuts prometheus.Gauge
	evictions      prometheus.Gauge
	capacityErrors prometheus.Gauge
	versionWaiters prometheus.Gauge
	pointerWaiters prometheus.Gauge

	waitersCreated   prometheus.Gauge
	waitersFired     prometheus.Gauge
	waitersCancelled prometheus.Gauge
	waitersTimedOut  prometheus.Gauge
}

// New builds a Server. reg may be nil, in which case a private
// registry is created (so tests can build multiple Servers without
// colliding on the global default registry).
func New(store *wait.Store, log *zap.Logger, reg *prometheus.Registry) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		store: store,
		log:   log,
		reg:   reg,
		metrics: &metrics{
			hits:           newGauge(reg, "renat_engine_hits_total", "Successful get calls."),
			misses:         newGauge(reg, "renat_engine_misses_total", "Get calls for an absent record/version."),
			puts:           newGauge(reg, "renat_engine_puts_total", "Put calls that created a new version."),
			idempotentPuts: newGauge(reg, "renat_engine_idempotent_puts_total", "Put calls resolved as idempotent replays."),
			evictions:      newGauge(reg, "renat_engine_evictions_total", "Records removed by idle eviction."),
			capacityErrors: newGauge(reg, "renat_engine_capacity_errors_total", "Put calls rejected for lack of capacity."),
			versionWaiters: newGauge(reg, "renat_wait_version_waiters", "Distinct (id, version) keys with a pending waiter."),
			pointerWaiters: newGauge(reg, "renat_wait_pointer_waiters", "Distinct ids with a pending OLDEST/NEWEST waiter."),

			waitersCreated:   newGauge(reg, "renat_wait_waiters_created_total", "Waiters ever registered."),
			waitersFired:     newGauge(reg, "renat_wait_waiters_fired_total", "Waiters resolved by a matching put."),
			waitersCancelled: newGauge(reg, "renat_wait_waiters_cancelled_total", "Waiters that left the registry via an explicit cancel."),
			waitersTimedOut:  newGauge(reg, "renat_wait_waiters_timed_out_total", "Waiters that left the registry because their context expired."),
		},
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/rec/{record_id:[0-9A-Za-z_-]+}/{record_version}", s.handleGet)
	r.Post("/rec/{record_id:[0-9A-Za-z_-]+}/{record_version}", s.handlePost)
	r.Get("/metrics", s.handleMetrics)

	s.mux = r
	return s
}

func newGauge(reg prometheus.Registerer, name, help string) prometheus.Gauge {
	return promauto.With(reg).NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.refreshMetrics()
	promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// refreshMetrics snapshots Stats/PendingWaiters into the gauges
// immediately before every /metrics scrape.
func (s *Server) refreshMetrics() {
	st := s.store.Engine().Stats()
	s.metrics.hits.Set(float64(st.Hits))
	s.metrics.misses.Set(float64(st.Misses))
	s.metrics.puts.Set(float64(st.Puts))
	s.metrics.idempotentPuts.Set(float64(st.IdempotentPuts))
	s.metrics.evictions.Set(float64(st.Evictions))
	s.metrics.capacityErrors.Set(float64(st.CapacityErrors))

	versionKeys, pointerKeys := s.store.PendingWaiters()
	s.metrics.versionWaiters.Set(float64(versionKeys))
	s.metrics.pointerWaiters.Set(float64(pointerKeys))

	ws := s.store.Stats()
	s.metrics.waitersCreated.Set(float64(ws.WaitersCreated))
	s.metrics.waitersFired.Set(float64(ws.WaitersFired))
	s.metrics.waitersCancelled.Set(float64(ws.WaitersCancelled))
	s.metrics.waitersTimedOut.Set(float64(ws.WaitersTimedOut))
}

// ServeHTTP lets Server be used directly as an http.Handler, e.g. in
// http.Server.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
