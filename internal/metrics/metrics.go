package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mescon/motion/internal/domain"
	"github.com/mescon/motion/internal/eventbus"
	"github.com/mescon/motion/internal/logger"
)

// MetricsService exposes Prometheus metrics for animation runs
type MetricsService struct {
	eventBus eventbus.Publisher
	gatherer prometheus.Gatherer

	// Counters
	runsStarted        prometheus.Counter
	runsCompleted      *prometheus.CounterVec
	startsIgnored      prometheus.Counter
	runsRestarted      prometheus.Counter
	notificationsTotal *prometheus.CounterVec

	// Gauges
	activeRuns prometheus.Gauge
	registered prometheus.Gauge

	// Histograms
	runDuration prometheus.Histogram
	runTicks    prometheus.Histogram

	// Internal tracking
	mu              sync.Mutex
	activeRunIDs    map[string]struct{} // motions with a run in progress
	registeredCount int
}

// NewMetricsService creates metrics registered with the global Prometheus registry
func NewMetricsService(eb eventbus.Publisher) *MetricsService {
	return newMetricsService(eb, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsServiceWithRegistry registers metrics with reg instead of the
// global registry. Tests use this to get a fresh set per test.
func NewMetricsServiceWithRegistry(eb eventbus.Publisher, reg *prometheus.Registry) *MetricsService {
	return newMetricsService(eb, reg, reg)
}

func newMetricsService(eb eventbus.Publisher, reg prometheus.Registerer, gatherer prometheus.Gatherer) *MetricsService {
	m := &MetricsService{
		eventBus:     eb,
		gatherer:     gatherer,
		activeRunIDs: make(map[string]struct{}),

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "motion_runs_started_total",
				Help: "Total number of animation runs started",
			},
		),

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "motion_runs_completed_total",
				Help: "Total number of animation runs completed by outcome",
			},
			[]string{"outcome"}, // elapsed, finished
		),

		startsIgnored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "motion_starts_ignored_total",
				Help: "Total number of start requests ignored because a run was in progress",
			},
		),

		runsRestarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "motion_runs_restarted_total",
				Help: "Total number of runs restarted from their current value",
			},
		),

		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "motion_notifications_total",
				Help: "Total number of notifications sent by outcome",
			},
			[]string{"outcome"}, // sent, failed
		),

		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "motion_active_runs",
				Help: "Number of animation runs currently in progress",
			},
		),

		registered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "motion_registered",
				Help: "Number of motions currently registered",
			},
		),

		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "motion_run_duration_seconds",
				Help:    "Wall time of completed runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
		),

		runTicks: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "motion_run_ticks",
				Help:    "Number of intermediate values written per run",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 to 2048
			},
		),
	}

	reg.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.startsIgnored,
		m.runsRestarted,
		m.notificationsTotal,
		m.activeRuns,
		m.registered,
		m.runDuration,
		m.runTicks,
	)

	return m
}

// Start subscribes to events and updates metrics
func (m *MetricsService) Start() {
	m.eventBus.Subscribe(domain.MotionCreated, m.handleMotionCreated)
	m.eventBus.Subscribe(domain.MotionRemoved, m.handleMotionRemoved)
	m.eventBus.Subscribe(domain.MotionStarted, m.handleMotionStarted)
	m.eventBus.Subscribe(domain.MotionStartIgnored, m.handleStartIgnored)
	m.eventBus.Subscribe(domain.MotionRestarted, m.handleRestarted)
	m.eventBus.Subscribe(domain.MotionCompleted, m.handleMotionCompleted)
	m.eventBus.Subscribe(domain.NotificationSent, m.handleNotificationSent)
	m.eventBus.Subscribe(domain.NotificationFailed, m.handleNotificationFailed)

	logger.Infof("Metrics service started")
}

// Handler returns the Prometheus HTTP handler for /metrics endpoint
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Event handlers

func (m *MetricsService) handleMotionCreated(event domain.Event) {
	m.mu.Lock()
	m.registeredCount++
	m.registered.Set(float64(m.registeredCount))
	m.mu.Unlock()
}

func (m *MetricsService) handleMotionRemoved(event domain.Event) {
	m.mu.Lock()
	if m.registeredCount > 0 {
		m.registeredCount--
		m.registered.Set(float64(m.registeredCount))
	}
	// A removed motion abandons its run without a MotionCompleted
	m.endRunLocked(event.AggregateID)
	m.mu.Unlock()
}

// endRunLocked drops id from the active set. Callers hold m.mu.
func (m *MetricsService) endRunLocked(id string) {
	delete(m.activeRunIDs, id)
	m.activeRuns.Set(float64(len(m.activeRunIDs)))
}

func (m *MetricsService) handleMotionStarted(event domain.Event) {
	m.runsStarted.Inc()

	m.mu.Lock()
	m.activeRunIDs[event.AggregateID] = struct{}{}
	m.activeRuns.Set(float64(len(m.activeRunIDs)))
	m.mu.Unlock()
}

func (m *MetricsService) handleStartIgnored(event domain.Event) {
	m.startsIgnored.Inc()
}

func (m *MetricsService) handleRestarted(event domain.Event) {
	m.runsRestarted.Inc()
}

func (m *MetricsService) handleMotionCompleted(event domain.Event) {
	outcome := "elapsed"
	if event.GetBoolOr("finished", false) {
		outcome = "finished"
	}
	m.runsCompleted.WithLabelValues(outcome).Inc()

	if data, ok := event.ParseRunEventData(); ok {
		m.runDuration.Observe(float64(data.ElapsedMs) / 1000)
		m.runTicks.Observe(float64(data.Ticks))
	}

	m.mu.Lock()
	m.endRunLocked(event.AggregateID)
	m.mu.Unlock()
}

func (m *MetricsService) handleNotificationSent(event domain.Event) {
	m.notificationsTotal.WithLabelValues("sent").Inc()
}

func (m *MetricsService) handleNotificationFailed(event domain.Event) {
	m.notificationsTotal.WithLabelValues("failed").Inc()
}

// SetRegistered overrides the registered gauge, used after motions are
// restored from the database without MotionCreated events.
func (m *MetricsService) SetRegistered(n int) {
	m.mu.Lock()
	m.registeredCount = n
	m.registered.Set(float64(n))
	m.mu.Unlock()
}
