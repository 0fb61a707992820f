package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики оркестратора.
// Экспортируются через /metrics endpoint сервисного бинарника.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dirigent_requests_total",
		Help: "Total orchestration requests by strategy and outcome.",
	}, []string{"strategy", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dirigent_request_duration_seconds",
		Help:    "Orchestration request duration by strategy.",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})

	invocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dirigent_invocation_duration_seconds",
		Help:    "Backend invocation duration by backend and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "method"})

	failoversTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dirigent_failovers_total",
		Help: "Workflow steps served by a fallback backend.",
	})

	circuitTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dirigent_circuit_trips_total",
		Help: "Circuit breaker open transitions by backend.",
	}, []string{"backend"})

	circuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dirigent_circuit_state",
		Help: "Circuit breaker state by backend (0=closed, 1=half-open, 2=open).",
	}, []string{"backend"})
)

// backendKey — ключ счётчика задержек backend×method.
type backendKey struct {
	Backend string
	Method  string
}

// LatencyStat — накопленная статистика задержек для пары backend×method.
type LatencyStat struct {
	// Count — количество завершённых вызовов.
	Count int64 `json:"count"`

	// TotalMs — суммарная задержка в миллисекундах.
	TotalMs float64 `json:"total_ms"`
}

// MetricsSnapshot — read-only снимок счётчиков оркестрации.
type MetricsSnapshot struct {
	// TotalRequests — всего запросов.
	TotalRequests int64 `json:"total_requests"`

	// SuccessfulRequests — успешно завершённых.
	SuccessfulRequests int64 `json:"successful_requests"`

	// FailedRequests — завершённых с ошибкой.
	FailedRequests int64 `json:"failed_requests"`

	// AverageLatencyMs — скользящее среднее задержки запроса.
	AverageLatencyMs float64 `json:"average_latency_ms"`

	// Failovers — шагов, выполненных через fallback.
	Failovers int64 `json:"failovers"`

	// CircuitTrips — переходов контуров в OPEN.
	CircuitTrips int64 `json:"circuit_trips"`

	// BackendLatencies — задержки по парам "backend/method".
	BackendLatencies map[string]LatencyStat `json:"backend_latencies,omitempty"`
}

// Metrics — process-wide счётчики оркестрации.
//
// Инициализируются при старте, обновляются на каждом завершённом вызове,
// сбрасываются только рестартом процесса. Все мутации — под мьютексом:
// скользящее среднее требует read-modify-write двух полей атомарно.
// Параллельно те же события экспортируются в Prometheus.
type Metrics struct {
	mu sync.Mutex

	total     int64
	succeeded int64
	failed    int64
	avgMs     float64

	failovers    int64
	circuitTrips int64

	latencies map[backendKey]*LatencyStat
}

// NewMetrics создаёт счётчики оркестрации.
func NewMetrics() *Metrics {
	return &Metrics{
		latencies: make(map[backendKey]*LatencyStat),
	}
}

// RecordRequest фиксирует терминальный исход запроса.
//
// Скользящее среднее: avg = ((avg×(n-1)) + new) / n.
func (m *Metrics) RecordRequest(strategy string, ok bool, d time.Duration) {
	m.mu.Lock()
	m.total++
	if ok {
		m.succeeded++
	} else {
		m.failed++
	}
	newMs := float64(d) / float64(time.Millisecond)
	m.avgMs = (m.avgMs*float64(m.total-1) + newMs) / float64(m.total)
	m.mu.Unlock()

	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	requestsTotal.WithLabelValues(strategy, outcome).Inc()
	requestDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// RecordInvocation фиксирует задержку одного вызова backend'а.
func (m *Metrics) RecordInvocation(backend, method string, d time.Duration) {
	key := backendKey{Backend: backend, Method: method}

	m.mu.Lock()
	stat, ok := m.latencies[key]
	if !ok {
		stat = &LatencyStat{}
		m.latencies[key] = stat
	}
	stat.Count++
	stat.TotalMs += float64(d) / float64(time.Millisecond)
	m.mu.Unlock()

	invocationDuration.WithLabelValues(backend, method).Observe(d.Seconds())
}

// RecordFailover фиксирует шаг, выполненный через fallback.
func (m *Metrics) RecordFailover() {
	m.mu.Lock()
	m.failovers++
	m.mu.Unlock()

	failoversTotal.Inc()
}

// RecordCircuitTrip фиксирует переход контура backend'а в OPEN.
func (m *Metrics) RecordCircuitTrip(backend string) {
	m.mu.Lock()
	m.circuitTrips++
	m.mu.Unlock()

	circuitTripsTotal.WithLabelValues(backend).Inc()
}

// SetCircuitState обновляет gauge состояния контура.
// state: 0 — closed, 1 — half-open, 2 — open.
func (m *Metrics) SetCircuitState(backend string, state float64) {
	circuitState.WithLabelValues(backend).Set(state)
}

// Snapshot возвращает копию текущих счётчиков.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	latencies := make(map[string]LatencyStat, len(m.latencies))
	for key, stat := range m.latencies {
		latencies[key.Backend+"/"+key.Method] = *stat
	}

	return MetricsSnapshot{
		TotalRequests:      m.total,
		SuccessfulRequests: m.succeeded,
		FailedRequests:     m.failed,
		AverageLatencyMs:   m.avgMs,
		Failovers:          m.failovers,
		CircuitTrips:       m.circuitTrips,
		BackendLatencies:   latencies,
	}
}
