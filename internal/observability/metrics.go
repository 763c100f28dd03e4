package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	loopRunTotal    *prometheus.CounterVec
	loopRunDuration prometheus.Histogram
	loopIterations  prometheus.Histogram

	snapshotTotal *prometheus.CounterVec

	broadcastTotal   *prometheus.CounterVec
	connectedClients prometheus.Gauge

	modelRoundTrips  *prometheus.CounterVec
	providerCooldown *prometheus.GaugeVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "queue_size",
					Help: "Current queue size by lane.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "enqueue_total",
					Help: "Total enqueue operations by lane.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dequeue_total",
					Help: "Total dequeue/completion operations by lane and status.",
				},
				[]string{"lane", "status"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "task_duration_seconds",
					Help:    "Task execution duration in seconds by lane.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			loopRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "loop_run_total",
					Help: "Total verification loop runs by outcome.",
				},
				[]string{"outcome"},
			),
			loopRunDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "loop_run_duration_seconds",
					Help:    "Verification loop run duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			loopIterations: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "loop_iterations",
					Help:    "Verification iterations consumed per run.",
					Buckets: []float64{0, 1, 2, 3, 4, 5},
				},
			),
			snapshotTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "snapshot_total",
					Help: "Total snapshot capture attempts by status.",
				},
				[]string{"status"},
			),
			broadcastTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "broadcast_total",
					Help: "Total broadcast deliveries by result.",
				},
				[]string{"result"},
			),
			connectedClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "connected_clients",
					Help: "Currently connected hub clients.",
				},
			),
			modelRoundTrips: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "model_round_trips_total",
					Help: "Total model service round trips by provider and status.",
				},
				[]string{"provider", "status"},
			),
			providerCooldown: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "provider_cooldown_active",
					Help: "Provider cooldown active state (1 active, 0 inactive).",
				},
				[]string{"provider"},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.taskDuration,
			m.loopRunTotal,
			m.loopRunDuration,
			m.loopIterations,
			m.snapshotTotal,
			m.broadcastTotal,
			m.connectedClients,
			m.modelRoundTrips,
			m.providerCooldown,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(lane).Inc()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordQueueCompletion(lane string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.dequeueTotal.WithLabelValues(lane, status).Inc()
	m.taskDuration.WithLabelValues(lane).Observe(duration.Seconds())
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordLoopRun(outcome string, duration time.Duration, iterations int) {
	m := getMetrics()
	m.loopRunTotal.WithLabelValues(outcome).Inc()
	m.loopRunDuration.Observe(duration.Seconds())
	m.loopIterations.Observe(float64(iterations))
}

func RecordSnapshot(success bool) {
	m := getMetrics()
	status := "missing"
	if success {
		status = "ok"
	}
	m.snapshotTotal.WithLabelValues(status).Inc()
}

func RecordBroadcast(delivered, failed int) {
	m := getMetrics()
	m.broadcastTotal.WithLabelValues("delivered").Add(float64(delivered))
	m.broadcastTotal.WithLabelValues("failed").Add(float64(failed))
}

func SetConnectedClients(count int) {
	m := getMetrics()
	m.connectedClients.Set(float64(count))
}

func RecordModelRoundTrip(provider string, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.modelRoundTrips.WithLabelValues(provider, status).Inc()
}

func SetProviderCooldown(provider string, active bool) {
	m := getMetrics()
	value := 0.0
	if active {
		value = 1.0
	}
	m.providerCooldown.WithLabelValues(provider).Set(value)
}
