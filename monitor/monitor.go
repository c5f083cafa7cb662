// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OnlinePlayers   prometheus.Gauge
	ActiveGames     prometheus.Gauge
	MovesApplied    prometheus.Counter
	MovesRejected   *prometheus.CounterVec
	SyntheticMoves  prometheus.Counter
	Settlements     *prometheus.CounterVec
	RolloverRetries prometheus.Counter
	SweepDuration   prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of online players",
		}),
		ActiveGames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_games",
			Help:      "Number of games currently in progress",
		}),
		MovesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_applied_total",
			Help:      "Total number of accepted moves",
		}),
		MovesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_rejected_total",
			Help:      "Total number of rejected moves by reason",
		}, []string{"reason"}),
		SyntheticMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthetic_moves_total",
			Help:      "Total number of auto-played moves",
		}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Total number of settled games by outcome",
		}, []string{"outcome"}),
		RolloverRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weekly_rollover_retries_total",
			Help:      "Total number of weekly rollover retry attempts",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Idle game sweep duration",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}

	prometheus.MustRegister(
		m.OnlinePlayers,
		m.ActiveGames,
		m.MovesApplied,
		m.MovesRejected,
		m.SyntheticMoves,
		m.Settlements,
		m.RolloverRetries,
		m.SweepDuration,
	)

	return m
}

type Monitor struct {
	metrics      *Metrics
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
}

func NewMonitor(namespace string) *Monitor {
	return &Monitor{
		metrics:   NewMetrics(namespace),
		startTime: time.Now(),
	}
}

func (m *Monitor) StartServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())

	// 添加expvar指标
	expvar.Publish("uptime", expvar.Func(func() interface{} {
		return time.Since(m.startTime).Seconds()
	}))

	expvar.Publish("requests", expvar.Func(func() interface{} {
		m.mutex.Lock()
		defer m.mutex.Unlock()
		return m.requestCount
	}))

	go http.ListenAndServe(addr, nil)
}

func (m *Monitor) IncOnlinePlayers() {
	m.metrics.OnlinePlayers.Inc()
}

func (m *Monitor) DecOnlinePlayers() {
	m.metrics.OnlinePlayers.Dec()
}

func (m *Monitor) IncActiveGames() {
	m.metrics.ActiveGames.Inc()
}

func (m *Monitor) DecActiveGames() {
	m.metrics.ActiveGames.Dec()
}

func (m *Monitor) IncMovesApplied() {
	m.metrics.MovesApplied.Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) IncMovesRejected(reason string) {
	m.metrics.MovesRejected.WithLabelValues(reason).Inc()
}

func (m *Monitor) IncSyntheticMoves() {
	m.metrics.SyntheticMoves.Inc()
}

func (m *Monitor) IncSettlements(outcome string) {
	m.metrics.Settlements.WithLabelValues(outcome).Inc()
}

func (m *Monitor) IncRolloverRetries() {
	m.metrics.RolloverRetries.Inc()
}

func (m *Monitor) ObserveSweepDuration(duration time.Duration) {
	m.metrics.SweepDuration.Observe(duration.Seconds())
}
