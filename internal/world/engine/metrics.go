package engine

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"TribalRealms/internal/world/events"
)

// Metrics 是引擎的 prometheus 指标。
type Metrics struct {
	commands     *prometheus.CounterVec
	dispatched   *prometheus.CounterVec
	domainEvents *prometheus.CounterVec
	tickDuration prometheus.Histogram
	queueDepth   prometheus.Gauge
}

// NewMetrics 注册到 reg；reg 为 nil 时使用独立的 registry（测试里多次创建引擎不冲突）。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tribalrealms",
			Name:      "commands_total",
			Help:      "Player commands by kind and result code.",
		}, []string{"kind", "code"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tribalrealms",
			Name:      "events_dispatched_total",
			Help:      "Scheduled events handled by the tick loop.",
		}, []string{"kind", "result"}),
		domainEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tribalrealms",
			Name:      "domain_events_total",
			Help:      "Domain events published on the bus.",
		}, []string{"kind"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tribalrealms",
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent in one tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tribalrealms",
			Name:      "event_queue_depth",
			Help:      "Outstanding scheduled events in memory.",
		}),
	}
	reg.MustRegister(m.commands, m.dispatched, m.domainEvents, m.tickDuration, m.queueDepth)
	return m
}

// Subscribe 统计总线上的领域事件。
func (m *Metrics) Subscribe(bus *events.Bus) {
	bus.OnAll(func(ctx context.Context, e events.Event) {
		m.domainEvents.WithLabelValues(string(e.Kind)).Inc()
	})
}
