// Package metrics exports flow lifecycle events as Prometheus metrics.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/petrijr/fluxnode/pkg/api"
)

// PrometheusObserver is an api.Observer that counts flows and units and
// records their durations.
type PrometheusObserver struct {
	flowsStarted   *prometheus.CounterVec
	flowsCompleted *prometheus.CounterVec
	flowDuration   *prometheus.HistogramVec
	runningFlows   *prometheus.GaugeVec
	unitsCompleted *prometheus.CounterVec
	unitDuration   *prometheus.HistogramVec
	unitPanics     *prometheus.CounterVec

	logger *zap.Logger
}

var _ api.Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver registers the metrics under namespace with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer, logger *zap.Logger) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.L()
	}
	f := promauto.With(reg)

	return &PrometheusObserver{
		flowsStarted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flows_started_total",
				Help:      "Total number of flow runs started",
			},
			[]string{"flow"},
		),
		flowsCompleted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flows_completed_total",
				Help:      "Total number of flow runs completed, by final action",
			},
			[]string{"flow", "action"},
		),
		flowDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "flow_duration_seconds",
				Help:      "Flow run duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"flow"},
		),
		runningFlows: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "flows_running",
				Help:      "Number of flow runs in progress",
			},
			[]string{"flow"},
		),
		unitsCompleted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "units_completed_total",
				Help:      "Total number of units completed, by kind and action",
			},
			[]string{"flow", "kind", "task_id", "action"},
		),
		unitDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "unit_duration_seconds",
				Help:      "Unit duration in seconds",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"flow", "kind"},
		),
		unitPanics: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unit_panics_total",
				Help:      "Total number of recovered unit panics",
			},
			[]string{"flow", "kind"},
		),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

func (o *PrometheusObserver) OnFlowStart(_ context.Context, flow string) {
	o.flowsStarted.WithLabelValues(flow).Inc()
	o.runningFlows.WithLabelValues(flow).Inc()
}

func (o *PrometheusObserver) OnFlowCompleted(_ context.Context, flow, action string, d time.Duration) {
	o.flowsCompleted.WithLabelValues(flow, action).Inc()
	o.flowDuration.WithLabelValues(flow).Observe(d.Seconds())
	o.runningFlows.WithLabelValues(flow).Dec()
}

func (o *PrometheusObserver) OnUnitStart(context.Context, api.UnitInfo) {}

func (o *PrometheusObserver) OnUnitCompleted(_ context.Context, u api.UnitInfo, action string, d time.Duration) {
	o.unitsCompleted.WithLabelValues(u.Flow, u.Kind, u.TaskID, action).Inc()
	o.unitDuration.WithLabelValues(u.Flow, u.Kind).Observe(d.Seconds())
}

func (o *PrometheusObserver) OnUnitPanic(_ context.Context, u api.UnitInfo, recovered any) {
	o.unitPanics.WithLabelValues(u.Flow, u.Kind).Inc()
	o.logger.Debug("unit panic counted", zap.String("flow", u.Flow), zap.Any("panic", recovered))
}
