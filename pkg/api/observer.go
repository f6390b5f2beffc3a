package api

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// UnitInfo identifies a unit within one flow traversal.
type UnitInfo struct {
	// Flow is the name of the flow driving the traversal.
	Flow string
	// Step is the 0-based position of the unit in the traversal.
	Step int
	// Kind is the unit's kind, e.g. "sync", "async", "sealed".
	Kind string
	// TaskID is set for sealed units only.
	TaskID string
}

// Observer receives callbacks from flows for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay the traversal.
type Observer interface {
	// OnFlowStart is called once before the start unit runs.
	OnFlowStart(ctx context.Context, flow string)

	// OnFlowCompleted is called when the traversal stops, with the final action.
	OnFlowCompleted(ctx context.Context, flow string, action string, duration time.Duration)

	// OnUnitStart is called before a unit's prep phase.
	OnUnitStart(ctx context.Context, unit UnitInfo)

	// OnUnitCompleted is called after a unit's post phase with the action it
	// returned (after the empty action was replaced by DefaultAction).
	OnUnitCompleted(ctx context.Context, unit UnitInfo, action string, duration time.Duration)

	// OnUnitPanic is called when a dispatched unit panicked and its state
	// changes were discarded.
	OnUnitPanic(ctx context.Context, unit UnitInfo, recovered any)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnFlowStart(ctx context.Context, flow string) {}
func (NoopObserver) OnFlowCompleted(ctx context.Context, flow string, action string, d time.Duration) {
}
func (NoopObserver) OnUnitStart(ctx context.Context, unit UnitInfo) {}
func (NoopObserver) OnUnitCompleted(ctx context.Context, unit UnitInfo, action string, d time.Duration) {
}
func (NoopObserver) OnUnitPanic(ctx context.Context, unit UnitInfo, recovered any) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnFlowStart(ctx context.Context, flow string) {
	for _, o := range c.observers {
		o.OnFlowStart(ctx, flow)
	}
}

func (c *CompositeObserver) OnFlowCompleted(ctx context.Context, flow string, action string, d time.Duration) {
	for _, o := range c.observers {
		o.OnFlowCompleted(ctx, flow, action, d)
	}
}

func (c *CompositeObserver) OnUnitStart(ctx context.Context, unit UnitInfo) {
	for _, o := range c.observers {
		o.OnUnitStart(ctx, unit)
	}
}

func (c *CompositeObserver) OnUnitCompleted(ctx context.Context, unit UnitInfo, action string, d time.Duration) {
	for _, o := range c.observers {
		o.OnUnitCompleted(ctx, unit, action, d)
	}
}

func (c *CompositeObserver) OnUnitPanic(ctx context.Context, unit UnitInfo, recovered any) {
	for _, o := range c.observers {
		o.OnUnitPanic(ctx, unit, recovered)
	}
}

// LoggingObserver writes structured logs using zap.
type LoggingObserver struct {
	Logger *zap.Logger
}

// NewLoggingObserver creates an Observer that logs flow / unit lifecycle
// events using the provided logger. If logger is nil, zap.L() is used.
func NewLoggingObserver(logger *zap.Logger) Observer {
	if logger == nil {
		logger = zap.L()
	}
	return &LoggingObserver{Logger: logger}
}

func unitFields(u UnitInfo) []zap.Field {
	fields := []zap.Field{
		zap.String("flow", u.Flow),
		zap.Int("step", u.Step),
		zap.String("kind", u.Kind),
	}
	if u.TaskID != "" {
		fields = append(fields, zap.String("task_id", u.TaskID))
	}
	return fields
}

func (o *LoggingObserver) OnFlowStart(ctx context.Context, flow string) {
	o.Logger.Info("flow_start", zap.String("flow", flow))
}

func (o *LoggingObserver) OnFlowCompleted(ctx context.Context, flow string, action string, d time.Duration) {
	o.Logger.Info("flow_completed",
		zap.String("flow", flow),
		zap.String("action", action),
		zap.Duration("duration", d),
	)
}

func (o *LoggingObserver) OnUnitStart(ctx context.Context, unit UnitInfo) {
	o.Logger.Debug("unit_start", unitFields(unit)...)
}

func (o *LoggingObserver) OnUnitCompleted(ctx context.Context, unit UnitInfo, action string, d time.Duration) {
	o.Logger.Debug("unit_completed", append(unitFields(unit),
		zap.String("action", action),
		zap.Duration("duration", d),
	)...)
}

func (o *LoggingObserver) OnUnitPanic(ctx context.Context, unit UnitInfo, recovered any) {
	o.Logger.Error("unit_panic", append(unitFields(unit), zap.Any("panic", recovered))...)
}

// BasicMetrics collects simple counters and aggregate unit durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	flowsStarted      atomic.Int64
	flowsCompleted    atomic.Int64
	unitsCompleted    atomic.Int64
	unitsPanicked     atomic.Int64
	totalUnitDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	FlowsStarted   int64
	FlowsCompleted int64
	RunningFlows   int64

	UnitsCompleted  int64
	UnitsPanicked   int64
	AvgUnitDuration time.Duration
}

func (m *BasicMetrics) OnFlowStart(ctx context.Context, flow string) {
	m.flowsStarted.Add(1)
}

func (m *BasicMetrics) OnFlowCompleted(ctx context.Context, flow string, action string, d time.Duration) {
	m.flowsCompleted.Add(1)
}

func (m *BasicMetrics) OnUnitCompleted(ctx context.Context, unit UnitInfo, action string, d time.Duration) {
	m.unitsCompleted.Add(1)
	m.totalUnitDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnUnitPanic(ctx context.Context, unit UnitInfo, recovered any) {
	m.unitsPanicked.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.flowsStarted.Load()
	completed := m.flowsCompleted.Load()
	units := m.unitsCompleted.Load()
	totalNs := m.totalUnitDuration.Load()

	var avg time.Duration
	if units > 0 {
		avg = time.Duration(totalNs / units)
	}

	return BasicMetricsSnapshot{
		FlowsStarted:    started,
		FlowsCompleted:  completed,
		RunningFlows:    started - completed,
		UnitsCompleted:  units,
		UnitsPanicked:   m.unitsPanicked.Load(),
		AvgUnitDuration: avg,
	}
}
