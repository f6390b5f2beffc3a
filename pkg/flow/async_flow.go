package flow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/petrijr/fluxnode/internal/dispatch"
	"github.com/petrijr/fluxnode/pkg/api"
)

// AsyncFlow drives a graph mixing sync and async units.
//
// Async units run on the calling goroutine. Sync units run on a bounded
// blocking pool against a clone of the state: when they return the clone
// replaces the state, when they panic the clone is discarded and the flow
// continues with api.DefaultAction.
type AsyncFlow struct {
	start      Executable
	params     api.Params
	successors map[string]Executable
	opts       options
}

var (
	_ Executable = (*AsyncFlow)(nil)
	_ asyncUnit  = (*AsyncFlow)(nil)
)

func NewAsyncFlow(start Executable, opts ...Option) *AsyncFlow {
	return &AsyncFlow{
		start:      start,
		params:     api.Params{},
		successors: map[string]Executable{},
		opts:       newOptions(opts),
	}
}

func (f *AsyncFlow) Kind() Kind                        { return KindAsync }
func (f *AsyncFlow) Successors() map[string]Executable { return f.successors }
func (f *AsyncFlow) executable()                       {}

func (f *AsyncFlow) Name() string { return f.opts.name }

func (f *AsyncFlow) Start() Executable { return f.start }

func (f *AsyncFlow) SetStart(start Executable) *AsyncFlow {
	f.start = start
	return f
}

func (f *AsyncFlow) Params() api.Params { return f.params }

func (f *AsyncFlow) SetParams(p api.Params) *AsyncFlow {
	if p == nil {
		p = api.Params{}
	}
	f.params = p
	return f
}

func (f *AsyncFlow) Next(next Executable) *AsyncFlow {
	return f.NextOn(api.DefaultAction, next)
}

func (f *AsyncFlow) NextOn(action string, next Executable) *AsyncFlow {
	setEdge(f.successors, action, next, f.opts.logger)
	return f
}

// Run traverses the graph and returns the last action taken.
func (f *AsyncFlow) Run(ctx context.Context, state api.State) string {
	return f.RunWithParams(ctx, state, f.params)
}

func (f *AsyncFlow) RunWithParams(ctx context.Context, state api.State, params api.Params) string {
	return f.orchestrate(ctx, env{telemetry: f.opts.telemetry}, params, state)
}

func (f *AsyncFlow) runAsync(ctx context.Context, parent env, params api.Params, state api.State) string {
	e := parent
	if f.opts.telemetry != nil {
		e.telemetry = f.opts.telemetry
	}
	return f.orchestrate(ctx, e, params, state)
}

func (f *AsyncFlow) blockingPool() (*dispatch.Pool, error) {
	if f.opts.pool != nil {
		return f.opts.pool, nil
	}
	return dispatch.Shared()
}

func (f *AsyncFlow) orchestrate(ctx context.Context, e env, params api.Params, state api.State) string {
	obs := f.opts.observer
	began := time.Now()
	obs.OnFlowStart(ctx, f.opts.name)

	action := api.DefaultAction
	current := f.start
	for step := 0; current != nil; step++ {
		info := unitInfo(f.opts.name, step, current)
		obs.OnUnitStart(ctx, info)
		unitBegan := time.Now()

		var ok bool
		if runsSync(current) {
			action, ok = f.dispatchSync(ctx, e, info, current.(syncUnit), params, state)
			if !ok {
				break
			}
		} else {
			action = current.(asyncUnit).runAsync(ctx, e, params.Clone(), state)
		}
		if action == "" {
			action = api.DefaultAction
		}
		obs.OnUnitCompleted(ctx, info, action, time.Since(unitBegan))

		current = current.Successors()[action]
	}

	obs.OnFlowCompleted(ctx, f.opts.name, action, time.Since(began))
	return action
}

// dispatchSync runs u on the blocking pool. ok is false when the unit could
// not be scheduled at all, which ends the traversal.
func (f *AsyncFlow) dispatchSync(ctx context.Context, e env, info api.UnitInfo, u syncUnit, params api.Params, state api.State) (action string, ok bool) {
	pool, err := f.blockingPool()
	if err != nil {
		f.opts.logger.Error("no blocking pool available", zap.Error(err))
		return api.DefaultAction, false
	}

	scratch := state.Clone()
	unitParams := params.Clone()
	res, err := pool.Do(ctx, func() any {
		return u.runSync(e, unitParams, scratch)
	})
	if err != nil {
		f.opts.logger.Error("failed to schedule sync unit",
			zap.String("flow", info.Flow),
			zap.Int("step", info.Step),
			zap.Error(err),
		)
		return api.DefaultAction, false
	}
	if res.Panic != nil {
		f.opts.logger.Error("sync unit panicked; discarding its state changes",
			zap.String("flow", info.Flow),
			zap.Int("step", info.Step),
			zap.String("kind", info.Kind),
			zap.Any("panic", res.Panic),
			zap.ByteString("stack", res.Stack),
		)
		f.opts.observer.OnUnitPanic(ctx, info, res.Panic)
		return api.DefaultAction, true
	}

	state.Replace(scratch)
	action, _ = res.Value.(string)
	return action, true
}

// Validate statically checks the data flow of the graph. See Flow.Validate.
func (f *AsyncFlow) Validate(initialKeys ...string) *api.ValidationResult {
	return validate(f.start, initialKeys)
}
