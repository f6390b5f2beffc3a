package flow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/petrijr/fluxnode/pkg/api"
)

// Flow drives a graph of sync units. It is itself a sync unit and can be
// nested inside other flows.
type Flow struct {
	start      Executable
	params     api.Params
	successors map[string]Executable
	opts       options
}

var (
	_ Executable = (*Flow)(nil)
	_ syncUnit   = (*Flow)(nil)
)

// NewFlow creates a flow starting at start.
func NewFlow(start Executable, opts ...Option) *Flow {
	return &Flow{
		start:      start,
		params:     api.Params{},
		successors: map[string]Executable{},
		opts:       newOptions(opts),
	}
}

func (f *Flow) Kind() Kind                        { return KindSync }
func (f *Flow) Successors() map[string]Executable { return f.successors }
func (f *Flow) executable()                       {}

// Name returns the flow's name used in logs and observer events.
func (f *Flow) Name() string { return f.opts.name }

// Start returns the entry unit.
func (f *Flow) Start() Executable { return f.start }

// SetStart replaces the entry unit.
func (f *Flow) SetStart(start Executable) *Flow {
	f.start = start
	return f
}

func (f *Flow) Params() api.Params { return f.params }

// SetParams replaces the params every unit of the traversal runs with.
func (f *Flow) SetParams(p api.Params) *Flow {
	if p == nil {
		p = api.Params{}
	}
	f.params = p
	return f
}

func (f *Flow) Next(next Executable) *Flow {
	return f.NextOn(api.DefaultAction, next)
}

func (f *Flow) NextOn(action string, next Executable) *Flow {
	setEdge(f.successors, action, next, f.opts.logger)
	return f
}

// Run traverses the graph from the start unit, mutating state, and returns
// the last action taken (never empty).
//
// It panics with an error wrapping ErrAsyncInSyncFlow when it reaches a unit
// that needs an AsyncFlow.
func (f *Flow) Run(state api.State) string {
	return f.RunWithParams(state, f.params)
}

// RunWithParams is Run with params substituted for this call only.
func (f *Flow) RunWithParams(state api.State, params api.Params) string {
	return f.orchestrate(env{telemetry: f.opts.telemetry}, params, state)
}

func (f *Flow) runSync(parent env, params api.Params, state api.State) string {
	e := parent
	if f.opts.telemetry != nil {
		e.telemetry = f.opts.telemetry
	}
	return f.orchestrate(e, params, state)
}

func (f *Flow) orchestrate(e env, params api.Params, state api.State) string {
	ctx := context.Background()
	obs := f.opts.observer
	began := time.Now()
	obs.OnFlowStart(ctx, f.opts.name)

	action := api.DefaultAction
	current := f.start
	for step := 0; current != nil; step++ {
		unit, ok := current.(syncUnit)
		if !ok || !runsSync(current) {
			f.opts.logger.Error("async unit reached in sync flow",
				zap.String("flow", f.opts.name),
				zap.Int("step", step),
				zap.Stringer("kind", current.Kind()),
			)
			panic(fmt.Errorf("%w: %T at step %d", ErrAsyncInSyncFlow, current, step))
		}

		info := unitInfo(f.opts.name, step, current)
		obs.OnUnitStart(ctx, info)
		unitBegan := time.Now()

		action = unit.runSync(e, params.Clone(), state)
		if action == "" {
			action = api.DefaultAction
		}
		obs.OnUnitCompleted(ctx, info, action, time.Since(unitBegan))

		current = current.Successors()[action]
	}

	obs.OnFlowCompleted(ctx, f.opts.name, action, time.Since(began))
	return action
}

// Validate statically checks that every sealed unit reachable from the
// start finds its inputs among initialKeys or the outputs of the sealed
// units before it on the same path.
func (f *Flow) Validate(initialKeys ...string) *api.ValidationResult {
	return validate(f.start, initialKeys)
}

func unitInfo(flow string, step int, u Executable) api.UnitInfo {
	info := api.UnitInfo{Flow: flow, Step: step, Kind: u.Kind().String()}
	if s, ok := u.(*SealedNode); ok {
		info.TaskID = s.TaskID()
	}
	return info
}
