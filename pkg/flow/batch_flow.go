package flow

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/petrijr/fluxnode/pkg/api"
)

// ParamsFunc yields one param set per iteration of a BatchFlow. It receives
// the params the BatchFlow runs with and a read-only view of the state.
type ParamsFunc func(params api.Params, state api.State) []api.Params

// BatchFlow runs a sync inner unit once per param set, all iterations
// mutating the same state in order.
//
// Each iteration runs with the iteration params overlaid by the inner unit's
// own stored params, so the inner unit's params win on collision.
type BatchFlow struct {
	inner      Executable
	paramsFn   ParamsFunc
	params     api.Params
	successors map[string]Executable
	opts       options
}

var (
	_ Executable = (*BatchFlow)(nil)
	_ syncUnit   = (*BatchFlow)(nil)
)

// NewBatchFlow creates a BatchFlow. It panics with an error wrapping
// ErrAsyncInSyncFlow if inner cannot run synchronously.
func NewBatchFlow(inner Executable, paramsFn ParamsFunc, opts ...Option) *BatchFlow {
	if !runsSync(inner) {
		panic(fmt.Errorf("%w: batch flow over %T", ErrAsyncInSyncFlow, inner))
	}
	return &BatchFlow{
		inner:      inner,
		paramsFn:   paramsFn,
		params:     api.Params{},
		successors: map[string]Executable{},
		opts:       newOptions(opts),
	}
}

func (b *BatchFlow) Kind() Kind                        { return KindSync }
func (b *BatchFlow) Successors() map[string]Executable { return b.successors }
func (b *BatchFlow) executable()                       {}

func (b *BatchFlow) Inner() Executable { return b.inner }

func (b *BatchFlow) Params() api.Params { return b.params }

func (b *BatchFlow) SetParams(p api.Params) *BatchFlow {
	if p == nil {
		p = api.Params{}
	}
	b.params = p
	return b
}

func (b *BatchFlow) Next(next Executable) *BatchFlow {
	return b.NextOn(api.DefaultAction, next)
}

func (b *BatchFlow) NextOn(action string, next Executable) *BatchFlow {
	setEdge(b.successors, action, next, b.opts.logger)
	return b
}

// Run executes every iteration against state and returns api.DefaultAction.
func (b *BatchFlow) Run(state api.State) string {
	return b.RunWithParams(state, b.params)
}

func (b *BatchFlow) RunWithParams(state api.State, params api.Params) string {
	return b.runSync(env{telemetry: b.opts.telemetry}, params, state)
}

func (b *BatchFlow) runSync(parent env, params api.Params, state api.State) string {
	e := parent
	if b.opts.telemetry != nil {
		e.telemetry = b.opts.telemetry
	}

	var sets []api.Params
	if b.paramsFn != nil {
		sets = b.paramsFn(params, state)
	}

	var own api.Params
	if h, ok := b.inner.(paramHolder); ok {
		own = h.Params()
	}
	inner := b.inner.(syncUnit)

	for i, set := range sets {
		merged := set.Merge(own)
		action := inner.runSync(e, merged, state)
		b.opts.logger.Debug("batch flow iteration done",
			zap.Int("iteration", i),
			zap.String("action", action),
		)
	}
	return api.DefaultAction
}
