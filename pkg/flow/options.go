package flow

import (
	"go.uber.org/zap"

	"github.com/petrijr/fluxnode/internal/dispatch"
	"github.com/petrijr/fluxnode/pkg/api"
)

// DefaultMaxConcurrency bounds parallel batch adapters unless overridden.
const DefaultMaxConcurrency = 50

type options struct {
	name           string
	logger         *zap.Logger
	telemetry      api.Telemetry
	observer       api.Observer
	pool           *dispatch.Pool
	maxConcurrency int
}

// Option configures nodes, flows and batch adapters. Options that do not
// apply to the constructed type are ignored.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		name:           "flow",
		maxConcurrency: DefaultMaxConcurrency,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = zap.L()
	}
	if o.observer == nil {
		o.observer = api.NoopObserver{}
	}
	return o
}

// WithLogger sets the logger used for diagnostics. Defaults to zap.L().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithName names a flow in logs and observer events.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithTelemetry attaches a sink that sealed units record traces to.
func WithTelemetry(t api.Telemetry) Option {
	return func(o *options) {
		o.telemetry = t
	}
}

// WithObserver attaches lifecycle callbacks to a flow.
func WithObserver(obs api.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithBlockingPool sets the pool an AsyncFlow runs sync units on.
// Defaults to the process-wide shared pool.
func WithBlockingPool(p *dispatch.Pool) Option {
	return func(o *options) {
		o.pool = p
	}
}

// WithMaxConcurrency bounds parallel batch adapters. It panics if n < 1.
func WithMaxConcurrency(n int) Option {
	if n < 1 {
		panic("flow: max concurrency must be greater than 0")
	}
	return func(o *options) {
		o.maxConcurrency = n
	}
}
