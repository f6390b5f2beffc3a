package fluxnode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/petrijr/fluxnode/internal/dispatch"
	"github.com/petrijr/fluxnode/internal/persistence"
	"github.com/petrijr/fluxnode/pkg/api"
	"github.com/petrijr/fluxnode/pkg/flow"
	"github.com/petrijr/fluxnode/pkg/llm/openai"
	"github.com/petrijr/fluxnode/pkg/metrics"
	"github.com/petrijr/fluxnode/pkg/registry"
	"github.com/petrijr/fluxnode/pkg/semantic"
	"github.com/petrijr/fluxnode/pkg/telemetry"
)

// Runtime wires the logger, telemetry sink, optimization registry, blocking
// pool and optional completer described by a Config.
//
// Typical usage:
//
//	cfg, _ := fluxnode.LoadConfig("fluxnode.yaml")
//	rt, err := fluxnode.Open(ctx, cfg)
//	defer rt.Close()
//	f := flow.NewAsyncFlow(start, rt.FlowOptions()...)
type Runtime struct {
	Logger    *zap.Logger
	// Level adjusts Logger at runtime when Open built the logger. With
	// WithLogger it only reports the injected logger's level at Open time;
	// changing it has no effect on that logger.
	Level     zap.AtomicLevel
	Telemetry api.Telemetry
	Registry  *registry.Registry
	// Completer is nil unless an LLM api key or base URL is configured.
	Completer api.Completer
	Observer  api.Observer

	cfg     *Config
	pool    *dispatch.Pool
	sink    *telemetry.BufferedSink
	closers []func() error
}

type openOptions struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	tracer     trace.TracerProvider
}

// OpenOption customizes Open.
type OpenOption func(*openOptions)

// WithLogger uses l instead of building one from Config.Log.
func WithLogger(l *zap.Logger) OpenOption { return func(o *openOptions) { o.logger = l } }

// WithRegisterer registers metrics with reg instead of the default registerer.
func WithRegisterer(reg prometheus.Registerer) OpenOption {
	return func(o *openOptions) { o.registerer = reg }
}

// WithTracerProvider sets the provider used by the otel telemetry backend.
func WithTracerProvider(tp trace.TracerProvider) OpenOption {
	return func(o *openOptions) { o.tracer = tp }
}

// Open validates cfg and connects every configured backend. On error,
// anything already opened is closed again.
func Open(ctx context.Context, cfg *Config, opts ...OpenOption) (rt *Runtime, err error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	rt = &Runtime{cfg: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	if o.logger != nil {
		rt.Logger, rt.Level = o.logger, zap.NewAtomicLevelAt(o.logger.Level())
	} else {
		rt.Logger, rt.Level, err = NewLogger(cfg.Log)
		if err != nil {
			return rt, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	rt.pool, err = dispatch.New(cfg.Flow.BlockingWorkers)
	if err != nil {
		return rt, fmt.Errorf("create blocking pool: %w", err)
	}

	if err = rt.openTelemetry(ctx, o.tracer); err != nil {
		return rt, err
	}
	if err = rt.openRegistry(ctx); err != nil {
		return rt, err
	}

	if cfg.LLM.APIKey != "" || cfg.LLM.BaseURL != "" {
		copts := []openai.Option{
			openai.WithAPIKey(cfg.LLM.APIKey),
			openai.WithMaxRetries(cfg.LLM.MaxRetries),
			openai.WithLogger(rt.Logger),
		}
		if cfg.LLM.BaseURL != "" {
			copts = append(copts, openai.WithBaseURL(cfg.LLM.BaseURL))
		}
		if cfg.LLM.Model != "" {
			copts = append(copts, openai.WithModel(cfg.LLM.Model))
		}
		rt.Completer = openai.New(copts...)
	}

	if cfg.Metrics.Enabled {
		rt.Observer = metrics.NewPrometheusObserver(cfg.Metrics.Namespace, o.registerer, rt.Logger)
	}

	rt.Logger.Info("fluxnode runtime ready",
		zap.String("telemetry", cfg.Telemetry.Backend),
		zap.String("registry", cfg.Registry.Backend),
		zap.Bool("llm", rt.Completer != nil),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)
	return rt, nil
}

func (rt *Runtime) openTelemetry(ctx context.Context, tp trace.TracerProvider) error {
	tc := rt.cfg.Telemetry
	switch tc.Backend {
	case BackendNone:
		return nil
	case BackendMemory:
		rt.Telemetry = telemetry.NewMemorySink()
		return nil
	case BackendOTel:
		rt.Telemetry = telemetry.NewOTelSink(tp, rt.Logger)
		return nil
	}

	store, err := rt.openStore(ctx, tc.Backend, tc.DSN, tc.Database, tc.Prefix)
	if err != nil {
		return fmt.Errorf("open telemetry store: %w", err)
	}
	rt.sink = telemetry.NewBufferedSink(store,
		telemetry.WithBufferSize(tc.BufferSize),
		telemetry.WithBatchSize(tc.BatchSize),
		telemetry.WithFlushInterval(tc.FlushInterval),
		telemetry.WithSinkLogger(rt.Logger),
	)
	rt.Telemetry = rt.sink
	return nil
}

func (rt *Runtime) openRegistry(ctx context.Context) error {
	rc := rt.cfg.Registry
	if rc.Backend == BackendMemory {
		rt.Registry = registry.NewInMemory(registry.WithLogger(rt.Logger))
		return nil
	}
	store, err := rt.openStore(ctx, rc.Backend, rc.DSN, rc.Database, rc.Prefix)
	if err != nil {
		return fmt.Errorf("open registry store: %w", err)
	}
	rt.Registry = registry.New(store, registry.WithLogger(rt.Logger))
	return nil
}

// store is implemented by every persistence backend.
type store interface {
	persistence.RegistryStore
	persistence.TraceStore
}

func (rt *Runtime) openStore(ctx context.Context, backend, dsn, database, prefix string) (store, error) {
	switch backend {
	case BackendSQLite, BackendPostgres:
		dialect := persistence.DialectSQLite
		if backend == BackendPostgres {
			dialect = persistence.DialectPostgres
		}
		db, err := sql.Open(dialect.DriverName(), dsn)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, db.Close)
		if dialect == persistence.DialectSQLite && strings.Contains(dsn, ":memory:") {
			db.SetMaxOpenConns(1)
		}
		return persistence.NewSQLStore(ctx, db, dialect)

	case BackendRedis:
		ropts, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(ropts)
		rt.closers = append(rt.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return persistence.NewRedisStore(client, prefix), nil

	case BackendMongo:
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(cctx, options.Client().ApplyURI(dsn))
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() error {
			return client.Disconnect(context.Background())
		})
		s := persistence.NewMongoStore(client, database)
		if err := s.EnsureIndexes(cctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: unsupported backend %q", ErrInvalidConfig, backend)
}

// Config returns the configuration the runtime was opened with.
func (rt *Runtime) Config() *Config { return rt.cfg }

// FlowOptions returns the options that attach this runtime to a flow.
func (rt *Runtime) FlowOptions() []flow.Option {
	opts := []flow.Option{
		flow.WithLogger(rt.Logger),
		flow.WithBlockingPool(rt.pool),
		flow.WithMaxConcurrency(rt.cfg.Flow.MaxConcurrency),
	}
	if rt.Telemetry != nil {
		opts = append(opts, flow.WithTelemetry(rt.Telemetry))
	}
	if rt.Observer != nil {
		opts = append(opts, flow.WithObserver(rt.Observer))
	}
	return opts
}

// Semantic starts a semantic node builder bound to the runtime's completer
// and logger.
func (rt *Runtime) Semantic() *semantic.Builder {
	return semantic.NewBuilder(rt.Completer).Logger(rt.Logger)
}

// Close flushes telemetry, then releases the pool and every connection.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.sink != nil {
		errs = append(errs, rt.sink.Close())
	} else if rt.Telemetry != nil {
		rt.Telemetry.Flush()
	}
	if rt.pool != nil {
		rt.pool.Release()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	if rt.Logger != nil {
		_ = rt.Logger.Sync()
	}
	return errors.Join(errs...)
}
