package flow

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/fluxnode/pkg/api"
)

// Batch adapters lift per-item logic to a list. Prep and Post delegate to the
// wrapped logic; Exec requires prep to yield a JSON array and maps the wrapped
// Exec over it, keeping input order. A non-array logs an error and yields nil.

type batchLogic struct {
	inner  api.NodeLogic
	logger *zap.Logger
}

// BatchLogic runs inner.Exec over each item sequentially.
func BatchLogic(inner api.NodeLogic, opts ...Option) api.NodeLogic {
	return &batchLogic{inner: inner, logger: newOptions(opts).logger}
}

// NewBatchNode is NewNode(BatchLogic(inner)).
func NewBatchNode(inner api.NodeLogic, opts ...Option) *Node {
	return NewNode(BatchLogic(inner, opts...), opts...)
}

func (b *batchLogic) Prep(params api.Params, state api.State) api.Value {
	return b.inner.Prep(params, state)
}

func (b *batchLogic) Exec(prepRes api.Value) api.Value {
	items, ok := api.AsSlice(prepRes)
	if !ok {
		logNotArray(b.logger, prepRes)
		return nil
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = b.inner.Exec(item)
	}
	return out
}

func (b *batchLogic) Post(state api.State, prepRes, execRes api.Value) string {
	return b.inner.Post(state, prepRes, execRes)
}

func (b *batchLogic) Clone() api.NodeLogic {
	return &batchLogic{inner: b.inner.Clone(), logger: b.logger}
}

type parallelBatchLogic struct {
	inner  api.NodeLogic
	limit  int
	logger *zap.Logger
}

// ParallelBatchLogic runs inner.Exec over the items concurrently, at most
// WithMaxConcurrency (default DefaultMaxConcurrency) at a time. inner.Exec
// must be safe for concurrent use.
func ParallelBatchLogic(inner api.NodeLogic, opts ...Option) api.NodeLogic {
	o := newOptions(opts)
	return &parallelBatchLogic{inner: inner, limit: o.maxConcurrency, logger: o.logger}
}

func NewParallelBatchNode(inner api.NodeLogic, opts ...Option) *Node {
	return NewNode(ParallelBatchLogic(inner, opts...), opts...)
}

func (b *parallelBatchLogic) Prep(params api.Params, state api.State) api.Value {
	return b.inner.Prep(params, state)
}

func (b *parallelBatchLogic) Exec(prepRes api.Value) api.Value {
	items, ok := api.AsSlice(prepRes)
	if !ok {
		logNotArray(b.logger, prepRes)
		return nil
	}
	out := make([]any, len(items))
	var g errgroup.Group
	g.SetLimit(b.limit)
	for i, item := range items {
		g.Go(func() error {
			out[i] = b.inner.Exec(item)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (b *parallelBatchLogic) Post(state api.State, prepRes, execRes api.Value) string {
	return b.inner.Post(state, prepRes, execRes)
}

func (b *parallelBatchLogic) Clone() api.NodeLogic {
	return &parallelBatchLogic{inner: b.inner.Clone(), limit: b.limit, logger: b.logger}
}

type asyncBatchLogic struct {
	inner  api.AsyncNodeLogic
	logger *zap.Logger
}

// AsyncBatchLogic awaits inner.Exec for each item in turn.
func AsyncBatchLogic(inner api.AsyncNodeLogic, opts ...Option) api.AsyncNodeLogic {
	return &asyncBatchLogic{inner: inner, logger: newOptions(opts).logger}
}

func NewAsyncBatchNode(inner api.AsyncNodeLogic, opts ...Option) *AsyncNode {
	return NewAsyncNode(AsyncBatchLogic(inner, opts...), opts...)
}

func (b *asyncBatchLogic) Prep(ctx context.Context, params api.Params, state api.State) api.Value {
	return b.inner.Prep(ctx, params, state)
}

func (b *asyncBatchLogic) Exec(ctx context.Context, prepRes api.Value) api.Value {
	items, ok := api.AsSlice(prepRes)
	if !ok {
		logNotArray(b.logger, prepRes)
		return nil
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = b.inner.Exec(ctx, item)
	}
	return out
}

func (b *asyncBatchLogic) Post(ctx context.Context, state api.State, prepRes, execRes api.Value) string {
	return b.inner.Post(ctx, state, prepRes, execRes)
}

func (b *asyncBatchLogic) Clone() api.AsyncNodeLogic {
	return &asyncBatchLogic{inner: b.inner.Clone(), logger: b.logger}
}

type asyncParallelBatchLogic struct {
	inner  api.AsyncNodeLogic
	limit  int
	logger *zap.Logger
}

// AsyncParallelBatchLogic runs inner.Exec over the items concurrently with
// bounded concurrency, keeping input order in the result.
func AsyncParallelBatchLogic(inner api.AsyncNodeLogic, opts ...Option) api.AsyncNodeLogic {
	o := newOptions(opts)
	return &asyncParallelBatchLogic{inner: inner, limit: o.maxConcurrency, logger: o.logger}
}

func NewAsyncParallelBatchNode(inner api.AsyncNodeLogic, opts ...Option) *AsyncNode {
	return NewAsyncNode(AsyncParallelBatchLogic(inner, opts...), opts...)
}

func (b *asyncParallelBatchLogic) Prep(ctx context.Context, params api.Params, state api.State) api.Value {
	return b.inner.Prep(ctx, params, state)
}

func (b *asyncParallelBatchLogic) Exec(ctx context.Context, prepRes api.Value) api.Value {
	items, ok := api.AsSlice(prepRes)
	if !ok {
		logNotArray(b.logger, prepRes)
		return nil
	}
	out := make([]any, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.limit)
	for i, item := range items {
		g.Go(func() error {
			out[i] = b.inner.Exec(gctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (b *asyncParallelBatchLogic) Post(ctx context.Context, state api.State, prepRes, execRes api.Value) string {
	return b.inner.Post(ctx, state, prepRes, execRes)
}

func (b *asyncParallelBatchLogic) Clone() api.AsyncNodeLogic {
	return &asyncParallelBatchLogic{inner: b.inner.Clone(), limit: b.limit, logger: b.logger}
}

func logNotArray(logger *zap.Logger, v api.Value) {
	logger.Error("batch input is not an array",
		zap.String("type", fmt.Sprintf("%T", v)),
	)
}
