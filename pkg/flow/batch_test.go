package flow

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/petrijr/fluxnode/pkg/api"
)

func TestBatchNode_MapsInOrder(t *testing.T) {
	state := api.State{"items": []any{1, 2, 3}}
	NewBatchNode(doubler()).Run(state)

	assert.Equal(t, []any{2, 4, 6}, state["results"])
}

// skewed makes earlier items slower so completion order is reversed.
func skewed(active, peak *atomic.Int32) api.NodeFuncs {
	f := doubler()
	f.ExecFn = func(item api.Value) api.Value {
		n := active.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		defer active.Add(-1)
		time.Sleep(time.Duration(4-item.(int)) * 5 * time.Millisecond)
		return double(item)
	}
	return f
}

func TestParallelBatchNode_KeepsInputOrder(t *testing.T) {
	var active, peak atomic.Int32
	state := api.State{"items": []any{1, 2, 3}}

	NewParallelBatchNode(skewed(&active, &peak)).Run(state)

	assert.Equal(t, []any{2, 4, 6}, state["results"])
}

func TestParallelBatchNode_BoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	state := api.State{"items": []any{1, 2, 3, 1, 2, 3}}

	NewParallelBatchNode(skewed(&active, &peak), WithMaxConcurrency(2)).Run(state)

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, []any{2, 4, 6, 2, 4, 6}, state["results"])
}

func TestWithMaxConcurrency_ZeroPanics(t *testing.T) {
	assert.Panics(t, func() { WithMaxConcurrency(0) })
	assert.Panics(t, func() { NewParallelBatchNode(doubler(), WithMaxConcurrency(-1)) })
}

func TestBatchNodes_NonArrayYieldsNil(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	logger := zap.New(core)

	for name, n := range map[string]*Node{
		"sequential": NewBatchNode(doubler(), WithLogger(logger)),
		"parallel":   NewParallelBatchNode(doubler(), WithLogger(logger)),
	} {
		state := api.State{"items": "not a list"}
		n.Run(state)
		v, ok := state["results"]
		assert.True(t, ok, name)
		assert.Nil(t, v, name)
	}
	assert.Equal(t, 2, logs.FilterMessage("batch input is not an array").Len())
}

func asyncDoubler(delay func(item int) time.Duration) api.AsyncNodeFuncs {
	return api.AsyncNodeFuncs{
		PrepFn: func(_ context.Context, _ api.Params, state api.State) api.Value {
			return state["items"]
		},
		ExecFn: func(ctx context.Context, item api.Value) api.Value {
			if n, ok := item.(int); ok && delay != nil {
				time.Sleep(delay(n))
			}
			return double(item)
		},
		PostFn: func(_ context.Context, state api.State, _, execRes api.Value) string {
			state["results"] = execRes
			return api.DefaultAction
		},
	}
}

func TestAsyncBatchNodes(t *testing.T) {
	slowFirst := func(n int) time.Duration { return time.Duration(4-n) * 5 * time.Millisecond }

	for name, n := range map[string]*AsyncNode{
		"sequential": NewAsyncBatchNode(asyncDoubler(nil)),
		"parallel":   NewAsyncParallelBatchNode(asyncDoubler(slowFirst), WithMaxConcurrency(3)),
	} {
		state := api.State{"items": []any{1, 2, 3}}
		action := n.Run(context.Background(), state)
		assert.Equal(t, api.DefaultAction, action, name)
		assert.Equal(t, []any{2, 4, 6}, state["results"], name)
	}
}

func TestAsyncBatchNodes_NonArrayYieldsNil(t *testing.T) {
	logger := zap.NewNop()
	for _, n := range []*AsyncNode{
		NewAsyncBatchNode(asyncDoubler(nil), WithLogger(logger)),
		NewAsyncParallelBatchNode(asyncDoubler(nil), WithLogger(logger)),
	} {
		state := api.State{"items": map[string]any{"a": 1}}
		n.Run(context.Background(), state)
		assert.Nil(t, state["results"])
	}
}

func TestBatchLogic_CloneIsIndependent(t *testing.T) {
	rec := &recorder{}
	inner := &spyLogic{id: "s", rec: rec}
	b := BatchLogic(inner)
	cp := b.Clone()

	assert.NotSame(t, b, cp)
	assert.NotSame(t, inner, cp.(*batchLogic).inner)
}

func TestParallelBatch_Property_OrderPreserved(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		items := rapid.SliceOf(rapid.IntRange(-1000, 1000)).Draw(rt, "items")
		limit := rapid.IntRange(1, 8).Draw(rt, "limit")

		in := make([]any, len(items))
		want := make([]any, len(items))
		for i, v := range items {
			in[i] = v
			want[i] = v * 2
		}

		logic := ParallelBatchLogic(api.NodeFuncs{
			ExecFn: func(item api.Value) api.Value { return item.(int) * 2 },
		}, WithMaxConcurrency(limit))

		got := logic.Exec(in)
		require.Equal(rt, want, got)
	})
}
