package fluxnode

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/petrijr/fluxnode/pkg/api"
	"github.com/petrijr/fluxnode/pkg/flow"
)

func noopChain(n int) *flow.Node {
	head := flow.NewNode(api.NodeFuncs{})
	cur := head
	for i := 1; i < n; i++ {
		next := flow.NewNode(api.NodeFuncs{})
		cur.Next(next)
		cur = next
	}
	return head
}

// TestUnitOverheadUnder1ms checks that traversal overhead per unit, with no
// user logic, stays below 1ms.
func TestUnitOverheadUnder1ms(t *testing.T) {
	t.Parallel()

	const N = 1000
	f := flow.NewFlow(noopChain(N), flow.WithLogger(zap.NewNop()))

	// Warm-up run.
	f.Run(api.State{})

	start := time.Now()
	f.Run(api.State{})
	total := time.Since(start)

	if avg := total / N; avg >= time.Millisecond {
		t.Fatalf("average overhead per unit too high: %v (total %v for %d units)", avg, total, N)
	}
}

// TestAsyncUnitOverheadUnder1ms is the same check for AsyncFlow, where every
// sync unit is dispatched to the blocking pool.
func TestAsyncUnitOverheadUnder1ms(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	const N = 1000
	f := flow.NewAsyncFlow(noopChain(N), flow.WithLogger(zap.NewNop()))

	f.Run(ctx, api.State{})

	start := time.Now()
	f.Run(ctx, api.State{})
	total := time.Since(start)

	if avg := total / N; avg >= time.Millisecond {
		t.Fatalf("average overhead per dispatched unit too high: %v (total %v for %d units)", avg, total, N)
	}
}

// TestMinimalRuntimeFootprintUnder5MB checks that an in-memory runtime
// retains less than ~5MB of heap.
func TestMinimalRuntimeFootprintUnder5MB(t *testing.T) {
	runtime.GC()
	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	rt, err := Open(context.Background(), nil, WithLogger(zap.NewNop()))
	require.NoError(t, err)

	runtime.GC()
	var after runtime.MemStats
	runtime.ReadMemStats(&after)
	runtime.KeepAlive(rt)
	require.NoError(t, rt.Close())

	const fiveMB = 5 * 1024 * 1024
	used := int64(after.HeapAlloc) - int64(before.HeapAlloc)
	if used < 0 {
		used = 0
	}
	if used >= fiveMB {
		t.Fatalf("minimal runtime footprint too high: %d bytes (>= %d)", used, fiveMB)
	}
}
