package flow

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/petrijr/fluxnode/pkg/api"
)

// Kind is the tag of an Executable.
type Kind int

const (
	KindSync Kind = iota
	KindAsync
	KindSealed
)

func (k Kind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindAsync:
		return "async"
	case KindSealed:
		return "sealed"
	default:
		return "unknown"
	}
}

// ErrAsyncInSyncFlow is the panic value (wrapped) raised when a sync Flow
// reaches a unit that can only run asynchronously.
var ErrAsyncInSyncFlow = errors.New("sync flow cannot run async units; use AsyncFlow")

// Executable is a unit that can be placed in a flow graph.
//
// The set of implementations is closed: *Node, *AsyncNode, *SealedNode,
// *Flow, *AsyncFlow and *BatchFlow.
type Executable interface {
	Kind() Kind
	// Successors returns the outgoing edges keyed by action. The map must
	// not be modified by callers.
	Successors() map[string]Executable

	executable()
}

// env carries what a driving flow hands down to the units it runs.
type env struct {
	telemetry api.Telemetry
}

type syncUnit interface {
	Executable
	runSync(e env, params api.Params, state api.State) string
}

type asyncUnit interface {
	Executable
	runAsync(ctx context.Context, e env, params api.Params, state api.State) string
}

// paramHolder is implemented by units that store their own params.
type paramHolder interface {
	Params() api.Params
}

// runsSync reports whether u can run without suspending.
func runsSync(u Executable) bool {
	switch u.Kind() {
	case KindSync:
		return true
	case KindSealed:
		return u.(*SealedNode).inner.Kind() == KindSync
	default:
		return false
	}
}

// setEdge inserts an edge, warning when it replaces an existing one.
func setEdge(successors map[string]Executable, action string, next Executable, logger *zap.Logger) {
	if _, ok := successors[action]; ok {
		logger.Warn("overwriting successor",
			zap.String("action", action),
		)
	}
	successors[action] = next
}
