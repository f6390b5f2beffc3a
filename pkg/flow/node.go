package flow

import (
	"context"

	"go.uber.org/zap"

	"github.com/petrijr/fluxnode/pkg/api"
)

// Node is a synchronous unit: params, outgoing edges and its logic.
type Node struct {
	logic      api.NodeLogic
	params     api.Params
	successors map[string]Executable
	logger     *zap.Logger
}

var (
	_ Executable = (*Node)(nil)
	_ syncUnit   = (*Node)(nil)
)

// NewNode wraps logic in a Node with empty params and no successors.
func NewNode(logic api.NodeLogic, opts ...Option) *Node {
	o := newOptions(opts)
	return &Node{
		logic:      logic,
		params:     api.Params{},
		successors: map[string]Executable{},
		logger:     o.logger,
	}
}

func (n *Node) Kind() Kind                        { return KindSync }
func (n *Node) Successors() map[string]Executable { return n.successors }
func (n *Node) executable()                       {}

// Logic returns the node's behaviour.
func (n *Node) Logic() api.NodeLogic { return n.logic }

// Params returns the node's stored params.
func (n *Node) Params() api.Params { return n.params }

// SetParams replaces the stored params.
func (n *Node) SetParams(p api.Params) *Node {
	if p == nil {
		p = api.Params{}
	}
	n.params = p
	return n
}

// Next links next under api.DefaultAction.
func (n *Node) Next(next Executable) *Node {
	return n.NextOn(api.DefaultAction, next)
}

// NextOn links next under action, replacing (with a warning) any existing
// edge for the same action.
func (n *Node) NextOn(action string, next Executable) *Node {
	setEdge(n.successors, action, next, n.logger)
	return n
}

// Run executes prep, exec and post with the stored params and returns the
// action from post. An empty action means the node ends its traversal.
func (n *Node) Run(state api.State) string {
	return n.RunWithParams(state, n.params)
}

// RunWithParams is Run with params substituted for this call only.
func (n *Node) RunWithParams(state api.State, params api.Params) string {
	_, _, action := n.phases(params, state)
	return action
}

func (n *Node) phases(params api.Params, state api.State) (prepRes, execRes api.Value, action string) {
	prepRes = n.logic.Prep(params, state)
	execRes = n.logic.Exec(prepRes)
	action = n.logic.Post(state, prepRes, execRes)
	return prepRes, execRes, action
}

func (n *Node) runSync(_ env, params api.Params, state api.State) string {
	return n.RunWithParams(state, params)
}

// Clone returns a copy with cloned logic and params. Successor edges are
// copied shallowly.
func (n *Node) Clone() *Node {
	return &Node{
		logic:      n.logic.Clone(),
		params:     n.params.Clone(),
		successors: cloneEdges(n.successors),
		logger:     n.logger,
	}
}

// Seal freezes the node's data contract. The logic must implement
// api.Sealable.
func (n *Node) Seal() (*SealedNode, error) {
	return seal(n, n.logic, n.params)
}

// AsyncNode is an asynchronous unit.
type AsyncNode struct {
	logic      api.AsyncNodeLogic
	params     api.Params
	successors map[string]Executable
	logger     *zap.Logger
}

var (
	_ Executable = (*AsyncNode)(nil)
	_ asyncUnit  = (*AsyncNode)(nil)
)

// NewAsyncNode wraps logic in an AsyncNode with empty params and no
// successors.
func NewAsyncNode(logic api.AsyncNodeLogic, opts ...Option) *AsyncNode {
	o := newOptions(opts)
	return &AsyncNode{
		logic:      logic,
		params:     api.Params{},
		successors: map[string]Executable{},
		logger:     o.logger,
	}
}

func (n *AsyncNode) Kind() Kind                        { return KindAsync }
func (n *AsyncNode) Successors() map[string]Executable { return n.successors }
func (n *AsyncNode) executable()                       {}

func (n *AsyncNode) Logic() api.AsyncNodeLogic { return n.logic }

func (n *AsyncNode) Params() api.Params { return n.params }

func (n *AsyncNode) SetParams(p api.Params) *AsyncNode {
	if p == nil {
		p = api.Params{}
	}
	n.params = p
	return n
}

func (n *AsyncNode) Next(next Executable) *AsyncNode {
	return n.NextOn(api.DefaultAction, next)
}

func (n *AsyncNode) NextOn(action string, next Executable) *AsyncNode {
	setEdge(n.successors, action, next, n.logger)
	return n
}

// Run executes the three phases with the stored params.
func (n *AsyncNode) Run(ctx context.Context, state api.State) string {
	return n.RunWithParams(ctx, state, n.params)
}

func (n *AsyncNode) RunWithParams(ctx context.Context, state api.State, params api.Params) string {
	_, _, action := n.phases(ctx, params, state)
	return action
}

func (n *AsyncNode) phases(ctx context.Context, params api.Params, state api.State) (prepRes, execRes api.Value, action string) {
	prepRes = n.logic.Prep(ctx, params, state)
	execRes = n.logic.Exec(ctx, prepRes)
	action = n.logic.Post(ctx, state, prepRes, execRes)
	return prepRes, execRes, action
}

func (n *AsyncNode) runAsync(ctx context.Context, _ env, params api.Params, state api.State) string {
	return n.RunWithParams(ctx, state, params)
}

func (n *AsyncNode) Clone() *AsyncNode {
	return &AsyncNode{
		logic:      n.logic.Clone(),
		params:     n.params.Clone(),
		successors: cloneEdges(n.successors),
		logger:     n.logger,
	}
}

func (n *AsyncNode) Seal() (*SealedNode, error) {
	return seal(n, n.logic, n.params)
}

func cloneEdges(in map[string]Executable) map[string]Executable {
	out := make(map[string]Executable, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
