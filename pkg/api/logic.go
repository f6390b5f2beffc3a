package api

import "context"

// NodeLogic is the behaviour of a synchronous node.
//
// A node runs in three phases: Prep reads what it needs from params and the
// shared state, Exec computes without touching the state, Post writes results
// back and returns the action used to pick the next unit. An empty action
// ends the traversal at this node unless the flow substitutes DefaultAction.
type NodeLogic interface {
	Prep(params Params, state State) Value
	Exec(prepRes Value) Value
	Post(state State, prepRes, execRes Value) string
	// Clone returns an independent copy of the logic.
	Clone() NodeLogic
}

// AsyncNodeLogic is the asynchronous counterpart of NodeLogic.
type AsyncNodeLogic interface {
	Prep(ctx context.Context, params Params, state State) Value
	Exec(ctx context.Context, prepRes Value) Value
	Post(ctx context.Context, state State, prepRes, execRes Value) string
	Clone() AsyncNodeLogic
}

// Sealable is implemented by logic that declares a fixed data contract.
type Sealable interface {
	Signature() Signature
	TaskID() string
}

// Promptable is implemented by logic driven by a natural-language instruction.
type Promptable interface {
	Instruction() string
	// Model returns the model override, or "" for none.
	Model() string
}

// ModelDefaulter is implemented by logic that knows which model its provider
// falls back to.
type ModelDefaulter interface {
	DefaultModel() string
}

// NodeFuncs adapts plain functions to NodeLogic. Nil phases are no-ops:
// Prep and Exec yield nil, Post yields "".
type NodeFuncs struct {
	PrepFn func(params Params, state State) Value
	ExecFn func(prepRes Value) Value
	PostFn func(state State, prepRes, execRes Value) string
}

var _ NodeLogic = NodeFuncs{}

func (f NodeFuncs) Prep(params Params, state State) Value {
	if f.PrepFn == nil {
		return nil
	}
	return f.PrepFn(params, state)
}

func (f NodeFuncs) Exec(prepRes Value) Value {
	if f.ExecFn == nil {
		return nil
	}
	return f.ExecFn(prepRes)
}

func (f NodeFuncs) Post(state State, prepRes, execRes Value) string {
	if f.PostFn == nil {
		return ""
	}
	return f.PostFn(state, prepRes, execRes)
}

// Clone returns f itself; function values carry no per-node state.
func (f NodeFuncs) Clone() NodeLogic { return f }

// AsyncNodeFuncs adapts plain context-aware functions to AsyncNodeLogic.
type AsyncNodeFuncs struct {
	PrepFn func(ctx context.Context, params Params, state State) Value
	ExecFn func(ctx context.Context, prepRes Value) Value
	PostFn func(ctx context.Context, state State, prepRes, execRes Value) string
}

var _ AsyncNodeLogic = AsyncNodeFuncs{}

func (f AsyncNodeFuncs) Prep(ctx context.Context, params Params, state State) Value {
	if f.PrepFn == nil {
		return nil
	}
	return f.PrepFn(ctx, params, state)
}

func (f AsyncNodeFuncs) Exec(ctx context.Context, prepRes Value) Value {
	if f.ExecFn == nil {
		return nil
	}
	return f.ExecFn(ctx, prepRes)
}

func (f AsyncNodeFuncs) Post(ctx context.Context, state State, prepRes, execRes Value) string {
	if f.PostFn == nil {
		return ""
	}
	return f.PostFn(ctx, state, prepRes, execRes)
}

func (f AsyncNodeFuncs) Clone() AsyncNodeLogic { return f }
