package flow

import (
	"context"
	"sync"

	"github.com/petrijr/fluxnode/pkg/api"
)

// recorder collects phase events across nodes in order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// spyLogic records its phases and marks itself visited in the state.
type spyLogic struct {
	id     string
	action string
	rec    *recorder
}

func (s *spyLogic) Prep(params api.Params, state api.State) api.Value {
	if s.rec != nil {
		s.rec.add(s.id + ":prep")
	}
	return s.id
}

func (s *spyLogic) Exec(prepRes api.Value) api.Value {
	if s.rec != nil {
		s.rec.add(s.id + ":exec")
	}
	return prepRes
}

func (s *spyLogic) Post(state api.State, prepRes, execRes api.Value) string {
	if s.rec != nil {
		s.rec.add(s.id + ":post")
	}
	state["visited_"+s.id] = true
	return s.action
}

func (s *spyLogic) Clone() api.NodeLogic {
	cp := *s
	return &cp
}

func spy(id, action string, rec *recorder) *Node {
	return NewNode(&spyLogic{id: id, action: action, rec: rec})
}

// asyncSpyLogic is the async counterpart of spyLogic.
type asyncSpyLogic struct {
	id     string
	action string
}

func (s *asyncSpyLogic) Prep(ctx context.Context, params api.Params, state api.State) api.Value {
	return s.id
}

func (s *asyncSpyLogic) Exec(ctx context.Context, prepRes api.Value) api.Value {
	return prepRes
}

func (s *asyncSpyLogic) Post(ctx context.Context, state api.State, prepRes, execRes api.Value) string {
	state["visited_"+s.id] = true
	return s.action
}

func (s *asyncSpyLogic) Clone() api.AsyncNodeLogic {
	cp := *s
	return &cp
}

func asyncSpy(id, action string) *AsyncNode {
	return NewAsyncNode(&asyncSpyLogic{id: id, action: action})
}

// contractLogic declares a signature and writes "<output>_value" for each
// output field.
type contractLogic struct {
	taskID string
	sig    api.Signature
}

func (c *contractLogic) Prep(params api.Params, state api.State) api.Value {
	in := map[string]any{}
	for _, f := range c.sig.Inputs {
		in[f.Name] = state[f.Name]
	}
	return in
}

func (c *contractLogic) Exec(prepRes api.Value) api.Value {
	out := map[string]any{}
	for _, f := range c.sig.Outputs {
		out[f.Name] = f.Name + "_value"
	}
	return out
}

func (c *contractLogic) Post(state api.State, prepRes, execRes api.Value) string {
	for k, v := range execRes.(map[string]any) {
		state[k] = v
	}
	return api.DefaultAction
}

func (c *contractLogic) Clone() api.NodeLogic {
	cp := *c
	return &cp
}

func (c *contractLogic) Signature() api.Signature { return c.sig }
func (c *contractLogic) TaskID() string           { return c.taskID }

func contract(taskID, sig string) *Node {
	return NewNode(&contractLogic{taskID: taskID, sig: api.MustParseSignature(sig)})
}

// promptLogic is a contract with an instruction and model.
type promptLogic struct {
	contractLogic
	instruction string
	model       string
}

func (p *promptLogic) Instruction() string { return p.instruction }
func (p *promptLogic) Model() string       { return p.model }

func (p *promptLogic) Clone() api.NodeLogic {
	cp := *p
	return &cp
}

// asyncContractLogic is an async node with a contract.
type asyncContractLogic struct {
	asyncSpyLogic
	taskID string
	sig    api.Signature
}

func (c *asyncContractLogic) Signature() api.Signature { return c.sig }
func (c *asyncContractLogic) TaskID() string           { return c.taskID }

func (c *asyncContractLogic) Post(ctx context.Context, state api.State, prepRes, execRes api.Value) string {
	for _, f := range c.sig.Outputs {
		state[f.Name] = f.Name + "_value"
	}
	return api.DefaultAction
}

func (c *asyncContractLogic) Clone() api.AsyncNodeLogic {
	cp := *c
	return &cp
}

// doubler doubles numeric items.
func doubler() api.NodeFuncs {
	return api.NodeFuncs{
		PrepFn: func(params api.Params, state api.State) api.Value {
			return state["items"]
		},
		ExecFn: func(item api.Value) api.Value {
			return double(item)
		},
		PostFn: func(state api.State, prepRes, execRes api.Value) string {
			state["results"] = execRes
			return api.DefaultAction
		},
	}
}

func double(item api.Value) api.Value {
	switch n := item.(type) {
	case int:
		return n * 2
	case float64:
		return n * 2
	default:
		return item
	}
}
