package flow

import (
	"sort"

	"github.com/petrijr/fluxnode/pkg/api"
)

// validate walks the graph depth first, successors in action order. Every
// branch works on its own copy of the available keys. A sealable unit is
// checked at most once per task id, on the first path that reaches it; later
// paths stop there.
//
// Nested flows are entered at their start. Their successors continue with
// every output declared by a sealable unit inside the nested flow.
func validate(start Executable, initialKeys []string) *api.ValidationResult {
	v := &validator{
		result:  &api.ValidationResult{},
		checked: map[string]bool{},
		seen:    map[Executable]bool{},
	}
	keys := make(map[string]bool, len(initialKeys))
	for _, k := range initialKeys {
		keys[k] = true
	}
	if start != nil {
		v.walk(start, keys)
	}
	return v.result
}

type validator struct {
	result *api.ValidationResult
	// checked holds task ids of sealable units already validated.
	checked map[string]bool
	// seen holds non-sealable units already walked, so cycles terminate.
	seen map[Executable]bool
}

func (v *validator) walk(u Executable, keys map[string]bool) {
	if s, ok := sealableOf(u); ok {
		taskID := s.TaskID()
		if v.checked[taskID] {
			return
		}
		v.checked[taskID] = true

		sig := s.Signature()
		for _, in := range sig.Inputs {
			if !keys[in.Name] {
				v.result.AddError("Node '%s' requires input '%s' which is missing from the shared state.", taskID, in.Name)
			}
		}
		for _, out := range sig.Outputs {
			keys[out.Name] = true
		}
	} else {
		if v.seen[u] {
			return
		}
		v.seen[u] = true

		if start, ok := nestedStart(u); ok && start != nil {
			v.walk(start, copyKeys(keys))
			for _, k := range declaredOutputs(start) {
				keys[k] = true
			}
		}
	}

	succ := u.Successors()
	for _, action := range sortedActions(succ) {
		v.walk(succ[action], copyKeys(keys))
	}
}

func sealableOf(u Executable) (api.Sealable, bool) {
	switch n := u.(type) {
	case *SealedNode:
		return n, true
	case *Node:
		s, ok := n.logic.(api.Sealable)
		return s, ok
	case *AsyncNode:
		s, ok := n.logic.(api.Sealable)
		return s, ok
	default:
		return nil, false
	}
}

func nestedStart(u Executable) (Executable, bool) {
	switch n := u.(type) {
	case *Flow:
		return n.start, true
	case *AsyncFlow:
		return n.start, true
	case *BatchFlow:
		return n.inner, true
	default:
		return nil, false
	}
}

// declaredOutputs collects the outputs of every sealable unit reachable
// from start, including inside nested flows.
func declaredOutputs(start Executable) []string {
	var out []string
	seen := map[Executable]bool{}
	var visit func(Executable)
	visit = func(u Executable) {
		if u == nil || seen[u] {
			return
		}
		seen[u] = true
		if s, ok := sealableOf(u); ok {
			out = append(out, s.Signature().OutputNames()...)
		}
		if inner, ok := nestedStart(u); ok {
			visit(inner)
		}
		for _, next := range u.Successors() {
			visit(next)
		}
	}
	visit(start)
	return out
}

func copyKeys(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedActions(succ map[string]Executable) []string {
	actions := make([]string, 0, len(succ))
	for a := range succ {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	return actions
}
