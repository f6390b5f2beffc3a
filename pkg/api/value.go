package api

// Value is the generic, JSON-shaped value exchanged between nodes.
//
// By convention a Value is one of: nil, bool, a number (int, int64, float64),
// string, []any or map[string]any. Other types pass through untouched but are
// shared rather than copied by CloneValue.
type Value = any

// State is the shared key-value map every node of one run reads and writes.
type State map[string]Value

// Params is the node-local configuration map.
type Params map[string]Value

// DefaultAction is the action used by Next and substituted for an empty action
// when a flow routes to the next unit.
const DefaultAction = "default"

// CloneValue deep copies maps and slices. Scalars are returned as-is.
func CloneValue(v Value) Value {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = CloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case State:
		return t.Clone()
	case Params:
		return t.Clone()
	default:
		return v
	}
}

// Clone returns a deep copy of the state. A nil state clones to an empty one.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = CloneValue(v)
	}
	return out
}

// Keys returns the keys currently present in the state, in no particular order.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	return keys
}

// Replace swaps the contents of s with the contents of other, keeping the
// identity of s so callers holding the map observe the change.
func (s State) Replace(other State) {
	for k := range s {
		if _, ok := other[k]; !ok {
			delete(s, k)
		}
	}
	for k, v := range other {
		s[k] = v
	}
}

// Clone returns a deep copy of the params.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = CloneValue(v)
	}
	return out
}

// Merge returns a new Params holding p overlaid with each of others in order.
// Later maps win on key collisions.
func (p Params) Merge(others ...Params) Params {
	out := p.Clone()
	for _, o := range others {
		for k, v := range o {
			out[k] = CloneValue(v)
		}
	}
	return out
}

// AsSlice returns v as []any if it is a JSON array.
func AsSlice(v Value) ([]any, bool) {
	t, ok := v.([]any)
	return t, ok
}
