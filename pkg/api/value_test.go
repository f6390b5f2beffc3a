package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateClone_IsDeep(t *testing.T) {
	orig := State{
		"list": []any{1, map[string]any{"k": "v"}},
		"obj":  map[string]any{"n": 1},
	}
	cp := orig.Clone()

	cp["list"].([]any)[1].(map[string]any)["k"] = "changed"
	cp["obj"].(map[string]any)["n"] = 2
	cp["new"] = true

	assert.Equal(t, "v", orig["list"].([]any)[1].(map[string]any)["k"])
	assert.Equal(t, 1, orig["obj"].(map[string]any)["n"])
	_, ok := orig["new"]
	assert.False(t, ok)
}

func TestStateReplace_KeepsIdentity(t *testing.T) {
	s := State{"a": 1, "b": 2}
	alias := s

	s.Replace(State{"b": 3, "c": 4})

	assert.Equal(t, State{"b": 3, "c": 4}, alias)
}

func TestParamsMerge_LaterWins(t *testing.T) {
	base := Params{"a": 1, "b": 1}
	merged := base.Merge(Params{"b": 2, "c": 2}, Params{"c": 3})

	assert.Equal(t, Params{"a": 1, "b": 2, "c": 3}, merged)
	assert.Equal(t, Params{"a": 1, "b": 1}, base)
}

func TestAsSlice(t *testing.T) {
	items, ok := AsSlice([]any{1, 2})
	require.True(t, ok)
	assert.Len(t, items, 2)

	_, ok = AsSlice("not a list")
	assert.False(t, ok)
	_, ok = AsSlice(nil)
	assert.False(t, ok)
}

func TestValidationResult(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.IsSafe())
	assert.Contains(t, r.Summary(), "no issues")

	r.AddWarning("unreachable %s", "x")
	assert.True(t, r.IsSafe())
	assert.True(t, r.HasWarnings())

	r.AddError("missing %s", "y")
	assert.False(t, r.IsSafe())
	require.Len(t, r.Errors(), 1)
	assert.Equal(t, "missing y", r.Errors()[0].Message)
	assert.Contains(t, r.Summary(), "[ERROR] missing y")
	assert.Contains(t, r.Summary(), "[WARNING] unreachable x")
}

func TestNodeFuncs_NilPhases(t *testing.T) {
	var f NodeFuncs
	assert.Nil(t, f.Prep(nil, nil))
	assert.Nil(t, f.Exec(nil))
	assert.Equal(t, "", f.Post(nil, nil, nil))
}
