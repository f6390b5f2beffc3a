package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/fluxnode/pkg/api"
)

// appender appends params["item"] (and params["tag"]) to state["seen"].
func appender() *Node {
	return NewNode(api.NodeFuncs{
		PrepFn: func(params api.Params, state api.State) api.Value {
			return []any{params["item"], params["tag"]}
		},
		PostFn: func(state api.State, prepRes, _ api.Value) string {
			seen, _ := state["seen"].([]any)
			state["seen"] = append(seen, prepRes)
			return ""
		},
	})
}

func itemsFromState(params api.Params, state api.State) []api.Params {
	var sets []api.Params
	for _, it := range state["items"].([]any) {
		sets = append(sets, api.Params{"item": it, "tag": "iteration"})
	}
	return sets
}

func TestBatchFlow_IterationsShareState(t *testing.T) {
	bf := NewBatchFlow(NewFlow(appender()), itemsFromState)
	state := api.State{"items": []any{"a", "b", "c"}}

	action := bf.Run(state)

	assert.Equal(t, api.DefaultAction, action)
	assert.Equal(t, []any{
		[]any{"a", "iteration"},
		[]any{"b", "iteration"},
		[]any{"c", "iteration"},
	}, state["seen"])
}

func TestBatchFlow_InnerParamsWinOverIterationParams(t *testing.T) {
	inner := NewFlow(appender()).SetParams(api.Params{"tag": "inner"})
	bf := NewBatchFlow(inner, itemsFromState)
	state := api.State{"items": []any{"x", "y"}}

	bf.Run(state)

	assert.Equal(t, []any{
		[]any{"x", "inner"},
		[]any{"y", "inner"},
	}, state["seen"])
}

func TestBatchFlow_ParamsFuncSeesRunParams(t *testing.T) {
	var got api.Params
	bf := NewBatchFlow(appender(), func(params api.Params, _ api.State) []api.Params {
		got = params
		return nil
	}).SetParams(api.Params{"batch": 1})

	bf.Run(api.State{})
	assert.Equal(t, api.Params{"batch": 1}, got)
}

func TestBatchFlow_Nested(t *testing.T) {
	innerBatch := NewBatchFlow(appender(), func(params api.Params, _ api.State) []api.Params {
		return []api.Params{
			{"item": params["group"], "tag": 1},
			{"item": params["group"], "tag": 2},
		}
	})
	outer := NewBatchFlow(innerBatch, func(api.Params, api.State) []api.Params {
		return []api.Params{{"group": "g1"}, {"group": "g2"}}
	})

	state := api.State{}
	outer.Run(state)

	assert.Equal(t, []any{
		[]any{"g1", 1}, []any{"g1", 2},
		[]any{"g2", 1}, []any{"g2", 2},
	}, state["seen"])
}

func TestBatchFlow_AsUnitInsideFlow(t *testing.T) {
	bf := NewBatchFlow(appender(), itemsFromState)
	bf.Next(spy("done", "", nil))

	state := api.State{"items": []any{1}}
	NewFlow(bf).Run(state)

	assert.Len(t, state["seen"], 1)
	assert.Equal(t, true, state["visited_done"])
}

func TestBatchFlow_RejectsAsyncInner(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		assert.True(t, errors.Is(r.(error), ErrAsyncInSyncFlow))
	}()
	NewBatchFlow(asyncSpy("a", ""), itemsFromState)
}
