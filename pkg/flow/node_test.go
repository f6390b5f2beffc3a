package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/petrijr/fluxnode/pkg/api"
)

func TestNode_RunsPhasesInOrder(t *testing.T) {
	rec := &recorder{}
	n := spy("a", "next", rec)
	state := api.State{}

	action := n.Run(state)

	assert.Equal(t, "next", action)
	assert.Equal(t, []string{"a:prep", "a:exec", "a:post"}, rec.all())
	assert.Equal(t, true, state["visited_a"])
}

func TestNode_RunWithParamsDoesNotMutateNode(t *testing.T) {
	var seen api.Params
	n := NewNode(api.NodeFuncs{
		PrepFn: func(params api.Params, state api.State) api.Value {
			seen = params
			return nil
		},
	}).SetParams(api.Params{"k": "stored"})

	n.RunWithParams(api.State{}, api.Params{"k": "override"})
	assert.Equal(t, "override", seen["k"])
	assert.Equal(t, "stored", n.Params()["k"])

	n.Run(api.State{})
	assert.Equal(t, "stored", seen["k"])
}

func TestNode_NextUsesDefaultAction(t *testing.T) {
	a := spy("a", "", nil)
	b := spy("b", "", nil)
	a.Next(b)

	assert.Same(t, b, a.Successors()[api.DefaultAction])
}

func TestNode_NextOnOverwriteWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	a := NewNode(api.NodeFuncs{}, WithLogger(zap.New(core)))
	b := spy("b", "", nil)
	c := spy("c", "", nil)

	a.NextOn("go", b)
	assert.Equal(t, 0, logs.Len())

	a.NextOn("go", c)
	assert.Same(t, c, a.Successors()["go"])
	entries := logs.FilterMessage("overwriting successor").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "go", entries[0].ContextMap()["action"])
}

func TestNode_CloneIsIndependent(t *testing.T) {
	b := spy("b", "", nil)
	a := spy("a", "", nil).SetParams(api.Params{"list": []any{1}}).Next(b)

	cp := a.Clone()
	cp.Params()["list"].([]any)[0] = 2
	cp.NextOn("other", spy("c", "", nil))

	assert.Equal(t, 1, a.Params()["list"].([]any)[0])
	assert.Len(t, a.Successors(), 1)
	assert.Same(t, b, cp.Successors()[api.DefaultAction])
	assert.NotSame(t, a.Logic(), cp.Logic())
}

func TestAsyncNode_Run(t *testing.T) {
	n := asyncSpy("x", "done")
	state := api.State{}

	assert.Equal(t, "done", n.Run(context.Background(), state))
	assert.Equal(t, true, state["visited_x"])
	assert.Equal(t, KindAsync, n.Kind())
}

func TestSeal_RequiresSealableLogic(t *testing.T) {
	_, err := spy("a", "", nil).Seal()
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrNotSealable))
}

func TestSeal_IsDeterministic(t *testing.T) {
	a, err := contract("t1", "q -> a").Seal()
	require.NoError(t, err)
	b, err := contract("t1", "q -> a").Seal()
	require.NoError(t, err)

	assert.Equal(t, a.SignatureHash(), b.SignatureHash())
	assert.Equal(t, a.InstructionHash(), b.InstructionHash())
	assert.Equal(t, "t1", a.TaskID())
	assert.Equal(t, NativeModel, a.ModelName())
	assert.Equal(t, KindSealed, a.Kind())
}

func TestSeal_InstructionHashFromParamsWithoutInstruction(t *testing.T) {
	a, err := contract("t", "q -> a").SetParams(api.Params{"temperature": "0.1"}).Seal()
	require.NoError(t, err)
	b, err := contract("t", "q -> a").SetParams(api.Params{"temperature": "0.9"}).Seal()
	require.NoError(t, err)

	assert.Equal(t, a.SignatureHash(), b.SignatureHash())
	assert.NotEqual(t, a.InstructionHash(), b.InstructionHash())
}

func TestSeal_PromptableHashesInstructionAndDescriptions(t *testing.T) {
	mk := func(instruction, outDesc, model string) *SealedNode {
		sig := api.Signature{
			Inputs:  []api.Field{api.F("question", "user question")},
			Outputs: []api.Field{api.F("answer", outDesc)},
		}
		s, err := NewNode(&promptLogic{
			contractLogic: contractLogic{taskID: "qa", sig: sig},
			instruction:   instruction,
			model:         model,
		}).Seal()
		require.NoError(t, err)
		return s
	}

	base := mk("Answer the question", "the answer", "")
	same := mk("Answer the question", "the answer", "")
	otherDesc := mk("Answer the question", "a short answer", "")
	otherInstr := mk("Answer briefly", "the answer", "")
	withModel := mk("Answer the question", "the answer", "gpt-4o-mini")

	assert.Equal(t, base.InstructionHash(), same.InstructionHash())
	assert.NotEqual(t, base.InstructionHash(), otherDesc.InstructionHash())
	assert.NotEqual(t, base.InstructionHash(), otherInstr.InstructionHash())
	assert.Equal(t, base.SignatureHash(), otherDesc.SignatureHash())

	assert.Equal(t, NativeModel, base.ModelName())
	assert.Equal(t, "gpt-4o-mini", withModel.ModelName())
}

func TestSealedNode_SuccessorsAreInnerSuccessors(t *testing.T) {
	next := spy("next", "", nil)
	n := contract("t", "-> a").Next(next)
	s, err := n.Seal()
	require.NoError(t, err)

	assert.Same(t, next, s.Successors()[api.DefaultAction])
	assert.Same(t, n, s.Inner())
}

func TestSealedNode_OptimizationSlots(t *testing.T) {
	s, err := contract("t", "q -> a").Seal()
	require.NoError(t, err)

	assert.Nil(t, s.Optimization().FitnessScore)

	s.SetTrainingHash("train")
	s.SetFitnessScore(0.75)
	s.SetWeightsPath("/weights/t.bin")
	s.SetOptimizationConfigHash("cfg")

	opt := s.Optimization()
	require.NotNil(t, opt.FitnessScore)
	assert.Equal(t, 0.75, *opt.FitnessScore)
	assert.Equal(t, "train", opt.TrainingHash)

	// snapshots do not alias the node
	*opt.FitnessScore = 0
	assert.Equal(t, 0.75, *s.Optimization().FitnessScore)

	entry := s.Trace("in", "out")
	require.NotNil(t, entry.TrainingHash)
	assert.Equal(t, "train", *entry.TrainingHash)
	assert.Equal(t, "/weights/t.bin", entry.Metadata["weights_path"])
	assert.Equal(t, "cfg", entry.Metadata["optimization_config_hash"])
}

type panickySink struct{}

func (panickySink) Record(api.TraceEntry) { panic("sink down") }
func (panickySink) Flush()                {}

func TestSealedNode_SinkFailureDoesNotFailRun(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	n := NewNode(&contractLogic{taskID: "t", sig: api.MustParseSignature("-> a")}, WithLogger(zap.New(core)))
	s, err := n.Seal()
	require.NoError(t, err)

	state := api.State{}
	assert.Equal(t, api.DefaultAction, s.Run(state, panickySink{}))
	assert.Equal(t, "a_value", state["a"])
	assert.Equal(t, 1, logs.FilterMessage("telemetry sink panicked; trace dropped").Len())
}
