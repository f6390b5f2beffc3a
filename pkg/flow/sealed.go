package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/petrijr/fluxnode/pkg/api"
)

// NativeModel is the model name of sealed units that are not driven by a
// remote model.
const NativeModel = "native"

// Optimization is the mutable optimization metadata of a sealed unit.
type Optimization struct {
	TrainingHash           string
	OptimizationConfigHash string
	FitnessScore           *float64
	WeightsPath            string
}

// SealedNode wraps a node whose data contract is frozen. It is shared by
// pointer; identity fields never change after sealing.
type SealedNode struct {
	inner           Executable
	logger          *zap.Logger
	taskID          string
	signature       api.Signature
	signatureHash   string
	instructionHash string
	modelName       string

	mu  sync.RWMutex
	opt Optimization
}

var (
	_ Executable   = (*SealedNode)(nil)
	_ syncUnit     = (*SealedNode)(nil)
	_ asyncUnit    = (*SealedNode)(nil)
	_ api.Sealable = (*SealedNode)(nil)
)

func seal(inner Executable, logic any, params api.Params) (*SealedNode, error) {
	s, ok := logic.(api.Sealable)
	if !ok {
		return nil, fmt.Errorf("seal %T: %w", logic, api.ErrNotSealable)
	}
	sig := s.Signature()

	var instrHash string
	if p, ok := logic.(api.Promptable); ok {
		instrHash = api.InstructionHash(p.Instruction(), sig)
	} else {
		instrHash = api.ParamsHash(params)
	}

	return &SealedNode{
		inner:           inner,
		logger:          loggerOf(inner),
		taskID:          s.TaskID(),
		signature:       sig,
		signatureHash:   sig.StructuralHash(),
		instructionHash: instrHash,
		modelName:       modelNameOf(logic),
	}, nil
}

func modelNameOf(logic any) string {
	if p, ok := logic.(api.Promptable); ok {
		if m := p.Model(); m != "" {
			return m
		}
	}
	if d, ok := logic.(api.ModelDefaulter); ok {
		if m := d.DefaultModel(); m != "" {
			return m
		}
	}
	return NativeModel
}

func loggerOf(u Executable) *zap.Logger {
	switch n := u.(type) {
	case *Node:
		return n.logger
	case *AsyncNode:
		return n.logger
	default:
		return zap.L()
	}
}

func (s *SealedNode) Kind() Kind { return KindSealed }

// Successors are the wrapped node's successors.
func (s *SealedNode) Successors() map[string]Executable { return s.inner.Successors() }
func (s *SealedNode) executable()                       {}

func (s *SealedNode) TaskID() string           { return s.taskID }
func (s *SealedNode) Signature() api.Signature { return s.signature }
func (s *SealedNode) SignatureHash() string    { return s.signatureHash }
func (s *SealedNode) InstructionHash() string  { return s.instructionHash }
func (s *SealedNode) ModelName() string        { return s.modelName }
func (s *SealedNode) Inner() Executable        { return s.inner }

// Optimization returns a snapshot of the optimization metadata.
func (s *SealedNode) Optimization() Optimization {
	s.mu.RLock()
	defer s.mu.RUnlock()
	opt := s.opt
	if opt.FitnessScore != nil {
		f := *opt.FitnessScore
		opt.FitnessScore = &f
	}
	return opt
}

// SetOptimization replaces the optimization metadata.
func (s *SealedNode) SetOptimization(opt Optimization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opt = opt
}

func (s *SealedNode) SetTrainingHash(h string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opt.TrainingHash = h
}

func (s *SealedNode) SetFitnessScore(score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opt.FitnessScore = &score
}

func (s *SealedNode) SetWeightsPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opt.WeightsPath = path
}

func (s *SealedNode) SetOptimizationConfigHash(h string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opt.OptimizationConfigHash = h
}

// Run executes the wrapped sync node with its own params, recording to t
// when non-nil. It panics if the wrapped node is async.
func (s *SealedNode) Run(state api.State, t api.Telemetry) string {
	return s.runSync(env{telemetry: t}, s.storedParams(), state)
}

// RunAsync executes the wrapped node of either kind.
func (s *SealedNode) RunAsync(ctx context.Context, state api.State, t api.Telemetry) string {
	return s.runAsync(ctx, env{telemetry: t}, s.storedParams(), state)
}

func (s *SealedNode) storedParams() api.Params {
	if p, ok := s.inner.(paramHolder); ok {
		return p.Params()
	}
	return api.Params{}
}

func (s *SealedNode) runSync(e env, params api.Params, state api.State) string {
	n, ok := s.inner.(*Node)
	if !ok {
		panic(fmt.Errorf("%w: sealed %q wraps %s", ErrAsyncInSyncFlow, s.taskID, s.inner.Kind()))
	}
	prepRes, execRes, action := n.phases(params, state)
	s.record(e.telemetry, prepRes, execRes)
	return action
}

func (s *SealedNode) runAsync(ctx context.Context, e env, params api.Params, state api.State) string {
	n, ok := s.inner.(*AsyncNode)
	if !ok {
		return s.runSync(e, params, state)
	}
	prepRes, execRes, action := n.phases(ctx, params, state)
	s.record(e.telemetry, prepRes, execRes)
	return action
}

// Trace builds the trace entry for one execution. Inputs and outputs are
// deep copied, so later writes to the shared state do not reach the entry.
func (s *SealedNode) Trace(inputs, outputs api.Value) api.TraceEntry {
	opt := s.Optimization()
	entry := api.TraceEntry{
		Timestamp:       time.Now().UTC(),
		TaskID:          s.taskID,
		SignatureHash:   s.signatureHash,
		InstructionHash: s.instructionHash,
		Inputs:          api.CloneValue(inputs),
		Outputs:         api.CloneValue(outputs),
		ModelName:       s.modelName,
		FitnessScore:    opt.FitnessScore,
		Metadata:        map[string]string{},
	}
	if opt.TrainingHash != "" {
		th := opt.TrainingHash
		entry.TrainingHash = &th
	}
	if opt.OptimizationConfigHash != "" {
		entry.Metadata["optimization_config_hash"] = opt.OptimizationConfigHash
	}
	if opt.WeightsPath != "" {
		entry.Metadata["weights_path"] = opt.WeightsPath
	}
	return entry
}

func (s *SealedNode) record(t api.Telemetry, inputs, outputs api.Value) {
	if t == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("telemetry sink panicked; trace dropped",
				zap.String("task_id", s.taskID),
				zap.Any("panic", r),
			)
		}
	}()
	t.Record(s.Trace(inputs, outputs))
}
