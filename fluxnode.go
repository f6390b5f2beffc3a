package fluxnode

import (
	"github.com/petrijr/fluxnode/pkg/api"
	"github.com/petrijr/fluxnode/pkg/flow"
)

// Re-export key types so users don't need to dig into pkg/api and pkg/flow.

type (
	State            = api.State
	Params           = api.Params
	Value            = api.Value
	NodeLogic        = api.NodeLogic
	AsyncNodeLogic   = api.AsyncNodeLogic
	NodeFuncs        = api.NodeFuncs
	AsyncNodeFuncs   = api.AsyncNodeFuncs
	Signature        = api.Signature
	Field            = api.Field
	TraceEntry       = api.TraceEntry
	Telemetry        = api.Telemetry
	ValidationResult = api.ValidationResult
	Observer         = api.Observer
	UnitInfo         = api.UnitInfo
	LoggingObserver  = api.LoggingObserver
	BasicMetrics     = api.BasicMetrics
	NoopObserver     = api.NoopObserver

	Executable = flow.Executable
	Node       = flow.Node
	AsyncNode  = flow.AsyncNode
	SealedNode = flow.SealedNode
	Flow       = flow.Flow
	AsyncFlow  = flow.AsyncFlow
	BatchFlow  = flow.BatchFlow
)

// DefaultAction is the action used when a unit returns none.
const DefaultAction = api.DefaultAction

// Re-export common constructors.

var (
	NewNode              = flow.NewNode
	NewAsyncNode         = flow.NewAsyncNode
	NewFlow              = flow.NewFlow
	NewAsyncFlow         = flow.NewAsyncFlow
	NewBatchFlow         = flow.NewBatchFlow
	ParseSignature       = api.ParseSignature
	MustParseSignature   = api.MustParseSignature
	NewCompositeObserver = api.NewCompositeObserver
)
