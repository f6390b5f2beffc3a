// Package api contains the core building blocks shared by every fluxnode
// package: the node logic interfaces, data contracts, trace records and
// observers. It has no dependency on the flow runtime, so stores, telemetry
// sinks and logic providers can depend on it without creating an import
// cycle.
//
// Most users interact with the higher-level fluxnode package, which
// re-exports selected types and helpers from this package.
//
// # Values and state
//
// Nodes exchange JSON-shaped Values through a shared State map. Params are a
// separate, read-only map a flow hands to every unit it runs. CloneValue and
// State.Clone produce deep copies where a unit must not observe another
// unit's writes.
//
// # Node logic
//
// NodeLogic and AsyncNodeLogic describe the three phases of a unit: Prep
// reads, Exec computes and Post writes back and picks the next action.
// NodeFuncs and AsyncNodeFuncs adapt plain functions.
//
// # Data contracts
//
// Logic that implements Sealable declares a Signature: the state keys it
// reads and the keys it writes. Sealed units are identified by their task id
// and by two hashes:
//
//   - StructuralHash covers the field names of the signature.
//   - InstructionHash covers the instruction and the field descriptions of
//     Promptable logic. Logic without an instruction uses ParamsHash.
//
// Flows use signatures to validate a graph before it runs, reporting Issues
// in a ValidationResult.
//
// # Traces and optimization
//
// Every execution of a sealed unit produces a TraceEntry that is handed to a
// Telemetry sink. An OptimizationRecord describes a tuned variant of a sealed
// unit that a registry can apply at build time.
//
// # Observability
//
// The Observer interface receives flow and unit lifecycle events. The
// package ships a zap-backed LoggingObserver, an in-memory BasicMetrics and
// NewCompositeObserver to combine several observers.
package api
