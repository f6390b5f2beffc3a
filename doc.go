// Package fluxnode is a small graph-execution library for building
// LLM-style pipelines out of nodes that share a mutable state.
//
// # Core Concepts
//
//  1. Node and AsyncNode
//  2. Flow, AsyncFlow and BatchFlow
//  3. SealedNode
//  4. Telemetry and the optimization registry
//
// A node runs in three phases. Prep reads params and the shared state, Exec
// computes, and Post writes results back and returns an action. The action
// selects the successor edge; an empty action becomes "default".
//
// # Flows
//
// Flow drives synchronous units and refuses async ones. AsyncFlow drives
// both: async units run inline, sync units run on a bounded blocking pool
// against a copy of the state that is merged back only when the unit
// succeeds. BatchFlow runs one unit once per parameter set.
//
//	a := fluxnode.NewNode(fetch)
//	b := fluxnode.NewNode(summarize)
//	a.Next(b)
//	f := fluxnode.NewFlow(a)
//	f.Run(fluxnode.State{"url": "https://example.com"})
//
// # Sealing
//
// A node whose logic declares a Signature and task id can be sealed. The
// sealed node has stable hashes of its contract, records a TraceEntry on
// every run, and can be statically validated as part of a graph with
// Flow.Validate.
//
// # Runtime
//
// Open wires a Runtime from a Config: a zap logger, a telemetry sink
// (memory, SQLite, PostgreSQL, Redis, MongoDB or OpenTelemetry), an
// optimization registry, the blocking pool, Prometheus metrics and an
// OpenAI-compatible completer for semantic nodes.
//
//	cfg, err := fluxnode.LoadConfig("fluxnode.yaml")
//	rt, err := fluxnode.Open(ctx, cfg)
//	defer rt.Close()
//	node, err := rt.Semantic().
//		SignatureString("text -> summary").
//		Instruction("Summarize the text in one sentence.").
//		TaskID("summarize").
//		Seal()
//	f := fluxnode.NewAsyncFlow(node, rt.FlowOptions()...)
package fluxnode
