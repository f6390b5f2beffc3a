// Package flow assembles nodes into graphs and drives them.
//
// # Units
//
// A Node wraps api.NodeLogic and runs it in three phases (prep, exec, post)
// against a shared api.State. Post returns an action; the action selects the
// outgoing edge to follow:
//
//	review := flow.NewNode(reviewLogic)
//	review.NextOn("approved", publish).NextOn("rejected", revise)
//
// AsyncNode is the same for api.AsyncNodeLogic. Seal turns a node whose logic
// implements api.Sealable into a SealedNode, which carries stable hashes of
// its data contract and records a trace entry every time it runs.
//
// # Flows
//
// Flow traverses sync units only and panics when it meets an async one.
// AsyncFlow accepts both; it runs sync units on a bounded blocking pool with a
// cloned state, merging the clone back on success. Flows are units too, so
// they nest. Every unit of one traversal runs with the flow's params.
//
// Validate checks statically that every sealed unit finds its declared inputs
// in the state, given the keys present at the start.
//
// # Batching
//
// BatchLogic and ParallelBatchLogic (and their async counterparts) map
// per-item logic over a list produced by prep. BatchFlow runs a whole
// sub-flow once per param set.
package flow
