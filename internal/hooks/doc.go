// Package hooks defines the user hook contract and the per-worker state
// machine that drives it.
//
// Each worker owns one Env (request context plus per-worker state) and one
// Session. An iteration moves the session through
//
//	Idle -> BeforeRequest -> InFlight -> AfterResponse -> Idle
//
// BeforeRequest may rewrite the request context. The engine reads it only
// after the hook returns, through an immutable snapshot. AfterResponse receives
// a read-only view of the response. When the network call fails no response
// exists, so the engine calls Abort and AfterResponse is skipped.
//
// State that must be visible to every worker lives in a state.Shared passed to
// each Env. Nothing else is shared.
//
// Counter and AuthPipeline are the two built-in patterns.
package hooks
