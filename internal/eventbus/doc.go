// Package eventbus is the Event Bus & Trace Context (C9): an in-process,
// synchronous, fire-and-forget topic pub-sub, plus a propagating trace/span
// context carried through context.Context and into worker message
// envelopes so logs and downstream operations share a traceId across
// goroutine and process boundaries.
package eventbus
