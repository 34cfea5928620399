// Package workerpool is the Worker Pool (C4): long-lived image/video
// thumbnail workers, the indexing/settings/video singleton workers, and
// disposable one-shot workers for back-fill jobs. A task is dispatched to a
// worker as a tagged Envelope over the pool's single queue channel, and a
// worker routes its own result, error, log, and heartbeat messages back
// through the same Envelope/Kind switch (routeEnvelope) rather than each
// having a bespoke path, the way the teacher's transcoder tracked live
// subprocesses in one map. Kinds the switch doesn't recognize are ignored,
// not rejected.
//
// Workers here are goroutines, not OS processes: the spec's "worker"
// vocabulary (exit codes, restarts, drain) maps onto supervised goroutines
// running a Task func, which is the idiomatic Go rendition of the same
// supervision contract.
package workerpool
