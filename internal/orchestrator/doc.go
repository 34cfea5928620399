// Package orchestrator is the Orchestrator (C8): a named task registry that
// runs maintenance work behind a category-exclusive advisory lock, gated by
// the Adaptive Scheduler's resource budget. RunWhenIdle registers a task;
// the loop drives it forward on its own schedule until Stop is called.
package orchestrator
