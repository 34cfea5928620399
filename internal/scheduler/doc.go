// Package scheduler is the Adaptive Scheduler (C3): it samples load average
// and heap usage on a timer and publishes a single ResourceBudget read by
// every producer (thumbnail engine, HLS engine, indexer, orchestrator)
// before it dispatches new work. Concurrency suggestions step up only after
// three consecutive healthy samples and step down after a single unhealthy
// one, so a brief spike doesn't collapse throughput and a brief recovery
// doesn't stampede it back up.
package scheduler
