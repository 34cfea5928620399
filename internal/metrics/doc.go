// Package metrics provides Prometheus instrumentation for the photonix-core
// gallery server. All metrics are prefixed with "photonix_" and organized by
// component: http, catalog (C2), scheduler (C3), workerpool (C4), thumbnail
// (C5), hls (C6), indexer (C7), orchestrator (C8), eventbus (C9), filesystem
// and go-runtime.
//
// Metrics are registered with the default Prometheus registry via promauto at
// package init time; mount promhttp.Handler() to expose them. Use
// [Collector] to periodically refresh gauges that depend on external state
// (catalog stats, Go runtime memory, on-disk artifact sizes).
package metrics
