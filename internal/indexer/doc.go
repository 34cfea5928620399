// Package indexer is the Indexer (C7): a resumable, queue-driven (not
// depth-first) full walk of the photo root, fsnotify-driven incremental change processing, and
// on-demand reconciliation, keeping the catalog's items, thumb_status, and
// hls_status rows in sync with what's actually on disk.
package indexer
