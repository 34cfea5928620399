// Package boot owns the process's ordered startup and shutdown sequence
// (C10): probe hardware, verify data directories are writable, open the
// catalog, wire every component together and start the background workers;
// Runtime.Shutdown reverses the sequence within the caller's context. The
// HTTP listener, signal handling and the shutdown deadline live in main.
package boot
