// Package catalog is the Catalog Store (C2): four logical SQLite databases
// — main, settings, history, index — each its own file, opened with WAL,
// synchronous=NORMAL, and a 5s busy timeout. It exposes a thin Query/Exec
// surface, a chunked Batch helper, and a WithTransaction wrapper that nests
// SAVEPOINTs under a single outer BEGIN IMMEDIATE, retrying SQLITE_BUSY at
// the outer level only.
//
// Every other component borrows handles from the Registry rather than
// opening its own *sql.DB; this keeps the busy-timeout and WAL discipline
// uniform across the process.
package catalog
