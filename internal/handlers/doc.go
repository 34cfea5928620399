// Package handlers is the thin HTTP layer the core exposes: browse, search,
// on-demand thumbnails, thumbnail batch/stats, an SSE event stream, and the
// health/version endpoints C10 wires up at boot. Handlers never implement
// domain logic themselves — every request delegates to the catalog,
// thumbnail, HLS, or indexer collaborator and translates the result (or
// *errs.Error) into the HTTP shapes the frontend expects.
package handlers
