// Package thumbnail is the Thumbnail Engine (C5): on-demand and batch
// generation of image and video thumbnails, in-flight request
// deduplication, pixel-count-tiered quality selection, a sliding-window
// rate limiter for the on-demand path, and a boot-time self-heal sweep that
// resets DB state when the artifact root has gone missing out from under
// the catalog.
package thumbnail
