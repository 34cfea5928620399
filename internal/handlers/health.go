package handlers

import (
	"net/http"
	"runtime"
	"time"
)

// HealthResponse is the detailed shape returned by GET /health and /healthz.
type HealthResponse struct {
	Status         string `json:"status"`
	Ready          bool   `json:"ready"`
	Version        string `json:"version"`
	UptimeSeconds  int64  `json:"uptimeSeconds"`
	Indexing       bool   `json:"indexing"`
	TotalAlbums    int    `json:"totalAlbums"`
	TotalPhotos    int    `json:"totalPhotos"`
	TotalVideos    int    `json:"totalVideos"`
	TotalThumbs    int    `json:"totalThumbs"`
	GoVersion      string `json:"goVersion"`
	NumCPU         int    `json:"numCPU"`
	NumGoroutine   int    `json:"numGoroutine"`
}

// HealthCheck implements GET /health and /healthz: a detailed snapshot used
// by operators, not load balancers.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	stats := h.catalog.GetStats()
	resp := HealthResponse{
		Status:        "ok",
		Ready:         true,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Indexing:      h.idx.IsRunning(),
		TotalAlbums:   stats.TotalAlbums,
		TotalPhotos:   stats.TotalPhotos,
		TotalVideos:   stats.TotalVideos,
		TotalThumbs:   stats.TotalThumbs,
		GoVersion:     runtime.Version(),
		NumCPU:        runtime.NumCPU(),
		NumGoroutine:  runtime.NumGoroutine(),
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, resp)
}

// LivenessCheck implements GET /livez: the process is up and able to
// respond to HTTP at all. It does not touch the database.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ReadinessCheck implements GET /readyz: the catalog is reachable, so the
// process can actually serve browse/search traffic.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if _, err := h.catalog.CountItems(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
