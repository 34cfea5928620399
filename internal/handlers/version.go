package handlers

import (
	"net/http"
	"runtime"
)

type versionResponse struct {
	Version   string `json:"version"`
	GoVersion string `json:"goVersion"`
}

// GetVersion implements GET /version.
func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, versionResponse{Version: h.version, GoVersion: runtime.Version()})
}
