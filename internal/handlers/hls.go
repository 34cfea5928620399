package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"photonix-core/internal/errs"
	"photonix-core/internal/logging"
	"photonix-core/internal/mediatypes"
	"photonix-core/internal/streaming"
)

// GetHLSArtifact implements GET /api/hls?path=…&file=… — streams a single
// playlist or segment file out of the directory the HLS engine generated
// for the video at path. Segments can be large and slow clients shouldn't
// hold the connection open indefinitely, so the response is written
// through streaming.StreamWithTimeout instead of http.ServeFile.
func (h *Handlers) GetHLSArtifact(w http.ResponseWriter, r *http.Request) {
	rawPath := r.URL.Query().Get("path")
	relPath, ok := cleanRelPath(rawPath)
	if !ok || relPath == "" {
		writeError(w, invalidPathError(rawPath))
		return
	}

	file := r.URL.Query().Get("file")
	if file == "" {
		file = "index.m3u8"
	}
	if cleaned, ok := cleanRelPath(file); !ok || cleaned == "" || filepath.Base(cleaned) != cleaned {
		writeError(w, invalidPathError(file))
		return
	}

	artifactPath := filepath.Join(h.hlsEngine.ArtifactDir(relPath), file)

	f, err := os.Open(artifactPath)
	if err != nil {
		writeError(w, errs.New(errs.NotFound, "HLS_ARTIFACT_NOT_FOUND", "hls artifact not found"))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", mediatypes.GetMimeType(filepath.Ext(file)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

	config := streaming.DefaultTimeoutWriterConfig()
	if err := streaming.StreamWithTimeout(r.Context(), w, f, config); err != nil && err != streaming.ErrClientGone {
		logging.Warn("handlers: hls artifact stream error for %s: %v", artifactPath, err)
	}
}
