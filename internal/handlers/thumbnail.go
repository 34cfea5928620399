package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"photonix-core/internal/catalog"
	"photonix-core/internal/errs"
	"photonix-core/internal/mediatypes"
)

// GetThumbnail implements GET /api/thumbnail?path=… per spec.md §6: raw
// bytes with a long cache TTL on hit, otherwise a placeholder SVG carrying
// the status as its HTTP code.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		writeError(w, errs.New(errs.Validation, "PATH_REQUIRED", "path is required"))
		return
	}
	relPath, ok := cleanRelPath(raw)
	if !ok || relPath == "" {
		writeError(w, invalidPathError(raw))
		return
	}

	if artifact, exists := h.thumbEngine.ArtifactPath(relPath); exists {
		serveThumbnailFile(w, r, artifact)
		return
	}

	absSrc := filepath.Join(h.photosDir, filepath.FromSlash(relPath))
	if _, err := os.Stat(absSrc); err != nil {
		writeSVGPlaceholder(w, http.StatusNotFound, placeholderFailed)
		return
	}

	result, err := h.thumbEngine.EnsureThumbnail(r.Context(), absSrc, relPath)
	if err != nil {
		if e, ok := err.(*errs.Error); ok && e.Code == "thumbnail.rate_limited" {
			w.Header().Set("X-Rate-Limit", "exceeded")
			writeSVGPlaceholder(w, http.StatusTooManyRequests, placeholderRateLimit)
			return
		}
		writeSVGPlaceholder(w, http.StatusNotFound, placeholderFailed)
		return
	}

	switch result.Status {
	case catalog.StatusExists:
		serveThumbnailFile(w, r, result.Path)
	case catalog.StatusFailed:
		writeSVGPlaceholder(w, http.StatusNotFound, placeholderFailed)
	default:
		writeSVGPlaceholder(w, http.StatusAccepted, placeholderProcessing)
	}
}

func serveThumbnailFile(w http.ResponseWriter, r *http.Request, path string) {
	w.Header().Set("Content-Type", mediatypes.GetMimeType(filepath.Ext(path)))
	w.Header().Set("Cache-Control", "public, max-age=2592000")
	http.ServeFile(w, r, path)
}

type thumbnailBatchRequest struct {
	Limit int  `json:"limit"`
	Loop  bool `json:"loop"`
}

type thumbnailBatchData struct {
	Processed int `json:"processed"`
	Queued    int `json:"queued"`
	Skipped   int `json:"skipped"`
	Limit     int `json:"limit"`
}

type thumbnailBatchResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    thumbnailBatchData  `json:"data"`
}

// ThumbnailBatch implements POST /api/thumbnail/batch {limit, loop?}.
func (h *Handlers) ThumbnailBatch(w http.ResponseWriter, r *http.Request) {
	var req thumbnailBatchRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}

	if req.Loop {
		processed, err := h.thumbEngine.BackfillLoop(r.Context(), req.Limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, thumbnailBatchResponse{
			Success: true,
			Message: "backfill loop completed",
			Data:    thumbnailBatchData{Processed: processed, Limit: req.Limit},
		})
		return
	}

	summary, err := h.thumbEngine.BatchBackfillMissing(r.Context(), req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thumbnailBatchResponse{
		Success: true,
		Message: "batch queued",
		Data: thumbnailBatchData{
			Processed: summary.Processed,
			Queued:    summary.Queued,
			Skipped:   summary.Skipped,
			Limit:     req.Limit,
		},
	})
}

type thumbnailStatsResponse struct {
	Pending     int64 `json:"pending"`
	Processing  int64 `json:"processing"`
	Exists      int64 `json:"exists"`
	Failed      int64 `json:"failed"`
	ActiveTasks int   `json:"activeTasks"`
}

// ThumbnailStats implements GET /api/thumbnail/stats?debug=.
func (h *Handlers) ThumbnailStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := thumbnailStatsResponse{ActiveTasks: h.thumbEngine.ActiveTasks()}

	counts := map[catalog.ArtifactStatus]*int64{
		catalog.StatusPending:    &resp.Pending,
		catalog.StatusProcessing: &resp.Processing,
		catalog.StatusExists:     &resp.Exists,
		catalog.StatusFailed:     &resp.Failed,
	}
	for status, dst := range counts {
		n, err := h.catalog.CountThumbStatus(ctx, status)
		if err != nil {
			writeError(w, err)
			return
		}
		*dst = n
	}

	if debug, _ := strconv.ParseBool(r.URL.Query().Get("debug")); debug {
		writeJSON(w, http.StatusOK, struct {
			thumbnailStatsResponse
			Debug bool `json:"debug"`
		}{resp, true})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
