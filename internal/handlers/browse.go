package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"photonix-core/internal/catalog"
)

// browseItem is the JSON shape returned for each entry in a Browse response.
type browseItem struct {
	Path      string `json:"path"`
	Type      string `json:"type"`
	MTime     int64  `json:"mtime"`
	Width     *int   `json:"width,omitempty"`
	Height    *int   `json:"height,omitempty"`
	SizeBytes int64  `json:"sizeBytes"`
}

type browseResponse struct {
	Items       []browseItem `json:"items"`
	Page        int          `json:"page"`
	TotalPages  int          `json:"totalPages"`
	TotalResults int64       `json:"totalResults"`
}

func toBrowseItem(it *catalog.Item) browseItem {
	return browseItem{
		Path:      it.Path,
		Type:      string(it.Type),
		MTime:     it.MTime.Unix(),
		Width:     it.Width,
		Height:    it.Height,
		SizeBytes: it.SizeBytes,
	}
}

// Browse implements GET /api/browse/:path?page=&limit=&sort=.
func (h *Handlers) Browse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	parentPath, ok := cleanRelPath(mux.Vars(r)["path"])
	if !ok {
		writeError(w, invalidPathError(mux.Vars(r)["path"]))
		return
	}

	page := parsePage(r)
	limit := parseLimit(r, 100, 500)
	offset := (page - 1) * limit

	sort := catalog.SortField(r.URL.Query().Get("sort"))
	order := catalog.SortOrder(r.URL.Query().Get("order"))

	items, err := h.catalog.ListChildren(ctx, parentPath, sort, order, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	total, err := h.catalog.CountChildren(ctx, parentPath)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := browseResponse{
		Items:        make([]browseItem, 0, len(items)),
		Page:         page,
		TotalPages:   totalPages(total, limit),
		TotalResults: total,
	}
	for _, it := range items {
		resp.Items = append(resp.Items, toBrowseItem(it))
	}

	// A result that's empty, or taken while the indexer is still mid-walk,
	// might be incomplete rather than genuinely final; a short cache TTL
	// keeps the client from treating it as the last word for too long.
	if total == 0 || h.idx.IsRunning() {
		w.Header().Set("Cache-Control", "public, max-age=10")
	}

	writeJSON(w, http.StatusOK, resp)
}
