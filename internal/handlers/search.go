package handlers

import (
	"net/http"

	"photonix-core/internal/errs"
)

type searchResponse struct {
	Results      []browseItem `json:"results"`
	TotalResults int64        `json:"totalResults"`
	Page         int          `json:"page"`
}

// Search implements GET /api/search?q=&page=&limit=.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, errs.New(errs.Validation, "SEARCH_QUERY_REQUIRED", "q is required"))
		return
	}

	total, err := h.catalog.CountItems(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if total == 0 {
		writeError(w, errs.New(errs.Unavailable, "SEARCH_UNAVAILABLE", "search index is empty"))
		return
	}

	page := parsePage(r)
	limit := parseLimit(r, 50, 200)
	offset := (page - 1) * limit

	items, err := h.catalog.Search(r.Context(), query, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	count, err := h.catalog.CountSearch(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := searchResponse{
		Results:      make([]browseItem, 0, len(items)),
		TotalResults: count,
		Page:         page,
	}
	for _, it := range items {
		resp.Results = append(resp.Results, toBrowseItem(it))
	}
	writeJSON(w, http.StatusOK, resp)
}
