package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"photonix-core/internal/errs"
	"photonix-core/internal/logging"
)

// writeJSON encodes v as JSON and writes it to the response writer. Any
// encoding or write errors are logged since there is no recovering from them
// once headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("handlers: failed to encode JSON response: %v", err)
	}
}

// apiError is the envelope every 4xx/5xx JSON response shares.
type apiError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// writeError maps err's *errs.Error kind to a status code via
// errs.HTTPStatus, falling back to 500 for an unrecognized error type.
func writeError(w http.ResponseWriter, err error) {
	var e *errs.Error
	if ae, ok := err.(*errs.Error); ok {
		e = ae
	} else {
		e = errs.Wrap(errs.Internal, "handlers.unexpected", err)
	}
	writeJSON(w, errs.HTTPStatus(e.Kind), apiError{
		Error:   string(e.Kind),
		Code:    e.Code,
		Message: e.Message,
	})
}

// invalidPathError builds the standard ValidationError for a request path
// that escapes the photo root or contains illegal segments.
func invalidPathError(raw string) *errs.Error {
	return errs.New(errs.Validation, "PATH_NOT_FOUND", fmt.Sprintf("invalid path: %s", raw))
}

// cleanRelPath normalizes a request path parameter into the catalog's
// slash-separated relative path form, rejecting any attempt to escape the
// photo root via ".." segments.
func cleanRelPath(raw string) (string, bool) {
	p := strings.Trim(raw, "/")
	if p == "" {
		return "", true
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", false
		}
	}
	return p, true
}

// parsePage/parseLimit read page/limit query parameters with the defaults
// and bounds the browse and search endpoints share.
func parsePage(r *http.Request) int {
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		return p
	}
	return 1
}

func parseLimit(r *http.Request, def, max int) int {
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		if l > max {
			return max
		}
		return l
	}
	return def
}

func totalPages(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	pages := int((total + int64(limit) - 1) / int64(limit))
	if pages < 0 {
		pages = 0
	}
	return pages
}

// placeholderSVG returns a tiny inline SVG used in place of a real
// thumbnail while one is processing, failed, or rate-limited — the client
// always gets an image response, never a bare status code for this
// endpoint's non-200 cases.
func placeholderSVG(label, fill string) []byte {
	return []byte(fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="200" height="150" viewBox="0 0 200 150">`+
			`<rect width="200" height="150" fill="%s"/>`+
			`<text x="100" y="79" font-family="sans-serif" font-size="14" fill="#ffffff" text-anchor="middle">%s</text>`+
			`</svg>`,
		fill, label))
}

var (
	placeholderProcessing = placeholderSVG("processing", "#8a8a8a")
	placeholderFailed     = placeholderSVG("failed", "#b03a3a")
	placeholderRateLimit  = placeholderSVG("busy", "#b0843a")
)

func writeSVGPlaceholder(w http.ResponseWriter, status int, svg []byte) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(svg)
}
