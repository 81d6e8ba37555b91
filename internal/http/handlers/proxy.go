package handlers

import (
	"net/http"
	"strconv"
	"strings"
)

// ProxyImage fetches a remote image server-side so the browser can draw it
// on a canvas without CORS taint.
func (a *App) ProxyImage(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		a.fail(w, r, badRequest("url query parameter is required"))
		return
	}
	img, err := a.Images.Fetch(r.Context(), target)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}
