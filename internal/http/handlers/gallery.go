package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"studio/internal/gallery"
	"studio/internal/middleware"
	"studio/pkg/zip"
)

func (a *App) GalleryList(w http.ResponseWriter, r *http.Request) {
	items, err := a.Gallery.List(r.Context(), middleware.OwnerFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) GalleryAdd(w http.ResponseWriter, r *http.Request) {
	var item gallery.Item
	if err := decodeJSON(w, r, maxJSONBody, &item); err != nil {
		a.fail(w, r, err)
		return
	}
	saved, err := a.Gallery.Add(r.Context(), middleware.OwnerFromContext(r.Context()), item)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, saved)
}

func (a *App) GalleryRemove(w http.ResponseWriter, r *http.Request) {
	if err := a.Gallery.Remove(r.Context(), middleware.OwnerFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) GalleryClear(w http.ResponseWriter, r *http.Request) {
	if err := a.Gallery.Clear(r.Context(), middleware.OwnerFromContext(r.Context())); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GalleryExport bundles every gallery image plus gallery.json.
func (a *App) GalleryExport(w http.ResponseWriter, r *http.Request) {
	items, err := a.Gallery.List(r.Context(), middleware.OwnerFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	manifest, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	assets := []zip.Asset{{Filename: "gallery.json", MIME: "application/json", Data: manifest}}
	for _, item := range items {
		assets = append(assets, a.collectAssets(r, item.ID, item.Images)...)
	}
	a.sendZip(w, r, "gallery.zip", assets)
}
