package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"studio/internal/middleware"
	"studio/internal/products"
	"studio/pkg/zip"
)

func (a *App) ProductsList(w http.ResponseWriter, r *http.Request) {
	items, err := a.Products.List(r.Context(), middleware.OwnerFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) ProductsCreate(w http.ResponseWriter, r *http.Request) {
	var p products.Product
	if err := decodeJSON(w, r, maxJSONBody, &p); err != nil {
		a.fail(w, r, err)
		return
	}
	saved, err := a.Products.Create(r.Context(), middleware.OwnerFromContext(r.Context()), p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, saved)
}

func (a *App) ProductsUpdate(w http.ResponseWriter, r *http.Request) {
	var p products.Product
	if err := decodeJSON(w, r, maxJSONBody, &p); err != nil {
		a.fail(w, r, err)
		return
	}
	saved, err := a.Products.Update(r.Context(), middleware.OwnerFromContext(r.Context()), chi.URLParam(r, "id"), p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, saved)
}

func (a *App) ProductsDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.Products.Delete(r.Context(), middleware.OwnerFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ProductsCatalog exports catalog.json with every product image.
func (a *App) ProductsCatalog(w http.ResponseWriter, r *http.Request) {
	items, err := a.Products.List(r.Context(), middleware.OwnerFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	manifest, err := json.MarshalIndent(map[string]any{"products": items}, "", "  ")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	assets := []zip.Asset{{Filename: "catalog.json", MIME: "application/json", Data: manifest}}
	for _, p := range items {
		assets = append(assets, a.collectAssets(r, p.ID, p.Images)...)
	}
	a.sendZip(w, r, "catalog.zip", assets)
}
