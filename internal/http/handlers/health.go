package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	providers := map[string]bool{
		"removebg": a.RemoveBG != nil && a.RemoveBG.HasCredentials(),
		"bria":     a.Bria != nil && a.Bria.HasCredentials(),
		"fashn":    a.TryOn != nil && a.TryOn.FashnReady(),
	}
	backendURL := ""
	if a.Config != nil {
		backendURL = a.Config.BackendURL
	}
	a.json(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"backend":   backendURL,
		"providers": providers,
	})
}
