package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"studio/internal/backend"
	"studio/internal/gallery"
	"studio/internal/infra"
	"studio/internal/mask"
	"studio/internal/netfetch"
	"studio/internal/products"
	"studio/internal/providers/bria"
	"studio/internal/providers/removebg"
	"studio/internal/tryon"
	"studio/internal/upload"
)

// Backend forwards requests to the image-processing API.
type Backend interface {
	PostJSON(ctx context.Context, path string, payload any) (*backend.Response, error)
	PostMultipart(ctx context.Context, path string, form *backend.Form) (*backend.Response, error)
	Get(ctx context.Context, path string, query url.Values) (*backend.Response, error)
}

type BackgroundRemover interface {
	HasCredentials() bool
	RemoveBackground(ctx context.Context, in removebg.Input) (*removebg.Result, error)
}

type BriaClient interface {
	HasCredentials() bool
	RemoveBackground(ctx context.Context, img bria.Image) (string, error)
	ReplaceBackground(ctx context.Context, req bria.ReplaceRequest) ([]string, error)
	GenerateImages(ctx context.Context, req bria.GenerateRequest) ([]string, error)
}

type TryOn interface {
	Submit(ctx context.Context, req tryon.Request) (*tryon.Result, error)
	Query(ctx context.Context, provider, taskID string) (*tryon.Result, error)
	FashnReady() bool
}

type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*netfetch.Image, error)
}

type FileStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	URL(key string) string
}

// App carries the dependencies shared by every handler.
type App struct {
	Config   *infra.Config
	Logger   *infra.Logger
	Backend  Backend
	RemoveBG BackgroundRemover
	Bria     BriaClient
	TryOn    TryOn
	Images   ImageFetcher
	Uploads  *upload.Validator
	Gallery  *gallery.Service
	Products *products.Service
	Masks    *mask.Manager
	Files    FileStore
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// raw writes a JSON body received from upstream without re-encoding it.
func (a *App) raw(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func (a *App) error(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}

func (a *App) logger() *infra.Logger {
	if a.Logger == nil {
		return infra.DiscardLogger()
	}
	return a.Logger
}

func (a *App) maxUploadBytes() int64 {
	if a.Uploads != nil {
		return a.Uploads.MaxBytes()
	}
	return upload.DefaultMaxBytes
}
