package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"studio/internal/http/handlers"
	"studio/internal/infra"
	"studio/internal/middleware"
)

// Options configures the router beyond the handler dependencies.
type Options struct {
	Logger          infra.Logger
	JWTSecret       string
	AllowedOrigins  []string
	RateLimitPerMin int
	// StaticDir is served under /static when set.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
	)

	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", app.Health)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
			apiRoutes(r, app, opts)
		})
	})

	return r
}

func apiRoutes(r chi.Router, app *handlers.App, opts Options) {
	r.Post("/replace-background", app.ReplaceBackground)
	r.Post("/eraser", app.Eraser)
	r.Post("/generative-fill", app.GenerativeFill)
	r.Post("/tagging", app.Tagging)
	r.Post("/upscale", app.Upscale)
	r.Post("/remove-background", app.RemoveBackground)
	r.Post("/generate-background", app.GenerateBackground)
	r.Post("/generate-model", app.GenerateModel)
	r.Get("/proxy-image", app.ProxyImage)

	r.Route("/upload", func(r chi.Router) {
		r.Post("/base64", app.UploadBase64)
		r.Post("/file", app.UploadFile)
	})

	r.Route("/tryon", func(r chi.Router) {
		r.Post("/submit", app.TryOnSubmit)
		r.Post("/execute", app.TryOnExecute)
		r.Get("/query/{taskID}", app.TryOnQuery)
		r.Get("/gallery", app.TryOnGallery)
	})

	r.Route("/masks", func(r chi.Router) {
		r.Post("/", app.MaskCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.MaskGet)
			r.Delete("/", app.MaskDelete)
			r.Get("/mask.png", app.MaskPNG)
			r.Post("/strokes", app.MaskStrokes)
			r.Post("/clear", app.MaskClear)
			r.Post("/invert", app.MaskInvert)
			r.Post("/undo", app.MaskUndo)
			r.Post("/redo", app.MaskRedo)
			r.Post("/export", app.MaskExport)
		})
	})

	// Client state needs an owner.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity(opts.JWTSecret), middleware.RequireOwner)

		r.Route("/gallery", func(r chi.Router) {
			r.Get("/", app.GalleryList)
			r.Post("/", app.GalleryAdd)
			r.Delete("/", app.GalleryClear)
			r.Get("/export", app.GalleryExport)
			r.Delete("/{id}", app.GalleryRemove)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", app.ProductsList)
			r.Post("/", app.ProductsCreate)
			r.Get("/catalog", app.ProductsCatalog)
			r.Put("/{id}", app.ProductsUpdate)
			r.Delete("/{id}", app.ProductsDelete)
		})
	})
}
