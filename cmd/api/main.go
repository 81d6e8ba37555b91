package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"studio/internal/backend"
	"studio/internal/gallery"
	"studio/internal/http/handlers"
	httpapi "studio/internal/http/httpapi"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/mask"
	"studio/internal/netfetch"
	"studio/internal/products"
	"studio/internal/providers/bria"
	"studio/internal/providers/fashn"
	"studio/internal/providers/removebg"
	"studio/internal/statestore"
	"studio/internal/storage"
	"studio/internal/tryon"
	"studio/internal/upload"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Client state lives in Postgres when configured, in memory otherwise.
	var (
		state statestore.Store = statestore.NewMemory()
		creds *credentials.Store
	)
	if cfg.HasDatabase() {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		runner := infra.NewSQLRunner(pool, logger)
		state = statestore.NewPostgres(runner)
		creds = credentials.NewStore(runner)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, gallery and products are kept in memory")
	}

	removeBGKey := resolveKey(ctx, &logger, creds, credentials.ProviderRemoveBG, cfg.RemoveBGAPIKey)
	fashnKey := resolveKey(ctx, &logger, creds, credentials.ProviderFashn, cfg.FashnAPIKey)
	briaToken := resolveKey(ctx, &logger, creds, credentials.ProviderBria, cfg.BriaAPIToken)

	fetch := netfetch.NewClient(nil, cfg.UpstreamTimeout, &logger)
	images := netfetch.NewImageFetcher(fetch)
	uploads := upload.NewValidator(cfg.MaxUploadBytes)
	backendClient := backend.NewClient(cfg.BackendURL, fetch, &logger)
	fashnClient := fashn.NewClient(fashn.Options{
		APIKey:         fashnKey,
		BaseURL:        cfg.FashnBaseURL,
		Logger:         &logger,
		RequestTimeout: cfg.UpstreamTimeout,
	})

	files, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare storage")
	}

	masks := mask.NewManager(mask.Options{
		TTL:          cfg.MaskSessionTTL,
		MaxSessions:  cfg.MaskMaxSessions,
		MaxBytes:     cfg.MaskMemoryBytes,
		HistoryBytes: cfg.MaskHistoryBytes,
		Logger:       &logger,
	})
	go masks.Run(ctx, time.Minute)

	app := &handlers.App{
		Config:  cfg,
		Logger:  &logger,
		Backend: backendClient,
		RemoveBG: removebg.NewClient(removebg.Options{
			APIKey:         removeBGKey,
			BaseURL:        cfg.RemoveBGBaseURL,
			Logger:         &logger,
			RequestTimeout: cfg.UpstreamTimeout,
		}),
		Bria: bria.NewClient(bria.Options{
			APIToken:       briaToken,
			BaseURL:        cfg.BriaBaseURL,
			Logger:         &logger,
			RequestTimeout: cfg.UpstreamTimeout,
		}),
		TryOn:    tryon.NewService(backendClient, fashnClient, downloadImage(images, uploads)),
		Images:   images,
		Uploads:  uploads,
		Gallery:  gallery.NewService(state),
		Products: products.NewService(state),
		Masks:    masks,
		Files:    files,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		JWTSecret:       cfg.JWTSecret,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		StaticDir:       files.BasePath(),
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Str("backend", cfg.BackendURL).Msg("gateway listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func resolveKey(ctx context.Context, logger *infra.Logger, store *credentials.Store, provider, configured string) string {
	key, err := credentials.Resolve(ctx, store, provider, configured)
	if err != nil {
		logger.Warn().Err(err).Str("provider", provider).Msg("failed to load stored provider key")
		return ""
	}
	if key == "" {
		logger.Info().Str("provider", provider).Msg("provider key not configured, routes will answer 503")
	}
	return key
}

// downloadImage fetches URL inputs for the backend try-on and applies the
// same checks as direct uploads.
func downloadImage(images *netfetch.ImageFetcher, uploads *upload.Validator) tryon.ImageResolver {
	return func(ctx context.Context, rawURL string) ([]byte, string, error) {
		img, err := images.Fetch(ctx, rawURL)
		if err != nil {
			return nil, "", err
		}
		file, err := uploads.Check("", img.Data)
		if err != nil {
			return nil, "", err
		}
		return file.Data, file.MIME, nil
	}
}
