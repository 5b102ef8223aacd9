package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"

	"alt-text-server/internal/config"
	"alt-text-server/internal/domain/alttext"
	"alt-text-server/internal/infrastructure/database"
	"alt-text-server/internal/infrastructure/logger"
	"alt-text-server/internal/infrastructure/observability"
	"alt-text-server/internal/infrastructure/openrouter"
	imagerepo "alt-text-server/internal/infrastructure/repository/image"
	resultrepo "alt-text-server/internal/infrastructure/repository/result"
	"alt-text-server/internal/infrastructure/storage"
	"alt-text-server/internal/interfaces/httpserver"
)

type Application struct {
	httpServer *httpserver.HttpServer
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		log:        log,
	}
}

func (a *Application) Start(ctx context.Context) error {
	return a.httpServer.Run(ctx)
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	db, err := database.Connect(database.Config{
		DSN:             cfg.DBPostgresqlWriteDSN,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	if err := database.AutoMigrate(ctx, db, log); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	fileStore, err := provideStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize storage")
	}

	if !cfg.VisionCredentialsAvailable() {
		log.Warn().Msg("OPENROUTER_API_KEY or OPENROUTER_MODEL_ORDER not set; uploads will rest at pending")
	}

	visionClient := openrouter.NewClient(openrouter.Config{
		BaseURL:  cfg.OpenRouterBaseURL,
		CABundle: cfg.OpenRouterCABundle,
		Referer:  cfg.OpenRouterReferer,
		Title:    cfg.OpenRouterTitle,
	}, log)

	imageRepository := imagerepo.NewRepository(db)
	resultRepository := resultrepo.NewRepository(db)
	service := alttext.NewService(cfg, imageRepository, resultRepository, fileStore, visionClient, log)

	httpServer := httpserver.New(cfg, log, service)
	app := NewApplication(httpServer, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func provideStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (alttext.FileStore, error) {
	if cfg.IsLocalStorage() {
		return storage.NewLocalStorage(cfg, log)
	}
	return storage.NewS3Storage(ctx, cfg, log)
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
