package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	gormlogger "gorm.io/gorm/logger"

	"alt-text-server/internal/config"
	"alt-text-server/internal/domain/alttext"
	"alt-text-server/internal/infrastructure/database"
	"alt-text-server/internal/infrastructure/logger"
	"alt-text-server/internal/infrastructure/openrouter"
	imagerepo "alt-text-server/internal/infrastructure/repository/image"
	resultrepo "alt-text-server/internal/infrastructure/repository/result"
	"alt-text-server/internal/infrastructure/storage"
)

var (
	batchSize int
	dryRun    bool
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "alt-text-worker",
	Short: "Retry alt-text generation for images still waiting on it",
	Long: `alt-text-worker sweeps the database once for images whose alt text is
missing or failed and retries each with the batch time budget. Intended to
run from cron; overlapping runs are safe.`,
	RunE:         runSweep,
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().IntVarP(&batchSize, "batch-size", "n", 1, "maximum number of records to process in this sweep")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "list records that would be processed without touching them")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func runSweep(cmd *cobra.Command, args []string) error {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	log := logger.New(cfg).With().Str("component", "alt-text-worker").Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(database.Config{
		DSN:             cfg.DBPostgresqlWriteDSN,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	fileStore, err := provideStorage(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}

	visionClient := openrouter.NewClient(openrouter.Config{
		BaseURL:  cfg.OpenRouterBaseURL,
		CABundle: cfg.OpenRouterCABundle,
		Referer:  cfg.OpenRouterReferer,
		Title:    cfg.OpenRouterTitle,
	}, log)

	service := alttext.NewService(
		cfg,
		imagerepo.NewRepository(db),
		resultrepo.NewRepository(db),
		fileStore,
		visionClient,
		log,
	)

	succeeded, failed, err := service.ProcessPending(ctx, batchSize, dryRun)
	if err != nil {
		return err
	}

	// Per-record failures stay retryable and are not a sweep error; the
	// next run picks them up again.
	log.Info().Int("succeeded", succeeded).Int("failed", failed).Msg("sweep complete")
	return nil
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

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
