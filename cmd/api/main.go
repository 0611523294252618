package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"consolidador/internal/adapter/repo"
	"consolidador/internal/domain"
	"consolidador/internal/http/handlers"
	"consolidador/internal/http/httpapi"
	"consolidador/internal/infra"
	"consolidador/internal/infra/geoip"
	"consolidador/internal/jobs"
	"consolidador/internal/maestra"
	"consolidador/internal/remote"
	"consolidador/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	app := &handlers.App{Logger: &logger, MaxUploadBytes: cfg.MaxUploadBytes}

	// Job history persistence is optional; without a database jobs live in memory.
	var repository domain.JobRepository
	if cfg.DatabaseURL != "" {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()
		jobRepo := repo.NewJobRepository(infra.NewSQLRunner(dbpool, logger))
		if err := jobRepo.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare job schema")
		}
		repository = jobRepo
		app.DB = dbpool
	}

	outputs, err := storage.NewFileStore(cfg.OutputFolder)
	if err != nil {
		logger.Fatal().Err(err).Str("folder", cfg.OutputFolder).Msg("failed to open output folder")
	}
	uploads, err := storage.NewFileStore(cfg.UploadFolder)
	if err != nil {
		logger.Fatal().Err(err).Str("folder", cfg.UploadFolder).Msg("failed to open upload folder")
	}
	master := storage.NewMasterStore(uploads)
	catalog := maestra.NewReader(master, &logger)
	browser := remote.NewBrowser(cfg.SFTP, &logger)
	defer browser.Disconnect()

	manager, err := jobs.NewManager(jobs.Options{
		Command:        cfg.ConsolidatorCmd,
		WorkDir:        cfg.ConsolidatorDir,
		Outputs:        outputs,
		Master:         master,
		Catalog:        catalog,
		Repository:     repository,
		SFTP:           cfg.SFTP,
		ArtifactWindow: cfg.ArtifactWindow,
		Logger:         &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build job manager")
	}
	app.Jobs = manager
	app.Outputs = outputs
	app.Master = master
	app.Catalog = catalog
	app.SFTP = browser

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
		resolver = nil
	}
	if closer, ok := resolver.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		CORSOrigins:     cfg.CORSOrigins,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   geoip.Lookup(resolver),
		SubmitPerMinute: cfg.RateLimitPerMin,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("outputs", outputs.BasePath()).
			Bool("persistent_history", repository != nil).
			Msg("api listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	// Running consolidator processes receive SIGTERM through their contexts.
	jobsCtx, jobsCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer jobsCancel()
	if err := manager.Shutdown(jobsCtx); err != nil {
		logger.Error().Err(err).Msg("jobs did not stop in time")
	}
	logger.Info().Msg("server stopped")
}
