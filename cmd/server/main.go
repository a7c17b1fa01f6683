package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/clients/yahoo"
	"github.com/quantfolio/quantfolio/internal/config"
	"github.com/quantfolio/quantfolio/internal/database"
	"github.com/quantfolio/quantfolio/internal/events"
	"github.com/quantfolio/quantfolio/internal/modules/analysis"
	"github.com/quantfolio/quantfolio/internal/modules/benchmarks"
	"github.com/quantfolio/quantfolio/internal/modules/portfolio"
	"github.com/quantfolio/quantfolio/internal/modules/prices"
	"github.com/quantfolio/quantfolio/internal/modules/universe"
	"github.com/quantfolio/quantfolio/internal/scheduler"
	"github.com/quantfolio/quantfolio/internal/server"
	"github.com/quantfolio/quantfolio/pkg/logger"
)

func main() {
	// Load configuration (reads .env when present)
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet; this is the one unstructured exit.
		panic(err)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Quantfolio")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Market data plumbing
	yahooClient := yahoo.NewClient(cfg.YahooBaseURL, log)
	priceRepo := prices.NewRepository(db.Conn(), log)
	priceService := prices.NewService(priceRepo, yahooClient, cfg.PriceCacheTTL, log)
	resolver := universe.NewResolver(yahooClient, log)

	// Benchmarks
	benchmarkRepo := benchmarks.NewRepository(db.Conn(), log)
	benchmarkService, err := benchmarks.NewService(benchmarkRepo, priceService, cfg.BenchmarkSymbols, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed benchmark catalog")
	}

	// Portfolios and analysis
	portfolioRepo := portfolio.NewRepository(db.Conn(), log)
	portfolioService := portfolio.NewService(portfolioRepo, log)
	eventManager := events.NewManager(log)
	analysisService := analysis.NewService(
		portfolioService,
		priceService,
		benchmarkService,
		resolver,
		eventManager,
		cfg.RiskFreeRate,
		log,
	)

	// Background jobs
	sched := scheduler.New(log)
	if err := registerJobs(sched, db, benchmarkService, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()
	defer sched.Stop()

	// Initialize HTTP server
	srv := server.New(server.Deps{
		Log:        log,
		DB:         db,
		Config:     cfg,
		Portfolio:  portfolio.NewHandler(portfolioService, log),
		Analysis:   analysis.NewHandler(analysisService, eventManager, log),
		Benchmarks: benchmarks.NewHandler(benchmarkService, log),
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func registerJobs(sched *scheduler.Scheduler, db *database.DB, benchmarkService *benchmarks.Service, log zerolog.Logger) error {
	if err := sched.Register(scheduler.BenchmarkRefreshSchedule, scheduler.NewBenchmarkRefreshJob(benchmarkService, log)); err != nil {
		return err
	}
	// Every 6 hours, on the hour.
	return sched.Register("0 0 */6 * * *", scheduler.NewHealthCheckJob(db, log))
}
