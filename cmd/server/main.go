package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/ensembot/ensembot/internal/api"
	"github.com/ensembot/ensembot/internal/config"
	"github.com/ensembot/ensembot/internal/database"
	"github.com/ensembot/ensembot/internal/logging"
	"github.com/ensembot/ensembot/internal/market"
	"github.com/ensembot/ensembot/internal/services"
)

func main() {
	// .env is optional; real deployments use environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redis, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	marketClient := market.NewClient(cfg.Market)
	sentimentClient := market.NewSentimentClient(cfg.Sentiment, redis, logger)

	expertRepo := database.NewExpertRepository(db.Pool)
	predictionRepo := database.NewPredictionRepository(db.Pool)
	positionRepo := database.NewPositionRepository(db.Pool)
	balanceRepo := database.NewBalanceRepository(db.Pool)

	candleWidth := config.Duration(cfg.Engine.CandleWidth)
	aggregators := make(map[string]*services.CandleAggregator, len(cfg.Engine.Instruments))
	for _, instrument := range cfg.Engine.Instruments {
		aggregators[instrument] = services.NewCandleAggregator(instrument, candleWidth, cfg.Engine.CandleHistoryCap, logger)
	}

	generator := services.NewSignalGenerator(marketClient, sentimentClient, logger)
	ensemble := services.NewExpertEnsemble(logger)
	simulator := services.NewTradingSimulator(positionRepo, balanceRepo, cfg.Trading, logger)
	verifier := services.NewVerifier(cfg.Trading.Leverage)
	adaptation := services.NewAdaptationEngine(predictionRepo, logger)

	engine := services.NewEngine(cfg, logger, marketClient, redis,
		aggregators, generator, ensemble, simulator, verifier, adaptation,
		expertRepo, predictionRepo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.LoadProfiles(ctx); err != nil {
		log.Fatalf("Failed to load expert panel: %v", err)
	}
	engine.RestoreAggregatorState(ctx)

	feed := market.NewPollingFeed(marketClient, 5*time.Second, logger)
	collector := services.NewTickCollector(feed, aggregators, engine, logger)
	if err := collector.Start(ctx); err != nil {
		log.Fatalf("Failed to start tick collector: %v", err)
	}
	defer collector.Stop()

	// Scheduler: one full cycle per interval.
	cycleInterval := config.Duration(cfg.Engine.CycleInterval)
	go func() {
		ticker := time.NewTicker(cycleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				engine.RunCycle(ctx)
			}
		}
	}()

	// Daily reset at midnight UTC.
	go func() {
		for {
			now := time.Now().UTC()
			next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
			select {
			case <-ctx.Done():
				return
			case <-time.After(next.Sub(now)):
				if err := simulator.ResetDaily(ctx); err != nil {
					logger.WithError(err).Error("Daily reset failed")
				} else {
					logger.Info("Daily balances reset")
				}
			}
		}
	}()

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.SetupRoutes(router, db, redis, engine, positionRepo)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	engine.SaveAggregatorState(context.Background())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
