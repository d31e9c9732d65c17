// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hvalfangst/csvstats/internal/api"
	"github.com/hvalfangst/csvstats/internal/auth"
	"github.com/hvalfangst/csvstats/internal/config"
	"github.com/hvalfangst/csvstats/internal/pipeline"
	"github.com/hvalfangst/csvstats/internal/pipeline/statistics"
	"github.com/hvalfangst/csvstats/internal/repository/postgres"
	"github.com/hvalfangst/csvstats/internal/service"
	"github.com/hvalfangst/csvstats/internal/storage"
	"github.com/hvalfangst/csvstats/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		logger.Log.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
	logger.Log.Info().Msg("Server exiting")
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger.Configure(cfg.Log.Level, cfg.Log.Format)
	log.Logger = logger.Log
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	store, err := storage.New(ctx, cfg.Storage, logger.Component("storage"))
	if err != nil {
		return fmt.Errorf("failed to initialize %s storage: %w", cfg.Storage.Backend, err)
	}
	logger.Log.Info().
		Str("backend", cfg.Storage.Backend).
		Str("container", cfg.Storage.Container).
		Msg("Storage initialized")

	var redisNotifier *storage.RedisNotifier
	if cfg.Trigger.Source == config.SourceRedis {
		client, err := storage.NewRedisClient(ctx, cfg.Cache)
		if err != nil {
			return err
		}
		defer client.Close()
		redisNotifier = storage.NewRedisNotifier(client, cfg.Cache.Channel, logger.Component("redis"))
		store = storage.WithPublisher(store, redisNotifier, cfg.Storage.Backend)
	}

	// Initialize auth
	validator, err := auth.NewValidatorFromConfig(ctx, cfg.Auth, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return fmt.Errorf("failed to initialize token validation: %w", err)
	}
	if !validator.VerifiesSignatures() {
		logger.Log.Warn().Msg("AUTH_VERIFY_SIGNATURE=false: bearer token signatures are NOT verified")
	}

	// Initialize run ledger
	var recorder pipeline.RunRecorder
	if cfg.Database.Enabled {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := pipeline.NewRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		recorder = repo
		logger.Log.Info().Str("host", cfg.Database.Host).Msg("Run ledger enabled")
	}

	// Initialize HTTP server
	gate := service.NewIngressGate(validator, store, cfg.Storage.InputKey, cfg.Server.MaxUploadBytes, logger.Component("ingress"))
	router := api.NewRouter(&api.Services{Gate: gate}, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info().Msg("Shutting down server...")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Register object-created handlers
	if cfg.Trigger.Enabled {
		notifier, err := storage.NewNotifier(store, cfg.Trigger, redisNotifier, logger.Component("trigger"))
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}

		stats := statistics.NewPipeline(cfg.Storage.OutputKey, logger.Component("statistics"))
		worker := pipeline.NewWorker(stats, store, recorder, logger.Component("worker"))

		orchestrator := pipeline.NewOrchestrator(notifier, logger.Component("orchestrator"))
		orchestrator.OnObjectCreated(cfg.Storage.InputKey, worker)

		g.Go(func() error {
			return orchestrator.Run(gctx)
		})
	} else {
		logger.Log.Warn().Msg("TRIGGER_ENABLED=false: uploads are stored but not transformed")
	}

	return g.Wait()
}
