package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"presenter-video-pipeline/internal/config"
	"presenter-video-pipeline/internal/domain/ports/adapter"
	avatarAdapter "presenter-video-pipeline/internal/infra/adapters/avatar"
	farmAdapter "presenter-video-pipeline/internal/infra/adapters/renderfarm"
	speechAdapter "presenter-video-pipeline/internal/infra/adapters/speech"
	pg "presenter-video-pipeline/internal/infra/db/postgres"
	"presenter-video-pipeline/internal/infra/logging"
	"presenter-video-pipeline/internal/infra/metrics"
	red "presenter-video-pipeline/internal/infra/redis"
	miniostore "presenter-video-pipeline/internal/infra/storage/minio"
	"presenter-video-pipeline/internal/infra/web"
	"presenter-video-pipeline/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres (job ledger) ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	jobRepo := pg.NewMediaJobRepo(pool)
	if err := jobRepo.EnsureSchema(ctx); err != nil {
		log.Fatalf("ledger schema: %v", err)
	}

	// ---- Redis (advance lock + submission budget, optional) ----
	var (
		locker  usecase.AdvanceLocker
		limiter usecase.SubmitLimiter
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer redisClient.Close()
		locker = red.NewLocker(redisClient)
		if cfg.Pipeline.SubmitPerMinute > 0 {
			limiter = red.NewRateLimiter(redisClient, cfg.Pipeline.SubmitPerMinute, time.Minute)
		}
	} else {
		logger.Warn().Msg("redis not configured; advance lock and submission budget disabled")
	}

	// ---- Durable storage ----
	store, err := miniostore.NewStorage(cfg.Storage)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatalf("storage bucket: %v", err)
	}

	// ---- Provider adapters ----
	speech, err := speechAdapter.NewHTTPAdapter(cfg.Speech.BaseURL, cfg.Speech.APIKey)
	if err != nil {
		log.Fatalf("speech adapter: %v", err)
	}
	avatar, err := avatarAdapter.NewHTTPAdapter(cfg.Avatar.BaseURL, cfg.Avatar.APIKey)
	if err != nil {
		log.Fatalf("avatar adapter: %v", err)
	}
	var farm adapter.RenderFarm
	if cfg.RenderFarm.Configured {
		farm, err = farmAdapter.NewHTTPAdapter(cfg.RenderFarm.BaseURL, cfg.RenderFarm.APIKey)
		if err != nil {
			log.Fatalf("renderfarm adapter: %v", err)
		}
		logger.Info().Str("base", cfg.RenderFarm.BaseURL).Msg("compositing renderer configured")
	} else {
		logger.Info().Msg("compositing renderer not configured; composite jobs will be rejected")
	}

	// ---- Pipeline coordinator ----
	migrator := usecase.NewMigrator(store, cfg.Storage.SignedURLTTL)
	pipeline := usecase.NewPipelineUseCase(
		jobRepo, speech, avatar, farm, store, migrator, locker, limiter,
		usecase.Settings{
			AdvanceTimeout:   cfg.Pipeline.AdvanceTimeout,
			CompositeTimeout: cfg.Pipeline.CompositeTimeout,
			DefaultVoice:     cfg.Speech.DefaultVoice,
			SampleRate:       cfg.Speech.SampleRate,
			BytesPerSample:   cfg.Speech.BytesPerSample,
			HeaderBytes:      cfg.Speech.HeaderBytes,
			LockTTL:          cfg.Redis.LockTTL,
			FarmConfigured:   cfg.RenderFarm.Configured,
		},
		logger,
	)

	// ---- HTTP API ----
	srv := web.NewServer(pipeline, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
