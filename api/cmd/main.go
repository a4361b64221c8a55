package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/config"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/infrastructure/postgres"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/infrastructure/rabbitmq"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/infrastructure/redis"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/pkg/logger"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/security"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/service"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/stats"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/transport/rest"
	"github.com/baechuer/real-time-ressys/services/traffic-service/web"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}

	logger.Init()
	log := logger.Logger.With().
		Str("service", "traffic-service").
		Str("env", cfg.AppEnv).
		Logger()

	// Root ctx with signal cancellation
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres pool create failed")
	}
	defer dbPool.Close()

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		defer cancel()

		if err := dbPool.Ping(pingCtx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		log.Info().Msg("postgres connected")
	}

	repo := postgres.New(dbPool)
	if err := repo.EnsureSchema(rootCtx); err != nil {
		log.Fatal().Err(err).Msg("schema setup failed")
	}

	// ---- Rollup engine ----
	loc := cfg.Location()
	acc := stats.NewAccumulator(loc)

	// Rehydrate the insights window from the durable store. A cold start
	// that cannot read history still serves writes; the window refills as
	// visits arrive.
	{
		from := stats.WindowStart(time.Now(), service.InsightsWindowDays, loc)
		recs, err := repo.ListSince(rootCtx, from)
		if err != nil {
			log.Warn().Err(err).Msg("rehydrate failed (starting empty)")
		} else {
			acc.Rehydrate(recs)
			log.Info().Int("records", len(recs)).Msg("rollups rehydrated")
		}
	}

	// ---- Redis ----
	cache := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		defer cancel()

		// Best-effort ping; the cache degrades to recompute-per-read
		if err := cache.Client.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed (continuing)")
		} else {
			log.Info().Msg("redis connected")
		}
	}

	// ---- Application service ----
	svc := service.NewTrafficService(repo, acc, cache, cfg.InsightsTTL)
	h := rest.NewHandler(svc)

	// ---- JWT verifier (optional dashboard gate) ----
	var verifier security.AccessTokenVerifier
	if cfg.JWTSecret != "" {
		verifier = security.NewHS256Verifier(cfg.JWTSecret)
	} else {
		log.Warn().Msg("JWT_SECRET unset; stats and insights are open")
	}

	// ---- Router ----
	httpHandler := rest.NewRouter(rest.RouterDeps{
		Cache:            cache,
		Handler:          h,
		Verifier:         verifier,
		JWTIssuer:        cfg.JWTIssuer,
		Assets:           web.Assets(),
		RateLimitEnabled: cfg.RLEnabled,
		RateLimit:        cfg.RLLimit,
		RateLimitWindow:  cfg.RLWindow,
	})

	// ---- MQ consumer (server-side visit producers) ----
	if cfg.IngestEnabled {
		mqConsumer := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitExchange, svc)
		if err := mqConsumer.Start(rootCtx); err != nil {
			log.Fatal().Err(err).Msg("rabbitmq consumer start failed")
		}
	}

	// ---- Background maintenance ----
	repo.StartRetentionCleanup(rootCtx, time.Duration(cfg.RetentionDays)*24*time.Hour)

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				acc.Compact(stats.WindowStart(time.Now(), service.InsightsWindowDays, loc))
			}
		}
	}()

	// ---- HTTP server ----
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}
