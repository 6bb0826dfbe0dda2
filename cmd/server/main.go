package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"stockpilot/backend/internal/advisor"
	"stockpilot/backend/internal/cache"
	"stockpilot/backend/internal/config"
	"stockpilot/backend/internal/httpapi"
	"stockpilot/backend/internal/logger"
	"stockpilot/backend/internal/service"
	"stockpilot/backend/internal/store"
	"stockpilot/backend/internal/store/memory"
	pgstore "stockpilot/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	log := logger.NewWithDefaults()
	defer func() { _ = log.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid security configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	var userStore httpapi.UserStore
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pgstore.Migrate(pg.DB(), log); err != nil {
			log.Fatal("migrations failed", zap.Error(err))
		}
		repo = pg
		userStore = pg
		closers = append(closers, pg.Close)
		log.Info("repository ready", zap.String("kind", "postgres"))
	} else {
		mem := memory.NewSeeded()
		repo = mem
		userStore = mem
		log.Info("repository ready", zap.String("kind", "in-memory"))
	}

	suggestionCache := cache.SuggestionCache(cache.NoopSuggestionCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSuggestionCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using noop suggestion cache", zap.Error(err))
		} else {
			suggestionCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("suggestion cache ready", zap.String("kind", "redis"))
		}
	} else {
		log.Info("suggestion cache ready", zap.String("kind", "noop"))
	}

	advisorClient := advisor.Client(advisor.Disabled{})
	if cfg.AdvisorURL != "" {
		advisorClient = advisor.NewHTTPClient(cfg.AdvisorURL, time.Duration(cfg.AdvisorTimeoutSeconds)*time.Second)
		log.Info("restock advisor configured", zap.String("url", cfg.AdvisorURL))
	} else {
		log.Info("restock advisor disabled")
	}

	svc := service.New(repo, advisorClient, suggestionCache, log, time.Duration(cfg.SuggestionTTLSeconds)*time.Second)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, userStore)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("inventory backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warn("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
