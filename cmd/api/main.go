package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propath-ai/api/internal/app/migrate"
	httpx "github.com/propath-ai/api/internal/http"
	"github.com/propath-ai/api/internal/repository/postgres"
	"github.com/propath-ai/api/internal/service/assistant"
	"github.com/propath-ai/api/internal/service/auth"
	"github.com/propath-ai/api/internal/service/chat"
	"github.com/propath-ai/api/internal/service/notify"
	"github.com/propath-ai/api/internal/service/scholarship"
	"github.com/propath-ai/api/internal/service/stats"
	"github.com/propath-ai/api/internal/service/user"
	"github.com/propath-ai/api/internal/ws"
	"github.com/propath-ai/api/pkg/config"
	"github.com/propath-ai/api/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New("api", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	chatHub := ws.NewHub()

	authSvc := auth.New(repo, log, cfg)
	userSvc := user.New(repo, log)
	scholarshipSvc := scholarship.New(repo, log)
	statsSvc := stats.New(repo, repo, log)
	chatSvc := chat.New(chatHub, log, cfg.ChatDefaultRoom)
	assistantSvc := assistant.New(log, cfg)
	notifySvc := notify.New(repo, log, cfg)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, userSvc, scholarshipSvc, statsSvc, chatSvc, assistantSvc, notifySvc, limiter, cfg.CORSAllowOrigin, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
