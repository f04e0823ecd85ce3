// API entrypoint: loads config, wires dependencies and serves HTTP.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/knppkp/pollboard/internal/app/accounts"
	"github.com/knppkp/pollboard/internal/app/httpapi"
	"github.com/knppkp/pollboard/internal/app/polls"
	"github.com/knppkp/pollboard/internal/app/voting"
	"github.com/knppkp/pollboard/internal/app/web"
	"github.com/knppkp/pollboard/internal/domain"
	"github.com/knppkp/pollboard/internal/platform/clock"
	"github.com/knppkp/pollboard/internal/platform/config"
	"github.com/knppkp/pollboard/internal/platform/health"
	"github.com/knppkp/pollboard/internal/platform/ids"
	"github.com/knppkp/pollboard/internal/platform/logger"
	"github.com/knppkp/pollboard/internal/platform/migrations"
	"github.com/knppkp/pollboard/internal/platform/ratelimit"
	postgresstorage "github.com/knppkp/pollboard/internal/platform/storage/postgres"
	redisstorage "github.com/knppkp/pollboard/internal/platform/storage/redis"
	"github.com/knppkp/pollboard/internal/platform/tokens"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}

	db, err := postgresstorage.Open(ctx, cfg.PostgresDSN())
	if err != nil {
		logger.Fatal("postgres connection failed", "err", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("failed to unwrap sql.DB", "err", err)
	}
	defer sqlDB.Close()

	if cfg.AutoMigrate {
		// Automatic migrations run only when enabled to avoid production surprises.
		if err := migrations.Run(db); err != nil {
			logger.Fatal("automatic migration failed", "err", err)
		}
	}

	// Redis only backs the vote throttle; with throttling off the API runs without it.
	var redisClient *goredis.Client
	var throttle domain.VoteThrottle = ratelimit.NewNoop()
	if cfg.RateLimitEnabled {
		redisClient, err = redisstorage.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal("redis connection failed", "err", err)
		}
		defer redisClient.Close()

		window := time.Duration(cfg.RateLimitWindowSeconds) * time.Second
		throttle = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitMaxActions, window, cfg.RateLimitKeyPrefix)
	}

	userRepo := postgresstorage.NewUserRepository(db)
	pollRepo := postgresstorage.NewPollRepository(db)
	ballotRepo := postgresstorage.NewBallotRepository(db)
	clockSystem := clock.NewSystemClock()
	idGen := ids.NewGenerator()
	issuer := tokens.NewIssuer(cfg.JWTSecret, time.Duration(cfg.JWTTTLHours)*time.Hour)

	accountService := accounts.NewService(userRepo, issuer, clockSystem, idGen)
	pollService := polls.NewService(pollRepo, userRepo, clockSystem, idGen)
	votingService := voting.NewService(ballotRepo, throttle, clockSystem, idGen)

	mux := http.NewServeMux()
	checker := health.NewChecker(sqlDB, redisClient)

	api := httpapi.New(accountService, pollService, votingService, issuer, cfg.AuthRequired, logger.L())
	api.Register(mux)

	frontend, err := web.New(accountService, pollService, votingService, issuer)
	if err != nil {
		logger.Fatal("failed to load templates", "err", err)
	}
	frontend.Register(mux)

	mux.HandleFunc("/readyz", checker.ReadyHandler())
	mux.Handle("/metrics", promhttp.Handler())

	handler := httpapi.CORS(cfg.CORSAllowedOrigins, mux)

	logger.Info("api listening", "addr", cfg.HTTPAddress)
	if err := http.ListenAndServe(cfg.HTTPAddress, handler); err != nil {
		logger.Fatal("server error", "err", err)
	}
}
