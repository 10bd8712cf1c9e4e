package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"reviewdesk/internal/ratelimit"
	"reviewdesk/internal/servicetoken"
	"reviewdesk/internal/util"
	"reviewdesk/services/review/internal/app"
	"reviewdesk/services/review/internal/config"
	"reviewdesk/services/review/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	internalVerifier, err := servicetoken.NewVerifier(servicetoken.VerifierOptions{
		PublicKeyPath:  cfg.InternalJWTPublicKeyPath,
		KeyID:          cfg.InternalJWTKeyID,
		Audience:       "review",
		AllowedIssuers: cfg.InternalAllowedIssuers,
	})
	if err != nil {
		log.Fatalf("failed to init internal token verifier: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:      cfg.DatabaseURL,
		RedisAddr:        cfg.RedisAddr,
		RedisPassword:    cfg.RedisPassword,
		OutboxStream:     cfg.OutboxStream,
		DueDays:          cfg.DueDays,
		ExpirationDays:   cfg.ExpirationDays,
		SendIntervalDays: cfg.SendIntervalDays,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var limiter server.Limiter
	if cfg.RedisAddr != "" && cfg.RateLimitPerMinute > 0 {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "reviewdesk:ratelimit",
			cfg.RateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	httpServer, err := server.New(server.Config{
		App:              appCore,
		InternalVerifier: internalVerifier,
		Limiter:          limiter,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("review server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
