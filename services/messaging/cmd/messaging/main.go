package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"snapstreak/internal/ratelimit"
	"snapstreak/internal/usertoken"
	"snapstreak/internal/util"
	"snapstreak/pkg/cache"
	"snapstreak/pkg/events"
	"snapstreak/pkg/realtime"
	"snapstreak/pkg/store"
	"snapstreak/services/messaging/internal/app"
	"snapstreak/services/messaging/internal/config"
	"snapstreak/services/messaging/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	util.InitLogger(cfg.LogLevel, "messaging")

	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		util.Fatal("failed to init token verifier", "err", err)
	}

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to init store", "err", err)
	}

	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
	defer redisCache.Close()

	bridge := realtime.NewRedisBridge(realtime.BridgeEndpoints(cfg.RedisAddr), cfg.RedisPassword)
	defer bridge.Close()
	hub := realtime.NewHub(bridge)

	publisher := events.NewPublisher(cfg.AMQPURL, cfg.EventExchange)
	defer publisher.Close()

	friends := app.NewFriends(st)
	messages := app.NewMessages(st, redisCache, friends, publisher)

	var sendLimiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		sendLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "snapstreak:ratelimit:send",
			cfg.SendPerMinute, time.Minute)
		if err != nil {
			util.Fatal("failed to init send limiter", "err", err)
		}
	}

	httpServer := server.New(server.Config{
		Messages:      messages,
		Friends:       friends,
		Users:         st,
		Hub:           hub,
		TokenVerifier: tokenVerifier,
		SendLimiter:   sendLimiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Router(),
		ReadTimeout: 15 * time.Second,
		// Write timeout would kill long-lived websocket connections; the
		// per-message deadlines in the gateway bound writes instead.
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("messaging server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
