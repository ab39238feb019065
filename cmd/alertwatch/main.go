// Command alertwatch signs in to the trading server, follows the price feed
// and reports the account's alerts as they fire.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"papertrade/client"
	"papertrade/config"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	server := flag.String("server", envOr("ALERTWATCH_SERVER", "http://localhost:5000"), "server base URL")
	email := flag.String("email", os.Getenv("ALERTWATCH_EMAIL"), "account email")
	password := flag.String("password", os.Getenv("ALERTWATCH_PASSWORD"), "account password")
	timeout := flag.Duration("timeout", 15*time.Second, "REST request timeout")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer logger.Sync()

	if *email == "" || *password == "" {
		logger.Fatal("Email and password are required (-email, -password)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(*server, *timeout)
	profile, err := api.Login(ctx, *email, *password)
	if err != nil {
		logger.Fatal("Sign in failed", zap.String("server", *server), zap.Error(err))
	}
	logger.Info("Signed in", zap.String("user", profile.ID), zap.String("email", profile.Email))

	watcher := client.NewWatcher(api, client.LogNotifier{Logger: logger.Named("notify")}, logger)
	if quotes, err := api.Stocks(ctx); err != nil {
		logger.Warn("Could not load quotes", zap.Error(err))
	} else {
		watcher.Prices().Seed(quotes)
	}

	header := http.Header{"Authorization": {"Bearer " + api.Token()}}
	feed := client.NewFeed(api.FeedURL(), header, cfg.Feed.ReconnectDelay, logger)

	err = watcher.Run(ctx, feed)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Watcher stopped", zap.Error(err))
	}
	logger.Info("Alert watcher stopped")
}
