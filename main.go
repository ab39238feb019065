package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"papertrade/alerts"
	"papertrade/api"
	"papertrade/assistant"
	"papertrade/auth"
	"papertrade/config"
	"papertrade/db"
	"papertrade/feed"
	"papertrade/hub"
	"papertrade/market"
	"papertrade/metrics"
	"papertrade/mirror"
	"papertrade/trademanager"
)

type Application struct {
	Config       *config.Config
	Logger       *zap.Logger
	Store        db.Store
	Market       *market.Market
	Metrics      *metrics.Metrics
	Hub          *hub.Hub
	Broadcaster  *feed.Broadcaster
	TradeManager *trademanager.TradeManager
	Server       *http.Server
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Startup failed", zap.Error(err))
	}

	if err := app.Run(ctx); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}

func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	app := &Application{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	store, err := db.Open(ctx, cfg.Store, logger.Named("store"))
	if err != nil {
		return nil, err
	}
	app.Store = store

	seed := market.DefaultQuotes()
	if cfg.Market.SeedFile != "" {
		seed, err = market.LoadSeed(cfg.Market.SeedFile)
		if err != nil {
			store.Close()
			return nil, err
		}
		logger.Info("Loaded market seed", zap.String("file", cfg.Market.SeedFile), zap.Int("symbols", len(seed)))
	}
	app.Market = market.New(seed)

	app.Hub = hub.New(logger, app.Metrics, hub.Options{
		SendBuffer:     cfg.Feed.SendBuffer,
		WriteWait:      cfg.Feed.WriteWait,
		PongWait:       cfg.Feed.PongWait,
		PingPeriod:     cfg.Feed.PingPeriod,
		AllowedOrigins: cfg.App.CORSOrigins,
	})

	sim := market.NewSimulator(market.NewRand(time.Now().UnixNano()), cfg.Market.MaxMovePct, cfg.Market.PriceFloor)
	app.Broadcaster = feed.NewBroadcaster(app.Market, sim, app.Hub, cfg.Market.TickInterval, logger, app.Metrics)

	if cfg.Redis.Enabled {
		rdb, err := mirror.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Redis unavailable, price mirror disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			app.Broadcaster.AddSink(mirror.NewRedisMirror(rdb, cfg.Redis.TTL, logger))
			logger.Info("Mirroring prices to Redis", zap.String("addr", cfg.Redis.Addr))
		}
	}

	app.TradeManager = trademanager.NewTradeManager(store, logger)

	handler := api.New(api.Deps{
		Store:       store,
		Market:      app.Market,
		Issuer:      auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Trades:      app.TradeManager,
		Alerts:      alerts.NewService(store, app.Hub, logger, app.Metrics),
		Assistant:   assistant.New(app.Market, app.TradeManager, store, logger),
		Feed:        app.Hub,
		Metrics:     app.Metrics,
		Logger:      logger,
		Auth:        cfg.Auth,
		CORSOrigins: cfg.App.CORSOrigins,
	}).Handler()

	app.Server = &http.Server{
		Addr:              cfg.App.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return app, nil
}

// Run serves until ctx is cancelled, then shuts everything down in order.
func (app *Application) Run(ctx context.Context) error {
	if err := app.Broadcaster.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		app.Logger.Info("Server starting", zap.String("addr", app.Server.Addr), zap.String("env", app.Config.App.Env))
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		app.Logger.Info("Shutting down")
	case serveErr = <-errCh:
	}

	app.Broadcaster.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.App.ShutdownTimeout)
	defer cancel()
	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	app.Hub.CloseAll()

	if err := app.Store.Close(); err != nil {
		app.Logger.Warn("Error closing store", zap.Error(err))
	}

	app.Logger.Info("Server stopped")
	return serveErr
}
