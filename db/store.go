package db

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"papertrade/config"
	"papertrade/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// AlertPatch is a partial alert update; nil fields are left unchanged.
type AlertPatch struct {
	IsActive  *bool
	Triggered *bool
}

// Store is the document store behind the REST API. Every per-user query is
// scoped by userID.
type Store interface {
	CreateUser(ctx context.Context, u *model.User) error
	UserByID(ctx context.Context, id string) (model.User, error)
	UserByEmail(ctx context.Context, email string) (model.User, error)

	Holdings(ctx context.Context, userID string) ([]model.Holding, error)
	Holding(ctx context.Context, userID, symbol string) (model.Holding, error)
	// CommitTrade writes the new balance together with the holding. When
	// remove is true the holding is deleted instead of saved.
	CommitTrade(ctx context.Context, userID string, balance float64, h model.Holding, remove bool) error

	Watchlist(ctx context.Context, userID string) ([]model.WatchlistEntry, error)
	AddWatchlist(ctx context.Context, e *model.WatchlistEntry) error
	RemoveWatchlist(ctx context.Context, userID, symbol string) error
	InWatchlist(ctx context.Context, userID, symbol string) (bool, error)

	Alerts(ctx context.Context, userID string) ([]model.Alert, error)
	CreateAlert(ctx context.Context, a *model.Alert) error
	UpdateAlert(ctx context.Context, userID, id string, patch AlertPatch) (model.Alert, error)
	DeleteAlert(ctx context.Context, userID, id string) error
	CountActiveAlerts(ctx context.Context, userID string) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open connects the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		logger.Info("Using in-memory store")
		return NewMemoryStore(), nil
	case "postgres":
		return OpenPostgres(ctx, cfg.Postgres, logger)
	case "mongo":
		return OpenMongo(ctx, cfg.Mongo, logger)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
