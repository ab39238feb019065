package db

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"papertrade/model"
)

func boolPtr(b bool) *bool { return &b }

func newUser(t *testing.T, ctx context.Context, s Store) model.User {
	t.Helper()
	u := model.User{
		ID:           uuid.NewString(),
		Name:         "Test User",
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "hash",
		Balance:      100000,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, s.CreateUser(ctx, &u))
	return u
}

// runStoreSuite exercises the behavior every Store implementation shares.
func runStoreSuite(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("users", func(t *testing.T) {
		u := newUser(t, ctx, s)

		got, err := s.UserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.Email, got.Email)
		assert.Equal(t, "hash", got.PasswordHash)

		got, err = s.UserByEmail(ctx, u.Email)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		dup := u
		dup.ID = uuid.NewString()
		assert.ErrorIs(t, s.CreateUser(ctx, &dup), ErrDuplicate)

		_, err = s.UserByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("trades", func(t *testing.T) {
		u := newUser(t, ctx, s)
		h := model.Holding{
			ID: uuid.NewString(), UserID: u.ID, Symbol: "AAPL", Name: "Apple Inc.",
			Shares: 10, AveragePrice: 178.45, TotalInvested: 1784.5,
			PurchaseDate: time.Now().UTC().Truncate(time.Millisecond),
		}
		require.NoError(t, s.CommitTrade(ctx, u.ID, 98215.5, h, false))

		got, err := s.Holding(ctx, u.ID, "AAPL")
		require.NoError(t, err)
		assert.Equal(t, 10.0, got.Shares)

		user, err := s.UserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 98215.5, user.Balance)

		h.Shares = 4
		h.TotalInvested = 713.8
		require.NoError(t, s.CommitTrade(ctx, u.ID, 99300, h, false))
		holdings, err := s.Holdings(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, holdings, 1)
		assert.Equal(t, 4.0, holdings[0].Shares)

		require.NoError(t, s.CommitTrade(ctx, u.ID, 100000, h, true))
		_, err = s.Holding(ctx, u.ID, "AAPL")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.ErrorIs(t, s.CommitTrade(ctx, uuid.NewString(), 1, h, false), ErrNotFound)
	})

	t.Run("watchlist", func(t *testing.T) {
		u := newUser(t, ctx, s)
		base := time.Now().UTC().Truncate(time.Millisecond)
		for i, sym := range []string{"AAPL", "TSLA"} {
			e := model.WatchlistEntry{ID: uuid.NewString(), UserID: u.ID, Symbol: sym, Name: sym, AddedAt: base.Add(time.Duration(i) * time.Second)}
			require.NoError(t, s.AddWatchlist(ctx, &e))
		}

		dup := model.WatchlistEntry{ID: uuid.NewString(), UserID: u.ID, Symbol: "AAPL", Name: "Apple", AddedAt: base}
		assert.ErrorIs(t, s.AddWatchlist(ctx, &dup), ErrDuplicate)

		list, err := s.Watchlist(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "TSLA", list[0].Symbol, "newest first")

		in, err := s.InWatchlist(ctx, u.ID, "AAPL")
		require.NoError(t, err)
		assert.True(t, in)

		require.NoError(t, s.RemoveWatchlist(ctx, u.ID, "AAPL"))
		assert.ErrorIs(t, s.RemoveWatchlist(ctx, u.ID, "AAPL"), ErrNotFound)

		in, err = s.InWatchlist(ctx, u.ID, "AAPL")
		require.NoError(t, err)
		assert.False(t, in)
	})

	t.Run("alerts", func(t *testing.T) {
		u := newUser(t, ctx, s)
		other := newUser(t, ctx, s)
		now := time.Now().UTC().Truncate(time.Millisecond)

		a := model.Alert{
			ID: uuid.NewString(), UserID: u.ID, Symbol: "TSLA", Name: "Tesla Inc.",
			TargetPrice: 240, Condition: model.ConditionBelow, IsActive: true,
			CreatedAt: now, UpdatedAt: now,
		}
		b := a
		b.ID = uuid.NewString()
		b.Condition = model.ConditionAbove
		b.CreatedAt = now.Add(time.Second)
		require.NoError(t, s.CreateAlert(ctx, &a))
		require.NoError(t, s.CreateAlert(ctx, &b))

		list, err := s.Alerts(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, b.ID, list[0].ID, "newest first")

		n, err := s.CountActiveAlerts(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		updated, err := s.UpdateAlert(ctx, u.ID, a.ID, AlertPatch{Triggered: boolPtr(true)})
		require.NoError(t, err)
		assert.True(t, updated.Triggered)
		assert.True(t, updated.IsActive, "untouched field keeps its value")

		updated, err = s.UpdateAlert(ctx, u.ID, a.ID, AlertPatch{IsActive: boolPtr(false)})
		require.NoError(t, err)
		assert.False(t, updated.IsActive)
		assert.True(t, updated.Triggered)

		n, err = s.CountActiveAlerts(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.UpdateAlert(ctx, other.ID, a.ID, AlertPatch{Triggered: boolPtr(true)})
		assert.ErrorIs(t, err, ErrNotFound, "alerts are scoped to their owner")
		assert.ErrorIs(t, s.DeleteAlert(ctx, other.ID, a.ID), ErrNotFound)

		require.NoError(t, s.DeleteAlert(ctx, u.ID, a.ID))
		assert.ErrorIs(t, s.DeleteAlert(ctx, u.ID, a.ID), ErrNotFound)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PAPERTRADE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("PAPERTRADE_TEST_PG_DSN not set")
	}
	logger := zap.NewNop()
	ctx := context.Background()

	sqlDB, err := openDSN(dsn)
	require.NoError(t, err)
	require.NoError(t, CreateTables(ctx, sqlDB, logger))

	s := NewPostgresStore(sqlDB, logger)
	defer s.Close()
	runStoreSuite(t, s)
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("PAPERTRADE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("PAPERTRADE_TEST_MONGO_URI not set")
	}
	ctx := context.Background()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)

	dbName := "papertrade_test_" + uuid.NewString()[:8]
	s := NewMongoStore(client, dbName, zap.NewNop())
	require.NoError(t, s.EnsureIndexes(ctx))
	defer func() {
		client.Database(dbName).Drop(ctx)
		s.Close()
	}()

	runStoreSuite(t, s)
}

func openDSN(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return db, db.Ping()
}
