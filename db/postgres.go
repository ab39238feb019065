package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"papertrade/config"
	"papertrade/model"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenPostgres connects, creates the schema if needed and lists the tables.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	logger = logger.Named("postgres")

	db, err := DBConnect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := CreateTables(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}
	if err := ListTables(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger.Named("postgres")}
}

func DBConnect(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*sql.DB, error) {
	logger.Info("Attempting to connect",
		zap.String("host", cfg.Host), zap.Int("port", cfg.Port),
		zap.String("user", cfg.User), zap.String("dbname", cfg.DBName))

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres connection")
	}

	maxOpen, maxIdle := cfg.MaxOpen, cfg.MaxIdle
	if maxOpen <= 0 {
		maxOpen = 25
	}
	if maxIdle <= 0 {
		maxIdle = 5
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	logger.Info("Successfully connected to database")
	return db, nil
}

var schema = []struct {
	name string
	ddl  string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			password VARCHAR(255) NOT NULL,
			balance DOUBLE PRECISION NOT NULL CHECK (balance >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`},
	{"holdings", `
		CREATE TABLE IF NOT EXISTS holdings (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			symbol VARCHAR(16) NOT NULL,
			name VARCHAR(255) NOT NULL,
			shares DOUBLE PRECISION NOT NULL CHECK (shares >= 0),
			average_price DOUBLE PRECISION NOT NULL,
			total_invested DOUBLE PRECISION NOT NULL,
			purchase_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, symbol)
		);`},
	{"watchlist", `
		CREATE TABLE IF NOT EXISTS watchlist (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			symbol VARCHAR(16) NOT NULL,
			name VARCHAR(255) NOT NULL,
			added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, symbol)
		);`},
	{"alerts", `
		CREATE TABLE IF NOT EXISTS alerts (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			symbol VARCHAR(16) NOT NULL,
			name VARCHAR(255) NOT NULL,
			target_price DOUBLE PRECISION NOT NULL CHECK (target_price > 0),
			condition VARCHAR(10) NOT NULL CHECK (condition IN ('above', 'below')),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			triggered BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS alerts_user_active_idx ON alerts (user_id, is_active, triggered);`},
}

func CreateTables(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	for _, t := range schema {
		if _, err := db.ExecContext(ctx, t.ddl); err != nil {
			return errors.Wrapf(err, "failed to create %s table", t.name)
		}
	}
	logger.Debug("Schema ready")
	return nil
}

func ListTables(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	rows, err := db.QueryContext(ctx, "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public'")
	if err != nil {
		return errors.Wrap(err, "failed to list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return errors.Wrap(err, "failed to scan table name")
		}
		tables = append(tables, name)
	}
	logger.Info("Tables", zap.Strings("tables", tables))
	return rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Balance, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, "failed to insert user")
}

const userColumns = `id, name, email, password, balance, created_at`

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Balance, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return model.User{}, ErrNotFound
	}
	return u, errors.Wrap(err, "failed to scan user")
}

func (s *PostgresStore) UserByID(ctx context.Context, id string) (model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) UserByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

const holdingColumns = `id, user_id, symbol, name, shares, average_price, total_invested, purchase_date`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHolding(row scanner) (model.Holding, error) {
	var h model.Holding
	err := row.Scan(&h.ID, &h.UserID, &h.Symbol, &h.Name, &h.Shares, &h.AveragePrice, &h.TotalInvested, &h.PurchaseDate)
	return h, err
}

func (s *PostgresStore) Holdings(ctx context.Context, userID string) ([]model.Holding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE user_id = $1 ORDER BY purchase_date`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query holdings")
	}
	defer rows.Close()

	out := []model.Holding{}
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan holding")
		}
		out = append(out, h)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate holdings")
}

func (s *PostgresStore) Holding(ctx context.Context, userID, symbol string) (model.Holding, error) {
	h, err := scanHolding(s.db.QueryRowContext(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE user_id = $1 AND symbol = $2`, userID, symbol))
	if err == sql.ErrNoRows {
		return model.Holding{}, ErrNotFound
	}
	return h, errors.Wrap(err, "failed to scan holding")
}

func (s *PostgresStore) CommitTrade(ctx context.Context, userID string, balance float64, h model.Holding, remove bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin trade")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE users SET balance = $1 WHERE id = $2`, balance, userID)
	if err != nil {
		return errors.Wrap(err, "failed to update balance")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if remove {
		_, err = tx.ExecContext(ctx, `DELETE FROM holdings WHERE id = $1 AND user_id = $2`, h.ID, userID)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO holdings (`+holdingColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				shares = EXCLUDED.shares,
				average_price = EXCLUDED.average_price,
				total_invested = EXCLUDED.total_invested`,
			h.ID, userID, h.Symbol, h.Name, h.Shares, h.AveragePrice, h.TotalInvested, h.PurchaseDate)
	}
	if err != nil {
		return errors.Wrap(err, "failed to write holding")
	}

	return errors.Wrap(tx.Commit(), "failed to commit trade")
}

func (s *PostgresStore) Watchlist(ctx context.Context, userID string) ([]model.WatchlistEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, symbol, name, added_at
		FROM watchlist WHERE user_id = $1 ORDER BY added_at DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query watchlist")
	}
	defer rows.Close()

	out := []model.WatchlistEntry{}
	for rows.Next() {
		var e model.WatchlistEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Symbol, &e.Name, &e.AddedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan watchlist entry")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate watchlist")
}

func (s *PostgresStore) AddWatchlist(ctx context.Context, e *model.WatchlistEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watchlist (id, user_id, symbol, name, added_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.UserID, e.Symbol, e.Name, e.AddedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, "failed to insert watchlist entry")
}

func (s *PostgresStore) RemoveWatchlist(ctx context.Context, userID, symbol string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM watchlist WHERE user_id = $1 AND symbol = $2`, userID, symbol)
	if err != nil {
		return errors.Wrap(err, "failed to delete watchlist entry")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InWatchlist(ctx context.Context, userID, symbol string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM watchlist WHERE user_id = $1 AND symbol = $2)`, userID, symbol).Scan(&exists)
	return exists, errors.Wrap(err, "failed to check watchlist")
}

const alertColumns = `id, user_id, symbol, name, target_price, condition, is_active, triggered, created_at, updated_at`

func scanAlert(row scanner) (model.Alert, error) {
	var a model.Alert
	err := row.Scan(&a.ID, &a.UserID, &a.Symbol, &a.Name, &a.TargetPrice, &a.Condition,
		&a.IsActive, &a.Triggered, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *PostgresStore) Alerts(ctx context.Context, userID string) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query alerts")
	}
	defer rows.Close()

	out := []model.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan alert")
		}
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate alerts")
}

func (s *PostgresStore) CreateAlert(ctx context.Context, a *model.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.UserID, a.Symbol, a.Name, a.TargetPrice, a.Condition,
		a.IsActive, a.Triggered, a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, "failed to insert alert")
}

func (s *PostgresStore) UpdateAlert(ctx context.Context, userID, id string, patch AlertPatch) (model.Alert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, `
		UPDATE alerts
		SET
			is_active = COALESCE($1, is_active),
			triggered = COALESCE($2, triggered),
			updated_at = NOW()
		WHERE id = $3 AND user_id = $4
		RETURNING `+alertColumns,
		patch.IsActive, patch.Triggered, id, userID))
	if err == sql.ErrNoRows {
		return model.Alert{}, ErrNotFound
	}
	return a, errors.Wrap(err, "failed to update alert")
}

func (s *PostgresStore) DeleteAlert(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return errors.Wrap(err, "failed to delete alert")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountActiveAlerts(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE user_id = $1 AND is_active AND NOT triggered`, userID).Scan(&n)
	return n, errors.Wrap(err, "failed to count alerts")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
