package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"papertrade/model"
)

const (
	keyPrefix     = "quote:"
	channelPrefix = "prices."
)

// Snapshot is what the mirror stores per symbol.
type Snapshot struct {
	model.PriceUpdate
	Timestamp time.Time `json:"timestamp"`
}

// RedisMirror copies every tick into Redis: the latest snapshot of each
// symbol under quote:<SYM> and a publish on prices.<SYM>.
type RedisMirror struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisMirror(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisMirror {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisMirror{rdb: rdb, ttl: ttl, logger: logger.Named("mirror")}
}

// Connect builds a client and checks it answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (m *RedisMirror) Name() string { return "redis" }

// Publish writes all symbols of one tick in a single pipeline.
func (m *RedisMirror) Publish(ctx context.Context, updates map[string]model.PriceUpdate, at time.Time) error {
	if len(updates) == 0 {
		return nil
	}

	pipe := m.rdb.Pipeline()
	for sym, u := range updates {
		payload, err := json.Marshal(Snapshot{PriceUpdate: u, Timestamp: at.UTC()})
		if err != nil {
			return fmt.Errorf("marshal %s: %w", sym, err)
		}
		pipe.Set(ctx, keyPrefix+sym, payload, m.ttl)
		pipe.Publish(ctx, channelPrefix+sym, payload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	m.logger.Debug("Mirrored tick", zap.Int("symbols", len(updates)))
	return nil
}

// Snapshots reads the latest mirrored snapshot of each symbol. Symbols never
// mirrored are absent from the result.
func (m *RedisMirror) Snapshots(ctx context.Context, symbols []string) (map[string]Snapshot, error) {
	if len(symbols) == 0 {
		return map[string]Snapshot{}, nil
	}

	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = keyPrefix + model.NormalizeSymbol(s)
	}

	vals, err := m.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	out := make(map[string]Snapshot, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			m.logger.Warn("Skipping unreadable snapshot", zap.Error(err))
			continue
		}
		out[snap.Symbol] = snap
	}
	return out, nil
}
