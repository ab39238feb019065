package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the server and the alert watcher.
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Store  StoreConfig  `mapstructure:"store"`
	Market MarketConfig `mapstructure:"market"`
	Feed   FeedConfig   `mapstructure:"feed"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Logger LoggerConfig `mapstructure:"logger"`
}

type AppConfig struct {
	Port            string        `mapstructure:"port"`
	Env             string        `mapstructure:"env"` // local, prod
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	TokenTTL          time.Duration `mapstructure:"token_ttl"`
	MinPasswordLength int           `mapstructure:"min_password_length"`
	StartingBalance   float64       `mapstructure:"starting_balance"`
}

type StoreConfig struct {
	Driver   string         `mapstructure:"driver"` // memory, postgres, mongo
	Postgres PostgresConfig `mapstructure:"postgres"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN renders the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MinPoolSize    uint64        `mapstructure:"min_pool"`
	MaxPoolSize    uint64        `mapstructure:"max_pool"`
}

type MarketConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	MaxMovePct   float64       `mapstructure:"max_move_pct"`
	PriceFloor   float64       `mapstructure:"price_floor"`
	SeedFile     string        `mapstructure:"seed_file"`
}

type FeedConfig struct {
	SendBuffer     int           `mapstructure:"send_buffer"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Encoding   string `mapstructure:"encoding"` // json, console
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// LoadConfig reads configuration from .env, an optional YAML file named by
// CONFIG_FILE, environment variables and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	setDefaults(v)

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("unable to read config file %s: %v", file, err)
		}
	}

	// "app.port" -> "APP_PORT"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v, "app.port", "app.env", "app.cors_origins", "app.shutdown_timeout")
	bindEnv(v, "auth.token_ttl", "auth.min_password_length", "auth.starting_balance")
	bindEnv(v, "store.driver", "store.postgres.sslmode", "store.postgres.max_open", "store.postgres.max_idle")
	bindEnv(v, "store.mongo.database", "store.mongo.connect_timeout",
		"store.mongo.min_pool", "store.mongo.max_pool")
	bindEnv(v, "market.tick_interval", "market.max_move_pct", "market.price_floor", "market.seed_file")
	bindEnv(v, "feed.send_buffer", "feed.write_wait", "feed.pong_wait", "feed.ping_period", "feed.reconnect_delay")
	bindEnv(v, "redis.enabled", "redis.addr", "redis.password", "redis.db", "redis.ttl")
	bindEnv(v, "logger.level", "logger.encoding", "logger.file", "logger.max_size",
		"logger.max_backups", "logger.max_age", "logger.compress")

	// Legacy flat names from the original deployment's .env.
	bindLegacy(v, map[string]string{
		"auth.jwt_secret":         "JWT_SECRET",
		"store.postgres.host":     "PG_HOST",
		"store.postgres.port":     "PG_PORT",
		"store.postgres.user":     "PG_USER",
		"store.postgres.password": "PG_PASS",
		"store.postgres.dbname":   "PG_DBNAME",
		"store.mongo.uri":         "MONGODB_URI",
	})

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":5000")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.cors_origins", []string{"*"})
	v.SetDefault("app.shutdown_timeout", 10*time.Second)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 30*24*time.Hour)
	v.SetDefault("auth.min_password_length", 6)
	v.SetDefault("auth.starting_balance", 100000.0)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "postgres")
	v.SetDefault("store.postgres.password", "")
	v.SetDefault("store.postgres.dbname", "papertrade")
	v.SetDefault("store.postgres.sslmode", "disable")
	v.SetDefault("store.postgres.max_open", 25)
	v.SetDefault("store.postgres.max_idle", 5)
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "papertrade")
	v.SetDefault("store.mongo.connect_timeout", 10*time.Second)
	v.SetDefault("store.mongo.min_pool", 0)
	v.SetDefault("store.mongo.max_pool", 50)

	v.SetDefault("market.tick_interval", 3*time.Second)
	v.SetDefault("market.max_move_pct", 0.25)
	v.SetDefault("market.price_floor", 0.01)
	v.SetDefault("market.seed_file", "")

	v.SetDefault("feed.send_buffer", 256)
	v.SetDefault("feed.write_wait", 10*time.Second)
	v.SetDefault("feed.pong_wait", 60*time.Second)
	v.SetDefault("feed.ping_period", 54*time.Second)
	v.SetDefault("feed.reconnect_delay", 2*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Hour)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.compress", false)
}

// Validate checks the values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		if c.App.Env != "local" {
			return fmt.Errorf("auth.jwt_secret must be set outside the local environment")
		}
		c.Auth.JWTSecret = "papertrade-local-secret"
	}

	if c.Market.TickInterval < time.Second {
		return fmt.Errorf("market.tick_interval must be at least 1s, got %s", c.Market.TickInterval)
	}
	if c.Market.MaxMovePct <= 0 {
		return fmt.Errorf("market.max_move_pct must be positive")
	}
	if c.Market.PriceFloor <= 0 {
		return fmt.Errorf("market.price_floor must be positive")
	}

	if c.Feed.PingPeriod >= c.Feed.PongWait {
		return fmt.Errorf("feed.ping_period (%s) must be shorter than feed.pong_wait (%s)",
			c.Feed.PingPeriod, c.Feed.PongWait)
	}

	switch c.Store.Driver {
	case "memory", "postgres", "mongo":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}

// bindLegacy binds a key to both its derived name and a flat legacy name.
func bindLegacy(v *viper.Viper, keys map[string]string) {
	for key, legacy := range keys {
		derived := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, derived, legacy); err != nil {
			log.Printf("Could not bind env var %s for key %s: %v", legacy, key, err)
		}
	}
}
