// Package cmd provides CLI commands for the studio-ops tool.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/marloweandco/studio-ops/config"
	"github.com/marloweandco/studio-ops/credentials"
	"github.com/marloweandco/studio-ops/pkg/audit"
	"github.com/marloweandco/studio-ops/pkg/db"
	"github.com/marloweandco/studio-ops/pkg/email"
	"github.com/marloweandco/studio-ops/pkg/entity"
	"github.com/marloweandco/studio-ops/pkg/link"
	"github.com/marloweandco/studio-ops/pkg/logging"
	"github.com/marloweandco/studio-ops/pkg/pattern"
	"github.com/marloweandco/studio-ops/pkg/suggest"
)

// Deps holds the injectable dependencies shared by all commands.
// Tests substitute LoadConfig to avoid touching the real config dir.
type Deps struct {
	LoadConfig func() (*config.Config, error)
}

// DefaultDeps returns the production dependencies.
func DefaultDeps() *Deps {
	return &Deps{
		LoadConfig: config.LoadConfig,
	}
}

// runtime bundles the connections and repositories a command needs.
// Commands that only touch PostgreSQL leave redisClient nil.
type runtime struct {
	cfg  *config.Config
	pool *pgxpool.Pool
	log  logging.Logger

	emails      *email.PostgresRepository
	entities    *entity.PostgresRepository
	links       *link.PostgresRepository
	patterns    *pattern.PostgresRepository
	suggestions *suggest.PostgresRepository
	audits      *audit.PostgresRepository
	tx          *db.TxManager
}

// openRuntime loads config, connects to PostgreSQL, and wires the
// repositories. The caller must Close the returned runtime.
func openRuntime(ctx context.Context, deps *Deps) (*runtime, error) {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	pool, err := connectToDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:         cfg,
		pool:        pool,
		log:         newLogger(cfg),
		emails:      email.NewPostgresRepository(pool),
		entities:    entity.NewPostgresRepository(pool),
		links:       link.NewPostgresRepository(pool),
		patterns:    pattern.NewPostgresRepository(pool),
		suggestions: suggest.NewPostgresRepository(pool),
		audits:      audit.NewPostgresRepository(pool),
		tx:          db.NewTxManager(pool),
	}, nil
}

// Close releases the runtime's connections.
func (rt *runtime) Close() {
	if rt.pool != nil {
		rt.pool.Close()
	}
}

// connectToDatabase establishes a pgx pool from config, pulling the
// password from the encrypted credentials store or the environment.
func connectToDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dbCfg := db.ConfigFromEnv()

	if cfg.Database.IsConfigured() {
		dbCfg.Host = cfg.Database.Host
		if cfg.Database.Port != 0 {
			dbCfg.Port = cfg.Database.Port
		}
		dbCfg.Database = cfg.Database.Database
		dbCfg.User = cfg.Database.User
		if cfg.Database.SSLMode != "" {
			dbCfg.SSLMode = cfg.Database.SSLMode
		}
	}

	if dbCfg.Password == "" {
		if store, err := credentials.NewStore(); err == nil {
			if pass, err := store.GetDBPassword(); err == nil {
				dbCfg.Password = pass
			}
		}
	}

	pool, err := db.Connect(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// connectToRedis builds a Redis client from config. The password comes
// from the credentials store when one is saved.
func connectToRedis(cfg *config.Config) *redis.Client {
	opts := &redis.Options{
		Addr: cfg.Redis.GetAddr(),
	}
	if cfg.Redis != nil {
		opts.DB = cfg.Redis.DB
	}

	if store, err := credentials.NewStore(); err == nil {
		if creds, err := store.Load(); err == nil && creds.RedisPassword != "" {
			opts.Password = creds.RedisPassword
		}
	}

	return redis.NewClient(opts)
}

// newLogger builds the structured logger commands hand to the core
// packages. Debug mode switches to human-readable output at debug level.
func newLogger(cfg *config.Config) logging.Logger {
	logCfg := logging.DefaultConfig()
	logCfg.ServiceName = "studio-ops"
	logCfg.Output = os.Stderr
	if cfg.Debug {
		logCfg.Level = logging.LevelDebug
		logCfg.JSONFormat = false
	}
	return logging.NewLogger(logCfg)
}

// commandContext derives a context with the configured timeout.
func commandContext(ctx context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// parseUUID parses a command argument as a UUID with a readable error.
func parseUUID(arg, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q: %w", what, arg, err)
	}
	return id, nil
}

// outputJSON outputs data as indented JSON.
func outputJSON(data any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// outputYAML outputs data as YAML.
func outputYAML(data any) error {
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(data)
}

// truncate shortens a string for table display.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// formatTime renders a timestamp for table output.
func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

// formatTimePtr renders an optional timestamp, "-" when unset.
func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}
