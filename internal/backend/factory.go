package backend

import (
	"context"
	"fmt"

	"fintrack/internal/kv/memory"
	kvredis "fintrack/internal/kv/redis"
	"fintrack/internal/kv/sqlite"
	"fintrack/internal/log"
)

// Factory opens backends and logs what it opened.
type Factory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Nop()
	}
	return &Factory{logger: logger.WithComponent(log.ComponentBackend)}
}

// Open validates cfg and opens the matching store.
func (f *Factory) Open(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case SQLite:
		return f.openSQLite(cfg)
	case Redis:
		return f.openRedis(ctx, cfg)
	case Memory:
		return f.openMemory()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

func (f *Factory) openSQLite(cfg Config) (*Result, error) {
	store, err := sqlite.Open(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite store: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath, log.FieldBackend, SQLite)
	return &Result{Type: SQLite, Store: store, Cleanup: store.Close}, nil
}

func (f *Factory) openRedis(ctx context.Context, cfg Config) (*Result, error) {
	store, err := kvredis.Dial(ctx, kvredis.Options{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		KeyPrefix: cfg.RedisKeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	f.logger.Info("Initialized Redis backend", "addr", cfg.RedisAddr, "db", cfg.RedisDB, log.FieldBackend, Redis)
	return &Result{Type: Redis, Store: store, Cleanup: store.Close}, nil
}

func (f *Factory) openMemory() (*Result, error) {
	f.logger.Warn("Initialized memory backend, data will not survive a restart", log.FieldBackend, Memory)
	return &Result{Type: Memory, Store: memory.New()}, nil
}
