package practicecode

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dsvrelay/dsv-relay/internal/config"
)

// SetupResult bundles the allocator built from configuration with the resources it owns.
type SetupResult struct {
	Allocator *Allocator
	Store     CounterStore
	Kind      StoreKind

	closers []func() error
}

// Close releases database or redis connections opened by SetupFromConfig.
func (r *SetupResult) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SetupFromConfig opens the configured counter store and returns an allocator bound to it.
// SQL drivers must be registered by the caller (blank imports in main).
func SetupFromConfig(ctx context.Context, cfg config.PracticeCodeConfig, loc *time.Location, logger *zap.Logger) (*SetupResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	kind, err := ResolveStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	res := &SetupResult{Kind: kind}

	switch kind {
	case StoreFile:
		res.Store = NewFileStore(afero.NewOsFs(), cfg.File.Path, FileStoreOptions{
			StrictRead:  cfg.File.StrictRead,
			KeepCorrupt: cfg.File.KeepCorrupt,
		}, logger.Named("counter"))
	case StoreSQL:
		dialect, err := DialectForDriver(cfg.SQL.Driver)
		if err != nil {
			return nil, err
		}
		db, err := sql.Open(string(dialect), cfg.SQL.DSN)
		if err != nil {
			return nil, fmt.Errorf("open counter database: %w", err)
		}
		res.closers = append(res.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("ping counter database: %w", err)
		}
		store := NewDBStore(db, dialect, cfg.Prefix)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = res.Close()
			return nil, err
		}
		res.Store = store
	case StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		res.closers = append(res.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("ping counter redis: %w", err)
		}
		res.Store = NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.Prefix)
	}

	res.Allocator = NewAllocator(Config{Prefix: cfg.Prefix, MinDigits: cfg.MinDigits}, res.Store, SystemClock{Location: loc})
	logger.Info("practice code allocator ready",
		zap.String("store", string(kind)),
		zap.String("prefix", cfg.Prefix))
	return res, nil
}
