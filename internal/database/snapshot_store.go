package database

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/persistence"
)

// NewSnapshotStore picks the snapshot backend named by SNAPSHOT_BACKEND.
func NewSnapshotStore(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) (persistence.Store, error) {
	var store persistence.Store
	switch cfg.SnapshotBackend {
	case config.SnapshotBackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("snapshot backend %q needs a redis client", cfg.SnapshotBackend)
		}
		store = persistence.NewRedisStore(rdb, cfg.SnapshotTTL)
	case config.SnapshotBackendPostgres:
		if pool == nil {
			return nil, fmt.Errorf("snapshot backend %q needs a database pool", cfg.SnapshotBackend)
		}
		store = persistence.NewPostgresStore(pool)
	case config.SnapshotBackendMemory:
		log.Warn().Msg("Using in-memory snapshot store, sessions will not survive a restart")
		store = persistence.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.SnapshotBackend)
	}

	log.Info().Str("backend", cfg.SnapshotBackend).Msg("Snapshot store ready")
	return store, nil
}
