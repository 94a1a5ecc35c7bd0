package profilepg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BuildPool opens a pgx pool sized for the profile store's small working set
// and verifies connectivity before handing it back.
func BuildPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, parseErr := pgxpool.ParseConfig(databaseURL)
	if parseErr != nil {
		return nil, fmt.Errorf("profilepg.parse_config: %w", parseErr)
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConns = 8
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, connectErr := pgxpool.NewWithConfig(ctx, poolConfig)
	if connectErr != nil {
		return nil, fmt.Errorf("profilepg.connect: %w", connectErr)
	}
	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("profilepg.ping: %w", pingErr)
	}
	return pool, nil
}
