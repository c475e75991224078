package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"encwatch/core-go/internal/sqlcgen"
)

const openPingTimeout = 5 * time.Second

// Pool wraps pgxpool so the service can run databaseless with a nil *Pool.
// Every method tolerates the nil receiver.
type Pool struct {
	pool *pgxpool.Pool
}

// Open connects and verifies the database answers before handing the pool
// out, so a bad URL or a down database surfaces at startup rather than on
// the first query.
func Open(ctx context.Context, databaseURL string) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, openPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	return &Pool{pool: pool}, nil
}

func (p *Pool) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

// Ping reports nil on a nil pool: databaseless mode is a healthy mode.
func (p *Pool) Ping(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return nil
	}
	return p.pool.Ping(ctx)
}

// Queries binds the query layer to this pool, or returns nil in
// databaseless mode so callers can gate storage features on it.
func (p *Pool) Queries() *sqlcgen.Queries {
	if p == nil || p.pool == nil {
		return nil
	}
	return sqlcgen.New(p.pool)
}
