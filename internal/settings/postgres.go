package settings

import (
	"context"
	"errors"

	"github.com/cybertec-postgresql/submitq/internal/db"
)

// Postgres stores blobs in the submitq_settings table
type Postgres struct {
	pool db.PgxIface
}

// NewPostgres wraps an existing pool; the schema must already be migrated
func NewPostgres(pool db.PgxIface) *Postgres {
	return &Postgres{pool: pool}
}

// OpenPostgres connects with retry and applies pending migrations
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := db.NewWithRetry(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.ApplyMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgres(pool), nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := db.GetSetting(ctx, p.pool, key)
	if errors.Is(err, db.ErrNoSetting) {
		return nil, ErrNotFound
	}
	return value, err
}

func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	return db.PutSetting(ctx, p.pool, key, value)
}

func (p *Postgres) Close() error {
	if c, ok := p.pool.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}
