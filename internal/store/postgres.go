package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Postgres is the durable tier. Each logical table is a real table keyed by
// a unique key_name with a jsonb payload.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Durable = (*Postgres)(nil)

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates the cache tables when missing. It is idempotent.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func tableIdent(table Table) (string, error) {
	if !table.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return pgx.Identifier{string(table)}.Sanitize(), nil
}

func (p *Postgres) Get(ctx context.Context, table Table, key string, now time.Time) (*Entry, error) {
	ident, err := tableIdent(table)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT key_name, data, created_at, expires_at
		FROM ` + ident + `
		WHERE key_name = $1 AND (expires_at IS NULL OR expires_at > $2)
	`

	var e Entry
	var data []byte
	err = p.pool.QueryRow(ctx, query, key, now).Scan(&e.Key, &data, &e.CreatedAt, &e.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s entry: %w", table, err)
	}
	e.Payload = data

	return &e, nil
}

func (p *Postgres) Upsert(ctx context.Context, table Table, entry Entry) error {
	ident, err := tableIdent(table)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO ` + ident + ` (key_name, data, created_at, expires_at)
		VALUES ($1, $2::jsonb, $3, $4)
		ON CONFLICT (key_name) DO UPDATE SET
			data = EXCLUDED.data,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`

	_, err = p.pool.Exec(ctx, query, entry.Key, string(entry.Payload), entry.CreatedAt, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert %s entry: %w", table, err)
	}
	return nil
}

func (p *Postgres) DeleteExpired(ctx context.Context, table Table, now time.Time) (int64, error) {
	ident, err := tableIdent(table)
	if err != nil {
		return 0, err
	}

	tag, err := p.pool.Exec(ctx,
		`DELETE FROM `+ident+` WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired %s entries: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}
