package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/welfarebill/internal/db"
	embedsql "github.com/gyeh/welfarebill/internal/sql"
)

// Postgres stores buckets in welfarebill.kv.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects and applies the schema migrations.
func OpenPostgres(ctx context.Context, dsn string, log zerolog.Logger) (*Postgres, error) {
	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.ApplyMigrations(ctx, pool, log); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgres wraps an existing pool whose schema is already migrated.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var v []byte
	err := p.pool.QueryRow(ctx, embedsql.KVGet, bucket, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get %s/%s: %w", bucket, key, err)
	}
	return v, nil
}

func (p *Postgres) Set(ctx context.Context, bucket, key string, value []byte) error {
	if _, err := p.pool.Exec(ctx, embedsql.KVSet, bucket, key, value); err != nil {
		if isPgCapacity(err) {
			return ErrCapacity
		}
		return fmt.Errorf("postgres set %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, bucket, key string) error {
	if _, err := p.pool.Exec(ctx, embedsql.KVDelete, bucket, key); err != nil {
		return fmt.Errorf("postgres delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (p *Postgres) Iterate(ctx context.Context, bucket string, fn func(string, []byte) error) error {
	rows, err := p.pool.Query(ctx, embedsql.KVIterate, bucket)
	if err != nil {
		return fmt.Errorf("postgres iterate %s: %w", bucket, err)
	}
	type pair struct {
		k string
		v []byte
	}
	pairs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pair, error) {
		var pr pair
		err := row.Scan(&pr.k, &pr.v)
		return pr, err
	})
	if err != nil {
		return fmt.Errorf("postgres iterate %s: %w", bucket, err)
	}
	for _, pr := range pairs {
		if err := fn(pr.k, pr.v); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) Clear(ctx context.Context, bucket string) error {
	if _, err := p.pool.Exec(ctx, embedsql.KVClear, bucket); err != nil {
		return fmt.Errorf("postgres clear %s: %w", bucket, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// disk_full, out_of_memory and program_limit_exceeded.
var pgCapacityCodes = map[string]bool{"53100": true, "53200": true, "54000": true}

func isPgCapacity(err error) bool {
	var pe *pgconn.PgError
	return errors.As(err, &pe) && pgCapacityCodes[pe.Code]
}
