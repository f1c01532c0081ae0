// Package store is the small key-value layer behind the duplicate-key set
// and the archive log. Backends are swappable by DSN.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("store: key not found")
	// ErrCapacity is returned by Set when the backend refuses a write for
	// lack of space.
	ErrCapacity = errors.New("store: capacity exceeded")
)

// KV is a bucketed key-value store. Iterate visits keys in ascending order
// and stops at the first error returned by fn.
type KV interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Set(ctx context.Context, bucket, key string, value []byte) error
	Delete(ctx context.Context, bucket, key string) error
	Iterate(ctx context.Context, bucket string, fn func(key string, value []byte) error) error
	Clear(ctx context.Context, bucket string) error
	Close() error
}

// Open selects a backend by DSN:
//
//	memory:               in-process, lost on exit
//	file:<path>           single JSON document
//	sqlite:<path>         SQLite database
//	postgres://...        Postgres (schema migrated on open)
func Open(ctx context.Context, dsn string, log zerolog.Logger) (KV, error) {
	var (
		kv  KV
		err error
	)
	switch {
	case dsn == "memory:" || dsn == "memory":
		kv = NewMemory(0)
	case strings.HasPrefix(dsn, "file:"):
		kv, err = nonNil(OpenFile(strings.TrimPrefix(dsn, "file:"), 0))
	case strings.HasPrefix(dsn, "sqlite:"):
		kv, err = nonNil(OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite:")))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		kv, err = nonNil(OpenPostgres(ctx, dsn, log))
	case dsn == "":
		return nil, fmt.Errorf("store dsn is empty")
	default:
		return nil, fmt.Errorf("unsupported store dsn %q (want memory:, file:, sqlite: or postgres://)", dsn)
	}
	if err != nil {
		return nil, err
	}
	log.Debug().Str("store", Describe(dsn)).Msg("store opened")
	return kv, nil
}

// nonNil keeps a failed constructor's typed nil out of the KV interface.
func nonNil[T KV](kv T, err error) (KV, error) {
	if err != nil {
		return nil, err
	}
	return kv, nil
}

// Describe returns a DSN safe to log: credentials are dropped.
func Describe(dsn string) string {
	if i := strings.Index(dsn, "@"); i >= 0 && strings.Contains(dsn, "://") {
		return dsn[:strings.Index(dsn, "://")+3] + "***" + dsn[i:]
	}
	return dsn
}
