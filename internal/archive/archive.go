// Package archive keeps an append-only history of rendered invoices.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gyeh/welfarebill/internal/model"
	"github.com/gyeh/welfarebill/internal/store"
)

const (
	// Bucket holds one entry per key.
	Bucket = "archive"
	// DefaultLimit is the number of entries kept.
	DefaultLimit = 50
	// capacityKeep is what survives a store-full trim.
	capacityKeep = 10
)

// Log appends render records to a store.KV bucket.
type Log struct {
	kv    store.KV
	limit int
	log   zerolog.Logger
	now   func() time.Time
}

func New(kv store.KV, limit int, log zerolog.Logger) *Log {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Log{kv: kv, limit: limit, log: log, now: time.Now}
}

// entryKey sorts chronologically: UTC timestamp, then the ID.
func entryKey(e model.ArchiveEntry) string {
	return e.Timestamp.UTC().Format("20060102T150405.000000000Z") + "_" + e.ID
}

// Append stores e (filling ID and Timestamp when unset) and trims the log
// to the newest Limit entries. Failures are logged, never returned: the
// render being recorded has already succeeded.
func (l *Log) Append(ctx context.Context, e model.ArchiveEntry) model.ArchiveEntry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	if e.PharmacyName == "" {
		e.PharmacyName = "薬局"
	}

	data, err := json.Marshal(e)
	if err != nil {
		l.log.Warn().Err(err).Msg("archive entry not encodable")
		return e
	}

	err = l.kv.Set(ctx, Bucket, entryKey(e), data)
	if errors.Is(err, store.ErrCapacity) {
		l.log.Warn().Int("keep", capacityKeep).Msg("archive store full, trimming history")
		if terr := l.trim(ctx, capacityKeep-1); terr != nil {
			l.log.Warn().Err(terr).Msg("archive trim failed")
		}
		err = l.kv.Set(ctx, Bucket, entryKey(e), data)
	}
	if err != nil {
		l.log.Warn().Err(err).Str("file", e.FileName).Msg("archive entry not saved")
		return e
	}

	if err := l.trim(ctx, l.limit); err != nil {
		l.log.Warn().Err(err).Msg("archive trim failed")
	}
	return e
}

// trim deletes all but the newest keep entries.
func (l *Log) trim(ctx context.Context, keep int) error {
	keys, err := l.keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) <= keep {
		return nil
	}
	for _, k := range keys[:len(keys)-keep] {
		if err := l.kv.Delete(ctx, Bucket, k); err != nil {
			return err
		}
	}
	return nil
}

func (l *Log) keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := l.kv.Iterate(ctx, Bucket, func(k string, _ []byte) error {
		keys = append(keys, k)
		return nil
	})
	return keys, err
}

// List returns entries newest first.
func (l *Log) List(ctx context.Context) ([]model.ArchiveEntry, error) {
	var out []model.ArchiveEntry
	err := l.kv.Iterate(ctx, Bucket, func(k string, v []byte) error {
		var e model.ArchiveEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return fmt.Errorf("decode archive entry %s: %w", k, err)
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// Delete removes the entry with the given ID. Unknown IDs are ignored.
func (l *Log) Delete(ctx context.Context, id string) error {
	var target string
	err := l.kv.Iterate(ctx, Bucket, func(k string, v []byte) error {
		var e model.ArchiveEntry
		if json.Unmarshal(v, &e) == nil && e.ID == id {
			target = k
		}
		return nil
	})
	if err != nil || target == "" {
		return err
	}
	return l.kv.Delete(ctx, Bucket, target)
}

// Clear removes every entry.
func (l *Log) Clear(ctx context.Context) error {
	return l.kv.Clear(ctx, Bucket)
}
