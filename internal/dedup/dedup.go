// Package dedup keeps the set of patients already billed in batch 1 so that
// batch 2 of the same month can flag repeats. Only hashed names are stored.
package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gyeh/welfarebill/internal/model"
	"github.com/gyeh/welfarebill/internal/normalize"
	"github.com/gyeh/welfarebill/internal/store"
)

const (
	// Bucket holds every key set.
	Bucket = "processed-keys"
	// FlatKey is the single entry used by the flat scope.
	FlatKey = "processed-keys"

	batchSuffix = "_batch1"
)

// Key builds the duplicate key: year-month, hashed name, institution code.
// The recipient number is deliberately absent since it can be reissued.
func Key(p *model.Patient, hash normalize.Hasher) string {
	return normalize.YearMonth(p.TreatmentDate) + "_" + hash(p.Name) + "_" + p.InstitutionCode
}

// Set is a loaded key set.
type Set map[string]struct{}

func (s Set) Has(k string) bool {
	_, ok := s[k]
	return ok
}

// Options configures an Engine.
type Options struct {
	Hash     normalize.Hasher
	Flat     bool // one shared set instead of one per month
	Capacity int  // keys kept when the store runs out of space
}

// Engine reads and writes key sets in a store.KV.
type Engine struct {
	kv       store.KV
	hash     normalize.Hasher
	flat     bool
	capacity int
	log      zerolog.Logger
}

func New(kv store.KV, opts Options, log zerolog.Logger) *Engine {
	if opts.Hash == nil {
		opts.Hash = normalize.NameHash
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 1000
	}
	return &Engine{kv: kv, hash: opts.Hash, flat: opts.Flat, capacity: opts.Capacity, log: log}
}

// Key builds p's duplicate key with the engine's hash.
func (e *Engine) Key(p *model.Patient) string {
	return Key(p, e.hash)
}

// entryKey names the store entry for a month ("2025/02_batch1").
func (e *Engine) entryKey(month string) string {
	if e.flat {
		return FlatKey
	}
	return month + batchSuffix
}

// Load returns the stored keys for month in insertion order. A missing
// entry is an empty list, not an error.
func (e *Engine) Load(ctx context.Context, month string) ([]string, error) {
	data, err := e.kv.Get(ctx, Bucket, e.entryKey(month))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load processed keys: %w", err)
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("decode processed keys for %s: %w", month, err)
	}
	return keys, nil
}

// Lookup returns the keys already billed in batch 1 of month.
func (e *Engine) Lookup(ctx context.Context, month string) (Set, error) {
	keys, err := e.Load(ctx, month)
	if err != nil {
		return nil, err
	}
	set := make(Set, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}

// Matcher adapts a loaded set to a per-patient check.
func (e *Engine) Matcher(set Set) func(*model.Patient) bool {
	return func(p *model.Patient) bool {
		return set.Has(e.Key(p))
	}
}

// SaveResult reports what Save wrote.
type SaveResult struct {
	Added   int  // keys new to the set
	Stored  int  // size of the set as written
	Trimmed bool // capacity forced a trim to the most recent keys
	Dropped bool // the write failed even after trimming
}

// Save merges the keys of patients into month's set, existing keys first.
// Previous-month patients are never recorded. When the store reports
// ErrCapacity the set is cut to the most recent Capacity keys and written
// once more; a second failure is logged and reported in SaveResult, not as
// an error, because the render it follows has already succeeded.
func (e *Engine) Save(ctx context.Context, month string, patients []*model.Patient) (SaveResult, error) {
	existing, err := e.Load(ctx, month)
	if err != nil {
		return SaveResult{}, err
	}

	seen := make(map[string]struct{}, len(existing)+len(patients))
	merged := make([]string, 0, len(existing)+len(patients))
	for _, k := range existing {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			merged = append(merged, k)
		}
	}
	var res SaveResult
	for _, p := range patients {
		if p.PreviousMonth {
			continue
		}
		k := e.Key(p)
		if strings.HasPrefix(k, "_") {
			// No derivable month; the key could never match.
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		merged = append(merged, k)
		res.Added++
	}

	err = e.write(ctx, month, merged)
	if errors.Is(err, store.ErrCapacity) && len(merged) > e.capacity {
		e.log.Warn().
			Int("keys", len(merged)).
			Int("keep", e.capacity).
			Msg("processed-key store full, keeping most recent keys")
		merged = merged[len(merged)-e.capacity:]
		res.Trimmed = true
		err = e.write(ctx, month, merged)
	}
	if errors.Is(err, store.ErrCapacity) {
		e.log.Warn().Str("month", month).Msg("processed keys not saved: store full")
		res.Dropped = true
		return res, nil
	}
	if err != nil {
		return res, err
	}
	res.Stored = len(merged)
	return res, nil
}

func (e *Engine) write(ctx context.Context, month string, keys []string) error {
	data, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("encode processed keys: %w", err)
	}
	if err := e.kv.Set(ctx, Bucket, e.entryKey(month), data); err != nil {
		if errors.Is(err, store.ErrCapacity) {
			return err
		}
		return fmt.Errorf("save processed keys: %w", err)
	}
	return nil
}

// MonthCount is one stored key set.
type MonthCount struct {
	Month string // "" for the flat set
	Keys  int
}

// Months lists the stored key sets.
func (e *Engine) Months(ctx context.Context) ([]MonthCount, error) {
	var out []MonthCount
	err := e.kv.Iterate(ctx, Bucket, func(k string, v []byte) error {
		var keys []string
		if err := json.Unmarshal(v, &keys); err != nil {
			return fmt.Errorf("decode processed keys %s: %w", k, err)
		}
		out = append(out, MonthCount{Month: strings.TrimSuffix(strings.TrimSuffix(k, batchSuffix), FlatKey), Keys: len(keys)})
		return nil
	})
	return out, err
}

// Clear removes month's set, or every set when month is empty.
func (e *Engine) Clear(ctx context.Context, month string) error {
	if month == "" {
		return e.kv.Clear(ctx, Bucket)
	}
	return e.kv.Delete(ctx, Bucket, e.entryKey(month))
}
