package dedup

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gyeh/welfarebill/internal/model"
	"github.com/gyeh/welfarebill/internal/normalize"
	"github.com/gyeh/welfarebill/internal/store"
)

func patient(name, date, code string) *model.Patient {
	return &model.Patient{Name: name, TreatmentDate: date, InstitutionCode: code, RecipientNumber: "1234567", Included: true}
}

func TestKey(t *testing.T) {
	a := patient("山田太郎", "20250210", "12345678")
	b := patient("山田太郎", "2025/02/25", "12345678")
	b.RecipientNumber = "7654321"

	ka := Key(a, normalize.NameHash)
	if ka != Key(b, normalize.NameHash) {
		t.Errorf("same month/name/code should share a key: %q vs %q", ka, Key(b, normalize.NameHash))
	}
	if !strings.HasPrefix(ka, "2025/02_") || !strings.HasSuffix(ka, "_12345678") {
		t.Errorf("unexpected key shape %q", ka)
	}
	if strings.Contains(ka, "山田") || strings.Contains(ka, "1234567_") {
		t.Errorf("key leaks identity: %q", ka)
	}

	c := patient("山田太郎", "20250310", "12345678")
	d := patient("山田太郎", "20250210", "87654321")
	if Key(c, normalize.NameHash) == ka || Key(d, normalize.NameHash) == ka {
		t.Error("month and institution code must be part of the key")
	}
}

func TestEngine_LoadMissingIsEmpty(t *testing.T) {
	e := New(store.NewMemory(0), Options{}, zerolog.Nop())
	set, err := e.Lookup(context.Background(), "2025/02")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(set) != 0 {
		t.Errorf("expected empty set, got %d", len(set))
	}
}

func TestEngine_SaveMergesInOrder(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory(0)
	e := New(kv, Options{}, zerolog.Nop())

	first := []*model.Patient{patient("A", "20250201", "1"), patient("B", "20250202", "1")}
	res, err := e.Save(ctx, "2025/02", first)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res.Added != 2 || res.Stored != 2 {
		t.Errorf("unexpected result %+v", res)
	}

	late := patient("Z", "20250101", "1")
	late.PreviousMonth = true
	second := []*model.Patient{patient("B", "20250215", "1"), patient("C", "20250203", "1"), late}
	res, err = e.Save(ctx, "2025/02", second)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res.Added != 1 || res.Stored != 3 {
		t.Errorf("unexpected result %+v", res)
	}

	keys, err := e.Load(ctx, "2025/02")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{e.Key(first[0]), e.Key(first[1]), e.Key(second[1])}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("keys = %v, want %v", keys, want)
	}

	// Stored under "<month>_batch1".
	if _, err := kv.Get(ctx, Bucket, "2025/02_batch1"); err != nil {
		t.Errorf("expected month-scoped entry: %v", err)
	}

	set, _ := e.Lookup(ctx, "2025/02")
	match := e.Matcher(set)
	if !match(patient("A", "20250228", "1")) {
		t.Error("same name/month/code should match")
	}
	if match(patient("A", "20250228", "2")) || match(late) {
		t.Error("different code or unsaved late patient should not match")
	}
}

func manyPatients(n int) []*model.Patient {
	ps := make([]*model.Patient, n)
	for i := range ps {
		ps[i] = patient(fmt.Sprintf("患者%03d", i), "20250210", "12345678")
	}
	return ps
}

func TestEngine_SaveTrimsOnCapacity(t *testing.T) {
	ctx := context.Background()
	// Each key is 33 bytes, so a JSON array of n keys is 1+36n bytes:
	// 10 keys fit in 400, 15 do not.
	kv := store.NewMemory(400)
	e := New(kv, Options{Capacity: 10}, zerolog.Nop())

	ps := manyPatients(15)
	res, err := e.Save(ctx, "2025/02", ps)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !res.Trimmed || res.Dropped || res.Stored != 10 {
		t.Fatalf("unexpected result %+v", res)
	}
	keys, _ := e.Load(ctx, "2025/02")
	if len(keys) != 10 || keys[0] != e.Key(ps[5]) || keys[9] != e.Key(ps[14]) {
		t.Errorf("expected the 10 most recent keys, got %d starting %q", len(keys), keys[0])
	}
}

func TestEngine_SaveSwallowsSecondFailure(t *testing.T) {
	ctx := context.Background()
	e := New(store.NewMemory(100), Options{Capacity: 10}, zerolog.Nop())

	res, err := e.Save(ctx, "2025/02", manyPatients(15))
	if err != nil {
		t.Fatalf("capacity failure must not surface: %v", err)
	}
	if !res.Dropped || !res.Trimmed {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestEngine_FlatScopeAndMonths(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory(0)

	flat := New(kv, Options{Flat: true}, zerolog.Nop())
	if _, err := flat.Save(ctx, "2025/02", manyPatients(2)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := kv.Get(ctx, Bucket, FlatKey); err != nil {
		t.Errorf("expected flat entry: %v", err)
	}

	monthly := New(kv, Options{}, zerolog.Nop())
	if _, err := monthly.Save(ctx, "2025/03", manyPatients(3)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	months, err := monthly.Months(ctx)
	if err != nil {
		t.Fatalf("Months: %v", err)
	}
	got := map[string]int{}
	for _, m := range months {
		got[m.Month] = m.Keys
	}
	if got["2025/03"] != 3 || got[""] != 2 || len(got) != 2 {
		t.Errorf("unexpected months %v", got)
	}

	if err := monthly.Clear(ctx, "2025/03"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if keys, _ := monthly.Load(ctx, "2025/03"); len(keys) != 0 {
		t.Errorf("month not cleared: %v", keys)
	}
	if err := monthly.Clear(ctx, ""); err != nil {
		t.Fatalf("Clear all: %v", err)
	}
	if months, _ := monthly.Months(ctx); len(months) != 0 {
		t.Errorf("expected no months, got %v", months)
	}
}

func TestEngine_LegacyHash(t *testing.T) {
	e := New(store.NewMemory(0), Options{Hash: normalize.LegacyNameHash}, zerolog.Nop())
	k := e.Key(patient("ab", "20250210", "12345678"))
	if k != "2025/02_c21_12345678" {
		t.Errorf("legacy key = %q", k)
	}
}
