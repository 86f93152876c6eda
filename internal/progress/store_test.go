package progress_test

import (
	"context"
	"errors"
	"testing"

	"github.com/NelyubinaIV/Ogegotovo/internal/progress"
)

func TestMemoryStore_LoadNotFound(t *testing.T) {
	store := progress.NewMemoryStore()

	_, err := store.Load(context.Background(), "AAAA-2222")
	if !errors.Is(err, progress.ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_SaveLoad(t *testing.T) {
	store := progress.NewMemoryStore()
	ctx := context.Background()

	rec := progress.NewRecord("AAAA-2222", testNow)
	rec.Candies = 15
	rec.Results = append(rec.Results, progress.TaskResult{
		TaskID: "l1-t1", LessonID: "1", Passed: true, Attempt: 1, Timestamp: testNow,
	})

	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, "AAAA-2222")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Candies != 15 {
		t.Errorf("Candies = %d, want 15", got.Candies)
	}
	if len(got.Results) != 1 {
		t.Errorf("Results = %d entries, want 1", len(got.Results))
	}
}

func TestMemoryStore_LoadRebuildsIndex(t *testing.T) {
	store := progress.NewMemoryStore()
	ctx := context.Background()

	rec := progress.NewRecord("AAAA-2222", testNow)
	rec.Results = append(rec.Results, progress.TaskResult{
		TaskID: "l1-t1", LessonID: "1", Passed: true, Attempt: 1, Timestamp: testNow,
	})
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, "AAAA-2222")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	ts, ok := got.FirstPassedAt("1", "l1-t1")
	if !ok {
		t.Fatal("FirstPassedAt() not found after reload")
	}
	if !ts.Equal(testNow) {
		t.Errorf("FirstPassedAt() = %v, want %v", ts, testNow)
	}
}

func TestMemoryStore_SaveIsolatesCaller(t *testing.T) {
	store := progress.NewMemoryStore()
	ctx := context.Background()

	rec := progress.NewRecord("AAAA-2222", testNow)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	rec.Candies = 99

	got, err := store.Load(ctx, "AAAA-2222")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Candies != 0 {
		t.Errorf("Candies = %d, want 0 (store must hold its own copy)", got.Candies)
	}
}

func TestMemoryStore_Upsert(t *testing.T) {
	store := progress.NewMemoryStore()
	ctx := context.Background()

	rec := progress.NewRecord("AAAA-2222", testNow)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	rec.Candies = 5
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("All() = %d records, want 1 (replace, not insert)", len(all))
	}
	if all[0].Candies != 5 {
		t.Errorf("Candies = %d, want 5", all[0].Candies)
	}
}

func TestMemoryStore_AllSorted(t *testing.T) {
	store := progress.NewMemoryStore()
	ctx := context.Background()

	for _, token := range []string{"CCCC-4444", "AAAA-2222", "BBBB-3333"} {
		if err := store.Save(ctx, progress.NewRecord(token, testNow)); err != nil {
			t.Fatalf("Save(%s) error = %v", token, err)
		}
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	want := []string{"AAAA-2222", "BBBB-3333", "CCCC-4444"}
	for i, rec := range all {
		if rec.Token != want[i] {
			t.Errorf("All()[%d] = %s, want %s", i, rec.Token, want[i])
		}
	}
}

func TestMemoryStore_ByToken(t *testing.T) {
	store := progress.NewMemoryStore()
	ctx := context.Background()

	if err := store.Save(ctx, progress.NewRecord("AAAA-2222", testNow)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.ByToken(ctx, "AAAA-2222")
	if err != nil {
		t.Fatalf("ByToken() error = %v", err)
	}
	if got.Token != "AAAA-2222" {
		t.Errorf("Token = %s, want AAAA-2222", got.Token)
	}

	_, err = store.ByToken(ctx, "ZZZZ-9999")
	if !errors.Is(err, progress.ErrNotFound) {
		t.Errorf("ByToken(unknown) error = %v, want ErrNotFound", err)
	}
}
