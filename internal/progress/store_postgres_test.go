package progress_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/NelyubinaIV/Ogegotovo/internal/progress"
)

func setupPostgresStore(t *testing.T) (*progress.PostgresStore, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("oge"),
		tcpostgres.WithUsername("oge"),
		tcpostgres.WithPassword("oge"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("container connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("pgxpool.New() error = %v", err)
	}
	t.Cleanup(pool.Close)

	store, err := progress.NewPostgresStore(ctx, pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	return store, pool
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	store, _ := setupPostgresStore(t)
	ctx := context.Background()

	_, err := store.Load(ctx, "AAAA-2222")
	if !errors.Is(err, progress.ErrNotFound) {
		t.Errorf("Load(unknown) error = %v, want ErrNotFound", err)
	}

	rec := progress.NewRecord("AAAA-2222", testNow)
	rec.Candies = 5
	rec.Results = append(rec.Results, progress.TaskResult{
		TaskID: "l1-t1", LessonID: "1", Score: 8, MaxScore: 10,
		Passed: true, Attempt: 1, Timestamp: testNow,
	})
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, "AAAA-2222")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Candies != 5 {
		t.Errorf("Candies = %d, want 5", got.Candies)
	}
	if len(got.Results) != 1 {
		t.Fatalf("Results = %d entries, want 1", len(got.Results))
	}
	if _, ok := got.FirstPassedAt("1", "l1-t1"); !ok {
		t.Error("FirstPassedAt() not rebuilt after load")
	}
}

func TestPostgresStore_UpsertAndRoster(t *testing.T) {
	store, _ := setupPostgresStore(t)
	ctx := context.Background()

	rec := progress.NewRecord("AAAA-2222", testNow)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rec.Candies = 12
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(ctx, progress.NewRecord("BBBB-3333", testNow)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("All() = %d records, want 2", len(all))
	}
	if all[0].Token != "AAAA-2222" || all[1].Token != "BBBB-3333" {
		t.Errorf("All() order = [%s, %s], want tokens ascending", all[0].Token, all[1].Token)
	}
	if all[0].Candies != 12 {
		t.Errorf("Candies = %d, want 12 (upsert replaced the record)", all[0].Candies)
	}
}

func TestPostgresEventLogger(t *testing.T) {
	_, pool := setupPostgresStore(t)

	logger := progress.NewPostgresEventLogger(pool)
	err := logger.LogEvent(progress.Event{
		Token:     "AAAA-2222",
		EventType: progress.EventCandiesGranted,
		Data:      map[string]any{"candies": 5},
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	var count int
	if err := pool.QueryRow(context.Background(),
		`SELECT count(*) FROM events WHERE token = $1`, "AAAA-2222",
	).Scan(&count); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Errorf("events = %d, want 1", count)
	}
}

func TestPostgresEventLogger_RequiresType(t *testing.T) {
	_, pool := setupPostgresStore(t)

	logger := progress.NewPostgresEventLogger(pool)
	if err := logger.LogEvent(progress.Event{Token: "AAAA-2222"}); err == nil {
		t.Error("LogEvent() should reject an event without a type")
	}
}
