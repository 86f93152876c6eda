package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store. Records are stored as JSONB
// blobs keyed by token; the table doubles as the roster, so a single upsert
// keeps both views converged.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store and ensures its schema.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if err := Migrate(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the tables used by PostgresStore and PostgresEventLogger.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS students (
			token      text PRIMARY KEY,
			data       jsonb NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS events (
			id         bigserial PRIMARY KEY,
			token      text NOT NULL,
			event_type text NOT NULL,
			data       jsonb NOT NULL DEFAULT '{}'::jsonb,
			created_at timestamptz NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, token string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM students WHERE token = $1`,
		token,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load student %s: %w", token, err)
	}
	return decodeRecord(token, data)
}

func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal student %s: %w", rec.Token, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO students (token, data, updated_at)
		 VALUES ($1, $2::jsonb, now())
		 ON CONFLICT (token) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		rec.Token,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("save student %s: %w", rec.Token, err)
	}
	return nil
}

func (s *PostgresStore) All(ctx context.Context) ([]*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT token, data FROM students ORDER BY token`,
	)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var token string
		var data []byte
		if err := rows.Scan(&token, &data); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		rec, err := decodeRecord(token, data)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ByToken(ctx context.Context, token string) (*Record, error) {
	return s.Load(ctx, token)
}
