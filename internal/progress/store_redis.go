package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/redis/go-redis/v9"
)

const (
	redisStudentPrefix = "oge:student:"
	redisRosterKey     = "oge:students"
)

// RedisStore is a Redis-backed Store. Each student record lives under its
// own key and the roster is a set of known tokens; Save writes both in one
// transaction so a roster reader never observes a half-applied upsert.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Load(ctx context.Context, token string) (*Record, error) {
	data, err := s.client.Get(ctx, redisStudentPrefix+token).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load student %s: %w", token, err)
	}
	return decodeRecord(token, data)
}

func (s *RedisStore) Save(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal student %s: %w", rec.Token, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisStudentPrefix+rec.Token, data, 0)
	pipe.SAdd(ctx, redisRosterKey, rec.Token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save student %s: %w", rec.Token, err)
	}
	return nil
}

func (s *RedisStore) All(ctx context.Context) ([]*Record, error) {
	tokens, err := s.client.SMembers(ctx, redisRosterKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	sort.Strings(tokens)

	out := make([]*Record, 0, len(tokens))
	for _, token := range tokens {
		rec, err := s.Load(ctx, token)
		if err == ErrNotFound {
			continue // roster member without a record, skip
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) ByToken(ctx context.Context, token string) (*Record, error) {
	return s.Load(ctx, token)
}

// decodeRecord unmarshals a persisted record. Malformed JSON is treated as
// absence rather than a fatal error.
func decodeRecord(token string, data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Warn("discarding malformed student record", "token", token, "error", err)
		return nil, ErrNotFound
	}
	rec.RebuildIndex()
	return &rec, nil
}
