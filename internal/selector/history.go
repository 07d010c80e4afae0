package selector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/algoprep/algoprep-backend/internal/config"
)

// RedisHistory stores selection history as a Redis list per (user, exam):
// each element is the JSON array of question ids for one attempt, newest
// first. Not transactional, best effort.
type RedisHistory struct {
	rdb *redis.Client
}

// NewRedisHistory creates a Redis-backed HistoryStore.
func NewRedisHistory(rdb *redis.Client) *RedisHistory {
	return &RedisHistory{rdb: rdb}
}

// Recent returns the question-id lists of up to window prior attempts.
func (h *RedisHistory) Recent(ctx context.Context, userID int, examID uuid.UUID, window int) ([][]uuid.UUID, error) {
	key := config.CacheKey.SelectionHistoryKey(examID.String(), userID)

	raw, err := h.rdb.LRange(ctx, key, 0, int64(window)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read selection history: %w", err)
	}

	attempts := make([][]uuid.UUID, 0, len(raw))
	for _, entry := range raw {
		var ids []uuid.UUID
		if err := json.Unmarshal([]byte(entry), &ids); err != nil {
			// A malformed entry is skipped, not fatal.
			continue
		}
		attempts = append(attempts, ids)
	}
	return attempts, nil
}

// Append pushes this attempt's selection and trims the list to retain entries.
func (h *RedisHistory) Append(ctx context.Context, userID int, examID uuid.UUID, ids []uuid.UUID, retain int) error {
	key := config.CacheKey.SelectionHistoryKey(examID.String(), userID)

	payload, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal selection: %w", err)
	}

	pipe := h.rdb.Pipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(retain)-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append selection history: %w", err)
	}
	return nil
}
