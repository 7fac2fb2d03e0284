package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const historyKeyPrefix = "quill:history:"

// RedisHistory keeps chat history in a Redis list per project, newest first.
// It mirrors the Store history methods so the assembler can use either
// backend; which one runs is a deployment choice, not a code path the core
// cares about.
type RedisHistory struct {
	client *redis.Client
}

func NewRedisHistory(addr string) (*RedisHistory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		MaxRetries:   3,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisHistory{client: client}, nil
}

func (r *RedisHistory) AppendTurn(ctx context.Context, projectID, question, answer string) error {
	turn := Turn{Question: question, Answer: answer, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}
	return r.client.LPush(ctx, historyKeyPrefix+projectID, data).Err()
}

// RecentTurns returns up to n most recent turns, newest first.
func (r *RedisHistory) RecentTurns(ctx context.Context, projectID string, n int) ([]Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := r.client.LRange(ctx, historyKeyPrefix+projectID, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	out := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *RedisHistory) ClearHistory(ctx context.Context, projectID string) error {
	return r.client.Del(ctx, historyKeyPrefix+projectID).Err()
}
