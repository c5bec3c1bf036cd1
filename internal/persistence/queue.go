package persistence

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-session/internal/model"
)

// SubmissionQueue hands finished attempts to the durable writer.
type SubmissionQueue interface {
	Enqueue(ctx context.Context, attempt model.Attempt) error
}

// RedisQueue pushes attempts onto a Redis list consumed with BLPOP.
type RedisQueue struct {
	rdb  *redis.Client
	name string
}

// NewRedisQueue creates a RedisQueue writing to the list name.
func NewRedisQueue(rdb *redis.Client, name string) *RedisQueue {
	return &RedisQueue{rdb: rdb, name: name}
}

func (q *RedisQueue) Enqueue(ctx context.Context, attempt model.Attempt) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, q.name, payload).Err()
}
