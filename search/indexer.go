// Package search signals the external search indexer that a case changed.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Indexer accepts "reindex case X" signals.
type Indexer interface {
	Reindex(ctx context.Context, caseID string) error
}

// RedisIndexer appends signals to a redis list the indexer worker drains.
type RedisIndexer struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

func NewRedisIndexer(client *redis.Client, key string) *RedisIndexer {
	return &RedisIndexer{client: client, key: key, now: time.Now}
}

// Dial builds a RedisIndexer from a redis:// URL.
func Dial(url, key string) (*RedisIndexer, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("search: parse redis url: %w", err)
	}
	return NewRedisIndexer(redis.NewClient(opts), key), nil
}

type signal struct {
	CaseID string    `json:"caseId"`
	At     time.Time `json:"at"`
}

func (r *RedisIndexer) Reindex(ctx context.Context, caseID string) error {
	body, err := json.Marshal(signal{CaseID: caseID, At: r.now().UTC()})
	if err != nil {
		return fmt.Errorf("search: encode signal: %w", err)
	}
	if err := r.client.RPush(ctx, r.key, body).Err(); err != nil {
		return fmt.Errorf("search: push signal: %w", err)
	}
	return nil
}

func (r *RedisIndexer) Close() error {
	return r.client.Close()
}

// Noop drops every signal. Used when no redis is configured.
type Noop struct{}

func (Noop) Reindex(context.Context, string) error { return nil }
