package results

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/crawlqueue/internal/crawler"
)

// RedisSink appends results to a per-queue Redis list.
type RedisSink struct {
	client redis.UniversalClient
	owned  bool
}

// NewRedisSink wraps a client the caller keeps ownership of.
func NewRedisSink(client redis.UniversalClient) *RedisSink {
	return &RedisSink{client: client}
}

// DialRedisSink opens a dedicated client, usually on a separate database from the queue.
func DialRedisSink(opts *redis.Options) *RedisSink {
	return &RedisSink{client: redis.NewClient(opts), owned: true}
}

func resultsKey(queueName string) string {
	return "sc:" + queueName + ":results"
}

// Write pushes the JSON encoded result onto the queue's results list.
func (s *RedisSink) Write(ctx context.Context, result crawler.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := s.client.RPush(ctx, resultsKey(result.Queue), payload).Err(); err != nil {
		return fmt.Errorf("push result: %w", err)
	}
	return nil
}

// List returns every stored result for queueName in completion order.
func (s *RedisSink) List(ctx context.Context, queueName string) ([]crawler.Result, error) {
	raw, err := s.client.LRange(ctx, resultsKey(queueName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	out := make([]crawler.Result, 0, len(raw))
	for i, entry := range raw {
		var result crawler.Result
		if err := json.Unmarshal([]byte(entry), &result); err != nil {
			return nil, fmt.Errorf("decode result %d: %w", i, err)
		}
		out = append(out, result)
	}
	return out, nil
}

// Clear drops every stored result for queueName.
func (s *RedisSink) Clear(ctx context.Context, queueName string) error {
	if err := s.client.Del(ctx, resultsKey(queueName)).Err(); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	return nil
}

// Close closes the client if the sink opened it.
func (s *RedisSink) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
