package counter

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

// RedisTally shares frame keys and the total between service replicas.
// Frame keys live in a set at <prefix>:frames, the total at <prefix>:total.
type RedisTally struct {
	client    redis.UniversalClient
	framesKey string
	totalKey  string
}

// NewRedisTally creates a tally stored under prefix
func NewRedisTally(client redis.UniversalClient, prefix string) *RedisTally {
	return &RedisTally{
		client:    client,
		framesKey: prefix + ":frames",
		totalKey:  prefix + ":total",
	}
}

func (t *RedisTally) Observe(ctx context.Context, frame []byte, count CountFunc) (int64, error) {
	if len(frame) == 0 {
		return 0, ErrEmptyFrame
	}
	key := FrameKey(frame)

	added, err := t.client.SAdd(ctx, t.framesKey, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to record frame: %w", err)
	}
	if added == 0 {
		return t.Total(ctx)
	}

	n, err := count(ctx)
	if err != nil {
		if remErr := t.client.SRem(ctx, t.framesKey, key).Err(); remErr != nil {
			return 0, multierr.Combine(err, fmt.Errorf("failed to forget frame: %w", remErr))
		}
		return 0, err
	}

	total, err := t.client.IncrBy(ctx, t.totalKey, int64(n)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to update total: %w", err)
	}
	return total, nil
}

func (t *RedisTally) Total(ctx context.Context) (int64, error) {
	total, err := t.client.Get(ctx, t.totalKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read total: %w", err)
	}
	return total, nil
}

func (t *RedisTally) Reset(ctx context.Context) error {
	if err := t.client.Del(ctx, t.framesKey, t.totalKey).Err(); err != nil {
		return fmt.Errorf("failed to reset tally: %w", err)
	}
	return nil
}
