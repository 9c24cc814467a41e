package expiry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIndex stores entries in a sorted set: member = item id,
// score = expiry as unix milliseconds.
type RedisIndex struct {
	client *redis.Client
	key    string
}

func NewRedisIndex(client *redis.Client, key string) *RedisIndex {
	return &RedisIndex{client: client, key: key}
}

func (r *RedisIndex) Upsert(ctx context.Context, itemID string, expiresAt time.Time) error {
	err := r.client.ZAdd(ctx, r.key, redis.Z{
		Score:  float64(expiresAt.UnixMilli()),
		Member: itemID,
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisIndex) Remove(ctx context.Context, itemID string) error {
	if err := r.client.ZRem(ctx, r.key, itemID).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisIndex) Due(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	opt := &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}

	zs, err := r.client.ZRangeByScoreWithScores(ctx, r.key, opt).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore %s: %w", r.key, err)
	}
	return toEntries(zs), nil
}

func (r *RedisIndex) Next(ctx context.Context) (Entry, bool, error) {
	zs, err := r.client.ZRangeWithScores(ctx, r.key, 0, 0).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, false, fmt.Errorf("zrange %s: %w", r.key, err)
	}
	if len(zs) == 0 {
		return Entry{}, false, nil
	}
	return toEntries(zs)[0], true, nil
}

func (r *RedisIndex) Len(ctx context.Context) (int64, error) {
	n, err := r.client.ZCard(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", r.key, err)
	}
	return n, nil
}

func toEntries(zs []redis.Z) []Entry {
	entries := make([]Entry, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		entries = append(entries, Entry{
			ItemID:    id,
			ExpiresAt: time.UnixMilli(int64(z.Score)).UTC(),
		})
	}
	return entries
}

var _ Index = (*RedisIndex)(nil)
