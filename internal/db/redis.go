package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/ruby4mag/firewatch-backend/internal/models"
)

// NewRedisClient accepts either host:port or a redis:// URL.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		var err error
		if opts, err = redis.ParseURL(addr); err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// RedisListCache keeps the full newest-first report listing under a key
// derived from a generation counter. Invalidate bumps the counter, so a
// listing computed before a write can only land under a dead key. Entries
// are BSON so created_at and ids survive the round trip.
type RedisListCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisListCache(client *redis.Client, key string, ttl time.Duration) *RedisListCache {
	return &RedisListCache{client: client, key: key, ttl: ttl}
}

type cachedList struct {
	Reports []models.FireReport `bson:"reports"`
}

func (c *RedisListCache) genKey() string { return c.key + ":gen" }

func (c *RedisListCache) listKey(gen int64) string { return fmt.Sprintf("%s:%d", c.key, gen) }

func (c *RedisListCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisListCache) Get(ctx context.Context, gen int64) ([]models.FireReport, bool, error) {
	b, err := c.client.Get(ctx, c.listKey(gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var l cachedList
	if err := bson.Unmarshal(b, &l); err != nil {
		return nil, false, fmt.Errorf("decode cached reports: %w", err)
	}
	if l.Reports == nil {
		l.Reports = []models.FireReport{}
	}
	return l.Reports, true, nil
}

func (c *RedisListCache) Set(ctx context.Context, gen int64, reports []models.FireReport) error {
	b, err := bson.Marshal(cachedList{Reports: reports})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.listKey(gen), b, c.ttl).Err()
}

func (c *RedisListCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, c.genKey()).Err()
}
