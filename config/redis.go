package config

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var RedisClient *redis.Client

// RedisOptions is the cache and event bus connection, taken from Config.
type RedisOptions struct {
	URL      string // redis://, rediss:// or a bare host:port
	PoolSize int
	Timeout  time.Duration // dial, read and write
}

func (c *Config) RedisOptions() RedisOptions {
	return RedisOptions{URL: c.RedisURL, PoolSize: c.RedisPoolSize, Timeout: c.RedisTimeout}
}

func (o RedisOptions) clientOptions() (*redis.Options, error) {
	if o.URL == "" {
		return nil, errors.New("redis address is not set")
	}
	opt := &redis.Options{Addr: o.URL}
	if strings.HasPrefix(o.URL, "redis://") || strings.HasPrefix(o.URL, "rediss://") {
		parsed, err := redis.ParseURL(o.URL)
		if err != nil {
			return nil, err
		}
		opt = parsed
	}
	if o.PoolSize > 0 {
		opt.PoolSize = o.PoolSize
	}
	if o.Timeout > 0 {
		opt.DialTimeout = o.Timeout
		opt.ReadTimeout = o.Timeout
		opt.WriteTimeout = o.Timeout
	}
	return opt, nil
}

// InitRedis connects and pings Redis. RedisClient is set even when the ping
// fails so the caller can close it.
func InitRedis(ctx context.Context, o RedisOptions) error {
	RedisClient = nil
	opt, err := o.clientOptions()
	if err != nil {
		return err
	}
	RedisClient = redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return RedisClient.Ping(ctx).Err()
}
