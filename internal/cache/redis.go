// Package cache keeps website reachability results in Redis between vetting
// runs.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/spigell/partner-engine/internal/domain"
)

const (
	DefaultTTL = time.Hour

	keyPrefix = "partner-engine:reachability:"
)

type kv interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

// Reachability stores one JSON encoded website check per normalized URL.
type Reachability struct {
	rdb    kv
	closer func() error
	ttl    time.Duration
}

// Dial parses a redis:// URL and pings the server.
func Dial(ctx context.Context, url string, ttl time.Duration) (*Reachability, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	c := newReachability(rdb, ttl)
	c.closer = rdb.Close
	return c, nil
}

func newReachability(rdb kv, ttl time.Duration) *Reachability {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Reachability{rdb: rdb, ttl: ttl}
}

func (c *Reachability) GetWebsite(ctx context.Context, key string) (*domain.WebsiteCheck, bool, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var check domain.WebsiteCheck
	if err := json.Unmarshal(raw, &check); err != nil {
		return nil, false, fmt.Errorf("decode cached website check: %w", err)
	}
	return &check, true, nil
}

func (c *Reachability) PutWebsite(ctx context.Context, key string, check *domain.WebsiteCheck) error {
	if check == nil {
		return nil
	}
	raw, err := json.Marshal(check)
	if err != nil {
		return fmt.Errorf("encode website check: %w", err)
	}
	if err := c.rdb.Set(ctx, keyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *Reachability) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
