package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ViewCache stores read models of type T as JSON under prefix+id. A zero TTL
// keeps entries until they are deleted.
type ViewCache[T any] struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
	loads  singleflight.Group
}

func NewViewCache[T any](client *goredis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *ViewCache[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &ViewCache[T]{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// Get reports a miss for absent, unreadable and corrupt entries alike.
func (c *ViewCache[T]) Get(ctx context.Context, id string) (*T, bool) {
	data, err := c.client.Get(ctx, c.prefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.WarnContext(ctx, "view cache: read failed", "key", c.prefix+id, "error", err)
		}
		return nil, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.WarnContext(ctx, "view cache: corrupt entry", "key", c.prefix+id, "error", err)
		return nil, false
	}
	return &v, true
}

// loadTimeout bounds a shared load once it no longer follows any caller.
const loadTimeout = 10 * time.Second

// GetOrLoad returns the cached entry or calls load once per id for all
// concurrent callers and caches its result. The load runs detached from the
// cancellation of whichever caller started it; each caller still stops
// waiting when its own ctx is done.
func (c *ViewCache[T]) GetOrLoad(ctx context.Context, id string, load func(context.Context) (*T, error)) (*T, error) {
	if v, ok := c.Get(ctx, id); ok {
		return v, nil
	}
	ch := c.loads.DoChan(id, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		loaded, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.Set(loadCtx, id, loaded)
		return loaded, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*T), nil
	}
}

// Set stores value under id. Failures are logged, not returned.
func (c *ViewCache[T]) Set(ctx context.Context, id string, value *T) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.ErrorContext(ctx, "view cache: marshal failed", "key", c.prefix+id, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+id, data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "view cache: write failed", "key", c.prefix+id, "error", err)
	}
}

func (c *ViewCache[T]) Delete(ctx context.Context, id string) {
	if err := c.client.Del(ctx, c.prefix+id).Err(); err != nil {
		c.logger.WarnContext(ctx, "view cache: delete failed", "key", c.prefix+id, "error", err)
	}
}
