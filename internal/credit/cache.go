package credit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	generationKey    = "vendai:credit:generation"
	bumpChannel      = "vendai:credit:bump"
	defaultLocalTTL  = 30 * time.Second
	portfolioViewKey = "portfolio"
)

type memoEntry struct {
	raw     []byte
	expires time.Time
}

// Cache keeps derived credit views in two tiers: a short-lived in-process
// memo per worker and a generation-scoped Redis entry shared by all workers.
// Bump starts a new generation and tells subscribed workers to drop their memo.
type Cache struct {
	client   *redis.Client
	ttl      time.Duration
	localTTL time.Duration
	now      func() time.Time

	mu   sync.Mutex
	memo map[string]memoEntry
	load singleflight.Group
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	localTTL := defaultLocalTTL
	if ttl > 0 && ttl < localTTL {
		localTTL = ttl
	}
	return &Cache{
		client:   client,
		ttl:      ttl,
		localTTL: localTTL,
		now:      time.Now,
		memo:     make(map[string]memoEntry),
	}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

func (c *Cache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *Cache) remembered(view string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.memo[view]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expires) {
		delete(c.memo, view)
		return nil, false
	}
	return entry.raw, true
}

func (c *Cache) remember(view string, raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memo[view] = memoEntry{raw: raw, expires: c.now().Add(c.localTTL)}
}

// Forget drops every view memoised by this worker.
func (c *Cache) Forget() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.memo)
}

func (c *Cache) memoSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.memo)
}

// FetchJSON decodes the named view into dest, consulting the local memo, then
// Redis, then loader. Concurrent misses for one view share a single load.
func (c *Cache) FetchJSON(ctx context.Context, view string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("credit cache: loader required")
	}
	if !c.enabled() {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	if raw, ok := c.remembered(view); ok {
		return json.Unmarshal(raw, dest)
	}
	out, err, _ := c.load.Do(view, func() (any, error) {
		return c.fill(ctx, view, loader)
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(out.([]byte), dest)
}

func (c *Cache) fill(ctx context.Context, view string, loader func(context.Context) (any, error)) ([]byte, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, fmt.Errorf("credit cache: read generation: %w", err)
	}
	key := fmt.Sprintf("vendai:credit:%s:%d", view, gen)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		c.remember(view, raw)
		return raw, nil
	case !errors.Is(err, redis.Nil):
		return nil, err
	}
	value, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err = json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return nil, err
	}
	c.remember(view, raw)
	return raw, nil
}

// Bump starts a new cache generation, drops the local memo and notifies the
// other workers.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	c.Forget()
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, "bump").Err()
}

// ListenForInvalidation drops the local memo whenever any worker bumps the
// generation. It returns once the subscription is confirmed and keeps
// listening until ctx is cancelled.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				c.Forget()
			}
		}
	}()
	return nil
}
