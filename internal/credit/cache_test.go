package credit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLoader struct {
	calls int
	value int
}

func (l *countingLoader) load(context.Context) (any, error) {
	l.calls++
	return map[string]int{"value": l.value}, nil
}

func newCacheClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func fetchValue(t *testing.T, c *Cache, loader *countingLoader) int {
	t.Helper()
	var out map[string]int
	require.NoError(t, c.FetchJSON(context.Background(), portfolioViewKey, &out, loader.load))
	return out["value"]
}

func TestCacheServesLocalMemoUntilExpiry(t *testing.T) {
	mr, client := newCacheClient(t)
	c := NewCache(client, time.Hour)
	now := fixedNow
	c.now = func() time.Time { return now }
	loader := &countingLoader{value: 1}

	assert.Equal(t, 1, fetchValue(t, c, loader))
	mr.FlushAll()
	loader.value = 2
	assert.Equal(t, 1, fetchValue(t, c, loader))
	assert.Equal(t, 1, loader.calls)

	now = now.Add(defaultLocalTTL)
	assert.Equal(t, 2, fetchValue(t, c, loader))
	assert.Equal(t, 2, loader.calls)
}

func TestCacheBumpFromAnotherWorkerDropsLocalMemo(t *testing.T) {
	_, client := newCacheClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	workerA := NewCache(client, time.Hour)
	workerB := NewCache(client, time.Hour)
	require.NoError(t, workerA.ListenForInvalidation(ctx))

	loader := &countingLoader{value: 1}
	assert.Equal(t, 1, fetchValue(t, workerA, loader))
	require.Equal(t, 1, workerA.memoSize())

	loader.value = 2
	require.NoError(t, workerB.Bump(ctx))
	require.Eventually(t, func() bool { return workerA.memoSize() == 0 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, fetchValue(t, workerA, loader))
	assert.Equal(t, 2, loader.calls)
}

func TestCacheWithoutListenerKeepsStaleMemo(t *testing.T) {
	_, client := newCacheClient(t)
	ctx := context.Background()
	workerA := NewCache(client, time.Hour)
	workerB := NewCache(client, time.Hour)

	loader := &countingLoader{value: 1}
	assert.Equal(t, 1, fetchValue(t, workerA, loader))
	loader.value = 2
	require.NoError(t, workerB.Bump(ctx))

	assert.Equal(t, 1, fetchValue(t, workerA, loader))
	assert.Equal(t, 2, fetchValue(t, workerB, loader))
}

func TestCacheDisabledWithoutClient(t *testing.T) {
	c := NewCache(nil, time.Hour)
	loader := &countingLoader{value: 3}
	assert.Equal(t, 3, fetchValue(t, c, loader))
	assert.Equal(t, 3, fetchValue(t, c, loader))
	assert.Equal(t, 2, loader.calls)
	assert.NoError(t, c.Bump(context.Background()))
	assert.NoError(t, c.ListenForInvalidation(context.Background()))
}
