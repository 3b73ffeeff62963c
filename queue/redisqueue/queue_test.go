package redisqueue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbukum/boundguard/logger"
	"github.com/kbukum/boundguard/queue"
)

func newTestQueue(t *testing.T, cfg Config) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFromClient(client, cfg, logger.Nop()), mr
}

func TestQueue_PushPollFIFO(t *testing.T) {
	q, _ := newTestQueue(t, Config{PollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(ctx, queue.NewItem("client", []byte(fmt.Sprint(i)))))
	}
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for i := 0; i < 3; i++ {
		item, ok, err := q.Poll(ctx, 100*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprint(i), string(item.Payload))
		assert.Equal(t, "client", item.Key)
		assert.NotEmpty(t, item.ID)
	}
}

func TestQueue_PollTimesOutWhenEmpty(t *testing.T) {
	q, _ := newTestQueue(t, Config{PollInterval: 5 * time.Millisecond})

	start := time.Now()
	_, ok, err := q.Poll(context.Background(), 30*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
}

func TestQueue_PollPicksUpLatePush(t *testing.T) {
	q, _ := newTestQueue(t, Config{PollInterval: 5 * time.Millisecond})
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = q.Push(context.Background(), queue.NewItem("late", nil))
	}()

	item, ok, err := q.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "late", item.Key)
}

func TestQueue_PollRespectsContext(t *testing.T) {
	q, _ := newTestQueue(t, Config{PollInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok, err := q.Poll(ctx, 5*time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_PushRespectsMaxLength(t *testing.T) {
	q, _ := newTestQueue(t, Config{MaxLength: 2})
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, queue.NewItem("a", nil)))
	require.NoError(t, q.Push(ctx, queue.NewItem("b", nil)))
	assert.ErrorIs(t, q.Push(ctx, queue.NewItem("c", nil)), queue.ErrQueueFull)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestQueue_UsesPrefixedKey(t *testing.T) {
	q, mr := newTestQueue(t, Config{Prefix: "test:", Name: "jobs"})
	require.NoError(t, q.Push(context.Background(), queue.NewItem("k", nil)))

	assert.True(t, mr.Exists("test:jobs"))
	list, err := mr.List("test:jobs")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestQueue_CorruptEntryIsAnError(t *testing.T) {
	q, mr := newTestQueue(t, Config{})
	_, err := mr.Push(q.key(), "not json")
	require.NoError(t, err)

	_, ok, err := q.Poll(context.Background(), 10*time.Millisecond)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestQueue_PushRejectsItemWithoutID(t *testing.T) {
	q, _ := newTestQueue(t, Config{})
	assert.Error(t, q.Push(context.Background(), queue.Item{Key: "k"}))
}

func TestQueue_PingAndClose(t *testing.T) {
	q, mr := newTestQueue(t, Config{})
	assert.NoError(t, q.Ping(context.Background()))

	mr.Close()
	assert.Error(t, q.Ping(context.Background()))
	assert.NoError(t, q.Close())
	assert.NoError(t, q.Close())
}

func TestNew_Disabled(t *testing.T) {
	_, err := New(Config{}, logger.Nop())
	assert.Error(t, err)

	_, err = New(Config{Enabled: true}, logger.Nop())
	assert.Error(t, err, "addr is required when enabled")
}

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	assert.Equal(t, "boundguard:queue:", cfg.Prefix)
	assert.Equal(t, "work", cfg.Name)
	assert.Equal(t, int64(10_000), cfg.MaxLength)
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval)
}
