// Package redisqueue is a queue.Queue backed by a Redis list.
//
// Items are pushed as JSON with RPUSH and taken with LPOP, so they are
// consumed in push order. Poll re-reads an empty list every PollInterval
// until its timeout rather than holding a blocking BLPOP, whose server-side
// timeout has whole-second granularity.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/boundguard/logger"
	"github.com/kbukum/boundguard/queue"
	"github.com/kbukum/boundguard/resilience"
)

var _ queue.Queue = (*Queue)(nil)
var _ queue.Pusher = (*Queue)(nil)

// pushScript appends ARGV[1] unless the list already holds ARGV[2] items.
var pushScript = goredis.NewScript(`
if redis.call('LLEN', KEYS[1]) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('RPUSH', KEYS[1], ARGV[1])
return 1
`)

// Queue is a Redis list consumed as a work queue.
type Queue struct {
	rdb   *goredis.Client
	log   *logger.Logger
	cfg   Config
	owned bool

	mu     sync.Mutex
	closed bool
}

// New connects to Redis and creates a queue.
func New(cfg Config, log *logger.Logger) (*Queue, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("redis queue config: %w", err)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis queue is disabled")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	q := NewFromClient(rdb, cfg, log)
	q.owned = true
	q.log.Info("redis queue created", logger.Fields(
		"addr", cfg.Addr,
		"db", cfg.DB,
		"list", q.key(),
	))
	return q, nil
}

// NewFromClient creates a queue on an existing client. The client is not
// closed by Close.
func NewFromClient(rdb *goredis.Client, cfg Config, log *logger.Logger) *Queue {
	cfg.ApplyDefaults()
	return &Queue{
		rdb: rdb,
		log: logger.OrDefault(log, "redisqueue"),
		cfg: cfg,
	}
}

func (q *Queue) key() string {
	return q.cfg.Prefix + q.cfg.Name
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.cfg.Name }

// Push appends item to the list, retrying transient errors. Returns
// queue.ErrQueueFull when the list holds MaxLength items.
func (q *Queue) Push(ctx context.Context, item queue.Item) error {
	if item.ID == "" {
		return fmt.Errorf("redis queue: item without id")
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("redis queue: encode item %s: %w", item.ID, err)
	}

	return resilience.RetryFunc(ctx, resilience.RetryConfig{
		Name:        "redisqueue.push",
		MaxAttempts: q.cfg.PushAttempts,
		Backoff:     resilience.ExponentialBackoff{Initial: 20 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: 0.1},
		RetryIf: func(err error) bool {
			return !errors.Is(err, queue.ErrQueueFull) && resilience.DefaultRetryIf(err)
		},
		Logger: q.log,
	}, func(ctx context.Context) error {
		added, err := pushScript.Run(ctx, q.rdb, []string{q.key()}, raw, q.cfg.MaxLength).Int()
		if err != nil {
			return fmt.Errorf("redis queue: push: %w", err)
		}
		if added == 0 {
			return queue.ErrQueueFull
		}
		return nil
	})
}

// Poll implements queue.Queue.
func (q *Queue) Poll(ctx context.Context, timeout time.Duration) (queue.Item, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		raw, err := q.rdb.LPop(ctx, q.key()).Bytes()
		switch {
		case err == nil:
			var item queue.Item
			if err := json.Unmarshal(raw, &item); err != nil {
				return queue.Item{}, false, fmt.Errorf("redis queue: decode item: %w", err)
			}
			return item, true, nil
		case !errors.Is(err, goredis.Nil):
			if ctxErr := ctx.Err(); ctxErr != nil {
				return queue.Item{}, false, ctxErr
			}
			return queue.Item{}, false, fmt.Errorf("redis queue: poll: %w", err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return queue.Item{}, false, nil
		}
		if err := resilience.Sleep(ctx, min(q.cfg.PollInterval, remaining)); err != nil {
			return queue.Item{}, false, err
		}
	}
}

// Len returns the number of queued items.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key()).Result()
}

// Ping verifies the Redis connection is alive.
func (q *Queue) Ping(ctx context.Context) error {
	if err := q.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the connection if the queue created it. Safe to call
// multiple times.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || !q.owned {
		q.closed = true
		return nil
	}
	q.log.Info("closing redis queue connection")
	q.closed = true
	return q.rdb.Close()
}
