package queue

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"PriceWatch/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 14})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping test; redis not available: %v", err)
	}
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

var errFatal = errors.New("fatal")

type scriptedJob struct {
	mu       sync.Mutex
	payloads []string
	fails    int
	err      error
}

func (j *scriptedJob) Type() string { return "cmd" }

func (j *scriptedJob) Handle(_ context.Context, payload []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.payloads = append(j.payloads, string(payload))
	if j.fails > 0 {
		j.fails--
		return j.err
	}
	return nil
}

func (j *scriptedJob) calls() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.payloads)
}

func (j *scriptedJob) payload(i int) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.payloads[i]
}

func newTestQueue(t *testing.T, client *redis.Client, job Job) *RedisQueue {
	t.Helper()
	q := NewRedisQueue(logger.Nop(), Config{
		Workers:    1,
		RetryLimit: 2,
		RetryDelay: 20 * time.Millisecond,
		PopTimeout: 50 * time.Millisecond,
	}, client,
		WithKeyPrefix("pwtest:queue"),
		WithRetryPolicy(func(err error) bool { return !errors.Is(err, errFatal) }),
	)
	q.RegisterJob(job)
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = q.Stop(ctx)
	})
	return q
}

func TestRedisQueueDelivers(t *testing.T) {
	client := setupRedis(t)
	job := &scriptedJob{}
	q := newTestQueue(t, client, job)

	require.NoError(t, q.Enqueue(context.Background(), "cmd", map[string]string{"action": "start_monitoring"}))
	require.Eventually(t, func() bool { return job.calls() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.JSONEq(t, `{"action":"start_monitoring"}`, job.payload(0))
}

func TestRedisQueueRetriesTransientFailures(t *testing.T) {
	client := setupRedis(t)
	job := &scriptedJob{fails: 1, err: errors.New("busy")}
	q := newTestQueue(t, client, job)

	require.NoError(t, q.Enqueue(context.Background(), "cmd", "x"))
	require.Eventually(t, func() bool { return job.calls() == 2 }, 2*time.Second, 10*time.Millisecond)

	_, _, dead, err := q.Len(context.Background())
	require.NoError(t, err)
	require.Zero(t, dead)
}

func TestRedisQueueDeadLettersPermanentFailures(t *testing.T) {
	client := setupRedis(t)
	job := &scriptedJob{fails: 10, err: errFatal}
	q := newTestQueue(t, client, job)

	require.NoError(t, q.Enqueue(context.Background(), "cmd", "x"))
	require.Eventually(t, func() bool {
		_, _, dead, err := q.Len(context.Background())
		return err == nil && dead == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, job.calls())
}

func TestRedisQueueDeadLettersUnknownType(t *testing.T) {
	client := setupRedis(t)
	q := newTestQueue(t, client, &scriptedJob{})

	require.NoError(t, q.Enqueue(context.Background(), "other", "x"))
	require.Eventually(t, func() bool {
		_, _, dead, err := q.Len(context.Background())
		return err == nil && dead == 1
	}, 2*time.Second, 10*time.Millisecond)
}
