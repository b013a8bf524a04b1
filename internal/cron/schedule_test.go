package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
)

type memoryLockStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{data: map[string]string{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type countingJob struct {
	name string
	err  error
	runs int
	ctx  context.Context
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs++
	j.ctx = ctx
	return j.err
}

func newTestSchedule(t *testing.T, lock Lock, params ScheduleParams, jobs ...Job) *Schedule {
	t.Helper()
	params.Logger = logger.New(logger.Options{ServiceName: "cron-test"})
	params.Lock = lock
	s, err := NewSchedule(params, jobs...)
	require.NoError(t, err)
	return s
}

func TestRunOnceRunsEveryJobAndCombinesFailures(t *testing.T) {
	store := newMemoryLockStore()
	lock, err := NewRedisLock(store, LockKey("test", "daily"), time.Minute)
	require.NoError(t, err)

	first := &countingJob{name: "low-stock", err: errors.New("db down")}
	second := &countingJob{name: "outbox-retention"}
	third := &countingJob{name: "cart-reminders", err: errors.New("mailer down")}
	s := newTestSchedule(t, lock, ScheduleParams{Name: "daily"}, first, nil, second, third)
	require.Len(t, s.Jobs(), 3)

	ran, err := s.RunOnce(context.Background())
	assert.True(t, ran)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "low-stock")
	assert.Contains(t, err.Error(), "cart-reminders")
	assert.Equal(t, 1, first.runs)
	assert.Equal(t, 1, second.runs)
	assert.Equal(t, 1, third.runs)
	assert.Empty(t, store.data, "lock released after the cycle")
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	store := newMemoryLockStore()
	key := LockKey("prod", "frequent")
	store.data[key] = "other-worker"
	lock, err := NewRedisLock(store, key, time.Minute)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	job := &countingJob{name: "order-emails"}
	s := newTestSchedule(t, lock, ScheduleParams{Name: "frequent", Metrics: metrics.NewCronJobMetrics(reg)}, job)

	ran, err := s.RunOnce(context.Background())
	assert.False(t, ran)
	assert.NoError(t, err)
	assert.Zero(t, job.runs)

	s.tick(context.Background())
	assert.Equal(t, "other-worker", store.data[key], "foreign lock untouched")
}

func TestJobTimeoutBoundsEachJob(t *testing.T) {
	job := &countingJob{name: "refund-sweep"}
	lock, err := NewRedisLock(newMemoryLockStore(), "k", time.Minute)
	require.NoError(t, err)
	s := newTestSchedule(t, lock, ScheduleParams{JobTimeout: time.Second}, job)

	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	_, hasDeadline := job.ctx.Deadline()
	assert.True(t, hasDeadline)
	assert.Equal(t, "default", s.Name())
}

func TestReleaseLeavesReacquiredLockAlone(t *testing.T) {
	store := newMemoryLockStore()
	lock, err := NewRedisLock(store, "k", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// expired and taken by another worker
	store.data["k"] = "someone-else"
	require.NoError(t, lock.Release(context.Background()))
	assert.Equal(t, "someone-else", store.data["k"])
}

func TestLockKeyDefaultsEnvironment(t *testing.T) {
	assert.Equal(t, "mc:cron-worker:lock:local:daily", LockKey("", "daily"))
	_, err := NewRedisLock(newMemoryLockStore(), "k", 0)
	assert.Error(t, err)
}
