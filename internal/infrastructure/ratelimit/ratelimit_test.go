package ratelimit

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/logger"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Unix(1_700_000_000, 0)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type storeFactory func(t *testing.T, c *clock) Store

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"file": func(t *testing.T, c *clock) Store {
			return NewFileStore(t.TempDir(), WithFileClock(c.Now))
		},
		"memory": func(t *testing.T, c *clock) Store {
			return NewMemoryStore(0, c.Now)
		},
		"redis": func(t *testing.T, c *clock) Store {
			mr := miniredis.RunT(t)
			client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			s, err := NewRedisStore(client, "test:", c.Now)
			require.NoError(t, err)
			return s
		},
	}
}

func TestStores_SequentialHits(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			c := newClock()
			s := factory(t, c)
			ctx := context.Background()

			for _, want := range []int{4, 3, 2, 1, 0} {
				res, err := s.Hit(ctx, "key", 5, time.Minute)
				require.NoError(t, err)
				assert.True(t, res.Allowed)
				assert.Equal(t, want, res.Remaining)
				assert.Equal(t, 5, res.Limit)
				assert.Zero(t, res.RetryAfter)
			}

			res, err := s.Hit(ctx, "key", 5, time.Minute)
			require.NoError(t, err)
			assert.False(t, res.Allowed)
			assert.Equal(t, 0, res.Remaining)
			assert.GreaterOrEqual(t, res.RetryAfter, time.Second)
			assert.Equal(t, c.Now().Add(time.Minute).Unix(), res.ResetAt.Unix())

			other, err := s.Hit(ctx, "other", 5, time.Minute)
			require.NoError(t, err)
			assert.True(t, other.Allowed)
		})
	}
}

func TestStores_WindowRollover(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			c := newClock()
			s := factory(t, c)
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				_, err := s.Hit(ctx, "key", 2, time.Minute)
				require.NoError(t, err)
			}

			c.Advance(time.Minute)
			res, err := s.Hit(ctx, "key", 2, time.Minute)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, 1, res.Remaining)
		})
	}
}

func TestStores_RetryAfterFloor(t *testing.T) {
	c := newClock()
	s := NewMemoryStore(0, c.Now)
	ctx := context.Background()

	_, _ = s.Hit(ctx, "key", 1, time.Second)
	res, err := s.Hit(ctx, "key", 1, time.Second)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)
}

func TestFileStore_ForcedResetInPast(t *testing.T) {
	c := newClock()
	dir := t.TempDir()
	s := NewFileStore(dir, WithFileClock(c.Now))
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, _ = s.Hit(ctx, "key", 5, time.Minute)
	}

	require.NoError(t, writeRecord(s.recordPath("key"), Record{Reset: c.Now().Unix() - 10, Count: 6}))

	res, err := s.Hit(ctx, "key", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	rec, err := s.Peek("key")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Count)
}

func TestFileStore_CorruptRecord(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	require.NoError(t, os.WriteFile(s.recordPath("key"), []byte("{not json"), 0o600))

	res, err := s.Hit(context.Background(), "key", 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Remaining)
}

func TestFileStore_ConcurrentHits(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Hit(ctx, "shared", 100, time.Hour)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := s.Peek("shared")
	require.NoError(t, err)
	assert.Equal(t, int64(20), rec.Count)
}

func TestMemoryStore_ConcurrentHits(t *testing.T) {
	s := NewMemoryStore(0, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Hit(ctx, "shared", 100, time.Hour)
		}()
	}
	wg.Wait()

	res, err := s.Hit(ctx, "shared", 100, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 79, res.Remaining)
}

func TestFileStore_Unavailable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := NewFileStore(blocker).Hit(context.Background(), "key", 5, time.Minute)
	assert.Error(t, err)
}

func TestFileStore_Prune(t *testing.T) {
	c := newClock()
	dir := t.TempDir()
	s := NewFileStore(dir, WithFileClock(c.Now), WithPruneGrace(time.Minute))
	ctx := context.Background()

	_, err := s.Hit(ctx, "old", 5, time.Minute)
	require.NoError(t, err)
	c.Advance(5 * time.Minute)
	_, err = s.Hit(ctx, "fresh", 5, time.Minute)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("ignored"), 0o600))

	removed, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoFileExists(t, s.recordPath("old"))
	assert.FileExists(t, s.recordPath("fresh"))
	assert.FileExists(t, filepath.Join(dir, "README"))

	removed, err = NewFileStore(filepath.Join(dir, "missing")).Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestFileStore_PeekDoesNotCreateRecord(t *testing.T) {
	c := newClock()
	dir := t.TempDir()
	s := NewFileStore(dir, WithFileClock(c.Now), WithPruneGrace(0))
	ctx := context.Background()

	rec, err := s.Peek("absent")
	require.NoError(t, err)
	assert.Equal(t, Record{}, rec)
	assert.NoFileExists(t, s.recordPath("absent"))

	_, err = s.Hit(ctx, "pruned", 5, time.Minute)
	require.NoError(t, err)
	c.Advance(2 * time.Minute)
	removed, err := s.Prune(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	rec, err = s.Peek("pruned")
	require.NoError(t, err)
	assert.Equal(t, Record{}, rec)
	assert.NoFileExists(t, s.recordPath("pruned"))

	rec, err = NewFileStore(filepath.Join(dir, "missing")).Peek("key")
	require.NoError(t, err)
	assert.Equal(t, Record{}, rec)
}

type failingStore struct{}

func (failingStore) Hit(context.Context, string, int, time.Duration) (Result, error) {
	return Result{}, os.ErrPermission
}

type recorder struct {
	mu       sync.Mutex
	observed []string
}

func (r *recorder) RecordRateLimit(policy, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observed = append(r.observed, policy+":"+result)
}

func TestLimiter_FailOpen(t *testing.T) {
	rec := &recorder{}
	l := NewLimiter(failingStore{}, rec, logger.NewNoopLogger())

	res := l.Hit(context.Background(), "rate", "key", 60, time.Minute)
	assert.True(t, res.Allowed)
	assert.True(t, res.StorageUnavailable)
	assert.Equal(t, 60, res.Remaining)
	assert.Equal(t, []string{"rate:storage_unavailable"}, rec.observed)
}

func TestLimiter_RecordsDecisions(t *testing.T) {
	rec := &recorder{}
	l := NewLimiter(NewMemoryStore(0, nil), rec, logger.NewNoopLogger())
	ctx := context.Background()

	l.Hit(ctx, "throttle", "key", 1, time.Minute)
	res := l.Hit(ctx, "throttle", "key", 1, time.Minute)
	assert.False(t, res.Allowed)
	assert.Equal(t, []string{"throttle:allowed", "throttle:denied"}, rec.observed)
}

func TestKeyFor(t *testing.T) {
	ip := KeyFor(constants.RateLimitStrategyIP, "10.0.0.1", "GET", "/a", "")
	route := KeyFor(constants.RateLimitStrategyRoute, "10.0.0.1", "GET", "/a", "")
	ipRoute := KeyFor(constants.RateLimitStrategyIPRoute, "10.0.0.1", "GET", "/a", "")
	throttled := KeyFor(constants.RateLimitStrategyIP, "10.0.0.1", "GET", "/a", constants.RateLimitSuffixThrottle)

	assert.Len(t, ip, 40)
	assert.Regexp(t, `^[0-9a-f]{40}$`, ipRoute)
	assert.NotEqual(t, ip, route)
	assert.NotEqual(t, ip, ipRoute)
	assert.NotEqual(t, ip, throttled)

	assert.Equal(t, ip, KeyFor(constants.RateLimitStrategyIP, "10.0.0.1", "POST", "/other", ""))
	assert.Equal(t, route, KeyFor(constants.RateLimitStrategyRoute, "10.0.0.2", "get", "//a/", ""))
	assert.NotEqual(t, ipRoute, KeyFor(constants.RateLimitStrategyIPRoute, "10.0.0.2", "GET", "/a", ""))
}

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{"get", "/", "GET /"},
		{"GET", "", "GET /"},
		{"post", "login", "POST /login"},
		{"POST", "//api//v1/me/", "POST /api/v1/me"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeRoute(tt.method, tt.path))
	}
}

func TestJanitor_Sweep(t *testing.T) {
	c := newClock()
	s := NewMemoryStore(0, c.Now)
	_, _ = s.Hit(context.Background(), "key", 5, time.Second)

	j := NewJanitor(s, time.Hour, logger.NewNoopLogger())
	assert.Equal(t, 0, j.Sweep(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, j.Run(ctx))
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(config.RateLimitConfig{Driver: constants.RateLimitDriverFile, Directory: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = NewStore(config.RateLimitConfig{Driver: constants.RateLimitDriverMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = NewStore(config.RateLimitConfig{Driver: constants.RateLimitDriverRedis}, nil)
	assert.Error(t, err)

	_, err = NewStore(config.RateLimitConfig{Driver: "etcd"}, nil)
	assert.Error(t, err)
}
