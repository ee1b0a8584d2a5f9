package handoff

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"getbox/internal/media"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sampleJob() media.Job {
	return media.Job{
		VideoURL:     "https://cdn.example.com/v.mp4",
		AudioURL:     "https://cdn.example.com/a.m4a",
		Filename:     "clip.mp4",
		Quality:      "720p",
		Type:         string(media.Video),
		VideoHeaders: map[string]string{"Referer": "https://example.com/"},
	}
}

type storeFactory func(t *testing.T, p Policy, clock *fakeClock) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, p Policy, clock *fakeClock) Store {
			return NewMemory(p, WithClock(clock.Now))
		},
		"sqlite": func(t *testing.T, p Policy, clock *fakeClock) Store {
			s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "jobs.db"), p, WithClock(clock.Now))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"redis": func(t *testing.T, p Policy, clock *fakeClock) Store {
			mr := miniredis.RunT(t)
			s := NewRedisClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), p, WithClock(clock.Now))
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			s := open(t, DefaultPolicy(), clock)

			id, err := s.Put(ctx, sampleJob())
			require.NoError(t, err)
			assert.True(t, validID(id), "id %q should be a uuid", id)

			got, err := s.Get(ctx, id)
			require.NoError(t, err)
			want := sampleJob()
			assert.Equal(t, want.VideoURL, got.VideoURL)
			assert.Equal(t, want.AudioURL, got.AudioURL)
			assert.Equal(t, want.Filename, got.Filename)
			assert.Equal(t, want.VideoHeaders, got.VideoHeaders)
			assert.True(t, clock.Now().Equal(got.CreatedAt))

			// ids stay valid until they expire
			_, err = s.Get(ctx, id)
			assert.NoError(t, err)
		})
	}
}

func TestStoreUnknownID(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t, DefaultPolicy(), newFakeClock())
			for _, id := range []string{"", "nope", "1b4e28ba-2fa1-11d2-883f-0016d3cca427"} {
				_, err := s.Get(context.Background(), id)
				assert.ErrorIs(t, err, ErrNotFound, "id %q", id)
			}
		})
	}
}

func TestStoreExpiry(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			s := open(t, Policy{TTL: time.Minute, MaxEntries: 10}, clock)

			id, err := s.Put(ctx, sampleJob())
			require.NoError(t, err)

			clock.Advance(59 * time.Second)
			_, err = s.Get(ctx, id)
			require.NoError(t, err)

			clock.Advance(2 * time.Second)
			_, err = s.Get(ctx, id)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreEvictsOldest(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			s := open(t, Policy{TTL: time.Hour, MaxEntries: 2}, clock)

			var ids []string
			for i := 0; i < 3; i++ {
				id, err := s.Put(ctx, sampleJob())
				require.NoError(t, err)
				ids = append(ids, id)
				clock.Advance(time.Second)
			}

			_, err := s.Get(ctx, ids[0])
			assert.ErrorIs(t, err, ErrNotFound)
			for _, id := range ids[1:] {
				_, err := s.Get(ctx, id)
				assert.NoError(t, err)
			}
		})
	}
}

func TestStoreNeverEvictsFreshJob(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			s := open(t, Policy{TTL: time.Hour, MaxEntries: 1}, clock)

			for i := 0; i < 40; i++ {
				id, err := s.Put(ctx, sampleJob())
				require.NoError(t, err)
				_, err = s.Get(ctx, id)
				require.NoError(t, err, "put %d: freshly issued id must resolve", i)
			}
		})
	}
}

func TestStoreEvictsInInsertionOrderWithinSameInstant(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t, Policy{TTL: time.Hour, MaxEntries: 2}, newFakeClock())

			var ids []string
			for i := 0; i < 4; i++ {
				id, err := s.Put(ctx, sampleJob())
				require.NoError(t, err)
				ids = append(ids, id)
			}

			for _, id := range ids[:2] {
				_, err := s.Get(ctx, id)
				assert.ErrorIs(t, err, ErrNotFound)
			}
			for _, id := range ids[2:] {
				_, err := s.Get(ctx, id)
				assert.NoError(t, err)
			}
		})
	}
}

func TestStoreDelete(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t, DefaultPolicy(), newFakeClock())
			id, err := s.Put(ctx, sampleJob())
			require.NoError(t, err)
			require.NoError(t, s.Delete(ctx, id))
			_, err = s.Get(ctx, id)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemoryPrunesExpiredBeforeOldest(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewMemory(Policy{TTL: time.Minute, MaxEntries: 2}, WithClock(clock.Now))

	stale, _ := m.Put(ctx, sampleJob())
	clock.Advance(2 * time.Minute)
	a, _ := m.Put(ctx, sampleJob())
	b, _ := m.Put(ctx, sampleJob())

	assert.Equal(t, 2, m.Len())
	_, err := m.Get(ctx, stale)
	assert.ErrorIs(t, err, ErrNotFound)
	for _, id := range []string{a, b} {
		_, err := m.Get(ctx, id)
		assert.NoError(t, err)
	}
}

func TestRedisNativeExpiry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := NewRedisClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), Policy{TTL: time.Minute, MaxEntries: 10})
	defer s.Close()

	id, err := s.Put(ctx, sampleJob())
	require.NoError(t, err)
	assert.True(t, mr.Exists(redisKeyPrefix+id))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(redisKeyPrefix+id))
	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	mr := miniredis.RunT(t)
	s, err = Open(ctx, Config{Driver: "redis", RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, s)
	s.Close()

	s, err = Open(ctx, Config{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "sub", "jobs.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	s.Close()

	_, err = Open(ctx, Config{Driver: "etcd"})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Driver: "redis", RedisURL: "://bad"})
	assert.Error(t, err)
}
