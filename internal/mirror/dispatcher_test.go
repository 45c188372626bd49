package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sujalbistaa/confessions/internal/config"
	"github.com/sujalbistaa/confessions/internal/models"
)

type fakeMirror struct {
	mu       sync.Mutex
	inserted []uint
	liked    map[uint]int
	err      error
	block    chan struct{}
}

func (f *fakeMirror) InsertConfession(ctx context.Context, c models.Confession) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, c.ID)
	return nil
}

func (f *fakeMirror) UpdateLikes(ctx context.Context, c models.Confession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.liked == nil {
		f.liked = map[uint]int{}
	}
	f.liked[c.ID] = c.Likes
	return nil
}

func testOptions() DispatcherOptions {
	return DispatcherOptions{Timeout: time.Second, Workers: 2, Queue: 16}
}

func TestDispatcher_DeliversEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	fake := &fakeMirror{}
	d := NewDispatcher(fake, zap.NewNop(), testOptions())

	d.ConfessionCreated(models.Confession{ID: 1})
	d.ConfessionCreated(models.Confession{ID: 2})
	d.LikesUpdated(models.Confession{ID: 1, Likes: 3})

	require.NoError(t, d.Close(context.Background()))

	assert.ElementsMatch(t, []uint{1, 2}, fake.inserted)
	assert.Equal(t, 3, fake.liked[1])
}

func TestDispatcher_FailureIsLoggedOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	core, logs := observer.New(zapcore.InfoLevel)
	fake := &fakeMirror{err: errors.New("connection refused")}
	d := NewDispatcher(fake, zap.New(core), testOptions())

	d.ConfessionCreated(models.Confession{ID: 9})
	require.NoError(t, d.Close(context.Background()))

	entries := logs.FilterMessage("mirror sync failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, EventConfessionCreated, fields["event"])
	assert.Equal(t, uint64(9), fields["confession_id"])
	assert.Equal(t, "connection refused", fields["error"])
}

func TestDispatcher_TimeoutBoundsSlowMirror(t *testing.T) {
	defer goleak.VerifyNone(t)

	core, logs := observer.New(zapcore.InfoLevel)
	fake := &fakeMirror{block: make(chan struct{})}
	d := NewDispatcher(fake, zap.New(core), DispatcherOptions{Timeout: 20 * time.Millisecond, Workers: 1, Queue: 1})

	d.ConfessionCreated(models.Confession{ID: 1})
	require.NoError(t, d.Close(context.Background()))

	entries := logs.FilterMessage("mirror sync failed").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "deadline exceeded")
	assert.Empty(t, fake.inserted)
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	defer goleak.VerifyNone(t)

	core, logs := observer.New(zapcore.InfoLevel)
	fake := &fakeMirror{block: make(chan struct{})}
	d := NewDispatcher(fake, zap.New(core), DispatcherOptions{Timeout: time.Second, Workers: 1, Queue: 1})

	// The worker holds one event, the queue holds one more, the rest drop.
	for i := 1; i <= 5; i++ {
		d.ConfessionCreated(models.Confession{ID: uint(i)})
	}
	close(fake.block)
	require.NoError(t, d.Close(context.Background()))

	dropped := logs.FilterMessage("mirror queue full, event dropped").Len()
	assert.GreaterOrEqual(t, dropped, 3)
	assert.Equal(t, 5, dropped+len(fake.inserted))
}

func TestDispatcher_NoopSkipsEverything(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(Noop{}, zap.NewNop(), testOptions())
	d.ConfessionCreated(models.Confession{ID: 1})
	d.LikesUpdated(models.Confession{ID: 1})

	assert.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_EnqueueAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	fake := &fakeMirror{}
	d := NewDispatcher(fake, zap.NewNop(), testOptions())
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	d.ConfessionCreated(models.Confession{ID: 1})
	assert.Empty(t, fake.inserted)
}

func TestNew_SelectsAdapter(t *testing.T) {
	cfg := config.Default()

	m, closer := New(context.Background(), cfg, zap.NewNop())
	assert.IsType(t, Noop{}, m)
	assert.NoError(t, closer.Close())

	cfg.Mirror.SupabaseURL = "https://example.supabase.co"
	cfg.Mirror.SupabaseAnonKey = "anon"
	m, closer = New(context.Background(), cfg, zap.NewNop())
	assert.IsType(t, &Supabase{}, m)
	assert.NoError(t, closer.Close())
}

func TestNew_UnreachablePostgresFallsBackToNoop(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := config.Default()
	// Nothing listens on port 1.
	cfg.Mirror.DatabaseURL = "postgres://u:p@127.0.0.1:1/none?connect_timeout=1"
	cfg.Mirror.Timeout = 2 * time.Second

	m, closer := New(context.Background(), cfg, zap.New(core))

	assert.IsType(t, Noop{}, m)
	require.NotNil(t, closer)
	assert.NoError(t, closer.Close())
	warnings := logs.FilterMessage("postgres mirror unavailable, mirroring disabled").All()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].ContextMap(), "error")

	d := NewDispatcher(m, zap.New(core), testOptions())
	d.ConfessionCreated(models.Confession{ID: 1})
	assert.NoError(t, d.Close(context.Background()))
}
