package limiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
	assert.Equal(t, 3, New(3).Capacity())
}

func TestLimiter_BoundsConcurrency(t *testing.T) {
	l := New(8)
	var active, peak atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Do(context.Background(), func(context.Context) error {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				active.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(8))
	assert.Equal(t, 0, l.InUse())
}

func TestLimiter_ReleasesOnError(t *testing.T) {
	l := New(1)
	boom := errors.New("boom")

	for i := 0; i < 5; i++ {
		err := l.Do(context.Background(), func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, 0, l.InUse())
}

func TestLimiter_ReleasesOnPanic(t *testing.T) {
	l := New(1)

	assert.Panics(t, func() {
		_ = l.Do(context.Background(), func(context.Context) error { panic("boom") })
	})
	assert.Equal(t, 0, l.InUse())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	release, err := l.Acquire(ctx)
	require.NoError(t, err)
	release()
}

func TestLimiter_ReleaseIsIdempotent(t *testing.T) {
	l := New(2)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)

	release()
	release()
	assert.Equal(t, 0, l.InUse())

	a, err := l.Acquire(context.Background())
	require.NoError(t, err)
	b, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, l.InUse())
	a()
	b()
}

func TestLimiter_AcquireHonoursContext(t *testing.T) {
	l := New(1)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.InUse())
}

func TestNewTransport(t *testing.T) {
	tr := NewTransport(0)
	assert.Equal(t, DefaultMaxConns, tr.MaxConnsPerHost)
	assert.Equal(t, 4, NewTransport(4).MaxConnsPerHost)
}
