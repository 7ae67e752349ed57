package provision

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/classportal/internal/portalerr"
)

func TestKeyedMutexExcludesSameKey(t *testing.T) {
	m := NewKeyedMutex()

	var running atomic.Int32
	var maxRunning atomic.Int32
	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			release, err := m.Lock(context.Background(), "demo/team")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			cur := running.Add(1)
			if cur > maxRunning.Load() {
				maxRunning.Store(cur)
			}

			time.Sleep(time.Millisecond)
			running.Add(-1)
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), maxRunning.Load())
	assert.Zero(t, m.len())
}

func TestKeyedMutexDifferentKeysDoNotBlock(t *testing.T) {
	m := NewKeyedMutex()

	release1, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer release1()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	release2, err := m.Lock(ctx, "b")
	require.NoError(t, err)
	release2()

	assert.Equal(t, 1, m.len())
}

func TestKeyedMutexLockTimesOut(t *testing.T) {
	m := NewKeyedMutex()

	release, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = m.Lock(ctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, m.len())

	release()
	assert.Zero(t, m.len())
}

func TestKeyedMutexTryLock(t *testing.T) {
	m := NewKeyedMutex()

	release, err := m.TryLock(context.Background(), "a")
	require.NoError(t, err)

	_, err = m.TryLock(context.Background(), "a")
	require.ErrorIs(t, err, portalerr.ErrLockContention)

	release()
	// releasing twice must not unlock a lock acquired by someone else
	release2, err := m.TryLock(context.Background(), "a")
	require.NoError(t, err)
	release()

	_, err = m.TryLock(context.Background(), "a")
	require.ErrorIs(t, err, portalerr.ErrLockContention)

	release2()
	assert.Zero(t, m.len())
}
