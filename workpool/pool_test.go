package workpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmit_ReturnsValue(t *testing.T) {
	p := New(context.Background(), 4, 8)
	defer p.Stop()

	f := Submit(p, context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})

	v, err := f.Wait()
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestSubmit_PropagatesError(t *testing.T) {
	p := New(context.Background(), 1, 1)
	defer p.Stop()

	boom := errors.New("boom")
	_, err := Submit(p, context.Background(), func(ctx context.Context) (string, error) {
		return "", boom
	}).Wait()
	require.ErrorIs(t, err, boom)
}

func TestSubmit_RecoversPanic(t *testing.T) {
	p := New(context.Background(), 1, 1)
	defer p.Stop()

	_, err := Submit(p, context.Background(), func(ctx context.Context) (int, error) {
		panic("bad task")
	}).Wait()
	require.ErrorContains(t, err, "bad task")
}

func TestPool_BoundsConcurrency(t *testing.T) {
	const workers = 3
	p := New(context.Background(), workers, 64)
	defer p.Stop()

	var running, peak int32
	futures := make([]*Future[struct{}], 0, 20)
	for i := 0; i < 20; i++ {
		futures = append(futures, Submit(p, context.Background(), func(ctx context.Context) (struct{}, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return struct{}{}, nil
		}))
	}

	for _, f := range futures {
		_, err := f.Wait()
		require.NoError(t, err)
	}
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(workers))
}

func TestSubmit_AfterStop(t *testing.T) {
	p := New(context.Background(), 1, 1)
	p.Stop()

	_, err := Submit(p, context.Background(), func(ctx context.Context) (int, error) {
		return 1, nil
	}).Wait()
	require.ErrorIs(t, err, ErrPoolClosed)
	require.ErrorIs(t, p.Go(context.Background(), func(context.Context) {}), ErrPoolClosed)
}

func TestSubmit_CancelledWhileQueueFull(t *testing.T) {
	p := New(context.Background(), 1, 1)
	defer p.Stop()

	release := make(chan struct{})
	defer close(release)

	// occupy the single worker and the single queue slot
	started := make(chan struct{})
	Submit(p, context.Background(), func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 0, nil
	})
	<-started
	Submit(p, context.Background(), func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Submit(p, ctx, func(ctx context.Context) (int, error) {
		return 1, nil
	}).Wait()
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGo_RunsTask(t *testing.T) {
	p := New(context.Background(), 2, 2)
	defer p.Stop()

	done := make(chan string, 1)
	require.NoError(t, p.Go(context.Background(), func(ctx context.Context) {
		done <- "ran"
	}))

	select {
	case v := <-done:
		require.Equal(t, "ran", v)
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}
