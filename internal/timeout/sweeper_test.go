package timeout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingTarget struct {
	calls       atomic.Int32
	concurrency atomic.Int32
	err         error
}

func (c *countingTarget) SweepExpiredOffers(_ context.Context, concurrency int) (int, error) {
	c.calls.Add(1)
	c.concurrency.Store(int32(concurrency))
	return 0, c.err
}

func TestSweeper_SweepsUntilCancelled(t *testing.T) {
	target := &countingTarget{}
	s := NewSweeper(target, 10*time.Millisecond, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return target.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), target.concurrency.Load())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_KeepsRunningAfterError(t *testing.T) {
	target := &countingTarget{err: errors.New("storage unavailable")}
	s := NewSweeper(target, 10*time.Millisecond, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	assert.Eventually(t, func() bool { return target.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestNewSweeper_DefaultInterval(t *testing.T) {
	s := NewSweeper(&countingTarget{}, 0, 1)
	assert.Equal(t, time.Minute, s.interval)
}
