package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingChecker struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
}

func (c *countingChecker) CheckReminders(context.Context) (int, error) {
	time.Sleep(c.delay)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 2, c.err
}

func (c *countingChecker) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestPollerChecksImmediately(t *testing.T) {
	checker := &countingChecker{}
	p := NewPoller(checker, time.Hour, zerolog.Nop())

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.Eventually(t, func() bool { return checker.count() == 1 }, waitFor, tick)
}

func TestPollerStopWaitsForFirstCheck(t *testing.T) {
	checker := &countingChecker{delay: 100 * time.Millisecond}
	p := NewPoller(checker, time.Hour, zerolog.Nop())

	require.NoError(t, p.Start(context.Background()))
	p.Stop()

	assert.Equal(t, 1, checker.count())
}

func TestPollerChecksEveryInterval(t *testing.T) {
	checker := &countingChecker{err: errors.New("server down")}
	p := NewPoller(checker, time.Second, zerolog.Nop())

	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool { return checker.count() >= 2 }, 3*time.Second, 10*time.Millisecond)

	p.Stop()
	stopped := checker.count()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, stopped, checker.count())
}

func TestPollerSkipsAfterContextDone(t *testing.T) {
	checker := &countingChecker{}
	p := NewPoller(checker, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Start(ctx))
	p.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, checker.count())
}

func TestPollerDefaultInterval(t *testing.T) {
	assert.Equal(t, DefaultPollInterval, NewPoller(&countingChecker{}, 0, zerolog.Nop()).interval)
}
