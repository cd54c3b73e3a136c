package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rongwang/salary-bot/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayedEveryNext(t *testing.T) {
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	first := start.Add(10 * time.Second)
	s := &delayedEvery{delay: 10 * time.Second, interval: 24 * time.Hour}

	assert.Equal(t, first, s.Next(start))
	assert.Equal(t, first, s.Next(first.Add(-5*time.Second)))
	assert.Equal(t, first.Add(24*time.Hour), s.Next(first))
	assert.Equal(t, first.Add(24*time.Hour), s.Next(first.Add(3*time.Hour)))
	assert.Equal(t, first.Add(48*time.Hour), s.Next(first.Add(24*time.Hour)))
}

type countingBackupper struct {
	calls int32
	err   error
}

func (c *countingBackupper) CreateBackup(ctx context.Context) (string, error) {
	atomic.AddInt32(&c.calls, 1)
	if _, ok := ctx.Deadline(); !ok {
		return "", errors.New("missing deadline")
	}
	return "backup.db", c.err
}

func TestAddBackupJobRejectsBadInterval(t *testing.T) {
	s := New(utils.NopLogger())
	assert.Error(t, s.AddBackupJob(&countingBackupper{}, 0, 0))
}

func TestBackupJobRunsAfterDelay(t *testing.T) {
	s := New(utils.NopLogger())
	b := &countingBackupper{err: errors.New("disk full")}

	require.NoError(t, s.AddBackupJob(b, 0, time.Hour))
	s.Start()
	defer func() { <-s.Stop().Done() }()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&b.calls) == 1
	}, 3*time.Second, 20*time.Millisecond)
}

type countingSweeper struct {
	calls int32
}

func (c *countingSweeper) Sweep() int {
	atomic.AddInt32(&c.calls, 1)
	return 1
}

func TestSessionSweepRuns(t *testing.T) {
	s := New(utils.NopLogger())
	sw := &countingSweeper{}

	s.AddSessionSweep(sw, time.Second)
	s.Start()
	defer func() { <-s.Stop().Done() }()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&sw.calls) >= 1
	}, 3*time.Second, 20*time.Millisecond)
}
