// Package scheduler runs the periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rongwang/salary-bot/internal/utils"
)

// backupTimeout bounds a single scheduled backup run
const backupTimeout = 4 * time.Minute

// Backupper creates record store backups
type Backupper interface {
	CreateBackup(ctx context.Context) (string, error)
}

// Sweeper drops expired sessions
type Sweeper interface {
	Sweep() int
}

// Scheduler wraps a cron runner with the application's jobs
type Scheduler struct {
	cron   *cron.Cron
	logger *utils.Logger
}

// New creates a Scheduler. Jobs never overlap with themselves.
func New(logger *utils.Logger) *Scheduler {
	cl := cronLogger{logger}
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger: logger,
	}
}

// AddBackupJob runs a backup once after delay and then every interval.
// Results are only logged.
func (s *Scheduler) AddBackupJob(b Backupper, delay, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("backup interval must be positive, got %s", interval)
	}

	schedule := &delayedEvery{delay: delay, interval: interval}
	s.cron.Schedule(schedule, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
		defer cancel()

		if _, err := b.CreateBackup(ctx); err != nil {
			s.logger.Warn("scheduled backup: %v", err)
		}
	}))

	s.logger.Info("scheduled backups: first in %s, then every %s", delay, interval)
	return nil
}

// AddSessionSweep removes idle sessions every interval
func (s *Scheduler) AddSessionSweep(sw Sweeper, interval time.Duration) {
	s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		if n := sw.Sweep(); n > 0 {
			s.logger.Info("expired %d idle sessions", n)
		}
	}))
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// delayedEvery fires delay after the first time it is consulted and then
// at every interval after that. The cron runner calls Next from a single
// goroutine.
type delayedEvery struct {
	delay    time.Duration
	interval time.Duration
	first    time.Time
}

func (d *delayedEvery) Next(t time.Time) time.Time {
	if d.first.IsZero() {
		d.first = t.Add(d.delay)
		return d.first
	}
	if t.Before(d.first) {
		return d.first
	}
	n := t.Sub(d.first)/d.interval + 1
	return d.first.Add(n * d.interval)
}

// cronLogger adapts utils.Logger to cron.Logger
type cronLogger struct {
	l *utils.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Info("cron: %s %v", msg, keysAndValues)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: %s: %v %v", msg, err, keysAndValues)
}
