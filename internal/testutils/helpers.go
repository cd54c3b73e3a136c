package testutils

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rongwang/salary-bot/internal/config"
	"github.com/rongwang/salary-bot/internal/repository"
	"github.com/rongwang/salary-bot/internal/service"
	"github.com/rongwang/salary-bot/internal/utils"
	"github.com/stretchr/testify/require"
)

// AdminPassword is the admin secret used by SetupTestContext
const AdminPassword = "test-admin-secret"

// TestContext holds all dependencies for tests
type TestContext struct {
	DB         *sqlx.DB
	Repository *repository.SQLiteRepository
	Backups    *repository.BackupStore
	Service    *service.DefaultService
	Clock      *Clock
	BackupDir  string
}

// SetupTestContext creates a record store in a temporary directory. It is
// closed automatically when the test ends.
func SetupTestContext(t *testing.T) *TestContext {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		Database: config.DatabaseConfig{File: filepath.Join(dir, "teachers.db")},
	}

	db, err := config.SetupDatabase(cfg)
	require.NoError(t, err, "Failed to set up test database")
	t.Cleanup(func() { db.Close() })

	repo := repository.NewSQLiteRepository(db)

	clock := NewClock(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
	backupDir := filepath.Join(dir, "backups")
	backups := repository.NewBackupStore(repo, backupDir, 10)
	backups.SetClock(clock.Now)

	svc, err := service.NewDefaultService(repo, backups, service.Options{
		AccessCodeLength: 8,
		AdminPassword:    AdminPassword,
		BackupsEnabled:   true,
	}, utils.NopLogger())
	require.NoError(t, err, "Failed to create service")

	return &TestContext{
		DB:         db,
		Repository: repo,
		Backups:    backups,
		Service:    svc,
		Clock:      clock,
		BackupDir:  backupDir,
	}
}

// Clock is a manually advanced time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock stopped at start
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
