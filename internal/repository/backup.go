package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rongwang/salary-bot/internal/models"
)

const (
	backupPrefix = "teachers_backup_"
	backupSuffix = ".db"
)

// BackupStore writes timestamped snapshots of the record store into a
// directory and keeps only the newest ones.
type BackupStore struct {
	repo Repository
	dir  string
	keep int
	now  func() time.Time
}

// NewBackupStore creates a BackupStore keeping at most keep snapshots in dir
func NewBackupStore(repo Repository, dir string, keep int) *BackupStore {
	if keep <= 0 {
		keep = 10
	}
	return &BackupStore{
		repo: repo,
		dir:  dir,
		keep: keep,
		now:  time.Now,
	}
}

// SetClock replaces the time source used for file names
func (b *BackupStore) SetClock(now func() time.Time) {
	b.now = now
}

// Dir returns the backup directory
func (b *BackupStore) Dir() string {
	return b.dir
}

// Create snapshots the store and prunes old backups. It returns the path of
// the new backup file.
func (b *BackupStore) Create(ctx context.Context) (string, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	path, err := b.nextPath()
	if err != nil {
		return "", err
	}

	if err := b.repo.Snapshot(ctx, path); err != nil {
		return "", fmt.Errorf("failed to snapshot database: %w", err)
	}

	if err := b.prune(); err != nil {
		return path, fmt.Errorf("backup created but pruning failed: %w", err)
	}

	return path, nil
}

// nextPath picks a file name for the current time, adding a counter when a
// backup for the same second already exists.
func (b *BackupStore) nextPath() (string, error) {
	stamp := b.now().Format("20060102_150405")
	base := filepath.Join(b.dir, backupPrefix+stamp)

	path := base + backupSuffix
	for i := 1; ; i++ {
		_, err := os.Stat(path)
		if os.IsNotExist(err) {
			return path, nil
		}
		if err != nil {
			return "", err
		}
		path = fmt.Sprintf("%s_%d%s", base, i, backupSuffix)
	}
}

// List returns all backups, newest first
func (b *BackupStore) List() ([]models.BackupFile, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.BackupFile{}, nil
		}
		return nil, err
	}

	backups := []models.BackupFile{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // removed while listing
		}
		backups = append(backups, models.BackupFile{
			Name:    name,
			Path:    filepath.Join(b.dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].ModTime.Equal(backups[j].ModTime) {
			return backups[i].ModTime.After(backups[j].ModTime)
		}
		return backups[i].Name > backups[j].Name
	})

	return backups, nil
}

func (b *BackupStore) prune() error {
	backups, err := b.List()
	if err != nil {
		return err
	}
	if len(backups) <= b.keep {
		return nil
	}

	var failed []string
	for _, old := range backups[b.keep:] {
		if err := os.Remove(old.Path); err != nil && !os.IsNotExist(err) {
			failed = append(failed, old.Name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("could not remove %s", strings.Join(failed, ", "))
	}
	return nil
}

// FormatSize renders a byte count as B, KB, MB, GB or TB with one decimal
func FormatSize(size int64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if value < 1024 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.1f TB", value)
}
