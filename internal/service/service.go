package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rongwang/salary-bot/internal/models"
	"github.com/rongwang/salary-bot/internal/repository"
	"github.com/rongwang/salary-bot/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAlreadyExists   = errors.New("teacher already exists")
	ErrNotFound        = errors.New("teacher not found")
	ErrInvalidName     = errors.New("teacher name must not be empty")
	ErrBackupsDisabled = errors.New("backups are disabled")
	ErrCodeExhausted   = errors.New("could not generate a unique access code")
)

// BlockThreshold is the number of failed attempts that blocks a record
const BlockThreshold = 5

// maxCodeAttempts bounds rejection sampling of access codes
const maxCodeAttempts = 32

// Service defines the teacher account operations
type Service interface {
	// Accounts
	CreateTeacher(ctx context.Context, name string) (string, error)
	DeleteTeacher(ctx context.Context, name string) (bool, error)
	ListTeachers(ctx context.Context) ([]models.Teacher, error)

	// Access codes and lockout
	FindByCode(ctx context.Context, code string) (*models.Teacher, error)
	ResetCode(ctx context.Context, name string) (string, error)
	RecordFailure(ctx context.Context, code string) (int, bool, error)
	RecordSuccess(ctx context.Context, code string) error
	UnblockTeacher(ctx context.Context, name string) (bool, error)

	// Backups
	CreateBackup(ctx context.Context) (string, error)
	ListBackups(ctx context.Context) ([]models.BackupFile, error)

	// Admin
	CheckAdminPassword(password string) bool
}

// Options configures a DefaultService
type Options struct {
	AccessCodeLength  int
	AdminPassword     string
	AdminPasswordHash string
	BackupsEnabled    bool
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo       repository.Repository
	backups    *repository.BackupStore
	logger     *utils.Logger
	codeLength int
	adminHash  []byte
	backupsOn  bool
	generate   func(n int) (string, error)
}

// NewDefaultService creates a new DefaultService. The admin secret is kept
// only as a bcrypt hash.
func NewDefaultService(
	repo repository.Repository,
	backups *repository.BackupStore,
	opts Options,
	logger *utils.Logger,
) (*DefaultService, error) {
	hash := []byte(opts.AdminPasswordHash)
	if len(hash) == 0 {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(opts.AdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("error hashing admin password: %w", err)
		}
	}

	if opts.AccessCodeLength <= 0 {
		opts.AccessCodeLength = 8
	}

	return &DefaultService{
		repo:       repo,
		backups:    backups,
		logger:     logger,
		codeLength: opts.AccessCodeLength,
		adminHash:  hash,
		backupsOn:  opts.BackupsEnabled && backups != nil,
		generate:   utils.GenerateCode,
	}, nil
}

// SetCodeGenerator replaces the access code generator
func (s *DefaultService) SetCodeGenerator(gen func(n int) (string, error)) {
	s.generate = gen
}

// CreateTeacher creates an account and returns its access code
func (s *DefaultService) CreateTeacher(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrInvalidName
	}

	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.uniqueCode(ctx)
		if err != nil {
			return "", err
		}

		teacher := &models.Teacher{Name: name, AccessCode: code}
		err = s.repo.CreateTeacher(ctx, teacher)
		switch {
		case err == nil:
			s.logger.Info("created teacher %q (id %d)", name, teacher.ID)
			return code, nil
		case errors.Is(err, repository.ErrDuplicateName):
			return "", ErrAlreadyExists
		case errors.Is(err, repository.ErrDuplicateCode):
			continue // lost a race for the code
		default:
			return "", fmt.Errorf("error creating teacher: %w", err)
		}
	}

	return "", ErrCodeExhausted
}

func (s *DefaultService) DeleteTeacher(ctx context.Context, name string) (bool, error) {
	deleted, err := s.repo.DeleteTeacher(ctx, name)
	if err != nil {
		return false, fmt.Errorf("error deleting teacher: %w", err)
	}
	if deleted {
		s.logger.Info("deleted teacher %q", name)
	}
	return deleted, nil
}

func (s *DefaultService) ListTeachers(ctx context.Context) ([]models.Teacher, error) {
	teachers, err := s.repo.ListTeachers(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing teachers: %w", err)
	}
	return teachers, nil
}

// FindByCode returns the teacher owning code. Unknown and blocked codes both
// yield nil so callers cannot tell them apart.
func (s *DefaultService) FindByCode(ctx context.Context, code string) (*models.Teacher, error) {
	teacher, err := s.repo.GetTeacherByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("error getting teacher: %w", err)
	}
	if teacher == nil || teacher.IsBlocked {
		return nil, nil
	}
	return teacher, nil
}

// ResetCode assigns a fresh access code and clears the lockout
func (s *DefaultService) ResetCode(ctx context.Context, name string) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.uniqueCode(ctx)
		if err != nil {
			return "", err
		}

		updated, err := s.repo.ReplaceAccessCode(ctx, name, code)
		switch {
		case errors.Is(err, repository.ErrDuplicateCode):
			continue
		case err != nil:
			return "", fmt.Errorf("error resetting access code: %w", err)
		case !updated:
			return "", ErrNotFound
		}

		s.logger.Info("reset access code for %q", name)
		return code, nil
	}

	return "", ErrCodeExhausted
}

func (s *DefaultService) RecordFailure(ctx context.Context, code string) (int, bool, error) {
	attempts, blocked, err := s.repo.IncrementFailedAttempts(ctx, code, BlockThreshold)
	if err != nil {
		return 0, false, fmt.Errorf("error recording failed attempt: %w", err)
	}
	if blocked {
		s.logger.Warn("access code %s blocked after %d failed attempts", code, attempts)
	}
	return attempts, blocked, nil
}

func (s *DefaultService) RecordSuccess(ctx context.Context, code string) error {
	if err := s.repo.ResetFailedAttempts(ctx, code); err != nil {
		return fmt.Errorf("error resetting failed attempts: %w", err)
	}
	return nil
}

func (s *DefaultService) UnblockTeacher(ctx context.Context, name string) (bool, error) {
	updated, err := s.repo.UnblockTeacher(ctx, name)
	if err != nil {
		return false, fmt.Errorf("error unblocking teacher: %w", err)
	}
	return updated, nil
}

// CreateBackup snapshots the record store. A non-empty path with an error
// means the snapshot exists but old backups could not be pruned.
func (s *DefaultService) CreateBackup(ctx context.Context) (string, error) {
	if !s.backupsOn {
		return "", ErrBackupsDisabled
	}

	path, err := s.backups.Create(ctx)
	if err != nil {
		s.logger.Error("backup: %v", err)
		return path, err
	}

	s.logger.Info("backup written to %s", path)
	return path, nil
}

func (s *DefaultService) ListBackups(ctx context.Context) ([]models.BackupFile, error) {
	if s.backups == nil {
		return []models.BackupFile{}, nil
	}
	backups, err := s.backups.List()
	if err != nil {
		return nil, fmt.Errorf("error listing backups: %w", err)
	}
	return backups, nil
}

func (s *DefaultService) CheckAdminPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(s.adminHash, []byte(password)) == nil
}

// uniqueCode draws codes until one is not assigned to any record
func (s *DefaultService) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.generate(s.codeLength)
		if err != nil {
			return "", fmt.Errorf("error generating access code: %w", err)
		}

		exists, err := s.repo.AccessCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("error checking access code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}

	return "", ErrCodeExhausted
}
