package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/rongwang/salary-bot/internal/models"
)

var (
	// ErrDuplicateName is returned when a teacher with the same name already exists
	ErrDuplicateName = errors.New("teacher name already exists")
	// ErrDuplicateCode is returned when the access code is already assigned
	ErrDuplicateCode = errors.New("access code already exists")
)

// Repository interface defines the methods that any repository implementation must satisfy
type Repository interface {
	// Teacher operations
	CreateTeacher(ctx context.Context, teacher *models.Teacher) error
	DeleteTeacher(ctx context.Context, name string) (bool, error)
	GetTeacherByName(ctx context.Context, name string) (*models.Teacher, error)
	GetTeacherByCode(ctx context.Context, code string) (*models.Teacher, error)
	AccessCodeExists(ctx context.Context, code string) (bool, error)
	ListTeachers(ctx context.Context) ([]models.Teacher, error)

	// Access code and lockout operations
	ReplaceAccessCode(ctx context.Context, name, code string) (bool, error)
	IncrementFailedAttempts(ctx context.Context, code string, threshold int) (int, bool, error)
	ResetFailedAttempts(ctx context.Context, code string) error
	UnblockTeacher(ctx context.Context, name string) (bool, error)

	// Snapshot writes a consistent copy of the whole store to dest
	Snapshot(ctx context.Context, dest string) error
}

// SQLiteRepository implements the Repository interface using SQLite
type SQLiteRepository struct {
	db *sqlx.DB
}

// NewSQLiteRepository creates a new SQLite repository
func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db: db,
	}
}

// GetDB returns the underlying database connection
func (r *SQLiteRepository) GetDB() *sqlx.DB {
	return r.db
}

func (r *SQLiteRepository) CreateTeacher(ctx context.Context, teacher *models.Teacher) error {
	query := `
		INSERT INTO teachers (name, access_code, failed_attempts, is_blocked, created_at)
		VALUES (?, ?, 0, 0, ?)
	`

	teacher.CreatedAt = time.Now().UTC()
	teacher.FailedAttempts = 0
	teacher.IsBlocked = false

	res, err := r.db.ExecContext(ctx, query, teacher.Name, teacher.AccessCode, teacher.CreatedAt)
	if err != nil {
		return mapConstraintError(err)
	}

	teacher.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteRepository) DeleteTeacher(ctx context.Context, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM teachers WHERE name = ?`, name)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *SQLiteRepository) GetTeacherByName(ctx context.Context, name string) (*models.Teacher, error) {
	return r.getTeacher(ctx, `SELECT * FROM teachers WHERE name = ?`, name)
}

func (r *SQLiteRepository) GetTeacherByCode(ctx context.Context, code string) (*models.Teacher, error) {
	return r.getTeacher(ctx, `SELECT * FROM teachers WHERE access_code = ?`, code)
}

func (r *SQLiteRepository) getTeacher(ctx context.Context, query string, arg string) (*models.Teacher, error) {
	var teacher models.Teacher
	err := r.db.GetContext(ctx, &teacher, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Teacher not found
		}
		return nil, err
	}

	return &teacher, nil
}

func (r *SQLiteRepository) AccessCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM teachers WHERE access_code = ?)`, code)
	return exists, err
}

func (r *SQLiteRepository) ListTeachers(ctx context.Context) ([]models.Teacher, error) {
	teachers := []models.Teacher{}
	err := r.db.SelectContext(ctx, &teachers, `SELECT * FROM teachers ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}

	return teachers, nil
}

// ReplaceAccessCode assigns a new code and clears the lockout in one statement
func (r *SQLiteRepository) ReplaceAccessCode(ctx context.Context, name, code string) (bool, error) {
	query := `
		UPDATE teachers
		SET access_code = ?, failed_attempts = 0, is_blocked = 0
		WHERE name = ?
	`

	res, err := r.db.ExecContext(ctx, query, code, name)
	if err != nil {
		return false, mapConstraintError(err)
	}
	return affected(res)
}

// IncrementFailedAttempts bumps the counter for the record owning code and
// blocks it once the counter reaches threshold. Unknown codes yield (0, false).
func (r *SQLiteRepository) IncrementFailedAttempts(ctx context.Context, code string, threshold int) (int, bool, error) {
	query := `
		UPDATE teachers
		SET failed_attempts = failed_attempts + 1,
			is_blocked = CASE WHEN failed_attempts + 1 >= ? THEN 1 ELSE is_blocked END
		WHERE access_code = ?
		RETURNING failed_attempts, is_blocked
	`

	var attempts int
	var blocked bool
	err := r.db.QueryRowxContext(ctx, query, threshold, code).Scan(&attempts, &blocked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}

	return attempts, blocked, nil
}

func (r *SQLiteRepository) ResetFailedAttempts(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE teachers SET failed_attempts = 0 WHERE access_code = ?`, code)
	return err
}

func (r *SQLiteRepository) UnblockTeacher(ctx context.Context, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE teachers SET is_blocked = 0, failed_attempts = 0 WHERE name = ?`, name)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// Snapshot uses VACUUM INTO, which reads from a single transaction and is
// therefore consistent while other connections keep writing.
func (r *SQLiteRepository) Snapshot(ctx context.Context, dest string) error {
	_, err := r.db.ExecContext(ctx, `VACUUM INTO ?`, dest)
	return err
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// mapConstraintError converts UNIQUE violations into repository errors
func mapConstraintError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return err
	}

	msg := sqliteErr.Error()
	switch {
	case strings.Contains(msg, "teachers.name"):
		return ErrDuplicateName
	case strings.Contains(msg, "teachers.access_code"):
		return ErrDuplicateCode
	default:
		return err
	}
}
