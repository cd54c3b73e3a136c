package models

import (
	"time"
)

// Teacher is a teacher account in the record store
type Teacher struct {
	ID             int64     `db:"id"`
	Name           string    `db:"name"`
	AccessCode     string    `db:"access_code"`
	FailedAttempts int       `db:"failed_attempts"`
	IsBlocked      bool      `db:"is_blocked"`
	CreatedAt      time.Time `db:"created_at"`
}

// SalarySnapshot is one teacher's row of the salary ledger
type SalarySnapshot struct {
	Name       string
	Share      string
	Salary     float64
	Advance    float64
	Bonus      float64
	Penalty    float64
	CoverMinus float64
	CoverPlus  float64
	Tax        float64
	Remains    float64
}

// BackupFile describes a snapshot of the record store on disk
type BackupFile struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}
