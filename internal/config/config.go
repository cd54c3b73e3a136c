package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Backup   BackupConfig
	Auth     AuthConfig
	Sheets   SheetsConfig
	Telegram TelegramConfig
}

// ServerConfig holds the health-check server configuration
type ServerConfig struct {
	Port int
}

// DatabaseConfig holds the record store configuration
type DatabaseConfig struct {
	File string
}

// BackupConfig controls snapshot backups of the record store
type BackupConfig struct {
	Enabled    bool
	Dir        string
	Keep       int
	Interval   time.Duration
	StartDelay time.Duration
}

// AuthConfig holds admin and teacher authentication settings
type AuthConfig struct {
	AdminPassword     string
	AdminPasswordHash string // bcrypt hash, takes precedence over AdminPassword
	MaxLoginAttempts  int
	AccessCodeLength  int
	SessionIdleTTL    time.Duration
}

// SheetsConfig describes the remote spreadsheet export
type SheetsConfig struct {
	BaseURL       string
	SpreadsheetID string
	SheetGID      string
	Timeout       time.Duration
	Columns       ColumnMapping
}

// ColumnMapping maps ledger fields to zero-based CSV column indices
type ColumnMapping struct {
	Name       int
	Share      int
	Salary     int
	Advance    int
	Bonus      int
	Penalty    int
	CoverMinus int
	CoverPlus  int
	Tax        int
	Remains    int
}

// TelegramConfig holds the transport credentials
type TelegramConfig struct {
	Token       string
	PollTimeout int
}

// DefaultColumns is the A..J layout of the salary sheet.
func DefaultColumns() ColumnMapping {
	return ColumnMapping{
		Name:       0,
		Share:      1,
		Salary:     2,
		Advance:    3,
		Bonus:      4,
		Penalty:    5,
		CoverMinus: 6,
		CoverPlus:  7,
		Tax:        8,
		Remains:    9,
	}
}

// LoadConfig loads the configuration from environment variables.
// A .env file in the working directory is read first if present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cols := DefaultColumns()

	return &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("PORT", 10000),
		},
		Database: DatabaseConfig{
			File: getEnv("DATABASE_FILE", "teachers.db"),
		},
		Backup: BackupConfig{
			Enabled:    getEnvAsBool("BACKUP_ENABLED", true),
			Dir:        getEnv("BACKUP_DIR", "backups"),
			Keep:       getEnvAsInt("BACKUP_KEEP", 10),
			Interval:   time.Duration(getEnvAsInt("BACKUP_INTERVAL_HOURS", 24)) * time.Hour,
			StartDelay: getEnvAsDuration("BACKUP_START_DELAY", 10*time.Second),
		},
		Auth: AuthConfig{
			AdminPassword:     getEnv("ADMIN_PASSWORD", "admin123"),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			MaxLoginAttempts:  getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			AccessCodeLength:  getEnvAsInt("ACCESS_CODE_LENGTH", 8),
			SessionIdleTTL:    getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		},
		Sheets: SheetsConfig{
			BaseURL:       getEnv("SHEETS_BASE_URL", "https://docs.google.com"),
			SpreadsheetID: getEnv("SPREADSHEET_ID", "1ONPOESz0sbB8Wmbk3HfuurC0RlrpqXaQU2Pe7Pt3LAQ"),
			SheetGID:      getEnv("SHEET_GID", "1353280152"),
			Timeout:       getEnvAsDuration("SHEETS_TIMEOUT", 10*time.Second),
			Columns: ColumnMapping{
				Name:       getEnvAsInt("COLUMN_NAME", cols.Name),
				Share:      getEnvAsInt("COLUMN_SHARE", cols.Share),
				Salary:     getEnvAsInt("COLUMN_SALARY", cols.Salary),
				Advance:    getEnvAsInt("COLUMN_ADVANCE", cols.Advance),
				Bonus:      getEnvAsInt("COLUMN_BONUS", cols.Bonus),
				Penalty:    getEnvAsInt("COLUMN_PENALTY", cols.Penalty),
				CoverMinus: getEnvAsInt("COLUMN_COVER_MINUS", cols.CoverMinus),
				CoverPlus:  getEnvAsInt("COLUMN_COVER_PLUS", cols.CoverPlus),
				Tax:        getEnvAsInt("COLUMN_TAX", cols.Tax),
				Remains:    getEnvAsInt("COLUMN_REMAINS", cols.Remains),
			},
		},
		Telegram: TelegramConfig{
			Token:       getEnv("BOT_TOKEN", ""),
			PollTimeout: getEnvAsInt("TELEGRAM_POLL_TIMEOUT", 60),
		},
	}
}

// Helper functions to read environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(getEnv(key, ""))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
