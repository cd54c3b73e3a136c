package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/rongwang/salary-bot/internal/api"
	"github.com/rongwang/salary-bot/internal/bot"
	"github.com/rongwang/salary-bot/internal/config"
	"github.com/rongwang/salary-bot/internal/ledger"
	"github.com/rongwang/salary-bot/internal/repository"
	"github.com/rongwang/salary-bot/internal/scheduler"
	"github.com/rongwang/salary-bot/internal/service"
	"github.com/rongwang/salary-bot/internal/session"
	"github.com/rongwang/salary-bot/internal/utils"
)

// sessionSweepInterval is how often idle sessions are dropped
const sessionSweepInterval = time.Minute

func main() {
	logger := utils.NewLogger()

	root := &cobra.Command{
		Use:           "salary-bot",
		Short:         "Telegram bot for teacher accounts and salary lookups",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), logger)
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the bot and the health endpoint (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), logger)
			},
		},
		&cobra.Command{
			Use:   "backup",
			Short: "Write a snapshot of the record store and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBackup(cmd.Context(), cmd, logger)
			},
		},
		&cobra.Command{
			Use:   "teachers",
			Short: "Print all teachers with their access codes",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTeachers(cmd.Context(), cmd, logger)
			},
		},
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

// app holds the storage stack shared by all commands
type app struct {
	cfg *config.Config
	db  *sqlx.DB
	svc *service.DefaultService
}

func setup(logger *utils.Logger) (*app, error) {
	// Load configuration
	cfg := config.LoadConfig()

	// Set up database connection
	db, err := config.SetupDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}

	// Create repository
	repo := repository.NewSQLiteRepository(db)
	backups := repository.NewBackupStore(repo, cfg.Backup.Dir, cfg.Backup.Keep)

	// Create service
	svc, err := service.NewDefaultService(repo, backups, service.Options{
		AccessCodeLength:  cfg.Auth.AccessCodeLength,
		AdminPassword:     cfg.Auth.AdminPassword,
		AdminPasswordHash: cfg.Auth.AdminPasswordHash,
		BackupsEnabled:    cfg.Backup.Enabled,
	}, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{cfg: cfg, db: db, svc: svc}, nil
}

func runServe(ctx context.Context, logger *utils.Logger) error {
	a, err := setup(logger)
	if err != nil {
		return err
	}
	defer a.db.Close()
	cfg := a.cfg

	if cfg.Telegram.Token == "" {
		return errors.New("BOT_TOKEN is not set")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Salary lookups are optional; the bot runs without them
	opts := bot.Options{
		Accounts:         a.svc,
		Sessions:         session.NewStore(cfg.Auth.SessionIdleTTL),
		Logger:           logger,
		MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
	}
	if reader, err := ledger.NewReader(cfg.Sheets, nil); err != nil {
		logger.Warn("salary ledger unavailable: %v", err)
	} else {
		opts.Ledger = reader
		logger.Info("salary ledger at %s", reader.URL())
	}

	transport, err := bot.NewTelegramTransport(cfg.Telegram.Token, cfg.Telegram.PollTimeout, logger)
	if err != nil {
		return err
	}
	opts.Transport = transport
	handler := bot.New(opts)

	gin.SetMode(gin.ReleaseMode)
	health := api.NewHealthServer(cfg.Server.Port, logger)
	health.Start()

	sched := scheduler.New(logger)
	if cfg.Backup.Enabled {
		if err := sched.AddBackupJob(a.svc, cfg.Backup.StartDelay, cfg.Backup.Interval); err != nil {
			return err
		}
	}
	sched.AddSessionSweep(opts.Sessions, sessionSweepInterval)
	sched.Start()

	logger.Info("bot started")
	transport.Run(ctx, handler.Handle)
	logger.Info("shutting down")

	<-sched.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return health.Shutdown(shutdownCtx)
}

func runBackup(ctx context.Context, cmd *cobra.Command, logger *utils.Logger) error {
	a, err := setup(logger)
	if err != nil {
		return err
	}
	defer a.db.Close()

	path, err := a.svc.CreateBackup(ctx)
	if path == "" {
		return fmt.Errorf("backup failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runTeachers(ctx context.Context, cmd *cobra.Command, logger *utils.Logger) error {
	a, err := setup(logger)
	if err != nil {
		return err
	}
	defer a.db.Close()

	teachers, err := a.svc.ListTeachers(ctx)
	if err != nil {
		return err
	}
	for _, t := range teachers {
		status := ""
		if t.IsBlocked {
			status = " (blocked)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s%s\n", t.Name, t.AccessCode, status)
	}
	return nil
}
