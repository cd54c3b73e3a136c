// Package bot implements the chat menu flow for admins and teachers.
package bot

import (
	"context"
	"errors"
	"sync"

	"github.com/rongwang/salary-bot/internal/models"
	"github.com/rongwang/salary-bot/internal/service"
	"github.com/rongwang/salary-bot/internal/session"
	"github.com/rongwang/salary-bot/internal/utils"
)

// SalarySource looks up a teacher's row in the salary ledger
type SalarySource interface {
	FindByName(ctx context.Context, name string) (*models.SalarySnapshot, error)
}

// Options configures a Bot
type Options struct {
	Accounts  service.Service
	Ledger    SalarySource // nil when the ledger could not be initialised
	Sessions  *session.Store
	Transport Transport
	Logger    *utils.Logger

	MaxLoginAttempts int
}

// Bot routes updates through the menu state machine
type Bot struct {
	accounts    service.Service
	ledger      SalarySource
	sessions    *session.Store
	transport   Transport
	logger      *utils.Logger
	maxAttempts int

	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a Bot
func New(opts Options) *Bot {
	if opts.MaxLoginAttempts <= 0 {
		opts.MaxLoginAttempts = 5
	}
	if opts.Logger == nil {
		opts.Logger = utils.NopLogger()
	}

	return &Bot{
		accounts:    opts.Accounts,
		ledger:      opts.Ledger,
		sessions:    opts.Sessions,
		transport:   opts.Transport,
		logger:      opts.Logger,
		maxAttempts: opts.MaxLoginAttempts,
		locks:       make(map[int64]*userLock),
	}
}

// Handle processes one update to completion. Updates of the same user are
// handled one at a time; different users run concurrently.
func (b *Bot) Handle(ctx context.Context, upd Update) {
	unlock := b.lockUser(upd.UserID)
	defer unlock()

	switch {
	case upd.IsCallback():
		ack := b.handleCallback(ctx, upd)
		if err := b.transport.Answer(ctx, upd.CallbackID, ack); err != nil {
			b.logger.Warn("answer callback for user %d: %v", upd.UserID, err)
		}
	case upd.Command != "":
		b.handleCommand(ctx, upd)
	default:
		b.handleText(ctx, upd)
	}
}

func (b *Bot) lockUser(userID int64) func() {
	b.mu.Lock()
	l, ok := b.locks[userID]
	if !ok {
		l = &userLock{}
		b.locks[userID] = l
	}
	l.refs++
	b.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		b.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(b.locks, userID)
		}
		b.mu.Unlock()
	}
}

func (b *Bot) handleCommand(ctx context.Context, upd Update) {
	switch upd.Command {
	case "start":
		b.start(ctx, upd)
	case "cancel":
		b.sessions.Delete(upd.UserID)
		b.send(ctx, upd, Message{Text: "Cancelled. /start to restart."})
	}
}

// start re-enters the role choice. The login attempt counter survives.
func (b *Bot) start(ctx context.Context, upd Update) {
	sess := b.sessions.New(upd.UserID)
	if old, ok := b.sessions.Get(upd.UserID); ok {
		sess.Attempts = old.Attempts
	}
	b.sessions.Put(sess)

	b.send(ctx, upd, Message{
		Text:    "Welcome to the English Learning Center Salary Tracker Bot!\n\nPlease select your role:",
		Buttons: roleKeyboard(),
	})
}

func (b *Bot) handleText(ctx context.Context, upd Update) {
	sess, ok := b.sessions.Get(upd.UserID)
	if !ok {
		return
	}

	switch sess.State {
	case session.StateAwaitingAdminPassword:
		b.handleAdminPassword(ctx, upd, sess)
	case session.StateAwaitingTeacherCode:
		b.handleTeacherCode(ctx, upd, sess)
	case session.StateCreateTeacherName,
		session.StateDeleteTeacherName,
		session.StateResetCodeName,
		session.StateUnblockTeacherName:
		b.handleAdminInput(ctx, upd, sess)
	default:
		// menus only react to buttons
		b.sessions.Put(sess)
	}
}

// handleCallback returns the text used to acknowledge the button press
func (b *Bot) handleCallback(ctx context.Context, upd Update) string {
	sess, ok := b.sessions.Get(upd.UserID)
	if !ok {
		return "Session expired. Please /start again."
	}

	switch sess.State {
	case session.StateUnauthenticated:
		return b.handleRoleChoice(ctx, upd, sess)
	case session.StateAdminMenu:
		return b.handleAdminButton(ctx, upd, sess)
	case session.StateTeacherMenu:
		return b.handleTeacherButton(ctx, upd, sess)
	default:
		b.sessions.Put(sess)
		return ""
	}
}

func (b *Bot) handleRoleChoice(ctx context.Context, upd Update, sess session.Session) string {
	switch upd.CallbackData {
	case cbAdminLogin:
		sess.State = session.StateAwaitingAdminPassword
		b.sessions.Put(sess)
		b.edit(ctx, upd, Message{Text: "Please enter the admin password:"})
	case cbTeacherLogin:
		sess.State = session.StateAwaitingTeacherCode
		b.sessions.Put(sess)
		b.edit(ctx, upd, Message{Text: "Please enter your access code:"})
	default:
		b.sessions.Put(sess)
	}
	return ""
}

// logout clears the session and shows the role choice again
func (b *Bot) logout(ctx context.Context, upd Update, sess session.Session) string {
	b.logger.Info("session %s: %s logged out (user %d)", sess.ID, sess.Role, sess.UserID)
	b.sessions.Delete(upd.UserID)
	b.sessions.Put(b.sessions.New(upd.UserID))

	b.edit(ctx, upd, Message{Text: "Please select your role:", Buttons: roleKeyboard()})
	return ""
}

func (b *Bot) send(ctx context.Context, upd Update, msg Message) {
	if _, err := b.transport.Send(ctx, upd.ChatID, msg); err != nil {
		b.logger.Error("send to chat %d: %v", upd.ChatID, err)
	}
}

// edit replaces the message that carried the pressed button. It reports
// whether the content was already identical.
func (b *Bot) edit(ctx context.Context, upd Update, msg Message) (unchanged bool) {
	err := b.transport.Edit(ctx, upd.ChatID, upd.MessageID, msg)
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotModified):
		return true
	default:
		b.logger.Error("edit message %d in chat %d: %v", upd.MessageID, upd.ChatID, err)
		return false
	}
}
