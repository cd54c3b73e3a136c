package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rongwang/salary-bot/internal/ledger"
	"github.com/rongwang/salary-bot/internal/session"
)

func (b *Bot) handleTeacherCode(ctx context.Context, upd Update, sess session.Session) {
	code := strings.ToUpper(strings.TrimSpace(upd.Text))

	teacher, err := b.accounts.FindByCode(ctx, code)
	if err != nil {
		b.logger.Error("look up access code: %v", err)
		b.sessions.Put(sess)
		b.send(ctx, upd, Message{Text: "❌ Could not check the code right now. Please try again."})
		return
	}

	if teacher == nil {
		if _, _, err := b.accounts.RecordFailure(ctx, code); err != nil {
			b.logger.Error("record failed attempt: %v", err)
		}

		sess.Attempts++
		remaining := b.maxAttempts - sess.Attempts
		if remaining <= 0 {
			sess.State = session.StateEnded
			b.sessions.Put(sess)
			b.logger.Warn("session %s: user %d locked out after %d attempts", sess.ID, sess.UserID, sess.Attempts)
			b.send(ctx, upd, Message{Text: "❌ Too many attempts. Locked."})
			return
		}

		b.sessions.Put(sess)
		b.send(ctx, upd, Message{Text: fmt.Sprintf("❌ Incorrect code. %d left.", remaining)})
		return
	}

	if err := b.accounts.RecordSuccess(ctx, code); err != nil {
		b.logger.Error("reset failed attempts: %v", err)
	}

	sess.Role = session.RoleTeacher
	sess.TeacherName = teacher.Name
	sess.TeacherCode = code
	sess.Attempts = 0
	sess.State = session.StateTeacherMenu
	b.sessions.Put(sess)
	b.logger.Info("session %s: teacher %q logged in (user %d)", sess.ID, teacher.Name, sess.UserID)

	b.send(ctx, upd, Message{Text: fmt.Sprintf("✅ Code accepted! Fetching details for %s...", teacher.Name)})
	b.showSalary(ctx, upd, sess, true)
}

func (b *Bot) handleTeacherButton(ctx context.Context, upd Update, sess session.Session) string {
	if sess.Role != session.RoleTeacher || sess.TeacherName == "" {
		b.sessions.Delete(upd.UserID)
		return "Session expired. Please /start again."
	}

	switch upd.CallbackData {
	case cbMySalary:
		b.sessions.Put(sess)
		return b.showSalary(ctx, upd, sess, false)
	case cbTeacherLogout:
		return b.logout(ctx, upd, sess)
	case cbTeacherMenu:
		b.sessions.Put(sess)
		b.edit(ctx, upd, Message{Text: "💼 Teacher Menu:", Buttons: teacherKeyboard()})
	default:
		b.sessions.Put(sess)
	}
	return ""
}

// showSalary fetches the teacher's ledger row. Right after login the result
// is sent as a new message, otherwise the pressed message is edited. It
// returns the callback acknowledgement text.
func (b *Bot) showSalary(ctx context.Context, upd Update, sess session.Session, fromLogin bool) string {
	msg := b.salaryMessage(ctx, sess.TeacherName)

	if fromLogin {
		b.send(ctx, upd, msg)
		return ""
	}
	if b.edit(ctx, upd, msg) {
		return "Already up to date!"
	}
	return ""
}

func (b *Bot) salaryMessage(ctx context.Context, name string) Message {
	if b.ledger == nil {
		return Message{Text: "❌ Salary service unavailable.", Buttons: salaryKeyboard()}
	}

	snapshot, err := b.ledger.FindByName(ctx, name)
	switch {
	case errors.Is(err, ledger.ErrConnection):
		b.logger.Error("salary lookup for %q: %v", name, err)
		return Message{
			Text:    "❌ Could not reach the salary sheet. Please try again later.",
			Buttons: salaryKeyboard(),
		}
	case err != nil:
		b.logger.Error("salary lookup for %q: %v", name, err)
		return Message{Text: "❌ Could not load salary details.", Buttons: salaryKeyboard()}
	case snapshot == nil:
		return Message{
			Text:    fmt.Sprintf("❌ Data for '%s' not found in the sheet.", name),
			Buttons: salaryKeyboard(),
		}
	}

	return Message{
		Text:      "💰 *Your Salary Details:*\n\n" + ledger.Format(snapshot),
		Buttons:   salaryKeyboard(),
		ParseMode: ParseMarkdown,
	}
}
