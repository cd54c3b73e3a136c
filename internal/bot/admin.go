package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rongwang/salary-bot/internal/repository"
	"github.com/rongwang/salary-bot/internal/service"
	"github.com/rongwang/salary-bot/internal/session"
)

// maxListLength keeps list replies under the platform's message size limit
const maxListLength = 3800

func (b *Bot) handleAdminPassword(ctx context.Context, upd Update, sess session.Session) {
	if !b.accounts.CheckAdminPassword(strings.TrimSpace(upd.Text)) {
		b.sessions.Put(sess)
		b.send(ctx, upd, Message{Text: "❌ Incorrect password. Try again or /cancel."})
		return
	}

	sess.Role = session.RoleAdmin
	sess.State = session.StateAdminMenu
	sess.Attempts = 0
	b.sessions.Put(sess)
	b.logger.Info("session %s: admin logged in (user %d)", sess.ID, sess.UserID)

	b.send(ctx, upd, Message{Text: "✅ Admin access granted!"})
	b.send(ctx, upd, adminMenu())
}

func adminMenu() Message {
	return Message{Text: "🔐 Admin Menu:", Buttons: adminKeyboard()}
}

func (b *Bot) handleAdminButton(ctx context.Context, upd Update, sess session.Session) string {
	if sess.Role != session.RoleAdmin {
		b.sessions.Delete(upd.UserID)
		return "Session expired. Please /start again."
	}

	prompt := func(state session.State, text string) string {
		sess.State = state
		b.sessions.Put(sess)
		b.edit(ctx, upd, Message{Text: text})
		return ""
	}

	switch upd.CallbackData {
	case cbCreateTeacher:
		return prompt(session.StateCreateTeacherName, "Enter the new teacher's name:")
	case cbDeleteTeacher:
		return prompt(session.StateDeleteTeacherName, "Enter the teacher's name to delete:")
	case cbResetCode:
		return prompt(session.StateResetCodeName, "Enter the teacher's name to reset code:")
	case cbUnblockTeacher:
		return prompt(session.StateUnblockTeacherName, "Enter the teacher's name to unblock:")
	case cbAdminLogout:
		return b.logout(ctx, upd, sess)
	}

	b.sessions.Put(sess)

	switch upd.CallbackData {
	case cbListTeachers:
		b.edit(ctx, upd, Message{Text: b.teacherList(ctx), Buttons: backToAdminKeyboard()})
	case cbBackupDB:
		b.edit(ctx, upd, Message{Text: b.backup(ctx), Buttons: backToAdminKeyboard()})
	case cbListBackups:
		b.edit(ctx, upd, Message{Text: b.backupList(ctx), Buttons: backToAdminKeyboard()})
	case cbAdminMenu:
		b.edit(ctx, upd, adminMenu())
	}
	return ""
}

// handleAdminInput completes one of the name-prompting admin actions and
// always returns to the admin menu.
func (b *Bot) handleAdminInput(ctx context.Context, upd Update, sess session.Session) {
	if sess.Role != session.RoleAdmin {
		b.sessions.Delete(upd.UserID)
		return
	}

	name := strings.TrimSpace(upd.Text)
	var reply string
	switch sess.State {
	case session.StateCreateTeacherName:
		reply = b.createTeacher(ctx, name)
	case session.StateDeleteTeacherName:
		reply = b.deleteTeacher(ctx, name)
	case session.StateResetCodeName:
		reply = b.resetCode(ctx, name)
	case session.StateUnblockTeacherName:
		reply = b.unblockTeacher(ctx, name)
	}

	sess.State = session.StateAdminMenu
	b.sessions.Put(sess)

	b.send(ctx, upd, Message{Text: reply})
	b.send(ctx, upd, adminMenu())
}

func (b *Bot) createTeacher(ctx context.Context, name string) string {
	code, err := b.accounts.CreateTeacher(ctx, name)
	switch {
	case errors.Is(err, service.ErrAlreadyExists):
		return fmt.Sprintf("❌ Teacher '%s' already exists.", name)
	case errors.Is(err, service.ErrInvalidName):
		return "❌ Teacher name cannot be empty."
	case err != nil:
		b.logger.Error("create teacher %q: %v", name, err)
		return "❌ Could not create the teacher. Please try again."
	}
	return fmt.Sprintf("✅ Teacher account created!\n\nName: %s\nAccess Code: %s", name, code)
}

func (b *Bot) deleteTeacher(ctx context.Context, name string) string {
	deleted, err := b.accounts.DeleteTeacher(ctx, name)
	if err != nil {
		b.logger.Error("delete teacher %q: %v", name, err)
		return "❌ Could not delete the teacher. Please try again."
	}
	if !deleted {
		return fmt.Sprintf("❌ Teacher '%s' not found.", name)
	}
	return fmt.Sprintf("✅ Teacher '%s' deleted.", name)
}

func (b *Bot) resetCode(ctx context.Context, name string) string {
	code, err := b.accounts.ResetCode(ctx, name)
	switch {
	case errors.Is(err, service.ErrNotFound):
		return fmt.Sprintf("❌ Teacher '%s' not found.", name)
	case err != nil:
		b.logger.Error("reset code for %q: %v", name, err)
		return "❌ Could not reset the code. Please try again."
	}
	return fmt.Sprintf("✅ Code reset for %s: %s", name, code)
}

func (b *Bot) unblockTeacher(ctx context.Context, name string) string {
	unblocked, err := b.accounts.UnblockTeacher(ctx, name)
	if err != nil {
		b.logger.Error("unblock teacher %q: %v", name, err)
		return "❌ Could not unblock the teacher. Please try again."
	}
	if !unblocked {
		return fmt.Sprintf("❌ Teacher '%s' not found.", name)
	}
	return fmt.Sprintf("✅ Teacher '%s' unblocked.", name)
}

func (b *Bot) teacherList(ctx context.Context) string {
	teachers, err := b.accounts.ListTeachers(ctx)
	if err != nil {
		b.logger.Error("list teachers: %v", err)
		return "❌ Could not load the teacher list."
	}
	if len(teachers) == 0 {
		return "No teachers found."
	}

	lines := make([]string, 0, len(teachers))
	for _, t := range teachers {
		line := fmt.Sprintf("%s: %s", t.Name, t.AccessCode)
		if t.IsBlocked {
			line += " (blocked)"
		}
		lines = append(lines, line)
	}
	return truncateList("📋 All Teachers:\n\n", lines)
}

func (b *Bot) backup(ctx context.Context) string {
	path, err := b.accounts.CreateBackup(ctx)
	switch {
	case errors.Is(err, service.ErrBackupsDisabled):
		return "❌ Backups are disabled."
	case path == "":
		return "❌ Backup failed."
	}
	return fmt.Sprintf("✅ Backup created: %s", filepath.Base(path))
}

func (b *Bot) backupList(ctx context.Context) string {
	backups, err := b.accounts.ListBackups(ctx)
	if err != nil {
		b.logger.Error("list backups: %v", err)
		return "❌ Could not list backups."
	}
	if len(backups) == 0 {
		return "No backups found."
	}

	lines := make([]string, 0, len(backups))
	for _, f := range backups {
		lines = append(lines, fmt.Sprintf("%s (%s)", f.Name, repository.FormatSize(f.Size)))
	}
	return truncateList("🗄 Backups:\n\n", lines)
}

func truncateList(header string, lines []string) string {
	var sb strings.Builder
	sb.WriteString(header)
	for i, line := range lines {
		if sb.Len()+len(line)+1 > maxListLength {
			fmt.Fprintf(&sb, "… and %d more", len(lines)-i)
			break
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
