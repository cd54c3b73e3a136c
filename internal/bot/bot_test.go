package bot_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rongwang/salary-bot/internal/bot"
	"github.com/rongwang/salary-bot/internal/ledger"
	"github.com/rongwang/salary-bot/internal/models"
	"github.com/rongwang/salary-bot/internal/session"
	"github.com/rongwang/salary-bot/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userID = int64(100)
	chatID = int64(200)
)

type sent struct {
	Kind      string // send, edit or answer
	MessageID int
	Msg       bot.Message
	Ack       string
}

// recordingTransport stores every outbound call in order
type recordingTransport struct {
	mu          sync.Mutex
	calls       []sent
	nextID      int
	notModified bool
}

func (r *recordingTransport) Send(ctx context.Context, chat int64, msg bot.Message) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.calls = append(r.calls, sent{Kind: "send", MessageID: r.nextID, Msg: msg})
	return r.nextID, nil
}

func (r *recordingTransport) Edit(ctx context.Context, chat int64, messageID int, msg bot.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sent{Kind: "edit", MessageID: messageID, Msg: msg})
	if r.notModified {
		return fmt.Errorf("%w: Bad Request", bot.ErrNotModified)
	}
	return nil
}

func (r *recordingTransport) Answer(ctx context.Context, callbackID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sent{Kind: "answer", Ack: text})
	return nil
}

func (r *recordingTransport) reset() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := r.calls
	r.calls = nil
	return calls
}

type fakeLedger struct {
	rows map[string]models.SalarySnapshot
	err  error
}

func (f *fakeLedger) FindByName(ctx context.Context, name string) (*models.SalarySnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	row, ok := f.rows[strings.ToLower(name)]
	if !ok {
		return nil, nil
	}
	row.Name = name
	return &row, nil
}

type harness struct {
	t         *testing.T
	tc        *testutils.TestContext
	bot       *bot.Bot
	transport *recordingTransport
	sessions  *session.Store
	cb        int
}

func newHarness(t *testing.T, src bot.SalarySource) *harness {
	t.Helper()
	tc := testutils.SetupTestContext(t)
	transport := &recordingTransport{}
	sessions := session.NewStore(30 * time.Minute)

	opts := bot.Options{
		Accounts:         tc.Service,
		Sessions:         sessions,
		Transport:        transport,
		MaxLoginAttempts: 5,
	}
	if src != nil {
		opts.Ledger = src
	}

	return &harness{t: t, tc: tc, bot: bot.New(opts), transport: transport, sessions: sessions}
}

func (h *harness) command(name string) []sent {
	h.bot.Handle(context.Background(), bot.Update{
		UserID: userID, ChatID: chatID, MessageID: 1, Text: "/" + name, Command: name,
	})
	return h.transport.reset()
}

func (h *harness) text(s string) []sent {
	h.bot.Handle(context.Background(), bot.Update{
		UserID: userID, ChatID: chatID, MessageID: 1, Text: s,
	})
	return h.transport.reset()
}

func (h *harness) press(data string) []sent {
	h.cb++
	h.bot.Handle(context.Background(), bot.Update{
		UserID: userID, ChatID: chatID, MessageID: 42,
		CallbackID: fmt.Sprintf("cb-%d", h.cb), CallbackData: data,
	})
	return h.transport.reset()
}

func (h *harness) state() session.State {
	sess, ok := h.sessions.Get(userID)
	if !ok {
		return session.StateEnded
	}
	return sess.State
}

func (h *harness) loginAdmin() {
	h.command("start")
	h.press("admin_login")
	calls := h.text(testutils.AdminPassword)
	require.Len(h.t, calls, 2)
	require.Equal(h.t, session.StateAdminMenu, h.state())
}

func buttonData(msg bot.Message) []string {
	var data []string
	for _, row := range msg.Buttons {
		for _, b := range row {
			data = append(data, b.Data)
		}
	}
	return data
}

func TestStartShowsRoleChoice(t *testing.T) {
	h := newHarness(t, nil)

	calls := h.command("start")
	require.Len(t, calls, 1)
	assert.Equal(t, "send", calls[0].Kind)
	assert.Contains(t, calls[0].Msg.Text, "Please select your role:")
	assert.Equal(t, []string{"admin_login", "teacher_login"}, buttonData(calls[0].Msg))
	assert.Equal(t, session.StateUnauthenticated, h.state())
}

func TestAdminLogin(t *testing.T) {
	h := newHarness(t, nil)
	h.command("start")

	calls := h.press("admin_login")
	require.Len(t, calls, 2)
	assert.Equal(t, "edit", calls[0].Kind)
	assert.Equal(t, 42, calls[0].MessageID)
	assert.Equal(t, "Please enter the admin password:", calls[0].Msg.Text)
	assert.Equal(t, "answer", calls[1].Kind)

	calls = h.text("wrong")
	require.Len(t, calls, 1)
	assert.Equal(t, "❌ Incorrect password. Try again or /cancel.", calls[0].Msg.Text)
	assert.Equal(t, session.StateAwaitingAdminPassword, h.state())

	calls = h.text("  " + testutils.AdminPassword + " ")
	require.Len(t, calls, 2)
	assert.Equal(t, "✅ Admin access granted!", calls[0].Msg.Text)
	assert.Equal(t, "🔐 Admin Menu:", calls[1].Msg.Text)
	assert.Len(t, calls[1].Msg.Buttons, 8)
	assert.Equal(t, session.StateAdminMenu, h.state())
}

func TestAdminCreateAndListTeachers(t *testing.T) {
	h := newHarness(t, nil)
	h.loginAdmin()

	calls := h.press("create_teacher")
	require.Len(t, calls, 2)
	assert.Equal(t, "Enter the new teacher's name:", calls[0].Msg.Text)
	assert.Equal(t, session.StateCreateTeacherName, h.state())

	calls = h.text("Jane Doe")
	require.Len(t, calls, 2)
	assert.True(t, strings.HasPrefix(calls[0].Msg.Text, "✅ Teacher account created!\n\nName: Jane Doe\nAccess Code: "))
	assert.Equal(t, "🔐 Admin Menu:", calls[1].Msg.Text)
	assert.Equal(t, session.StateAdminMenu, h.state())

	teacher, err := h.tc.Repository.GetTeacherByName(context.Background(), "Jane Doe")
	require.NoError(t, err)
	require.NotNil(t, teacher)

	h.press("create_teacher")
	calls = h.text("Jane Doe")
	assert.Equal(t, "❌ Teacher 'Jane Doe' already exists.", calls[0].Msg.Text)

	calls = h.press("list_teachers")
	require.Len(t, calls, 2)
	assert.Equal(t, "📋 All Teachers:\n\nJane Doe: "+teacher.AccessCode, calls[0].Msg.Text)
	assert.Equal(t, []string{"admin_menu"}, buttonData(calls[0].Msg))

	calls = h.press("admin_menu")
	assert.Equal(t, "🔐 Admin Menu:", calls[0].Msg.Text)
}

func TestAdminNameActionsOnUnknownTeacher(t *testing.T) {
	h := newHarness(t, nil)
	h.loginAdmin()

	cases := map[string]string{
		"delete_teacher":  "❌ Teacher 'Ghost' not found.",
		"reset_code":      "❌ Teacher 'Ghost' not found.",
		"unblock_teacher": "❌ Teacher 'Ghost' not found.",
	}
	for data, want := range cases {
		h.press(data)
		calls := h.text("Ghost")
		require.Len(t, calls, 2, data)
		assert.Equal(t, want, calls[0].Msg.Text, data)
		assert.Equal(t, session.StateAdminMenu, h.state(), data)
	}
}

func TestAdminResetAndDelete(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	oldCode, err := h.tc.Service.CreateTeacher(ctx, "Bob")
	require.NoError(t, err)
	h.loginAdmin()

	h.press("reset_code")
	calls := h.text("Bob")
	require.True(t, strings.HasPrefix(calls[0].Msg.Text, "✅ Code reset for Bob: "))
	newCode := strings.TrimPrefix(calls[0].Msg.Text, "✅ Code reset for Bob: ")
	assert.NotEqual(t, oldCode, newCode)

	h.press("delete_teacher")
	calls = h.text("Bob")
	assert.Equal(t, "✅ Teacher 'Bob' deleted.", calls[0].Msg.Text)

	calls = h.press("list_teachers")
	assert.Equal(t, "No teachers found.", calls[0].Msg.Text)
}

func TestAdminBackup(t *testing.T) {
	h := newHarness(t, nil)
	h.loginAdmin()

	calls := h.press("list_backups")
	assert.Equal(t, "No backups found.", calls[0].Msg.Text)

	calls = h.press("backup_db")
	assert.Equal(t, "✅ Backup created: teachers_backup_20260115_090000.db", calls[0].Msg.Text)

	calls = h.press("list_backups")
	assert.True(t, strings.HasPrefix(calls[0].Msg.Text, "🗄 Backups:\n\nteachers_backup_20260115_090000.db ("))
}

func TestAdminLogout(t *testing.T) {
	h := newHarness(t, nil)
	h.loginAdmin()

	calls := h.press("admin_logout")
	require.Len(t, calls, 2)
	assert.Equal(t, "Please select your role:", calls[0].Msg.Text)
	assert.Equal(t, session.StateUnauthenticated, h.state())

	sess, _ := h.sessions.Get(userID)
	assert.Equal(t, session.RoleNone, sess.Role)
}

func TestTeacherLoginShowsSalary(t *testing.T) {
	src := &fakeLedger{rows: map[string]models.SalarySnapshot{
		"jane doe": {Share: "40%", Salary: 1200.5, Remains: 1234567},
	}}
	h := newHarness(t, src)
	code, err := h.tc.Service.CreateTeacher(context.Background(), "Jane Doe")
	require.NoError(t, err)

	h.command("start")
	calls := h.press("teacher_login")
	assert.Equal(t, "Please enter your access code:", calls[0].Msg.Text)

	calls = h.text(" " + strings.ToLower(code) + " ")
	require.Len(t, calls, 2)
	assert.Equal(t, "✅ Code accepted! Fetching details for Jane Doe...", calls[0].Msg.Text)
	assert.Equal(t, "send", calls[1].Kind)
	assert.Equal(t, bot.ParseMarkdown, calls[1].Msg.ParseMode)
	assert.Contains(t, calls[1].Msg.Text, "💰 *Your Salary Details:*")
	assert.Contains(t, calls[1].Msg.Text, "🏁 *Net Remains:* 1 234 567")
	assert.Equal(t, []string{"my_salary", "teacher_logout"}, buttonData(calls[1].Msg))
	assert.Equal(t, session.StateTeacherMenu, h.state())

	calls = h.press("my_salary")
	require.Len(t, calls, 2)
	assert.Equal(t, "edit", calls[0].Kind)
	assert.Equal(t, "", calls[1].Ack)
}

func TestTeacherRefreshUnchanged(t *testing.T) {
	src := &fakeLedger{rows: map[string]models.SalarySnapshot{"jane doe": {Share: "40%"}}}
	h := newHarness(t, src)
	code, err := h.tc.Service.CreateTeacher(context.Background(), "Jane Doe")
	require.NoError(t, err)

	h.command("start")
	h.press("teacher_login")
	h.text(code)

	h.transport.notModified = true
	calls := h.press("my_salary")
	require.Len(t, calls, 2)
	assert.Equal(t, "answer", calls[1].Kind)
	assert.Equal(t, "Already up to date!", calls[1].Ack)
	assert.Equal(t, session.StateTeacherMenu, h.state())
}

func TestTeacherSalaryErrors(t *testing.T) {
	cases := []struct {
		name string
		src  bot.SalarySource
		want string
	}{
		{"unavailable", nil, "❌ Salary service unavailable."},
		{"connection", &fakeLedger{err: fmt.Errorf("%w: timeout", ledger.ErrConnection)}, "❌ Could not reach the salary sheet. Please try again later."},
		{"other", &fakeLedger{err: errors.New("bad csv")}, "❌ Could not load salary details."},
		{"missing row", &fakeLedger{}, "❌ Data for 'Jane Doe' not found in the sheet."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.src)
			code, err := h.tc.Service.CreateTeacher(context.Background(), "Jane Doe")
			require.NoError(t, err)

			h.command("start")
			h.press("teacher_login")
			calls := h.text(code)
			require.Len(t, calls, 2)
			assert.Equal(t, tc.want, calls[1].Msg.Text)
			assert.Equal(t, []string{"my_salary", "teacher_logout"}, buttonData(calls[1].Msg))
			assert.Equal(t, session.StateTeacherMenu, h.state())
		})
	}
}

func TestTeacherLockoutAfterFiveWrongCodes(t *testing.T) {
	h := newHarness(t, nil)
	h.command("start")
	h.press("teacher_login")

	for left := 4; left >= 1; left-- {
		calls := h.text("WRONG123")
		require.Len(t, calls, 1)
		assert.Equal(t, fmt.Sprintf("❌ Incorrect code. %d left.", left), calls[0].Msg.Text)
		assert.Equal(t, session.StateAwaitingTeacherCode, h.state())
	}

	calls := h.text("WRONG123")
	require.Len(t, calls, 1)
	assert.Equal(t, "❌ Too many attempts. Locked.", calls[0].Msg.Text)
	assert.Equal(t, session.StateEnded, h.state())

	// further text is ignored
	assert.Empty(t, h.text("WRONG123"))
}

func TestBlockedCodeIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	code, err := h.tc.Service.CreateTeacher(ctx, "Jane Doe")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, _, err := h.tc.Service.RecordFailure(ctx, code)
		require.NoError(t, err)
	}

	h.command("start")
	h.press("teacher_login")
	calls := h.text(code)
	assert.Equal(t, "❌ Incorrect code. 4 left.", calls[0].Msg.Text)
}

func TestTeacherLogout(t *testing.T) {
	h := newHarness(t, &fakeLedger{})
	code, err := h.tc.Service.CreateTeacher(context.Background(), "Jane Doe")
	require.NoError(t, err)

	h.command("start")
	h.press("teacher_login")
	h.text(code)

	calls := h.press("teacher_logout")
	assert.Equal(t, "Please select your role:", calls[0].Msg.Text)
	assert.Equal(t, session.StateUnauthenticated, h.state())
}

func TestCallbackWithoutSession(t *testing.T) {
	h := newHarness(t, nil)

	calls := h.press("admin_login")
	require.Len(t, calls, 1)
	assert.Equal(t, "answer", calls[0].Kind)
	assert.Equal(t, "Session expired. Please /start again.", calls[0].Ack)
}

func TestUnknownCallbackIsAnsweredOnly(t *testing.T) {
	h := newHarness(t, nil)
	h.loginAdmin()

	calls := h.press("no_such_button")
	require.Len(t, calls, 1)
	assert.Equal(t, "answer", calls[0].Kind)
	assert.Equal(t, session.StateAdminMenu, h.state())
}

func TestTextWithoutSessionIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	assert.Empty(t, h.text("hello"))
}

func TestCancel(t *testing.T) {
	h := newHarness(t, nil)
	h.loginAdmin()

	calls := h.command("cancel")
	require.Len(t, calls, 1)
	assert.Equal(t, "Cancelled. /start to restart.", calls[0].Msg.Text)
	_, ok := h.sessions.Get(userID)
	assert.False(t, ok)
}

func TestConcurrentUpdatesForOneUser(t *testing.T) {
	h := newHarness(t, nil)
	h.command("start")
	h.press("teacher_login")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.bot.Handle(context.Background(), bot.Update{UserID: userID, ChatID: chatID, Text: "WRONG123"})
		}()
	}
	wg.Wait()

	calls := h.transport.reset()
	require.Len(t, calls, 5)
	locked := 0
	for _, c := range calls {
		if c.Msg.Text == "❌ Too many attempts. Locked." {
			locked++
		}
	}
	assert.Equal(t, 1, locked)
	assert.Equal(t, session.StateEnded, h.state())
}
