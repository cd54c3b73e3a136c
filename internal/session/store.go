// Package session keeps per-user conversation state in memory.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the position of a user in the menu tree
type State int

const (
	StateEnded State = iota
	StateUnauthenticated
	StateAwaitingAdminPassword
	StateAwaitingTeacherCode
	StateAdminMenu
	StateTeacherMenu
	StateCreateTeacherName
	StateDeleteTeacherName
	StateResetCodeName
	StateUnblockTeacherName
)

var stateNames = map[State]string{
	StateEnded:                 "ended",
	StateUnauthenticated:       "unauthenticated",
	StateAwaitingAdminPassword: "awaiting_admin_password",
	StateAwaitingTeacherCode:   "awaiting_teacher_code",
	StateAdminMenu:             "admin_menu",
	StateTeacherMenu:           "teacher_menu",
	StateCreateTeacherName:     "create_teacher_name",
	StateDeleteTeacherName:     "delete_teacher_name",
	StateResetCodeName:         "reset_code_name",
	StateUnblockTeacherName:    "unblock_teacher_name",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Role is the authenticated identity kind of a session
type Role string

const (
	RoleNone    Role = ""
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
)

// Session is the transient state of one chat user
type Session struct {
	ID          string
	UserID      int64
	State       State
	Role        Role
	TeacherName string
	TeacherCode string
	Attempts    int
	LastSeen    time.Time
}

// Store holds sessions keyed by user ID. Sessions idle for longer than the
// TTL are treated as absent.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewStore creates a store expiring sessions after ttl of inactivity.
// A ttl of zero disables expiry.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[int64]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// SetClock replaces the time source
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// New returns a fresh session for userID without storing it
func (s *Store) New(userID int64) Session {
	return Session{
		ID:     uuid.New().String(),
		UserID: userID,
		State:  StateUnauthenticated,
	}
}

// Get returns a copy of the user's session
func (s *Store) Get(userID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	if s.expired(sess) {
		delete(s.sessions, userID)
		return Session{}, false
	}
	return *sess, true
}

// Put stores sess and marks it active now
func (s *Store) Put(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.LastSeen = s.now()
	s.sessions[sess.UserID] = &sess
}

// Delete removes the user's session
func (s *Store) Delete(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Len returns the number of stored sessions, expired ones included
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops expired sessions and returns how many were removed
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *Store) expired(sess *Session) bool {
	return s.ttl > 0 && s.now().Sub(sess.LastSeen) > s.ttl
}
