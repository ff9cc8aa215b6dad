// Package whiteboard implements two-party drawing sessions with an ordered,
// append-only command log.
package whiteboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("whiteboard: session not found")
	ErrNotParticipant = errors.New("whiteboard: caller is not a participant in this session")
	ErrSamePair       = errors.New("whiteboard: a session requires two distinct participants")
)

// CommandKind distinguishes a Draw from a Clear entry in a session's log.
type CommandKind int

const (
	KindDraw CommandKind = iota
	KindClear
)

// Command is one append-only log entry.
type Command struct {
	Kind      CommandKind
	User      string
	X1, Y1    float64
	X2, Y2    float64
	Color     string
	Thickness float64
	At        time.Time
}

// Session is a two-party whiteboard pairing.
type Session struct {
	ID           string
	Initiator    string
	Participant  string
	CreatedAt    time.Time
	LastActivity time.Time
	log          []Command
}

func (s *Session) hasParticipant(user string) bool {
	return s.Initiator == user || s.Participant == user
}

func (s *Session) otherParticipant(user string) string {
	if s.Initiator == user {
		return s.Participant
	}
	return s.Initiator
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}

// Notifier pushes a line to username's live TCP session, if any.
type Notifier func(username, line string)

// Manager is the Whiteboard Session Manager. It is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byPair   map[string]string // pairKey -> sessionID

	notify  Notifier
	timeout time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewManager constructs a Manager. timeout is the idle duration after which
// the background sweeper evicts a session (default 1 hour).
func NewManager(notify Notifier, timeout time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		byPair:   make(map[string]string),
		notify:   notify,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

// RunSweeper runs the idle-eviction loop until ctx is cancelled or Stop is
// called.
func (m *Manager) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(m.timeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// Stop halts the sweeper goroutine started by RunSweeper.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.timeout)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(m.sessions, id)
			delete(m.byPair, pairKey(s.Initiator, s.Participant))
		}
	}
}

// Create returns the existing session id for the unordered pair {a,b} if
// one exists, otherwise creates a new one.
func (m *Manager) Create(ctx context.Context, a, b string) (string, error) {
	if a == b {
		return "", ErrSamePair
	}
	key := pairKey(a, b)

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byPair[key]; ok {
		return id, nil
	}

	now := time.Now()
	sess := &Session{
		ID:           uuid.NewString(),
		Initiator:    a,
		Participant:  b,
		CreatedAt:    now,
		LastActivity: now,
	}
	m.sessions[sess.ID] = sess
	m.byPair[key] = sess.ID
	return sess.ID, nil
}

func (m *Manager) find(sessionID, user string) (*Session, error) {
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if !sess.hasParticipant(user) {
		return nil, ErrNotParticipant
	}
	return sess, nil
}

// Draw appends a drawing command from user to the session log and notifies
// the other participant's live TCP session, if any, mirroring the command
// the same way whether it originated over TCP or HTTP. Returns the other
// participant's username.
func (m *Manager) Draw(ctx context.Context, sessionID, user string, x1, y1, x2, y2 float64, color string, thickness float64) (string, error) {
	m.mu.Lock()
	sess, err := m.find(sessionID, user)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	sess.log = append(sess.log, Command{
		Kind: KindDraw, User: user, X1: x1, Y1: y1, X2: x2, Y2: y2,
		Color: color, Thickness: thickness, At: time.Now(),
	})
	sess.LastActivity = time.Now()
	other := sess.otherParticipant(user)
	m.mu.Unlock()

	if m.notify != nil {
		m.notify(other, fmt.Sprintf("WHITEBOARD_COMMAND:%s:DRAW:%s:%.2f:%.2f:%.2f:%.2f:%s:%.2f", sessionID, user, x1, y1, x2, y2, color, thickness))
	}
	return other, nil
}

// Clear truncates the session log, appends a Clear marker, and notifies the
// other participant's live TCP session, if any. Returns the other
// participant's username.
func (m *Manager) Clear(ctx context.Context, sessionID, user string) (string, error) {
	m.mu.Lock()
	sess, err := m.find(sessionID, user)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	sess.log = []Command{{Kind: KindClear, User: user, At: time.Now()}}
	sess.LastActivity = time.Now()
	other := sess.otherParticipant(user)
	m.mu.Unlock()

	if m.notify != nil {
		m.notify(other, fmt.Sprintf("WHITEBOARD_COMMAND:%s:CLEAR:%s", sessionID, user))
	}
	return other, nil
}

// Commands returns a stable ordered copy of the session's command log.
func (m *Manager) Commands(ctx context.Context, sessionID, user string) ([]Command, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, err := m.find(sessionID, user)
	if err != nil {
		return nil, err
	}
	out := make([]Command, len(sess.log))
	copy(out, sess.log)
	return out, nil
}

// SessionsFor returns every live session user is a participant in.
func (m *Manager) SessionsFor(user string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Session
	for _, sess := range m.sessions {
		if sess.hasParticipant(user) {
			out = append(out, sess)
		}
	}
	return out
}

// Close removes the session and notifies the other participant, if live.
func (m *Manager) Close(ctx context.Context, sessionID, user string) error {
	m.mu.Lock()
	sess, err := m.find(sessionID, user)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	delete(m.sessions, sessionID)
	delete(m.byPair, pairKey(sess.Initiator, sess.Participant))
	other := sess.Participant
	if other == user {
		other = sess.Initiator
	}
	m.mu.Unlock()

	if m.notify != nil {
		m.notify(other, fmt.Sprintf("WHITEBOARD_CLOSED:%s", user))
	}
	return nil
}
