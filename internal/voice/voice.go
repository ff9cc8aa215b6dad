// Package voice manages the lifecycle of peer-to-peer voice calls brokered
// by the server.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// State is a voice session's lifecycle state.
type State int

const (
	StateRinging State = iota
	StateAccepted
	StateConnected
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRinging:
		return "RINGING"
	case StateAccepted:
		return "ACCEPTED"
	case StateConnected:
		return "CONNECTED"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrSameUser        = errors.New("voice: initiator and target must differ")
	ErrTargetOffline   = errors.New("voice: target is not reachable for voice")
	ErrNotFound        = errors.New("voice: session not found")
	ErrNotParticipant  = errors.New("voice: caller is not a participant in this session")
	ErrNotRinging      = errors.New("voice: session is not awaiting an answer")
	ErrAlreadyTerminal = errors.New("voice: session is already terminated")
)

// Session is a single voice call between two users.
type Session struct {
	ID             int64
	Initiator      string
	Target         string
	InitiatorIP    string
	InitiatorPort  int
	TargetIP       string
	TargetPort     int
	State          State
	CreatedAt      time.Time
	AcceptedAt     time.Time
	LastActivity   time.Time
	InitiatorOffer string
	TargetAnswer   string
}

// connected reports whether both SDP halves are present; once they are, the
// session is CONNECTED.
func (s *Session) connected() bool {
	return s.InitiatorOffer != "" && s.TargetAnswer != ""
}

// snapshot returns a copy of s. Accessors hand these out instead of the live
// struct so readers never observe a session mid-mutation.
func (s *Session) snapshot() *Session {
	cp := *s
	return &cp
}

// PeerLookup resolves whether target currently has a voice-capable presence
// entry (voiceUdp > 0), returning its address. Declared locally (not
// imported from presence) to keep the dependency a capability, not a
// concrete package.
type PeerLookup func(username string) (ip string, voiceUDP int, ok bool)

// Notifier pushes a line to username's live TCP session, if any.
type Notifier func(username, line string)

// Manager is the Voice Session Manager. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	nextID   int64

	lookup  PeerLookup
	notify  Notifier
	timeout time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewManager constructs a Manager. timeout is the idle duration after which
// the background sweeper removes a session (default 30 minutes).
func NewManager(lookup PeerLookup, notify Notifier, timeout time.Duration) *Manager {
	return &Manager{
		sessions: make(map[int64]*Session),
		lookup:   lookup,
		notify:   notify,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

// RunSweeper blocks, evicting idle sessions once every timeout, until ctx
// is cancelled or Stop is called.
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
		}
	}
}

// findActive returns the non-terminated session between a and b (unordered),
// if any. Callers must hold m.mu.
func (m *Manager) findActive(a, b string) *Session {
	for _, s := range m.sessions {
		if s.State == StateTerminated {
			continue
		}
		if (s.Initiator == a && s.Target == b) || (s.Initiator == b && s.Target == a) {
			return s
		}
	}
	return nil
}

// Initiate creates a new RINGING session from initiator to target, or
// returns the existing non-terminated session for that pair if one already
// exists (mirrors whiteboard.Manager.Create's idempotent-pair semantics).
func (m *Manager) Initiate(ctx context.Context, initiator, target, initiatorIP string, initiatorPort int) (*Session, error) {
	if initiator == target {
		return nil, ErrSameUser
	}
	targetIP, targetVoiceUDP, ok := m.lookup(target)
	if !ok || targetVoiceUDP <= 0 {
		return nil, ErrTargetOffline
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing := m.findActive(initiator, target); existing != nil {
		return existing.snapshot(), nil
	}

	now := time.Now()
	sess := &Session{
		ID:            atomic.AddInt64(&m.nextID, 1),
		Initiator:     initiator,
		Target:        target,
		InitiatorIP:   initiatorIP,
		InitiatorPort: initiatorPort,
		TargetIP:      targetIP,
		TargetPort:    targetVoiceUDP,
		State:         StateRinging,
		CreatedAt:     now,
		LastActivity:  now,
	}
	m.sessions[sess.ID] = sess

	if m.notify != nil {
		m.notify(target, fmt.Sprintf("VOICE_RINGING:%d:%s", sess.ID, initiator))
	}

	return sess.snapshot(), nil
}

// Accept records the accepter's address and transitions the session to
// ACCEPTED. Only a RINGING session can be accepted; a duplicate accept must
// not demote a session that has already progressed.
func (m *Manager) Accept(ctx context.Context, sessionID int64, accepter string, port int) (*Session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if sess.Target != accepter {
		m.mu.Unlock()
		return nil, ErrNotParticipant
	}
	if sess.State != StateRinging {
		m.mu.Unlock()
		return nil, ErrNotRinging
	}
	sess.TargetPort = port
	sess.State = StateAccepted
	sess.AcceptedAt = time.Now()
	sess.LastActivity = sess.AcceptedAt
	initiator := sess.Initiator
	snap := sess.snapshot()
	m.mu.Unlock()

	if m.notify != nil {
		m.notify(initiator, fmt.Sprintf("VOICE_ACCEPTED:%d:%s", sessionID, accepter))
	}
	return snap, nil
}

// Reject transitions the session to TERMINATED and removes it.
func (m *Manager) Reject(ctx context.Context, sessionID int64, user string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if sess.Initiator != user && sess.Target != user {
		m.mu.Unlock()
		return ErrNotParticipant
	}
	delete(m.sessions, sessionID)
	peer := sess.Initiator
	if peer == user {
		peer = sess.Target
	}
	m.mu.Unlock()

	if m.notify != nil {
		m.notify(peer, fmt.Sprintf("VOICE_TERMINATED:%d:%s", sessionID, user))
	}
	return nil
}

// Terminate ends a session regardless of its current state and removes it.
func (m *Manager) Terminate(ctx context.Context, sessionID int64, user string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if sess.Initiator != user && sess.Target != user {
		m.mu.Unlock()
		return ErrNotParticipant
	}
	delete(m.sessions, sessionID)
	peer := sess.Initiator
	if peer == user {
		peer = sess.Target
	}
	m.mu.Unlock()

	if m.notify != nil {
		m.notify(peer, fmt.Sprintf("VOICE_TERMINATED:%d:%s", sessionID, user))
	}
	return nil
}

// GetIncoming returns the RINGING sessions where user is the target.
func (m *Manager) GetIncoming(user string) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for _, s := range m.sessions {
		if s.Target == user && s.State == StateRinging {
			out = append(out, s.snapshot())
		}
	}
	return out
}

// GetSession retrieves a session by id, bumping its last-activity clock.
func (m *Manager) GetSession(sessionID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	sess.LastActivity = time.Now()
	return sess.snapshot(), nil
}

// ConnectedPeer returns the other participant of the CONNECTED session user
// is currently party to, if any. The voice relay uses this to decide where a
// binary audio frame should be forwarded.
func (m *Manager) ConnectedPeer(user string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.State != StateConnected {
			continue
		}
		switch user {
		case s.Initiator:
			return s.Target, true
		case s.Target:
			return s.Initiator, true
		}
	}
	return "", false
}

// SetInitiatorOffer stores the initiator's SDP offer, promoting the session
// to CONNECTED if the target's answer is already present.
func (m *Manager) SetInitiatorOffer(sessionID int64, sdp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	sess.InitiatorOffer = sdp
	sess.LastActivity = time.Now()
	if sess.connected() {
		sess.State = StateConnected
	}
	return nil
}

// SetTargetAnswer stores the target's SDP answer, promoting the session to
// CONNECTED if the initiator's offer is already present.
func (m *Manager) SetTargetAnswer(sessionID int64, sdp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	sess.TargetAnswer = sdp
	sess.LastActivity = time.Now()
	if sess.connected() {
		sess.State = StateConnected
	}
	return nil
}

// SetInitiatorOfferForPair stores initiator's SDP offer for the
// non-terminated session between initiator and target, creating a fresh
// RINGING session if none exists yet: unlike the HTTP `/api/voice/*` path,
// WS signaling can send an offer before any initiate/accept handshake.
// Returns the session's id.
func (m *Manager) SetInitiatorOfferForPair(initiator, target, initiatorIP, sdp string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.findActive(initiator, target)
	if sess == nil {
		now := time.Now()
		sess = &Session{
			ID:           atomic.AddInt64(&m.nextID, 1),
			Initiator:    initiator,
			Target:       target,
			InitiatorIP:  initiatorIP,
			State:        StateRinging,
			CreatedAt:    now,
			LastActivity: now,
		}
		m.sessions[sess.ID] = sess
	}
	sess.InitiatorOffer = sdp
	sess.LastActivity = time.Now()
	if sess.connected() {
		sess.State = StateConnected
	}
	return sess.ID
}
