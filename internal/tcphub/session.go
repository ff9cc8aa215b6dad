package tcphub

import (
	"net"
	"sync"
)

// SendStatus reports the outcome of enqueuing a line for delivery to a
// session's write queue.
type SendStatus int

const (
	SendOK SendStatus = iota
	SendClosed
	SendQueueFull
)

// writeQueueCapacity bounds the number of pending outbound lines per
// session before a slow reader starts shedding notifications.
const writeQueueCapacity = 256

// Session is one accepted TCP connection and its line-protocol state. All
// writes to the underlying socket happen on the single writer goroutine
// that drains writeQueue; every other goroutine only ever enqueues onto it.
type Session struct {
	conn net.Conn
	ip   string

	writeQueue chan []byte
	closeOnce  sync.Once
	closed     chan struct{}

	mu            sync.RWMutex
	username      string
	authenticated bool
}

func newSession(conn net.Conn, ip string) *Session {
	return &Session{
		conn:       conn,
		ip:         ip,
		writeQueue: make(chan []byte, writeQueueCapacity),
		closed:     make(chan struct{}),
	}
}

// Username returns the username bound to this session after a successful
// LOGIN, or "" before then.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) setAuthenticated(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
	s.authenticated = true
}

// Authenticated reports whether LOGIN has completed on this session.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Send enqueues line for delivery, appending the frame terminator. It never
// blocks: a full queue drops the line and reports SendQueueFull.
func (s *Session) Send(line string) SendStatus {
	select {
	case <-s.closed:
		return SendClosed
	default:
	}

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	select {
	case s.writeQueue <- buf:
		return SendOK
	default:
		return SendQueueFull
	}
}

// Close tears down the session: closes the socket and the closed channel,
// unblocking any goroutine selecting on it. Safe to call more than once and
// from any goroutine. Close also implements presence.Anchor so a Session
// can be installed directly as a presence entry's anchor.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

// Done returns a channel closed when the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}
