// Package signaling implements the WebRTC signaling router: a
// username-keyed WebSocket hub that brokers voice-call signaling messages
// (call lifecycle plus SDP offer/answer/ICE exchange) between two peers,
// delegating call-state transitions to internal/voice.
package signaling

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 32
)

// VoiceCalls is the subset of call-state transitions the router drives,
// declared locally so this package never imports internal/voice directly.
// initiatorPort is fixed at 0: WS-signaled calls negotiate their real
// media path via the offer/answer/ice-candidate exchange this router
// relays, so the legacy UDP port field on the underlying session is
// informational only for this call path.
type VoiceCalls interface {
	Initiate(ctx context.Context, initiator, target, initiatorIP string) (sessionID int64, err error)
	Accept(ctx context.Context, sessionID int64, accepter string) error
	Reject(ctx context.Context, sessionID int64, user string) error
	Terminate(ctx context.Context, sessionID int64, user string) error

	// SetInitiatorOffer stores initiator's SDP offer for the session between
	// initiator and target, creating one if it doesn't exist yet, and
	// returns its id.
	SetInitiatorOffer(ctx context.Context, initiator, target, initiatorIP, sdp string) (sessionID int64, err error)
	// SetTargetAnswer stores the SDP answer for an already-tracked sessionID,
	// promoting it to CONNECTED once both halves are present.
	SetTargetAnswer(ctx context.Context, sessionID int64, sdp string) error
}

// Message is the JSON envelope every client sends and receives.
type Message struct {
	From string         `json:"from,omitempty"`
	To   string         `json:"to,omitempty"`
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Router owns the username -> connection map and upgrades incoming requests.
type Router struct {
	logger   *slog.Logger
	calls    VoiceCalls
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*conn

	// sessionParties tracks the two usernames party to a sessionID, so a
	// disconnecting user's active sessions can be resolved to a peer to
	// notify without calling back into internal/voice for a lookup.
	sessionParties map[int64][2]string
}

type conn struct {
	username string
	ws       *websocket.Conn
	send     chan Message
	closeCh  chan struct{}
	once     sync.Once
}

func (c *conn) close(code int, reason string) {
	c.once.Do(func() {
		close(c.closeCh)
		deadline := time.Now().Add(writeTimeout)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.ws.Close()
	})
}

// NewRouter constructs a Router. calls may be nil to exercise pure relay
// behavior (offer/answer/ice-candidate) without a call-state backend.
func NewRouter(logger *slog.Logger, calls VoiceCalls) *Router {
	return &Router{
		logger: logger,
		calls:  calls,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		conns:          make(map[string]*conn),
		sessionParties: make(map[int64][2]string),
	}
}

// ServeHTTP upgrades the request, reading the connecting user's username
// from the "username" query parameter, and serves the connection until it
// closes.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	username := req.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "username query parameter is required", http.StatusBadRequest)
		return
	}

	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		if r.logger != nil {
			r.logger.Debug("signaling: upgrade failed", "err", err)
		}
		return
	}
	r.serve(username, ws)
}

func (r *Router) serve(username string, ws *websocket.Conn) {
	c := &conn{username: username, ws: ws, send: make(chan Message, sendBuffer), closeCh: make(chan struct{})}

	r.mu.Lock()
	old, hadOld := r.conns[username]
	r.conns[username] = c
	r.mu.Unlock()
	if hadOld {
		old.close(websocket.CloseNormalClosure, "replaced by new connection")
	}

	if r.logger != nil {
		r.logger.Info("signaling: connected", "user", username)
	}

	go r.writePump(c)
	r.readPump(c)

	r.mu.Lock()
	if r.conns[username] == c {
		delete(r.conns, username)
	}
	r.mu.Unlock()
	c.close(websocket.CloseNormalClosure, "")

	if r.logger != nil {
		r.logger.Info("signaling: disconnected", "user", username)
	}
	r.terminateSessionsOf(username)
}

func (r *Router) readPump(c *conn) {
	defer func() { _ = c.ws.Close() }()
	c.ws.SetReadLimit(1 << 16)
	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			return
		}
		msg.From = c.username
		r.dispatch(c, msg)
	}
}

func (r *Router) writePump(c *conn) {
	for {
		select {
		case <-c.closeCh:
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

// sendTo enqueues msg for username's connection, if currently connected.
// Returns false if the user has no live connection.
func (r *Router) sendTo(username string, msg Message) bool {
	r.mu.Lock()
	c, ok := r.conns[username]
	r.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		if r.logger != nil {
			r.logger.Warn("signaling: send buffer full, dropping message", "user", username, "type", msg.Type)
		}
		return false
	}
}

func (r *Router) sendError(c *conn, text string) {
	r.sendTo(c.username, Message{Type: "system/error", Data: map[string]any{"error": text}})
}
