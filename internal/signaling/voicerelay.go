package signaling

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// PeerResolver resolves the other participant of the CONNECTED voice
// session username is currently party to.
type PeerResolver func(username string) (peer string, ok bool)

// VoiceRelay is the server-relayed audio fallback for calls whose direct
// media path fails: each participant connects to /ws/voice and every binary
// frame it sends is forwarded to the other participant of its CONNECTED
// voice session. Text frames are ignored; signaling stays on /ws/signaling.
type VoiceRelay struct {
	logger  *slog.Logger
	resolve PeerResolver

	mu    sync.Mutex
	conns map[string]*relayConn
}

type relayConn struct {
	username string
	ws       *websocket.Conn
	send     chan []byte
	closeCh  chan struct{}
	once     sync.Once
}

func (c *relayConn) close() {
	c.once.Do(func() {
		close(c.closeCh)
		_ = c.ws.Close()
	})
}

// relaySendBuffer bounds queued audio frames per connection; at 20ms per
// packet this is about 1.3s of audio before a slow peer starts shedding.
const relaySendBuffer = 64

// NewVoiceRelay constructs a VoiceRelay. resolve decides, per inbound
// frame, where it should be forwarded.
func NewVoiceRelay(logger *slog.Logger, resolve PeerResolver) *VoiceRelay {
	return &VoiceRelay{
		logger:  logger,
		resolve: resolve,
		conns:   make(map[string]*relayConn),
	}
}

// ServeHTTP upgrades the request, reading the participant's username from
// the "username" query parameter, and relays frames until the connection
// closes.
func (v *VoiceRelay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	username := req.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "username query parameter is required", http.StatusBadRequest)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}
	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		if v.logger != nil {
			v.logger.Debug("voicerelay: upgrade failed", "err", err)
		}
		return
	}

	c := &relayConn{username: username, ws: ws, send: make(chan []byte, relaySendBuffer), closeCh: make(chan struct{})}

	v.mu.Lock()
	old, hadOld := v.conns[username]
	v.conns[username] = c
	v.mu.Unlock()
	if hadOld {
		old.close()
	}

	go v.writePump(c)
	v.readPump(c)

	v.mu.Lock()
	if v.conns[username] == c {
		delete(v.conns, username)
	}
	v.mu.Unlock()
	c.close()
}

func (v *VoiceRelay) readPump(c *relayConn) {
	defer func() { _ = c.ws.Close() }()
	c.ws.SetReadLimit(1 << 16)
	for {
		msgType, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		peer, ok := v.resolve(c.username)
		if !ok {
			continue // no CONNECTED session; drop the frame
		}

		v.mu.Lock()
		pc, connected := v.conns[peer]
		v.mu.Unlock()
		if !connected {
			continue
		}

		select {
		case pc.send <- payload:
		default:
			// Shedding beats buffering for live audio: the peer is behind,
			// and stale packets are worthless by the time they'd drain.
		}
	}
}

func (v *VoiceRelay) writePump(c *relayConn) {
	for {
		select {
		case <-c.closeCh:
			return
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				return
			}
		}
	}
}
