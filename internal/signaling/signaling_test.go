package signaling

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fakeCalls struct {
	nextID    int64
	initiated map[int64][2]string
}

func newFakeCalls() *fakeCalls {
	return &fakeCalls{initiated: make(map[int64][2]string)}
}

func (f *fakeCalls) Initiate(ctx context.Context, initiator, target, initiatorIP string) (int64, error) {
	f.nextID++
	f.initiated[f.nextID] = [2]string{initiator, target}
	return f.nextID, nil
}

func (f *fakeCalls) Accept(ctx context.Context, sessionID int64, accepter string) error { return nil }
func (f *fakeCalls) Reject(ctx context.Context, sessionID int64, user string) error     { return nil }
func (f *fakeCalls) Terminate(ctx context.Context, sessionID int64, user string) error  { return nil }

func (f *fakeCalls) SetInitiatorOffer(ctx context.Context, initiator, target, initiatorIP, sdp string) (int64, error) {
	f.nextID++
	f.initiated[f.nextID] = [2]string{initiator, target}
	return f.nextID, nil
}

func (f *fakeCalls) SetTargetAnswer(ctx context.Context, sessionID int64, sdp string) error { return nil }

func dialAs(t *testing.T, server *httptest.Server, username string) *websocket.Conn {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	u.Scheme = "ws"
	u.Path = "/ws/signaling"
	u.RawQuery = "username=" + username

	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCallInitiateNotifiesTargetAndCaller(t *testing.T) {
	calls := newFakeCalls()
	r := NewRouter(discardLogger(), calls)
	srv := httptest.NewServer(r)
	defer srv.Close()

	alice := dialAs(t, srv, "alice")
	bob := dialAs(t, srv, "bob")

	require.NoError(t, alice.WriteJSON(Message{Type: "call-initiate", To: "bob"}))

	var incoming Message
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, bob.ReadJSON(&incoming))
	require.Equal(t, "incoming-call", incoming.Type)
	require.Equal(t, "alice", incoming.Data["caller"])

	var ack Message
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, alice.ReadJSON(&ack))
	require.Equal(t, "call-initiated", ack.Type)
}

func TestOfferRelayedVerbatimToTarget(t *testing.T) {
	r := NewRouter(discardLogger(), nil)
	srv := httptest.NewServer(r)
	defer srv.Close()

	alice := dialAs(t, srv, "alice")
	bob := dialAs(t, srv, "bob")

	require.NoError(t, alice.WriteJSON(Message{Type: "offer", To: "bob", Data: map[string]any{"sdp": "v=0..."}}))

	var got Message
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, bob.ReadJSON(&got))
	require.Equal(t, "offer", got.Type)
	require.Equal(t, "alice", got.From)
	require.Equal(t, "v=0...", got.Data["sdp"])
}

func TestOfferToDisconnectedTargetProducesSystemError(t *testing.T) {
	r := NewRouter(discardLogger(), nil)
	srv := httptest.NewServer(r)
	defer srv.Close()

	alice := dialAs(t, srv, "alice")
	require.NoError(t, alice.WriteJSON(Message{Type: "offer", To: "ghost", Data: map[string]any{"sdp": "x"}}))

	var got Message
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, alice.ReadJSON(&got))
	require.Equal(t, "system/error", got.Type)
	require.True(t, strings.Contains(got.Data["error"].(string), "ghost"))
}

func TestDisconnectNotifiesActivePeerAndTerminatesSession(t *testing.T) {
	calls := newFakeCalls()
	r := NewRouter(discardLogger(), calls)
	srv := httptest.NewServer(r)
	defer srv.Close()

	alice := dialAs(t, srv, "alice")
	bob := dialAs(t, srv, "bob")

	require.NoError(t, alice.WriteJSON(Message{Type: "call-initiate", To: "bob"}))

	var incoming Message
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, bob.ReadJSON(&incoming))
	sessionID := int64(incoming.Data["sessionId"].(float64))

	var ack Message
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, alice.ReadJSON(&ack))

	require.NoError(t, alice.Close())

	var disconnected Message
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, bob.ReadJSON(&disconnected))
	require.Equal(t, "peer-disconnected", disconnected.Type)
	require.Equal(t, float64(sessionID), disconnected.Data["sessionId"])
	require.Equal(t, "alice", disconnected.Data["peer"])
}

func TestUnrecognizedMessageTypeProducesSystemError(t *testing.T) {
	r := NewRouter(discardLogger(), nil)
	srv := httptest.NewServer(r)
	defer srv.Close()

	alice := dialAs(t, srv, "alice")
	require.NoError(t, alice.WriteJSON(Message{Type: "not-a-real-type"}))

	var got Message
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, alice.ReadJSON(&got))
	require.Equal(t, "system/error", got.Type)
}
