package signaling

import (
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialVoice(t *testing.T, server *httptest.Server, username string) *websocket.Conn {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	u.Scheme = "ws"
	u.Path = "/ws/voice"
	u.RawQuery = "username=" + username

	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func pairedResolver(a, b string) PeerResolver {
	return func(username string) (string, bool) {
		switch username {
		case a:
			return b, true
		case b:
			return a, true
		default:
			return "", false
		}
	}
}

func TestBinaryFramesForwardedToConnectedPeer(t *testing.T) {
	relay := NewVoiceRelay(discardLogger(), pairedResolver("alice", "bob"))
	srv := httptest.NewServer(relay)
	defer srv.Close()

	alice := dialVoice(t, srv, "alice")
	bob := dialVoice(t, srv, "bob")

	frame := []byte{0x01, 0x02, 0x03, 0x04}
	require.NoError(t, alice.WriteMessage(websocket.BinaryMessage, frame))

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, got, err := bob.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, msgType)
	require.Equal(t, frame, got)
}

func TestFramesWithoutConnectedSessionAreDropped(t *testing.T) {
	relay := NewVoiceRelay(discardLogger(), func(string) (string, bool) { return "", false })
	srv := httptest.NewServer(relay)
	defer srv.Close()

	alice := dialVoice(t, srv, "alice")
	bob := dialVoice(t, srv, "bob")

	require.NoError(t, alice.WriteMessage(websocket.BinaryMessage, []byte{0xff}))

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := bob.ReadMessage()
	require.Error(t, err) // deadline: nothing was forwarded
}

func TestTextFramesIgnoredByRelay(t *testing.T) {
	relay := NewVoiceRelay(discardLogger(), pairedResolver("alice", "bob"))
	srv := httptest.NewServer(relay)
	defer srv.Close()

	alice := dialVoice(t, srv, "alice")
	bob := dialVoice(t, srv, "bob")

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not audio")))
	require.NoError(t, alice.WriteMessage(websocket.BinaryMessage, []byte{0x0a}))

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, got, err := bob.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, msgType)
	require.Equal(t, []byte{0x0a}, got)
}
