package discovery

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResponder(t *testing.T) *Responder {
	t.Helper()
	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)), "alice", 120*time.Second, 30*time.Second)
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	r.conn = conn
	t.Cleanup(func() { _ = conn.Close() })
	return r
}

func TestHandlePacketDiscoverRepliesFromRemotePeer(t *testing.T) {
	r := newTestResponder(t)

	client, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer client.Close()

	// Simulate a remote peer by excluding this socket's address from the
	// "local" set the responder would otherwise ignore.
	clientAddr := client.LocalAddr().(*net.UDPAddr)
	delete(r.localIPs, clientAddr.IP.String())
	r.localIPs["203.0.113.5"] = true // keep the map non-empty-looking but irrelevant

	r.handlePacket([]byte("NEXUS_DISCOVER:bob:"), clientAddr)

	buf := make([]byte, 256)
	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := client.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "NEXUS_RESPONSE:alice:")
}

func TestHandlePacketDiscoverIgnoresOwnBroadcast(t *testing.T) {
	r := newTestResponder(t)
	self := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}
	r.localIPs["127.0.0.1"] = true

	r.handlePacket([]byte("NEXUS_DISCOVER:alice:"), self)

	assert.Empty(t, r.Peers())
}

func TestHandlePacketResponseUpdatesPeerCache(t *testing.T) {
	r := newTestResponder(t)
	src := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 9876}

	r.handlePacket([]byte("NEXUS_RESPONSE:bob:desktop-1"), src)

	peers := r.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, "bob", peers[0].Username)
	assert.Equal(t, "10.0.0.5", peers[0].IP)
	assert.Equal(t, "desktop-1", peers[0].AdditionalInfo)
	assert.False(t, r.IsStale(peers[0]))
}

func TestSweepEvictsStalePeers(t *testing.T) {
	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)), "alice", 20*time.Millisecond, 20*time.Millisecond)
	r.peers.SetDefault("bob", Peer{Username: "bob", IP: "10.0.0.5", LastSeen: time.Now()})

	time.Sleep(60 * time.Millisecond)

	assert.Empty(t, r.Peers())
}

func TestIsStaleFlagsOldEntriesWithoutEvicting(t *testing.T) {
	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)), "alice", time.Hour, time.Hour)
	p := Peer{Username: "bob", IP: "10.0.0.5", LastSeen: time.Now().Add(-2 * time.Hour)}
	r.peers.SetDefault("bob", p)

	peers := r.Peers()
	require.Len(t, peers, 1)
	assert.True(t, r.IsStale(peers[0]))
}
