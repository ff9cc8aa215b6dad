package tcphub

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/chatcore"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/credential"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/presence"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/ratelimit"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/whiteboard"
)

type fakeStore struct {
	users map[string]credential.User
}

func (f *fakeStore) InsertUser(ctx context.Context, u credential.User) error {
	f.users[u.Username] = u
	return nil
}
func (f *fakeStore) UserByUsername(ctx context.Context, username string) (*credential.User, error) {
	if u, ok := f.users[username]; ok {
		return &u, nil
	}
	return nil, credential.ErrUserNotFound
}
func (f *fakeStore) UserByEmail(ctx context.Context, email string) (*credential.User, error) {
	return nil, credential.ErrUserNotFound
}

// presenceChecker adapts presence.Registry to chatcore.PresenceChecker.
type presenceChecker struct{ reg *presence.Registry }

func (p presenceChecker) FindPeer(username string) bool {
	_, ok := p.reg.FindPeer(username)
	return ok
}

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()

	gate := credential.NewGate(&fakeStore{users: map[string]credential.User{}})
	_, err := gate.Register(context.Background(), "alice", "alice@example.com", "password1")
	require.NoError(t, err)

	reg := presence.NewRegistry()
	var hub *Server
	chat := chatcore.NewCore(
		presenceChecker{reg},
		func(ctx context.Context, msg chatcore.Message, exclude string) {
			for _, e := range reg.Snapshot() {
				if e.Username == exclude {
					continue
				}
				hub.SendTo(e.Username, fmt.Sprintf("CHAT_MSG:%s:%d:%s", msg.From, msg.Timestamp, msg.Text))
			}
		},
	)
	boards := whiteboard.NewManager(nil, time.Hour)

	hub = NewServer(Deps{
		Logger:      slog.Default(),
		Credentials: gate,
		Presence:    reg,
		Chat:        chat,
		Whiteboards: boards,
		Limiter:     ratelimit.NewIPRateLimiter(rate.Limit(100), 100, time.Minute),
	})
	reg.Subscribe(hub.BroadcastListener)

	return hub, func() {}
}

func TestLoginAndChatRoundTrip(t *testing.T) {
	hub, cleanup := newTestServer(t)
	defer cleanup()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	go func() {
		_ = hub.ListenAndServe(addr)
	}()
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewReader(conn)

	fmt.Fprintf(conn, "LOGIN:alice:password1\n")
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "LOGIN_SUCCESS:alice\n", line)

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "USER_LIST:")
	require.Contains(t, line, "alice,")

	fmt.Fprintf(conn, "USERS\n")
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "alice,")

	fmt.Fprintf(conn, "MSG:hello\n")
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Regexp(t, `^CHAT_MSG:alice:\d+:hello\n$`, line)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = hub.Shutdown(ctx)
}

func TestUnauthenticatedFrameRejected(t *testing.T) {
	hub, cleanup := newTestServer(t)
	defer cleanup()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	go func() {
		_ = hub.ListenAndServe(addr)
	}()
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	fmt.Fprintf(conn, "USERS\n")
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "ERROR:login first\n", line)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = hub.Shutdown(ctx)
}
