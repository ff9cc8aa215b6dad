// Package tcphub implements the line-oriented TCP chat server that
// multiplexes many clients, maintains presence, and broadcasts events.
//
// Concurrency model: one accept goroutine, one reader-actor goroutine per
// connection feeding a bounded dispatch worker pool, and one writer
// goroutine per connection draining a buffered write-queue channel, the only
// goroutine allowed to touch the socket for writes.
package tcphub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"sync"

	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/chatcore"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/credential"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/presence"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/ratelimit"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/whiteboard"
)

// FileTransferSpawner is the capability the hub uses to start/stop a
// per-user file-receiver listener when a LOGIN frame advertises a file port.
type FileTransferSpawner interface {
	Start(ctx context.Context, username string, port int) error
	Stop(username string)
}

// Server is the TCP Selector Hub.
type Server struct {
	logger *slog.Logger

	credGate *credential.Gate
	presence *presence.Registry
	chat     *chatcore.Core
	boards   *whiteboard.Manager
	fileXfer FileTransferSpawner
	limiter  *ratelimit.IPRateLimiter

	listener net.Listener

	connMu sync.RWMutex
	byUser map[string]*Session

	jobs chan func()

	connWg   sync.WaitGroup
	listenWg sync.WaitGroup

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	closed         chan struct{}
}

// Deps bundles the collaborators the hub dispatches frames into.
type Deps struct {
	Logger      *slog.Logger
	Credentials *credential.Gate
	Presence    *presence.Registry
	Chat        *chatcore.Core
	Whiteboards *whiteboard.Manager
	FileXfer    FileTransferSpawner
	Limiter     *ratelimit.IPRateLimiter
}

// NewServer constructs a Server. It does not start listening; call
// ListenAndServe.
func NewServer(deps Deps) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		logger:         deps.Logger,
		credGate:       deps.Credentials,
		presence:       deps.Presence,
		chat:           deps.Chat,
		boards:         deps.Whiteboards,
		fileXfer:       deps.FileXfer,
		limiter:        deps.Limiter,
		byUser:         make(map[string]*Session),
		jobs:           make(chan func(), dispatchWorkers()*4),
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
		closed:         make(chan struct{}),
	}
}

// dispatchWorkers sizes the hub-wide frame-dispatch worker pool shared by
// every connection.
func dispatchWorkers() int {
	n := runtime.GOMAXPROCS(0) * 4
	if n < 4 {
		return 4
	}
	return n
}

// ListenAndServe binds addr and runs the accept loop until Shutdown is
// called.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.shutdownCancel()
		return fmt.Errorf("tcphub: listen on %s: %w", addr, err)
	}
	s.listener = ln

	s.runWorkers(s.shutdownCtx)

	s.listenWg.Add(1)
	go s.acceptLoop(ln)

	<-s.closed
	return nil
}

// Shutdown stops accepting new connections and waits (bounded by ctx) for
// in-flight connections to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownCancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.connWg.Wait()
		s.listenWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("tcphub: shutdown complete")
	case <-ctx.Done():
		s.logger.Warn("tcphub: shutdown deadline exceeded, connections may not have closed cleanly")
	}

	close(s.closed)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.listenWg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("tcphub: accept error", "err", err.Error())
			continue
		}

		s.connWg.Add(1)
		go s.handleConnection(s.shutdownCtx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.connWg.Done()

	ip, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		ip = conn.RemoteAddr().String()
	}

	sess := newSession(conn, ip)
	defer s.teardown(ctx, sess)

	go s.writerLoop(sess)
	s.readerLoop(ctx, sess)
}

// writerLoop is the single goroutine permitted to write to sess.conn.
func (s *Server) writerLoop(sess *Session) {
	for {
		select {
		case buf := <-sess.writeQueue:
			if _, err := sess.conn.Write(buf); err != nil {
				sess.Close()
				return
			}
		case <-sess.Done():
			return
		}
	}
}

// SendTo resolves username's live session and enqueues line, returning
// whether delivery was queued. It backs the chat broadcast hook and the
// voice/whiteboard/game managers' Notifier for asynchronous notifications,
// so those packages never touch a raw net.Conn. Presence join/leave events
// are fanned out by BroadcastListener instead.
func (s *Server) SendTo(username, line string) bool {
	s.connMu.RLock()
	sess, ok := s.byUser[username]
	s.connMu.RUnlock()
	if !ok {
		return false
	}
	return sess.Send(line) == SendOK
}

func (s *Server) bindUser(username string, sess *Session) {
	s.connMu.Lock()
	s.byUser[username] = sess
	s.connMu.Unlock()
}

func (s *Server) unbindUser(username string, sess *Session) {
	s.connMu.Lock()
	if cur, ok := s.byUser[username]; ok && cur == sess {
		delete(s.byUser, username)
	}
	s.connMu.Unlock()
}

func (s *Server) teardown(ctx context.Context, sess *Session) {
	sess.Close()

	username := sess.Username()
	if username == "" {
		return
	}
	s.unbindUser(username, sess)

	if s.presence.Logout(ctx, username, sess) {
		if s.fileXfer != nil {
			s.fileXfer.Stop(username)
		}
	}
}

// BroadcastListener adapts presence Join/Leave events into USER_JOINED /
// USER_LEFT / USER_LIST frames fanned out to every live TCP session except
// the originator.
func (s *Server) BroadcastListener(ctx context.Context, ev presence.Event) {
	var kind string
	switch ev.Kind {
	case presence.EventJoined:
		kind = "USER_JOINED"
	case presence.EventLeft:
		kind = "USER_LEFT"
	}

	list := formatUserList(ev.Roster)

	s.connMu.RLock()
	defer s.connMu.RUnlock()
	for username, sess := range s.byUser {
		if username == ev.Username {
			continue
		}
		sess.Send(fmt.Sprintf("%s:%s", kind, ev.Username))
		sess.Send(list)
	}
}
