// Package discovery implements LAN discovery: a UDP broadcast responder
// that lets clients on the same network segment find each other without
// going through the central server, backed by a staleness-swept peer cache.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	msgDiscover = "NEXUS_DISCOVER"
	msgResponse = "NEXUS_RESPONSE"
)

// Peer is one entry in the discovery cache.
type Peer struct {
	Username       string
	IP             string
	AdditionalInfo string
	LastSeen       time.Time
}

// Responder is the LAN Discovery responder. It is safe for concurrent use.
type Responder struct {
	logger     *slog.Logger
	username   string
	conn       *net.UDPConn
	staleAfter time.Duration
	localIPs   map[string]bool

	peers *cache.Cache

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New constructs a Responder. username identifies this process's own
// advertised presence when replying to a NEXUS_DISCOVER broadcast. A peer
// not heard from in staleAfter stays in the cache, flagged by IsStale, for
// one further sweepEvery; the cache then expires it, and its janitor, which
// runs every sweepEvery, deletes it.
func New(logger *slog.Logger, username string, staleAfter, sweepEvery time.Duration) *Responder {
	return &Responder{
		logger:     logger,
		username:   username,
		staleAfter: staleAfter,
		localIPs:   localInterfaceIPs(),
		peers:      cache.New(staleAfter+sweepEvery, sweepEvery),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

func localInterfaceIPs() map[string]bool {
	out := map[string]bool{"127.0.0.1": true, "::1": true}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return out
	}
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok {
			out[ipNet.IP.String()] = true
		}
	}
	return out
}

// ListenAndServe binds addr as a UDP broadcast listener and serves
// discovery requests until Stop is called. It blocks until shutdown
// completes.
func (r *Responder) ListenAndServe(ctx context.Context, addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		close(r.doneCh)
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		close(r.doneCh)
		return err
	}
	if err := enableBroadcast(conn); err != nil {
		// Announce will fail against a broadcast address without this, but
		// the responder side still works; keep serving.
		r.logger.Warn("discovery: enabling SO_BROADCAST failed", "err", err.Error())
	}
	r.conn = conn

	buf := make([]byte, 1024)
	for {
		select {
		case <-r.stopCh:
			close(r.doneCh)
			return nil
		case <-ctx.Done():
			_ = conn.Close()
			close(r.doneCh)
			return nil
		default:
		}

		// A bounded read deadline lets the loop notice stopCh/ctx.Done
		// between reads without blocking forever on an idle socket.
		_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				close(r.doneCh)
				return nil
			}
			r.logger.Warn("discovery: read error", "err", err.Error())
			continue
		}

		r.handlePacket(buf[:n], src)
	}
}

// Stop signals the serve loop to exit and waits for it to finish.
func (r *Responder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.conn != nil {
			_ = r.conn.Close()
		}
	})
	<-r.doneCh
}

func (r *Responder) handlePacket(pkt []byte, src *net.UDPAddr) {
	fields := strings.SplitN(string(pkt), ":", 3)
	if len(fields) < 2 {
		return
	}
	msgType, username := fields[0], fields[1]
	var additionalInfo string
	if len(fields) == 3 {
		additionalInfo = fields[2]
	}

	switch msgType {
	case msgDiscover:
		if r.localIPs[src.IP.String()] {
			return // ignore our own broadcast
		}
		hostname, _ := os.Hostname()
		reply := fmt.Sprintf("%s:%s:%s", msgResponse, r.username, hostname)
		if _, err := r.conn.WriteToUDP([]byte(reply), src); err != nil {
			r.logger.Warn("discovery: reply failed", "err", err.Error(), "to", src.String())
		}
	case msgResponse:
		r.peers.Set(username, Peer{
			Username:       username,
			IP:             src.IP.String(),
			AdditionalInfo: additionalInfo,
			LastSeen:       time.Now(),
		}, cache.DefaultExpiration)
	}
}

// enableBroadcast sets SO_BROADCAST on conn's socket so Announce may send
// to a broadcast destination.
func enableBroadcast(conn *net.UDPConn) error {
	rc, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := rc.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// Announce broadcasts a NEXUS_DISCOVER message for username to the limited
// broadcast address (255.255.255.255) on the responder's own listening port.
func (r *Responder) Announce(ctx context.Context, username, additionalInfo string) error {
	if r.conn == nil {
		return errors.New("discovery: responder is not listening")
	}
	broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: r.conn.LocalAddr().(*net.UDPAddr).Port}
	msg := fmt.Sprintf("%s:%s:%s", msgDiscover, username, additionalInfo)
	_, err := r.conn.WriteToUDP([]byte(msg), broadcastAddr)
	return err
}

// Peers returns every cached peer, including stale ones the cache has not
// yet expired.
func (r *Responder) Peers() []Peer {
	items := r.peers.Items()
	out := make([]Peer, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(Peer))
	}
	return out
}

// IsStale reports whether p's LastSeen age exceeds the responder's
// staleness threshold.
func (r *Responder) IsStale(p Peer) bool {
	return time.Since(p.LastSeen) > r.staleAfter
}
