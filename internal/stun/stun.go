// Package stun implements a minimal RFC 5389 Binding Request/Response UDP
// listener that returns a XOR-MAPPED-ADDRESS attribute, used by WebRTC
// clients for NAT discovery ahead of the signaling exchange
// internal/signaling brokers.
//
// The wire layout is small and fixed enough that hand-rolling it with
// encoding/binary is more direct than pulling in a general-purpose STUN/TURN
// library, which would also carry allocation, relaying, and long-term
// credential auth that nothing here needs.
package stun

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

const (
	magicCookie = 0x2112A442

	msgTypeBindingRequest  = 0x0001
	msgTypeBindingResponse = 0x0101

	attrXORMappedAddress = 0x0020
	familyIPv4           = 0x01

	headerSize = 20
)

// Stats counts packets the responder has seen, for observability.
type Stats struct {
	Requests int64
	Dropped  int64
}

// Responder is the STUN Responder. It is safe for concurrent use.
type Responder struct {
	logger *slog.Logger
	conn   *net.UDPConn

	jobs chan func()

	requests atomic.Int64
	dropped  atomic.Int64

	wg       sync.WaitGroup
	stopOnce sync.Once
	closed   chan struct{}
}

// New constructs a Responder. It does not bind a socket; call ListenAndServe.
func New(logger *slog.Logger) *Responder {
	return &Responder{
		logger: logger,
		jobs:   make(chan func(), 256),
		closed: make(chan struct{}),
	}
}

// ListenAndServe binds addr (UDP) and serves Binding Requests until Stop is
// called. It blocks until the listener is closed.
func (r *Responder) ListenAndServe(ctx context.Context, addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	r.conn = conn

	workers := 4
	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.runWorker(ctx)
	}

	buf := make([]byte, 2048)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(r.closed)
				return nil
			}
			r.logger.Warn("stun: read error", "err", err.Error())
			continue
		}

		pkt := make([]byte, n)
		copy(pkt, buf[:n])

		select {
		case r.jobs <- func() { r.handlePacket(pkt, src) }:
		default:
			r.dropped.Add(1)
			r.logger.Warn("stun: worker queue full, dropping packet", "from", src.String())
		}
	}
}

func (r *Responder) runWorker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case job := <-r.jobs:
			job()
		case <-ctx.Done():
			return
		}
	}
}

// Stop closes the listening socket, unblocking ListenAndServe, and waits
// for the worker goroutines to exit. Workers exit only once the ctx passed
// to ListenAndServe is cancelled, so Stop returns after that cancellation.
func (r *Responder) Stop() {
	r.stopOnce.Do(func() {
		if r.conn != nil {
			_ = r.conn.Close()
		}
	})
	r.wg.Wait()
}

// Stats returns a snapshot of packet counters.
func (r *Responder) Stats() Stats {
	return Stats{Requests: r.requests.Load(), Dropped: r.dropped.Load()}
}

func (r *Responder) handlePacket(pkt []byte, src *net.UDPAddr) {
	if len(pkt) < headerSize {
		r.dropped.Add(1)
		return
	}

	msgType := binary.BigEndian.Uint16(pkt[0:2])
	msgLen := binary.BigEndian.Uint16(pkt[2:4])
	cookie := binary.BigEndian.Uint32(pkt[4:8])
	txID := pkt[8:20]

	if msgType != msgTypeBindingRequest || cookie != magicCookie {
		r.dropped.Add(1)
		return
	}
	_ = msgLen // attributes on the request are not inspected; only the header matters here.

	r.requests.Add(1)

	resp := buildBindingResponse(txID, src)
	if _, err := r.conn.WriteToUDP(resp, src); err != nil {
		r.logger.Warn("stun: write error", "err", err.Error(), "to", src.String())
	}
}

// buildBindingResponse constructs a Binding Response carrying a single
// XOR-MAPPED-ADDRESS attribute describing src, per RFC 5389 §15.2.
func buildBindingResponse(txID []byte, src *net.UDPAddr) []byte {
	attr := xorMappedAddressAttr(src)

	out := make([]byte, headerSize+len(attr))
	binary.BigEndian.PutUint16(out[0:2], msgTypeBindingResponse)
	binary.BigEndian.PutUint16(out[2:4], uint16(len(attr)))
	binary.BigEndian.PutUint32(out[4:8], magicCookie)
	copy(out[8:20], txID)
	copy(out[20:], attr)
	return out
}

func xorMappedAddressAttr(src *net.UDPAddr) []byte {
	ip4 := src.IP.To4()
	if ip4 == nil {
		// IPv6 sources are not expected on this deployment's LAN/NAT
		// discovery path; fall back to a zeroed address rather than
		// silently mis-encoding a v6 one as v4.
		ip4 = net.IPv4zero.To4()
	}

	var cookie [4]byte
	binary.BigEndian.PutUint32(cookie[:], magicCookie)

	xorPort := uint16(src.Port) ^ uint16(magicCookie>>16)

	var xorAddr [4]byte
	for i := 0; i < 4; i++ {
		xorAddr[i] = ip4[i] ^ cookie[i]
	}

	attr := make([]byte, 4+8) // 4-byte type+length header, 8-byte value
	binary.BigEndian.PutUint16(attr[0:2], attrXORMappedAddress)
	binary.BigEndian.PutUint16(attr[2:4], 8) // value length: reserved(1)+family(1)+port(2)+addr(4)
	attr[4] = 0                              // reserved
	attr[5] = familyIPv4
	binary.BigEndian.PutUint16(attr[6:8], xorPort)
	copy(attr[8:12], xorAddr[:])
	return attr
}
