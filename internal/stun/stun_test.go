package stun

import (
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildBindingResponseRoundTrips(t *testing.T) {
	src := &net.UDPAddr{IP: net.ParseIP("203.0.113.42"), Port: 54321}
	txID := make([]byte, 12)
	for i := range txID {
		txID[i] = byte(i + 1)
	}

	resp := buildBindingResponse(txID, src)

	require.GreaterOrEqual(t, len(resp), headerSize)
	assert.Equal(t, uint16(msgTypeBindingResponse), binary.BigEndian.Uint16(resp[0:2]))
	assert.Equal(t, uint32(magicCookie), binary.BigEndian.Uint32(resp[4:8]))
	assert.Equal(t, txID, resp[8:20])

	attr := resp[headerSize:]
	require.Len(t, attr, 12)
	assert.Equal(t, uint16(attrXORMappedAddress), binary.BigEndian.Uint16(attr[0:2]))
	assert.Equal(t, uint16(8), binary.BigEndian.Uint16(attr[2:4]))
	assert.Equal(t, byte(familyIPv4), attr[5])

	xorPort := binary.BigEndian.Uint16(attr[6:8])
	recoveredPort := xorPort ^ uint16(magicCookie>>16)
	assert.Equal(t, uint16(src.Port), recoveredPort)

	var cookie [4]byte
	binary.BigEndian.PutUint32(cookie[:], magicCookie)
	var recoveredIP net.IP = make(net.IP, 4)
	for i := 0; i < 4; i++ {
		recoveredIP[i] = attr[8+i] ^ cookie[i]
	}
	assert.Equal(t, src.IP.To4(), recoveredIP)
}

func TestHandlePacketDropsShortAndNonBindingPackets(t *testing.T) {
	r := &Responder{logger: nil}
	r.logger = discardLogger()

	// Too short: below headerSize.
	r.handlePacket(make([]byte, 10), &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1})
	assert.Equal(t, int64(1), r.Stats().Dropped)
	assert.Equal(t, int64(0), r.Stats().Requests)

	// Right size, wrong type/cookie.
	pkt := make([]byte, headerSize)
	binary.BigEndian.PutUint16(pkt[0:2], 0x0003) // not a Binding Request
	binary.BigEndian.PutUint32(pkt[4:8], magicCookie)
	r.handlePacket(pkt, &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1})
	assert.Equal(t, int64(2), r.Stats().Dropped)
}

func TestHandlePacketAcceptsWellFormedBindingRequest(t *testing.T) {
	r := &Responder{logger: discardLogger()}
	// handlePacket tries to reply via r.conn, which is nil here; construct
	// a loopback pair instead so the write path is exercised end to end.
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer conn.Close()
	r.conn = conn

	client, err := net.DialUDP("udp", nil, conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	pkt := make([]byte, headerSize)
	binary.BigEndian.PutUint16(pkt[0:2], msgTypeBindingRequest)
	binary.BigEndian.PutUint32(pkt[4:8], magicCookie)

	clientAddr := client.LocalAddr().(*net.UDPAddr)
	r.handlePacket(pkt, clientAddr)

	assert.Equal(t, int64(1), r.Stats().Requests)

	buf := make([]byte, 2048)
	n, err := client.Read(buf)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, headerSize)
	assert.Equal(t, uint16(msgTypeBindingResponse), binary.BigEndian.Uint16(buf[0:2]))
}
