package filexfer

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilenameReplacesDisallowedCharacters(t *testing.T) {
	assert.Equal(t, "a_b.txt", sanitizeFilename("a/b.txt"))
	assert.Equal(t, "report.pdf", sanitizeFilename("report.pdf"))
	assert.Equal(t, "a_b_c", sanitizeFilename("a b!c"))
}

func TestResolveCollisionSuffixes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/report.pdf", []byte("x"), 0o644))

	name, err := resolveCollision(dir, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "report_1.pdf", name)
}

func TestReceiveFileHappyPath(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(nil, dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	go mgr.acceptLoop(ctx, "bob", ln)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	payload := []byte("hello world")
	fmt.Fprintf(conn, "SEND_FILE|t1|greeting.txt|%d|alice\n", len(payload))
	reader := bufio.NewReader(conn)
	ackLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ackLine, "OK|"))

	_, err = conn.Write(payload)
	require.NoError(t, err)

	result, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS\n", result)

	time.Sleep(20 * time.Millisecond)
	saved, err := os.ReadFile(dir + "/greeting.txt")
	require.NoError(t, err)
	assert.Equal(t, payload, saved)

	progress := mgr.TransfersFor("bob")
	require.Len(t, progress, 1)
	assert.Equal(t, StateCompleted, progress[0].State)

	// Transfer history lives only for the login; Stop drops it.
	mgr.Stop("bob")
	assert.Empty(t, mgr.TransfersFor("bob"))
}

func TestReceiveZeroByteFileSucceeds(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(nil, dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	go mgr.acceptLoop(ctx, "bob", ln)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	fmt.Fprintf(conn, "SEND_FILE|t3|empty.txt|0|alice\n")
	reader := bufio.NewReader(conn)
	ackLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ackLine, "OK|"))

	result, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS\n", result)

	info, err := os.Stat(dir + "/empty.txt")
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestReceiveRejectsNegativeFilesize(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(nil, dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	go mgr.acceptLoop(ctx, "bob", ln)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	fmt.Fprintf(conn, "SEND_FILE|t4|bad.txt|-5|alice\n")
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "ERROR|"))
}

func TestReceiveFileRejectsShortPayload(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(nil, dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	go mgr.acceptLoop(ctx, "bob", ln)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	fmt.Fprintf(conn, "SEND_FILE|t2|partial.txt|100|alice\n")
	reader := bufio.NewReader(conn)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)

	conn.Write([]byte("short"))
	conn.Close()

	time.Sleep(20 * time.Millisecond)
	progress := mgr.TransfersFor("bob")
	require.Len(t, progress, 1)
	assert.Equal(t, StateFailed, progress[0].State)
}
