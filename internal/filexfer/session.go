package filexfer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// sessionState is the explicit per-connection receive state machine: a sum
// type driven by an explicit step function, rather than behavior implied by
// which callback fires.
type sessionState int

const (
	readingHeader sessionState = iota
	writingAck
	readingFileData
	writingSuccess
	completed
	failed
)

// transferSession drives one accepted connection through the receive
// protocol: SEND_FILE header, OK/ERROR ack, exactly filesize raw bytes,
// SUCCESS/ERROR trailer.
type transferSession struct {
	conn   net.Conn
	reader *bufio.Reader

	recipient string
	progress  *progressTable

	downloadDir string

	transferID string
	filename   string
	savedName  string
	filesize   int64
	sender     string

	state sessionState
	err   error
}

func (m *Manager) driveSession(ctx context.Context, recipient string, conn net.Conn) {
	defer conn.Close()

	sess := &transferSession{
		conn:        conn,
		reader:      bufio.NewReader(conn),
		recipient:   recipient,
		progress:    m.progress,
		downloadDir: m.downloadDir,
		state:       readingHeader,
	}

	for sess.state != completed && sess.state != failed {
		sess.step()
	}

	if sess.state == failed && m.logger != nil {
		m.logger.Warn("filexfer: transfer failed", "recipient", recipient, "transferId", sess.transferID, "err", sess.err)
	}
}

// step advances the state machine by exactly one transition.
func (s *transferSession) step() {
	switch s.state {
	case readingHeader:
		s.readHeader()
	case writingAck:
		s.writeAck()
	case readingFileData:
		s.readFileData()
	case writingSuccess:
		s.writeSuccess()
	}
}

func (s *transferSession) fail(err error) {
	s.err = err
	s.state = failed
	if s.transferID != "" {
		s.progress.finish(s.recipient, s.transferID, StateFailed, err.Error())
	}
	fmt.Fprintf(s.conn, "ERROR|%s\n", err)
}

func (s *transferSession) readHeader() {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		s.fail(fmt.Errorf("reading header: %w", err))
		return
	}
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, "|")
	if len(fields) != 5 || fields[0] != "SEND_FILE" {
		s.fail(fmt.Errorf("malformed SEND_FILE header"))
		return
	}

	filesize, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil || filesize < 0 {
		s.fail(fmt.Errorf("invalid filesize"))
		return
	}

	s.transferID = fields[1]
	s.filename = sanitizeFilename(fields[2])
	s.filesize = filesize
	s.sender = fields[4]

	s.progress.start(s.recipient, &Progress{
		TransferID: s.transferID,
		Filename:   s.filename,
		TotalBytes: s.filesize,
		Sender:     s.sender,
		StartTime:  time.Now(),
		State:      StateInProgress,
	})

	s.state = writingAck
}

func (s *transferSession) writeAck() {
	saved, err := resolveCollision(s.downloadDir, s.filename)
	if err != nil {
		s.fail(err)
		return
	}
	s.savedName = saved

	if _, err := fmt.Fprintf(s.conn, "OK|%s\n", saved); err != nil {
		s.fail(fmt.Errorf("writing ack: %w", err))
		return
	}
	s.state = readingFileData
}

func (s *transferSession) readFileData() {
	path := filepath.Join(s.downloadDir, s.savedName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		s.fail(fmt.Errorf("creating output file: %w", err))
		return
	}
	defer f.Close()

	written, err := io.CopyN(&progressWriter{w: f, progress: s.progress, recipient: s.recipient, transferID: s.transferID}, s.reader, s.filesize)
	if err != nil || written != s.filesize {
		s.fail(fmt.Errorf("short read: wrote %d of %d bytes", written, s.filesize))
		return
	}
	s.state = writingSuccess
}

func (s *transferSession) writeSuccess() {
	if _, err := fmt.Fprint(s.conn, "SUCCESS\n"); err != nil {
		s.err = err
	}
	s.progress.finish(s.recipient, s.transferID, StateCompleted, "")
	s.state = completed
}

// progressWriter wraps an io.Writer, updating the transfer's observable
// byte count as data is written.
type progressWriter struct {
	w          io.Writer
	progress   *progressTable
	recipient  string
	transferID string
	written    int64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	p.progress.update(p.recipient, p.transferID, p.written)
	return n, err
}
