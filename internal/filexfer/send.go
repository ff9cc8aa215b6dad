package filexfer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Send dials peerIP:peerPort and pushes filePath using the same wire
// protocol a TransferSession receives, satisfying bridge.FileSender for
// POST /api/filetransfer/send.
func (m *Manager) Send(ctx context.Context, senderUsername, peerIP string, peerPort int, filePath string) (string, string, int64, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", "", 0, fmt.Errorf("filexfer: open %s: %w", filePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", "", 0, fmt.Errorf("filexfer: stat %s: %w", filePath, err)
	}

	transferID := uuid.NewString()
	filename := filepath.Base(filePath)
	filesize := info.Size()

	m.progress.start(senderUsername, &Progress{
		TransferID: transferID,
		Filename:   filename,
		TotalBytes: filesize,
		Sender:     senderUsername,
		StartTime:  time.Now(),
		State:      StateInProgress,
	})

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", peerIP, peerPort))
	if err != nil {
		m.progress.finish(senderUsername, transferID, StateFailed, err.Error())
		return "", "", 0, fmt.Errorf("filexfer: dial %s:%d: %w", peerIP, peerPort, err)
	}
	defer conn.Close()

	header := fmt.Sprintf("SEND_FILE|%s|%s|%d|%s\n", transferID, filename, filesize, senderUsername)
	if _, err := io.Copy(conn, bytes.NewReader([]byte(header))); err != nil {
		m.progress.finish(senderUsername, transferID, StateFailed, err.Error())
		return "", "", 0, fmt.Errorf("filexfer: write header: %w", err)
	}

	reader := bufio.NewReader(conn)
	ackLine, err := reader.ReadString('\n')
	if err != nil {
		m.progress.finish(senderUsername, transferID, StateFailed, err.Error())
		return "", "", 0, fmt.Errorf("filexfer: read ack: %w", err)
	}
	ackLine = strings.TrimRight(ackLine, "\r\n")
	ackFields := strings.SplitN(ackLine, "|", 2)
	if len(ackFields) != 2 || ackFields[0] != "OK" {
		m.progress.finish(senderUsername, transferID, StateFailed, ackLine)
		return "", "", 0, fmt.Errorf("filexfer: receiver rejected transfer: %s", ackLine)
	}
	savedName := ackFields[1]

	written, err := io.CopyN(&progressWriter{w: conn, progress: m.progress, recipient: senderUsername, transferID: transferID}, f, filesize)
	if err != nil || written != filesize {
		m.progress.finish(senderUsername, transferID, StateFailed, "short write")
		return "", "", 0, fmt.Errorf("filexfer: sent %d of %d bytes", written, filesize)
	}

	result, err := reader.ReadString('\n')
	if err != nil || strings.TrimRight(result, "\r\n") != "SUCCESS" {
		m.progress.finish(senderUsername, transferID, StateFailed, "no SUCCESS trailer")
		return "", "", 0, fmt.Errorf("filexfer: receiver did not confirm success")
	}

	m.progress.finish(senderUsername, transferID, StateCompleted, "")
	return transferID, savedName, filesize, nil
}

// TransfersFor returns every transfer (sent or received) tracked under
// username.
func (m *Manager) TransfersFor(username string) []Progress {
	return m.progress.forUser(username)
}

// Downloads lists files currently present in the downloads directory.
func (m *Manager) Downloads() []DownloadedFile {
	entries, err := os.ReadDir(m.downloadDir)
	if err != nil {
		return nil
	}
	out := make([]DownloadedFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, DownloadedFile{Filename: e.Name(), Filesize: info.Size()})
	}
	return out
}

// DownloadedFile describes one file available under the downloads
// directory.
type DownloadedFile struct {
	Filename string
	Filesize int64
}

// OpenDownload opens filename from the downloads directory for streaming.
func (m *Manager) OpenDownload(filename string) (*os.File, int64, error) {
	path := filepath.Join(m.downloadDir, sanitizeFilename(filename))
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}
