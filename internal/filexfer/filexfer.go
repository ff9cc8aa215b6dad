// Package filexfer implements the file transfer endpoint: one TCP listener
// per user advertising a file port, driving an explicit per-connection
// state machine that receives a single file into the shared downloads
// directory.
package filexfer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
)

// Manager owns the per-user receiver listeners and the progress table the
// HTTP bridge reads from.
type Manager struct {
	logger      *slog.Logger
	downloadDir string

	mu        sync.Mutex
	listeners map[string]net.Listener

	progress *progressTable
}

// NewManager constructs a Manager rooted at downloadDir, creating the
// directory if it does not already exist.
func NewManager(logger *slog.Logger, downloadDir string) (*Manager, error) {
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("filexfer: create downloads directory: %w", err)
	}
	return &Manager{
		logger:      logger,
		downloadDir: downloadDir,
		listeners:   make(map[string]net.Listener),
		progress:    newProgressTable(),
	}, nil
}

// Start opens a listener for username on port and spawns the accept loop.
// It satisfies both tcphub.FileTransferSpawner and bridge.FileTransferSpawner.
func (m *Manager) Start(ctx context.Context, username string, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("filexfer: listen for %s on port %d: %w", username, port, err)
	}

	m.mu.Lock()
	if old, ok := m.listeners[username]; ok {
		_ = old.Close()
	}
	m.listeners[username] = ln
	m.mu.Unlock()

	go m.acceptLoop(ctx, username, ln)
	return nil
}

// Stop closes username's receiver listener, if any, and drops the transfer
// history tracked for that login.
func (m *Manager) Stop(username string) {
	m.mu.Lock()
	ln, ok := m.listeners[username]
	if ok {
		delete(m.listeners, username)
	}
	m.mu.Unlock()

	if ok {
		_ = ln.Close()
	}
	m.progress.clear(username)
}

func (m *Manager) acceptLoop(ctx context.Context, username string, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go m.driveSession(ctx, username, conn)
	}
}

