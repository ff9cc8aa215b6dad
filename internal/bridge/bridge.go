// Package bridge implements the HTTP/WS bridge: the REST surface non-TCP
// clients use to authenticate, chat, and drive the voice/whiteboard/
// tic-tac-toe session managers, plus the file-transfer and LAN discovery
// endpoints.
//
// The router is a plain net/http.ServeMux with method-aware patterns
// (Go 1.22+ "METHOD /path" syntax) — no third-party router is pulled in
// where the standard library already covers the need.
package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/chatcore"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/credential"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/presence"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/ratelimit"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/tictactoe"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/voice"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/whiteboard"
)

// FileTransferSpawner mirrors tcphub's capability of the same name: the
// bridge also spawns a per-user file receiver on an HTTP-originated login
// that advertises a file port.
type FileTransferSpawner interface {
	Start(ctx context.Context, username string, port int) error
	Stop(username string)
}

// FileSender is the capability backing /api/filetransfer/send and its
// companion listing endpoints.
type FileSender interface {
	Send(ctx context.Context, senderUsername, peerIP string, peerPort int, filePath string) (transferID, filename string, filesize int64, err error)
	TransfersFor(username string) []TransferProgress
	Downloads() []DownloadedFile
	OpenDownload(filename string) (ReadSeekCloser, int64, error)
}

// TransferProgress is a snapshot of one in-flight or completed transfer.
type TransferProgress struct {
	TransferID string `json:"transferId"`
	Filename   string `json:"filename"`
	Filesize   int64  `json:"filesize"`
	Sent       int64  `json:"bytesTransferred"`
	State      string `json:"state"`
}

// DownloadedFile describes a file available for download.
type DownloadedFile struct {
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

// ReadSeekCloser is the minimal handle /api/filetransfer/download streams
// from.
type ReadSeekCloser interface {
	Read(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Close() error
}

// Broadcaster is the capability used to announce LAN presence and list
// discovered peers.
type Broadcaster interface {
	Announce(ctx context.Context, username, additionalInfo string) error
	Peers() []DiscoveredPeer
}

// DiscoveredPeer is one entry returned by /api/discovery/peers. Stale
// reports whether LastSeen is older than the discovery staleness threshold;
// such entries are still returned, only flagged, until the next sweep
// evicts them.
type DiscoveredPeer struct {
	Username       string    `json:"username"`
	IP             string    `json:"ip"`
	AdditionalInfo string    `json:"additionalInfo"`
	LastSeen       time.Time `json:"lastSeen"`
	Stale          bool      `json:"stale"`
}

// Deps bundles the collaborators the bridge dispatches requests into.
type Deps struct {
	Logger      *slog.Logger
	Credentials *credential.Gate
	Presence    *presence.Registry
	Chat        *chatcore.Core
	Voice       *voice.Manager
	Whiteboards *whiteboard.Manager
	TicTacToe   *tictactoe.Engine
	FileXfer    FileTransferSpawner
	FileSender  FileSender
	Discovery   Broadcaster

	JWTSecret    []byte
	CORSOrigins  []string
	TokenTTL     time.Duration
	LoginLimiter *ratelimit.IPRateLimiter
}

// Server is the HTTP/WS Bridge.
type Server struct {
	logger *slog.Logger

	credGate  *credential.Gate
	presence  *presence.Registry
	chat      *chatcore.Core
	voice     *voice.Manager
	boards    *whiteboard.Manager
	ttt       *tictactoe.Engine
	fileXfer  FileTransferSpawner
	sender    FileSender
	discovery Broadcaster

	jwtSecret          []byte
	tokenTTL           time.Duration
	limiter            *ratelimit.IPRateLimiter
	corsAllowedOrigins []string

	mux http.Handler
}

// NewServer constructs a Server with its full route table registered.
func NewServer(deps Deps) *Server {
	ttl := deps.TokenTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	s := &Server{
		logger:             deps.Logger,
		credGate:           deps.Credentials,
		presence:           deps.Presence,
		chat:               deps.Chat,
		voice:              deps.Voice,
		boards:             deps.Whiteboards,
		ttt:                deps.TicTacToe,
		fileXfer:           deps.FileXfer,
		sender:             deps.FileSender,
		discovery:          deps.Discovery,
		jwtSecret:          deps.JWTSecret,
		tokenTTL:           ttl,
		limiter:            deps.LoginLimiter,
		corsAllowedOrigins: deps.CORSOrigins,
	}

	mux := http.NewServeMux()
	s.registerAuthRoutes(mux)
	s.registerNioRoutes(mux)
	s.registerVoiceRoutes(mux)
	s.registerWhiteboardRoutes(mux)
	s.registerTicTacToeRoutes(mux)
	s.registerFileTransferRoutes(mux)
	s.registerDiscoveryRoutes(mux)

	s.mux = s.withCORS(s.withRequestLogging(mux))
	return s
}

// ServeHTTP implements http.Handler, so *Server can be handed directly to
// http.Server.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("bridge: request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start))
	})
}
