package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/time/rate"

	"github.com/Lakshan1806/Nexus-Connect-sub000/config"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/bridge"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/chatcore"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/credential"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/discovery"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/filexfer"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/logging"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/presence"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/ratelimit"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/signaling"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/stun"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/tcphub"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/tictactoe"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/voice"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/whiteboard"
)

// Container groups together the collaborators every server in this process
// shares.
type Container struct {
	cfg    config.Config
	logger *slog.Logger

	credGate   *credential.Gate
	registry   *presence.Registry
	chat       *chatcore.Core
	voiceMgr   *voice.Manager
	boardMgr   *whiteboard.Manager
	tttEngine  *tictactoe.Engine
	fileXfer   *filexfer.Manager
	discoverer *discovery.Responder
	stunResp   *stun.Responder
	loginLimit *ratelimit.IPRateLimiter
	hubRef     *tcphub.Server // set after TCPHub() runs; closed over by chatBroadcast
}

// MakeCommonDeps processes the environment into Config, then constructs
// every domain manager the TCP hub, HTTP bridge, and WebRTC signaling
// router all share. It does not start any listener.
func MakeCommonDeps() (*Container, error) {
	c := &Container{}

	if err := envconfig.Process("", &c.cfg); err != nil {
		return nil, fmt.Errorf("unable to process app config: %w", err)
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	c.logger = logging.New(c.cfg)

	store, err := credential.NewSQLiteStore(c.cfg.CredentialDSN)
	if err != nil {
		return nil, fmt.Errorf("unable to open credential store: %w", err)
	}
	c.credGate = credential.NewGate(store)

	c.registry = presence.NewRegistry()

	c.chat = chatcore.NewCore(presenceCheckerAdapter{c.registry}, c.chatBroadcast)

	c.voiceMgr = voice.NewManager(peerLookupAdapter{c.registry}.lookup, c.notify, c.cfg.VoiceSessionTimeout)
	c.boardMgr = whiteboard.NewManager(c.notify, c.cfg.WhiteboardSessionTimeout)
	c.tttEngine = tictactoe.NewEngine(c.notify, presenceCheckerAdapter{c.registry}.present)

	c.fileXfer, err = filexfer.NewManager(c.logger.With("svc", "filexfer"), c.cfg.DownloadsDir)
	if err != nil {
		return nil, fmt.Errorf("unable to create file transfer manager: %w", err)
	}

	c.discoverer = discovery.New(c.logger.With("svc", "discovery"), "server", c.cfg.DiscoveryStaleAfter, c.cfg.DiscoverySweepInterval)
	c.stunResp = stun.New(c.logger.With("svc", "stun"))

	c.loginLimit = ratelimit.NewIPRateLimiter(rate.Every(time.Minute), 10, time.Minute)

	return c, nil
}

// notify pushes line to username's live TCP session, if any. It is handed
// to every session manager (voice/whiteboard/tictactoe) as their Notifier
// capability; hubRef is nil until TCPHub() runs, which only matters for
// notifications fired before the hub starts accepting connections (there
// are none, since managers only fire on client-driven operations).
func (c *Container) notify(username, line string) {
	if c.hubRef == nil {
		return
	}
	c.hubRef.SendTo(username, line)
}

// chatBroadcast fans a chat message out to every live TCP session except
// the sender, the same late-bound indirection as notify: chatcore.Core is
// constructed before the tcphub.Server that ultimately delivers the
// message exists, so the closure defers the lookup to call time.
func (c *Container) chatBroadcast(ctx context.Context, msg chatcore.Message, exclude string) {
	if c.hubRef == nil {
		return
	}
	for _, e := range c.registry.Snapshot() {
		if e.Username == exclude {
			continue
		}
		c.hubRef.SendTo(e.Username, fmt.Sprintf("CHAT_MSG:%s:%d:%s", msg.From, msg.Timestamp, msg.Text))
	}
}

// presenceCheckerAdapter adapts presence.Registry's (Entry, bool)-returning
// FindPeer to the bool-only shapes chatcore.PresenceChecker and
// tictactoe.Presence declare locally.
type presenceCheckerAdapter struct{ reg *presence.Registry }

func (a presenceCheckerAdapter) FindPeer(username string) bool {
	_, ok := a.reg.FindPeer(username)
	return ok
}

func (a presenceCheckerAdapter) present(username string) bool {
	_, ok := a.reg.FindPeer(username)
	return ok
}

// peerLookupAdapter adapts presence.Registry to voice.PeerLookup.
type peerLookupAdapter struct{ reg *presence.Registry }

func (a peerLookupAdapter) lookup(username string) (string, int, bool) {
	e, ok := a.reg.FindPeer(username)
	if !ok {
		return "", 0, false
	}
	return e.IP, e.VoiceUDP, true
}

// TCPHub creates the TCP chat hub and records it as the target of
// notify/chatBroadcast's late-bound indirection.
func TCPHub(deps *Container) *tcphub.Server {
	hub := tcphub.NewServer(tcphub.Deps{
		Logger:      deps.logger.With("svc", "tcphub"),
		Credentials: deps.credGate,
		Presence:    deps.registry,
		Chat:        deps.chat,
		Whiteboards: deps.boardMgr,
		FileXfer:    deps.fileXfer,
		Limiter:     deps.loginLimit,
	})
	deps.registry.Subscribe(hub.BroadcastListener)
	deps.hubRef = hub
	return hub
}

// Bridge creates the HTTP/WS bridge.
func Bridge(deps *Container) *bridge.Server {
	return bridge.NewServer(bridge.Deps{
		Logger:       deps.logger.With("svc", "bridge"),
		Credentials:  deps.credGate,
		Presence:     deps.registry,
		Chat:         deps.chat,
		Voice:        deps.voiceMgr,
		Whiteboards:  deps.boardMgr,
		TicTacToe:    deps.tttEngine,
		FileXfer:     deps.fileXfer,
		FileSender:   fileSenderAdapter{deps.fileXfer},
		Discovery:    discoveryAdapter{deps.discoverer},
		JWTSecret:    []byte(deps.cfg.JWTSigningKey),
		CORSOrigins:  deps.cfg.CORSOrigins(),
		TokenTTL:     24 * time.Hour,
		LoginLimiter: deps.loginLimit,
	})
}

// Signaling creates the WebRTC signaling router.
func Signaling(deps *Container) *signaling.Router {
	return signaling.NewRouter(deps.logger.With("svc", "signaling"), voiceCallsAdapter{deps.voiceMgr})
}

// VoiceRelayWS creates the server-relayed audio fallback mounted at
// /ws/voice.
func VoiceRelayWS(deps *Container) *signaling.VoiceRelay {
	return signaling.NewVoiceRelay(deps.logger.With("svc", "voicerelay"), deps.voiceMgr.ConnectedPeer)
}
