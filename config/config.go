// Package config defines the environment-driven configuration for the
// NexusConnect server process.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds every environment-level knob for the NexusConnect server.
// Fields are populated by envconfig.Process from environment variables,
// optionally pre-loaded from a settings.env file via godotenv.
type Config struct {
	TCPChatAddr   string `envconfig:"TCP_CHAT_ADDR" default:":8081" description:"Address the line-oriented TCP chat hub listens on."`
	HTTPAddr      string `envconfig:"HTTP_ADDR" default:":8080" description:"Address the HTTP/WebSocket bridge listens on."`
	StunAddr      string `envconfig:"STUN_ADDR" default:":3478" description:"Address the STUN responder listens on (UDP)."`
	StunEnabled   bool   `envconfig:"STUN_ENABLED" default:"true" description:"Whether the STUN responder is started."`
	DiscoveryAddr string `envconfig:"DISCOVERY_ADDR" default:":9876" description:"Address the LAN discovery responder listens on (UDP)."`

	CredentialDSN string `envconfig:"CREDENTIAL_DSN" default:"nexus.sqlite" description:"Path to the SQLite database backing the credential store."`
	JWTSigningKey string `envconfig:"JWT_SIGNING_KEY" required:"true" description:"HMAC signing key for bearer tokens issued by the HTTP bridge."`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*" description:"Comma-separated list of allowed CORS origin patterns."`

	VoiceSessionTimeout      time.Duration `envconfig:"VOICE_SESSION_TIMEOUT" default:"30m" description:"Idle timeout after which a voice session is swept."`
	WhiteboardSessionTimeout time.Duration `envconfig:"WHITEBOARD_SESSION_TIMEOUT" default:"1h" description:"Idle timeout after which a whiteboard session is swept."`
	DiscoveryStaleAfter      time.Duration `envconfig:"DISCOVERY_STALE_AFTER" default:"120s" description:"Age after which a discovery peer is flagged stale."`
	DiscoverySweepInterval   time.Duration `envconfig:"DISCOVERY_SWEEP_INTERVAL" default:"30s" description:"Interval between discovery peer-cache sweeps."`

	DownloadsDir string `envconfig:"DOWNLOADS_DIR" default:"./nexus_downloads" description:"Directory that received files are written to."`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info" description:"Logging granularity. One of: trace, debug, info, warn, error."`
}

// Validate fails fast on configuration that would otherwise surface as a
// confusing runtime error much later (missing signing key, nonsensical
// timeouts).
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSigningKey) == "" {
		return fmt.Errorf("JWT_SIGNING_KEY must be set")
	}
	if c.VoiceSessionTimeout <= 0 {
		return fmt.Errorf("VOICE_SESSION_TIMEOUT must be positive")
	}
	if c.WhiteboardSessionTimeout <= 0 {
		return fmt.Errorf("WHITEBOARD_SESSION_TIMEOUT must be positive")
	}
	if c.DiscoveryStaleAfter <= 0 {
		return fmt.Errorf("DISCOVERY_STALE_AFTER must be positive")
	}
	if c.DiscoverySweepInterval <= 0 {
		return fmt.Errorf("DISCOVERY_SWEEP_INTERVAL must be positive")
	}
	return nil
}

// CORSOrigins splits the configured comma-separated origin pattern list.
func (c Config) CORSOrigins() []string {
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
