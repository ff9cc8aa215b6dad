package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantErr     bool
		errContains string
	}{
		{
			name: "valid config",
			cfg: Config{
				JWTSigningKey:            "super-secret",
				VoiceSessionTimeout:      30 * time.Minute,
				WhiteboardSessionTimeout: time.Hour,
				DiscoveryStaleAfter:      120 * time.Second,
				DiscoverySweepInterval:   30 * time.Second,
			},
			wantErr: false,
		},
		{
			name: "missing signing key",
			cfg: Config{
				VoiceSessionTimeout:      30 * time.Minute,
				WhiteboardSessionTimeout: time.Hour,
				DiscoveryStaleAfter:      120 * time.Second,
				DiscoverySweepInterval:   30 * time.Second,
			},
			wantErr:     true,
			errContains: "JWT_SIGNING_KEY",
		},
		{
			name: "non-positive voice timeout",
			cfg: Config{
				JWTSigningKey:            "k",
				VoiceSessionTimeout:      0,
				WhiteboardSessionTimeout: time.Hour,
				DiscoveryStaleAfter:      120 * time.Second,
				DiscoverySweepInterval:   30 * time.Second,
			},
			wantErr:     true,
			errContains: "VOICE_SESSION_TIMEOUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfigCORSOrigins(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: " https://a.example.com , *.b.example.com ,,"}
	assert.Equal(t, []string{"https://a.example.com", "*.b.example.com"}, cfg.CORSOrigins())
}
