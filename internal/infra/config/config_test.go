package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			config: Config{
				Server: ServerConfig{Token: "test-token"},
				Resolvers: []ResolverConfig{
					{Type: "offline", Settings: map[string]any{"dir": "/music"}},
				},
			},
			wantErr: false,
		},
		{
			name:    "missing server token",
			config:  Config{},
			wantErr: true,
			errMsg:  "Token",
		},
		{
			name: "unknown resolver type",
			config: Config{
				Server:    ServerConfig{Token: "test-token"},
				Resolvers: []ResolverConfig{{Type: "tape"}},
			},
			wantErr: true,
			errMsg:  "Type",
		},
		{
			name: "spotify resolver without credentials",
			config: Config{
				Server:    ServerConfig{Token: "test-token"},
				Resolvers: []ResolverConfig{{Type: "spotify"}},
			},
			wantErr: true,
			errMsg:  "spotify.client_id",
		},
		{
			name: "spotify resolver with credentials",
			config: Config{
				Server:    ServerConfig{Token: "test-token"},
				Resolvers: []ResolverConfig{{Type: "spotify"}},
				Spotify: SpotifyConfig{
					ClientID:     "test-client-id",
					ClientSecret: "test-client-secret",
					RefreshToken: "test-refresh-token",
					Market:       "JP",
				},
			},
			wantErr: false,
		},
		{
			name: "invalid market length",
			config: Config{
				Server:  ServerConfig{Token: "test-token"},
				Spotify: SpotifyConfig{Market: "JAPAN"},
			},
			wantErr: true,
			errMsg:  "Market",
		},
		{
			name: "mqtt enabled without broker",
			config: Config{
				Server:     ServerConfig{Token: "test-token"},
				NowPlaying: NowPlayingConfig{MQTT: MQTTConfig{Enabled: true}},
			},
			wantErr: true,
			errMsg:  "Broker",
		},
		{
			name: "unknown transport",
			config: Config{
				Server:    ServerConfig{Token: "test-token"},
				Transport: TransportConfig{Type: "vinyl"},
			},
			wantErr: true,
			errMsg:  "Type",
		},
		{
			name: "retry multiplier below one",
			config: Config{
				Server: ServerConfig{Token: "test-token"},
				Retry:  RetryConfig{MaxAttempts: 2, Multiplier: 0.5},
			},
			wantErr: true,
			errMsg:  "retry.multiplier",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()

			if tt.wantErr {
				require.Error(t, err, "expected validation to fail")
				assert.Contains(t, err.Error(), tt.errMsg,
					"error message should mention the problematic field")
			} else {
				assert.NoError(t, err, "expected validation to pass")
			}
		})
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  token: secret\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Playback.EndThreshold())
	assert.Equal(t, 10*time.Second, cfg.Playback.RestartBackJump())
	assert.Equal(t, 30*time.Second, cfg.Playback.RestartFloor())
	assert.Equal(t, 500*time.Millisecond, cfg.Playback.TimeInterval())
	assert.Equal(t, 500*time.Millisecond, cfg.Playback.SeekTolerance())
	assert.Equal(t, 3*time.Second, cfg.Playback.PreviousRestart())
	assert.Equal(t, "high", cfg.Playback.Quality)
	assert.Equal(t, 1, cfg.Retry.MaxAttempts)
	assert.Equal(t, 3000, cfg.Retry.DelayMs)
	assert.Equal(t, 1.0, cfg.Retry.Multiplier)
	assert.Equal(t, "clock", cfg.Transport.Type)
	assert.Equal(t, "segue/nowplaying", cfg.NowPlaying.MQTT.Topic)
	assert.Equal(t, "JP", cfg.Spotify.Market)
}

func TestParse_Values(t *testing.T) {
	data := []byte(`
server:
  addr: ":9000"
  token: secret
playback:
  end_threshold_ms: 3000
  quality: lossless
retry:
  max_attempts: 3
  delay_ms: 1000
  multiplier: 2
resolvers:
  - type: offline
    settings:
      dir: /srv/music
      watch: true
  - type: streamapi
    name: home
    settings:
      base_url: http://localhost:4533
`)

	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Playback.EndThreshold())
	assert.Equal(t, "lossless", cfg.Playback.Quality)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	require.Len(t, cfg.Resolvers, 2)
	assert.Equal(t, "offline", cfg.Resolvers[0].Type)
	assert.Equal(t, "/srv/music", cfg.Resolvers[0].Settings["dir"])
	assert.Equal(t, "home", cfg.Resolvers[1].Name)
	assert.True(t, cfg.UsesResolver("streamapi"))
	assert.False(t, cfg.UsesResolver("spotify"))
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("SEGUE_TOKEN", "from-env")
	t.Setenv("SEGUE_MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("SEGUE_TRANSPORT", "audio")

	cfg, err := Parse([]byte("server:\n  token: from-file\n"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Server.Token)
	assert.True(t, cfg.NowPlaying.MQTT.Enabled)
	assert.Equal(t, "tcp://broker:1883", cfg.NowPlaying.MQTT.Broker)
	assert.Equal(t, "audio", cfg.Transport.Type)
}

func TestLoad(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o644))

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  token: secret\n"), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "secret", cfg.Server.Token)
	})
}
