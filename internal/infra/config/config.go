// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Retry      RetryConfig      `yaml:"retry"`
	Transport  TransportConfig  `yaml:"transport"`
	Resolvers  []ResolverConfig `yaml:"resolvers" validate:"dive"`
	NowPlaying NowPlayingConfig `yaml:"nowplaying"`
	Spotify    SpotifyConfig    `yaml:"spotify"`
}

// ServerConfig represents the control server configuration.
type ServerConfig struct {
	Addr  string `yaml:"addr" default:":8080"`
	Token string `yaml:"token" validate:"required"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info" validate:"omitempty,oneof=debug info warn warning error"`
	File   string `yaml:"file"`
}

// PlaybackConfig represents the transition engine thresholds.
type PlaybackConfig struct {
	EndThresholdMs    int    `yaml:"end_threshold_ms" default:"5000" validate:"gte=0,lte=60000"`
	RestartBackJumpMs int    `yaml:"restart_backjump_ms" default:"10000" validate:"gte=0"`
	RestartFloorMs    int    `yaml:"restart_floor_ms" default:"30000" validate:"gte=0"`
	TimeIntervalMs    int    `yaml:"time_interval_ms" default:"500" validate:"gte=0,lte=10000"`
	SeekToleranceMs   int    `yaml:"seek_tolerance_ms" default:"500" validate:"gte=0,lte=10000"`
	PreviousRestartMs int    `yaml:"previous_restart_ms" default:"3000" validate:"gte=0"`
	Quality           string `yaml:"quality" default:"high" validate:"omitempty,oneof=low medium high lossless"`
}

// EndThreshold returns the maximum remaining time for a genuine end of item.
func (p PlaybackConfig) EndThreshold() time.Duration {
	return time.Duration(p.EndThresholdMs) * time.Millisecond
}

// RestartBackJump returns the backward jump that counts as a stream restart.
func (p PlaybackConfig) RestartBackJump() time.Duration {
	return time.Duration(p.RestartBackJumpMs) * time.Millisecond
}

// RestartFloor returns the minimum observed position for restart detection.
func (p PlaybackConfig) RestartFloor() time.Duration {
	return time.Duration(p.RestartFloorMs) * time.Millisecond
}

// TimeInterval returns the transport time callback interval.
func (p PlaybackConfig) TimeInterval() time.Duration {
	return time.Duration(p.TimeIntervalMs) * time.Millisecond
}

// SeekTolerance returns the accepted divergence of a completed seek.
func (p PlaybackConfig) SeekTolerance() time.Duration {
	return time.Duration(p.SeekToleranceMs) * time.Millisecond
}

// PreviousRestart returns the elapsed time after which previous restarts the track.
func (p PlaybackConfig) PreviousRestart() time.Duration {
	return time.Duration(p.PreviousRestartMs) * time.Millisecond
}

// RetryConfig represents the retry policy for transient playback failures.
type RetryConfig struct {
	MaxAttempts int     `yaml:"max_attempts" default:"1" validate:"gte=0,lte=10"`
	DelayMs     int     `yaml:"delay_ms" default:"3000" validate:"gte=0"`
	Multiplier  float64 `yaml:"multiplier" default:"1.0" validate:"gte=0"`
	MaxDelayMs  int     `yaml:"max_delay_ms" default:"30000" validate:"gte=0"`
}

// TransportConfig represents the media transport selection.
type TransportConfig struct {
	Type       string `yaml:"type" default:"clock" validate:"omitempty,oneof=clock audio"`
	SampleRate int    `yaml:"sample_rate" default:"44100" validate:"gte=0"`
	BufferMs   int    `yaml:"buffer_ms" default:"100" validate:"gte=0,lte=2000"`
}

// ResolverConfig represents a single resolver or catalog source.
type ResolverConfig struct {
	Type     string         `yaml:"type" validate:"required,oneof=offline streamapi spotify"`
	Name     string         `yaml:"name"`
	Settings map[string]any `yaml:"settings"`
}

// NowPlayingConfig represents now-playing sinks.
type NowPlayingConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig represents the MQTT now-playing publisher.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker" validate:"required_if=Enabled true"`
	ClientID string `yaml:"client_id" default:"segued"`
	Topic    string `yaml:"topic" default:"segue/nowplaying"`
	QoS      int    `yaml:"qos" validate:"gte=0,lte=2"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// envOverrides holds values read from the environment.
type envOverrides struct {
	ServerToken         string `env:"SEGUE_TOKEN"`
	ServerAddr          string `env:"SEGUE_ADDR"`
	LogLevel            string `env:"SEGUE_LOG_LEVEL"`
	TransportType       string `env:"SEGUE_TRANSPORT"`
	MQTTBroker          string `env:"SEGUE_MQTT_BROKER"`
	MQTTUsername        string `env:"SEGUE_MQTT_USERNAME"`
	MQTTPassword        string `env:"SEGUE_MQTT_PASSWORD"`
	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`
	SpotifyRefreshToken string `env:"SPOTIFY_REFRESH_TOKEN"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	if err := cfg.overrideFromEnv(); err != nil {
		return nil, errors.Wrap(err, "failed to read environment")
	}

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return err
	}

	setIfNotEmpty(&c.Server.Token, o.ServerToken)
	setIfNotEmpty(&c.Server.Addr, o.ServerAddr)
	setIfNotEmpty(&c.Log.Level, o.LogLevel)
	setIfNotEmpty(&c.Transport.Type, o.TransportType)
	setIfNotEmpty(&c.NowPlaying.MQTT.Username, o.MQTTUsername)
	setIfNotEmpty(&c.NowPlaying.MQTT.Password, o.MQTTPassword)
	setIfNotEmpty(&c.Spotify.ClientID, o.SpotifyClientID)
	setIfNotEmpty(&c.Spotify.ClientSecret, o.SpotifyClientSecret)
	setIfNotEmpty(&c.Spotify.RefreshToken, o.SpotifyRefreshToken)
	if o.MQTTBroker != "" {
		c.NowPlaying.MQTT.Broker = o.MQTTBroker
		c.NowPlaying.MQTT.Enabled = true
	}
	return nil
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.UsesResolver("spotify") {
		if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" || c.Spotify.RefreshToken == "" {
			return errors.New("spotify resolver requires spotify.client_id, spotify.client_secret and spotify.refresh_token")
		}
	}

	if c.Retry.MaxAttempts > 0 && c.Retry.Multiplier > 0 && c.Retry.Multiplier < 1 {
		return errors.Newf("retry.multiplier (%v) must be 0 or at least 1", c.Retry.Multiplier)
	}

	return nil
}

// UsesResolver checks if a resolver of the given type is configured.
func (c *Config) UsesResolver(resolverType string) bool {
	for _, r := range c.Resolvers {
		if r.Type == resolverType {
			return true
		}
	}
	return false
}
