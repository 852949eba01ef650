package playback

import (
	"math"
	"time"

	"github.com/osa030/segue/internal/infra/config"
)

// Config holds engine configuration.
type Config struct {
	EndThreshold    time.Duration // Max remaining time for a genuine end of item
	RestartBackJump time.Duration // Backward jump classified as a stream restart
	RestartFloor    time.Duration // Last observed position required for restart detection
	SeekTolerance   time.Duration // Accepted divergence of a completed seek
	PreviousRestart time.Duration // Elapsed time after which previous restarts the track
	Quality         string        // Quality preference for the resolver
	Retry           RetryPolicy
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		EndThreshold:    5 * time.Second,
		RestartBackJump: 10 * time.Second,
		RestartFloor:    30 * time.Second,
		SeekTolerance:   500 * time.Millisecond,
		PreviousRestart: 3 * time.Second,
		Quality:         "high",
		Retry:           DefaultRetryPolicy(),
	}
}

// ConfigFrom builds the engine configuration from the application config.
func ConfigFrom(p config.PlaybackConfig, r config.RetryConfig) Config {
	return Config{
		EndThreshold:    p.EndThreshold(),
		RestartBackJump: p.RestartBackJump(),
		RestartFloor:    p.RestartFloor(),
		SeekTolerance:   p.SeekTolerance(),
		PreviousRestart: p.PreviousRestart(),
		Quality:         p.Quality,
		Retry: RetryPolicy{
			MaxAttempts: r.MaxAttempts,
			Delay:       time.Duration(r.DelayMs) * time.Millisecond,
			Multiplier:  r.Multiplier,
			MaxDelay:    time.Duration(r.MaxDelayMs) * time.Millisecond,
		},
	}
}

// RetryPolicy controls automatic retries of transient playback failures.
type RetryPolicy struct {
	MaxAttempts int           // Retries per failure; 0 disables retrying
	Delay       time.Duration // Delay before the first retry
	Multiplier  float64       // Delay growth per attempt (values below 1 mean fixed)
	MaxDelay    time.Duration // Upper bound for the delay (0 means none)
}

// DefaultRetryPolicy returns a single retry after a fixed delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 1,
		Delay:       3 * time.Second,
		Multiplier:  1,
		MaxDelay:    30 * time.Second,
	}
}

// Backoff returns the delay before retry number attempt (0-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := time.Duration(float64(p.Delay) * math.Pow(multiplier, float64(attempt)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
