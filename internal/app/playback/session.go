package playback

import (
	"time"

	"github.com/osa030/segue/internal/domain/track"
)

// Session is the playback state of the current entry.
type Session struct {
	Entry        track.Entry
	Position     time.Duration // Elapsed time in the current track
	Duration     time.Duration // From track metadata, never from the transport
	IsPlaying    bool
	IsBuffering  bool
	IsSeeking    bool
	LastObserved time.Duration // Baseline for restart detection
}

func newSession(e track.Entry) *Session {
	return &Session{
		Entry:    e,
		Duration: e.Track.Duration,
	}
}

// Remaining returns the time left in the current track.
func (s *Session) Remaining() time.Duration {
	return s.Entry.Track.Remaining(s.Position)
}
