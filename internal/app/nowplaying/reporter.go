package nowplaying

import (
	zlog "github.com/rs/zerolog/log"
)

// Reporter receives now-playing state from the playback engine.
// Calls are made from the engine loop; implementations must not block.
type Reporter interface {
	Update(s Snapshot)
	ReportError(err error)
	Clear()
}

// Multi fans out to several reporters in order.
type Multi []Reporter

// Update forwards to every reporter.
func (m Multi) Update(s Snapshot) {
	for _, r := range m {
		r.Update(s)
	}
}

// ReportError forwards to every reporter.
func (m Multi) ReportError(err error) {
	for _, r := range m {
		r.ReportError(err)
	}
}

// Clear forwards to every reporter.
func (m Multi) Clear() {
	for _, r := range m {
		r.Clear()
	}
}

// LogReporter writes track changes and errors to the global logger.
type LogReporter struct {
	lastEntryID string
	lastState   string
}

// NewLogReporter creates a new log reporter.
func NewLogReporter() *LogReporter {
	return &LogReporter{}
}

// Update logs when the entry or state changes; position updates are skipped.
func (l *LogReporter) Update(s Snapshot) {
	if s.EntryID == l.lastEntryID && s.State == l.lastState {
		return
	}
	l.lastEntryID = s.EntryID
	l.lastState = s.State
	zlog.Info().Msgf("now playing: state=%s track=%s title=%q artist=%q duration=%v queue=%d/%d",
		s.State, s.TrackID, s.Title, s.Artist, s.Duration, s.QueuePosition+1, s.QueueLength)
}

// ReportError logs the error.
func (l *LogReporter) ReportError(err error) {
	zlog.Error().Msgf("now playing: playback error: %v", err)
}

// Clear logs that playback stopped.
func (l *LogReporter) Clear() {
	l.lastEntryID = ""
	l.lastState = ""
	zlog.Info().Msg("now playing: cleared")
}

// Nop discards everything.
type Nop struct{}

func (Nop) Update(Snapshot)   {}
func (Nop) ReportError(error) {}
func (Nop) Clear()            {}
