// Package offline serves tracks stored on local disk.
//
// A library directory holds audio files with a JSON sidecar each:
//
//	{"id": "t1", "title": "Song", "artist": "Band", "duration_ms": 215000, "file": "song.flac"}
//
// The index is rebuilt when the directory changes.
package offline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/segue/internal/app/stream"
	"github.com/osa030/segue/internal/domain/track"
)

// Settings represents offline library settings.
type Settings struct {
	Dir        string `mapstructure:"dir" validate:"required"`
	Watch      bool   `mapstructure:"watch"`
	DebounceMs int    `mapstructure:"debounce_ms" default:"200" validate:"min=0"`
}

// Sidecar is the metadata file stored next to an audio file.
type Sidecar struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	AlbumID     string `json:"album_id"`
	ArtistID    string `json:"artist_id"`
	ReleaseYear int    `json:"release_year"`
	DiscNumber  int    `json:"disc_number"`
	TrackNumber int    `json:"track_number"`
	DurationMs  int64  `json:"duration_ms"`
	File        string `json:"file"`
	MimeType    string `json:"mime_type"`
}

type entry struct {
	track    track.Track
	path     string
	mimeType string
}

// Library is an in-memory index of a local track directory.
type Library struct {
	dir string

	mu      sync.RWMutex
	entries map[string]entry

	watcher  *fsnotify.Watcher
	debounce time.Duration
	timerMu  sync.Mutex
	timer    *time.Timer
	done     chan struct{}
	wg       sync.WaitGroup
}

// Open scans dir and, with watch, keeps the index current.
func Open(s Settings) (*Library, error) {
	info, err := os.Stat(s.Dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open library %s", s.Dir)
	}
	if !info.IsDir() {
		return nil, errors.Newf("library path %s is not a directory", s.Dir)
	}

	l := &Library{
		dir:      s.Dir,
		entries:  make(map[string]entry),
		debounce: time.Duration(s.DebounceMs) * time.Millisecond,
		done:     make(chan struct{}),
	}
	if err := l.Rescan(); err != nil {
		return nil, err
	}

	if s.Watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create watcher")
		}
		if err := watcher.Add(s.Dir); err != nil {
			_ = watcher.Close()
			return nil, errors.Wrapf(err, "failed to watch %s", s.Dir)
		}
		l.watcher = watcher
		l.wg.Add(1)
		go l.watch()
	}
	return l, nil
}

// NewFromSettings creates a library from resolver config settings.
func NewFromSettings(settings map[string]any) (any, error) {
	var s Settings
	if err := stream.DecodeSettings(settings, &s); err != nil {
		return nil, errors.Wrap(err, "invalid offline settings")
	}
	return Open(s)
}

// Name returns the resolver name.
func (l *Library) Name() string {
	return "offline"
}

// Len returns the number of indexed tracks.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// ResolveOffline returns the local file for a track.
func (l *Library) ResolveOffline(_ context.Context, trackID string) (stream.Source, bool) {
	l.mu.RLock()
	e, ok := l.entries[trackID]
	l.mu.RUnlock()
	if !ok {
		return stream.Source{}, false
	}
	if _, err := os.Stat(e.path); err != nil {
		zlog.Debug().Msgf("offline: indexed file missing: track=%s path=%s", trackID, e.path)
		return stream.Source{}, false
	}
	return stream.Source{
		Kind:     stream.KindLocal,
		TrackID:  trackID,
		Path:     e.path,
		MimeType: e.mimeType,
		Length:   e.track.Duration,
	}, true
}

// Track returns indexed metadata for a track.
func (l *Library) Track(_ context.Context, trackID string) (track.Track, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[trackID]
	if !ok {
		return track.Track{}, errors.Wrapf(stream.ErrNotFound, "track %s not in offline library", trackID)
	}
	return e.track, nil
}

// Rescan rebuilds the index from the sidecar files in the directory.
func (l *Library) Rescan() error {
	files, err := filepath.Glob(filepath.Join(l.dir, "*.json"))
	if err != nil {
		return errors.Wrap(err, "failed to list sidecars")
	}

	entries := make(map[string]entry, len(files))
	for _, file := range files {
		e, err := readSidecar(file)
		if err != nil {
			zlog.Warn().Msgf("offline: skipping sidecar: file=%s error=%v", file, err)
			continue
		}
		entries[e.track.ID] = e
	}

	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()
	zlog.Info().Msgf("offline: indexed library: dir=%s tracks=%d", l.dir, len(entries))
	return nil
}

// Close stops watching the directory.
func (l *Library) Close() error {
	if l.watcher == nil {
		return nil
	}
	close(l.done)
	err := l.watcher.Close()
	l.wg.Wait()

	l.timerMu.Lock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timerMu.Unlock()
	return err
}

func (l *Library) watch() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				l.scheduleRescan()
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			zlog.Warn().Msgf("offline: watcher error: %v", err)
		}
	}
}

// scheduleRescan coalesces bursts of file events into one rescan.
func (l *Library) scheduleRescan() {
	l.timerMu.Lock()
	defer l.timerMu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(l.debounce, func() {
		select {
		case <-l.done:
			return
		default:
		}
		if err := l.Rescan(); err != nil {
			zlog.Warn().Msgf("offline: rescan failed: %v", err)
		}
	})
}

func readSidecar(file string) (entry, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return entry{}, errors.Wrap(err, "failed to read sidecar")
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return entry{}, errors.Wrap(err, "failed to parse sidecar")
	}
	if sc.File == "" {
		return entry{}, errors.New("sidecar has no file")
	}

	t := track.Track{
		ID:          sc.ID,
		Title:       sc.Title,
		Artist:      sc.Artist,
		Album:       sc.Album,
		AlbumID:     sc.AlbumID,
		ArtistID:    sc.ArtistID,
		ReleaseYear: sc.ReleaseYear,
		DiscNumber:  sc.DiscNumber,
		TrackNumber: sc.TrackNumber,
		Duration:    time.Duration(sc.DurationMs) * time.Millisecond,
	}
	if err := t.Validate(); err != nil {
		return entry{}, err
	}

	path := sc.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(file), path)
	}
	mimeType := sc.MimeType
	if mimeType == "" {
		mimeType = mimeFromExt(path)
	}
	return entry{track: t, path: path, mimeType: mimeType}, nil
}

func mimeFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".m4a", ".aac":
		return "audio/mp4"
	default:
		return ""
	}
}
