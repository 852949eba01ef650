package offline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/segue/internal/app/stream"
)

func writeTrack(t *testing.T, dir, id, file string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte("audio"), 0o644))
	sidecar := `{"id": "` + id + `", "title": "Song ` + id + `", "artist": "Band", "duration_ms": 180000, "file": "` + file + `"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".json"), []byte(sidecar), 0o644))
}

func TestLibrary_Index(t *testing.T) {
	dir := t.TempDir()
	writeTrack(t, dir, "t1", "one.mp3")
	writeTrack(t, dir, "t2", "two.flac")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nofile.json"), []byte(`{"id": "x", "duration_ms": 1000}`), 0o644))

	lib, err := Open(Settings{Dir: dir})
	require.NoError(t, err)
	defer lib.Close()

	assert.Equal(t, 2, lib.Len())

	src, ok := lib.ResolveOffline(context.Background(), "t2")
	require.True(t, ok)
	assert.Equal(t, stream.KindLocal, src.Kind)
	assert.Equal(t, filepath.Join(dir, "two.flac"), src.Path)
	assert.Equal(t, "audio/flac", src.MimeType)
	assert.Equal(t, 3*time.Minute, src.Length)

	tr, err := lib.Track(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Song t1", tr.Title)

	_, err = lib.Track(context.Background(), "missing")
	assert.True(t, errors.Is(err, stream.ErrNotFound))
	_, ok = lib.ResolveOffline(context.Background(), "missing")
	assert.False(t, ok)
}

func TestLibrary_MissingAudioFile(t *testing.T) {
	dir := t.TempDir()
	writeTrack(t, dir, "t1", "one.mp3")
	lib, err := Open(Settings{Dir: dir})
	require.NoError(t, err)
	defer lib.Close()

	require.NoError(t, os.Remove(filepath.Join(dir, "one.mp3")))

	_, ok := lib.ResolveOffline(context.Background(), "t1")
	assert.False(t, ok)
}

func TestLibrary_WatchReindexes(t *testing.T) {
	dir := t.TempDir()
	lib, err := Open(Settings{Dir: dir, Watch: true, DebounceMs: 10})
	require.NoError(t, err)
	defer lib.Close()
	require.Zero(t, lib.Len())

	writeTrack(t, dir, "t1", "one.mp3")

	require.Eventually(t, func() bool { return lib.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "t1.json")))
	require.Eventually(t, func() bool { return lib.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOpen_Errors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	tests := []struct {
		name     string
		settings map[string]any
	}{
		{name: "missing dir setting", settings: map[string]any{}},
		{name: "nonexistent dir", settings: map[string]any{"dir": filepath.Join(t.TempDir(), "nope")}},
		{name: "not a directory", settings: map[string]any{"dir": file}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFromSettings(tt.settings)
			assert.Error(t, err)
		})
	}
}
