package audio

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"

	"github.com/osa030/segue/internal/app/stream"
)

// ErrUnsupportedFormat is returned for containers no decoder handles.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// maxRemoteSize bounds how much of a remote stream is buffered in memory.
const maxRemoteSize = 64 << 20

// Open opens a local file or downloads a remote source and decodes it.
// Remote sources are buffered in memory so that they can seek.
func Open(ctx context.Context, src stream.Source) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	switch src.Kind {
	case stream.KindLocal:
		rc, err = os.Open(src.Path)
	default:
		rc, err = fetch(ctx, src.URL)
	}
	if err != nil {
		return nil, beep.Format{}, err
	}

	s, format, err := decode(rc, formatOf(src))
	if err != nil {
		_ = rc.Close()
		return nil, beep.Format{}, err
	}
	return s, format, nil
}

func fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, stream.MarkTransient(errors.Wrap(err, "failed to fetch stream"))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &stream.StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSize+1))
	if err != nil {
		return nil, stream.MarkTransient(errors.Wrap(err, "failed to read stream"))
	}
	if len(data) > maxRemoteSize {
		return nil, errors.Newf("stream larger than %d bytes", maxRemoteSize)
	}
	return nopCloser{bytes.NewReader(data)}, nil
}

func decode(rc io.ReadCloser, format string) (beep.StreamSeekCloser, beep.Format, error) {
	switch format {
	case "mp3":
		return mp3.Decode(rc)
	case "wav":
		return wav.Decode(rc)
	default:
		return nil, beep.Format{}, errors.Wrapf(ErrUnsupportedFormat, "%q", format)
	}
}

// formatOf picks a decoder from the MIME type, falling back to the extension.
func formatOf(src stream.Source) string {
	switch strings.ToLower(src.MimeType) {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	}

	loc := src.Location()
	if i := strings.IndexAny(loc, "?#"); i >= 0 && src.Kind == stream.KindRemote {
		loc = loc[:i]
	}
	switch strings.ToLower(filepath.Ext(loc)) {
	case ".wav":
		return "wav"
	case ".mp3", "":
		return "mp3"
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(loc)), ".")
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
