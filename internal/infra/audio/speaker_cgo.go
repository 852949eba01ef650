//go:build (linux && cgo) || windows || darwin

package audio

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Available indicates whether audio output is supported in this build.
const Available = true

type speakerOutput struct{}

func newSpeaker(rate beep.SampleRate, buffer time.Duration) (Output, error) {
	if err := speaker.Init(rate, rate.N(buffer)); err != nil {
		return nil, errors.Wrap(err, "failed to initialize speaker")
	}
	return speakerOutput{}, nil
}

func (speakerOutput) Start(s beep.Streamer) error {
	speaker.Play(s)
	return nil
}

func (speakerOutput) Close() error {
	speaker.Clear()
	speaker.Close()
	return nil
}
