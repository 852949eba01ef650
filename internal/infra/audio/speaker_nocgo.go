//go:build !((linux && cgo) || windows || darwin)

package audio

import (
	"time"

	"github.com/gopxl/beep/v2"
)

// Available indicates whether audio output is supported in this build.
// The speaker needs cgo for the native sound libraries on linux.
const Available = false

func newSpeaker(beep.SampleRate, time.Duration) (Output, error) {
	return nil, ErrUnavailable
}
