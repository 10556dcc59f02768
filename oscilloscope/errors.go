package oscilloscope

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMalformedSample indicates an ASCII curve response contained a token
	// that does not parse as a number.  The whole buffer is rejected; there
	// is no partial recovery.
	ErrMalformedSample = errors.New("malformed sample in ascii curve data")

	// ErrTruncatedBuffer indicates a binary curve response whose length is
	// not a whole number of words.
	ErrTruncatedBuffer = errors.New("curve data length is not a multiple of the word size")
)

// TimeoutError is returned when the trigger was not observed within the
// caller's deadline.  No partial waveform accompanies it.
type TimeoutError struct {
	Waited time.Duration
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("no trigger observed within %v", e.Waited)
}

// LengthMismatchError is returned when a channel's data length disagrees
// with the established time axis.
type LengthMismatchError struct {
	Channel string
	Got     int
	Want    int
}

func (e LengthMismatchError) Error() string {
	return fmt.Sprintf("channel %s has %d samples, time axis has %d", e.Channel, e.Got, e.Want)
}
