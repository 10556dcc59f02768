// Package oscilloscope provides type and interface definitions for
// oscilloscopes: wire encodings for sample data, decoding of curve
// responses, scaling of raw samples to volts and seconds, and the waveform
// record handed to callers and exporters.
package oscilloscope

import (
	"sort"
)

// Waveform describes a multi-channel recording from a scope.  All channels
// of one waveform share the Time axis; every data series has the same
// length as Time.  A Waveform is immutable once returned to a caller.
type Waveform struct {
	// Time is the time of each sample in seconds, shared by all channels
	Time []float64 `json:"time"`

	// Channels maps a channel label ("CH1") to its data in volts
	Channels map[string][]float64 `json:"channels"`

	// Requested is the list of channel numbers asked for in the acquisition
	Requested []int `json:"requested"`

	// Points is the number of samples actually obtained per channel, which
	// may be less than the record length requested under instrument limits
	Points int `json:"points"`
}

// Labels returns the channel labels in sorted order.  Map iteration order
// would shuffle export columns between runs.
func (w *Waveform) Labels() []string {
	labels := make([]string, 0, len(w.Channels))
	for k := range w.Channels {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	return labels
}

// Validate checks the cardinal invariant of a waveform: every channel's
// data is the same length as the time axis.  Exporters assume rectangular
// data, so a violation is a hard failure, not a warning.
func (w *Waveform) Validate() error {
	want := len(w.Time)
	for _, label := range w.Labels() {
		if got := len(w.Channels[label]); got != want {
			return LengthMismatchError{Channel: label, Got: got, Want: want}
		}
	}
	return nil
}
