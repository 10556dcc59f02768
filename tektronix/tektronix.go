// Package tektronix provides interfaces to Tektronix test and measurement
// equipment: the MSO44B oscilloscope and the AFG31000 arbitrary function
// generator.
package tektronix

import (
	"fmt"
	"strings"
)

// InvalidChannelError is returned when a channel number outside the
// instrument's valid range is used.  It is raised before any command is
// sent to the instrument.
type InvalidChannelError struct {
	Channel int
	Max     int
}

func (e InvalidChannelError) Error() string {
	return fmt.Sprintf("channel %d outside valid range 1..%d", e.Channel, e.Max)
}

// OutputState is an on/off toggle.  Loose "ON"/1/true inputs are resolved
// to this type at the system boundary and never threaded through as raw
// strings.
type OutputState int

// Output states.
const (
	Off OutputState = iota
	On
)

func (o OutputState) String() string {
	if o == On {
		return "ON"
	}
	return "OFF"
}

// ParseOutputState resolves the forms instruments use in responses,
// "ON"/"OFF" and "1"/"0".
func ParseOutputState(s string) (OutputState, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON", "1":
		return On, nil
	case "OFF", "0":
		return Off, nil
	}
	return Off, fmt.Errorf("cannot parse %q as an output state", s)
}

// Coupling is the input coupling of a scope channel.
type Coupling int

// Couplings.
const (
	CouplingDC Coupling = iota
	CouplingAC
	CouplingGND
)

func (c Coupling) String() string {
	switch c {
	case CouplingAC:
		return "AC"
	case CouplingGND:
		return "GND"
	default:
		return "DC"
	}
}

// ParseCoupling converts an instrument response to a Coupling.
func ParseCoupling(s string) (Coupling, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AC":
		return CouplingAC, nil
	case "DC":
		return CouplingDC, nil
	case "GND":
		return CouplingGND, nil
	}
	return CouplingDC, fmt.Errorf("cannot parse %q as a coupling", s)
}

// Slope is the edge direction of a trigger.
type Slope int

// Slopes.
const (
	SlopeRising Slope = iota
	SlopeFalling
)

func (s Slope) String() string {
	if s == SlopeFalling {
		return "FALLING"
	}
	return "RISING"
}

// ParseSlope converts an instrument response to a Slope.
func ParseSlope(s string) (Slope, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RISING", "RISE":
		return SlopeRising, nil
	case "FALLING", "FALL":
		return SlopeFalling, nil
	}
	return SlopeRising, fmt.Errorf("cannot parse %q as a slope", s)
}

// AcqMode is the acquisition mode of the scope.
type AcqMode int

// Acquisition modes.  Sample stores one sample per interval; HiRes
// accumulates extra samples into higher vertical resolution.
const (
	AcqSample AcqMode = iota
	AcqHiRes
)

func (m AcqMode) String() string {
	if m == AcqHiRes {
		return "HIRES"
	}
	return "SAMPLE"
}

// ParseAcqMode converts an instrument response to an AcqMode.
func ParseAcqMode(s string) (AcqMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SAMPLE", "SAM":
		return AcqSample, nil
	case "HIRES", "HIR":
		return AcqHiRes, nil
	}
	return AcqSample, fmt.Errorf("cannot parse %q as an acquisition mode", s)
}
