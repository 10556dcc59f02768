package tektronix

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/oscillab/golascope/comm"
	"github.com/oscillab/golascope/scpi"
)

// afgChannels is the number of output channels on the AFG31000 series.
const afgChannels = 2

// Shape is the output waveform shape of a function generator.
type Shape int

// Waveform shapes.
const (
	ShapeSine Shape = iota
	ShapeSquare
	ShapePulse
	ShapeRamp
	ShapeNoise
	ShapeDC
	ShapeSinc
	ShapeGaussian
	ShapeLorentz
	ShapeExpRise
	ShapeExpDecay
	ShapeHaversine
)

var shapeMnemonics = map[Shape]string{
	ShapeSine:      "SINusoid",
	ShapeSquare:    "SQUare",
	ShapePulse:     "PULSe",
	ShapeRamp:      "RAMP",
	ShapeNoise:     "PRNoise",
	ShapeDC:        "DC",
	ShapeSinc:      "SINC",
	ShapeGaussian:  "GAUSsian",
	ShapeLorentz:   "LORentz",
	ShapeExpRise:   "EXPRise",
	ShapeExpDecay:  "EXPDecay",
	ShapeHaversine: "HAVersine",
}

func (s Shape) String() string {
	if m, ok := shapeMnemonics[s]; ok {
		return m
	}
	return "SINusoid"
}

// ParseShape converts an instrument response to a Shape.  Responses use
// the short form of the mnemonic, "SIN", "SQU", etc.
func ParseShape(s string) (Shape, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for shape, mnemonic := range shapeMnemonics {
		long := strings.ToUpper(mnemonic)
		short := shortForm(mnemonic)
		if s == long || s == short {
			return shape, nil
		}
	}
	return ShapeSine, fmt.Errorf("cannot parse %q as a waveform shape", s)
}

// shortForm extracts the abbreviated SCPI mnemonic, the leading capitals.
func shortForm(mnemonic string) string {
	for i, r := range mnemonic {
		if r >= 'a' && r <= 'z' {
			return strings.ToUpper(mnemonic[:i])
		}
	}
	return strings.ToUpper(mnemonic)
}

// PhaseUnit is the angular unit a phase value is expressed in.  The unit
// always travels with the value; it is never inferred from magnitude.
type PhaseUnit int

// Phase units.
const (
	Degrees PhaseUnit = iota
	Radians
)

func (u PhaseUnit) String() string {
	if u == Radians {
		return "RAD"
	}
	return "DEG"
}

// Impedance is the output load impedance, either a finite value in ohms or
// high impedance.
type Impedance struct {
	// HighZ selects the high-impedance setting; Ohms is ignored when set
	HighZ bool

	// Ohms is the load in ohms, commonly 50
	Ohms float64
}

func (i Impedance) String() string {
	if i.HighZ {
		return "INFinity"
	}
	return fmt.Sprintf("%G", i.Ohms)
}

// ParseImpedance converts an instrument response to an Impedance.  The
// instrument reports high impedance as 9.9E+37.
func ParseImpedance(s string) (Impedance, error) {
	s = strings.TrimSpace(s)
	ohms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if strings.EqualFold(s, "INF") || strings.EqualFold(s, "INFinity") {
			return Impedance{HighZ: true}, nil
		}
		return Impedance{}, fmt.Errorf("cannot parse %q as an impedance", s)
	}
	if ohms > 9e37 {
		return Impedance{HighZ: true}, nil
	}
	return Impedance{Ohms: ohms}, nil
}

// FunctionGenerator is an interface to an AFG31000 series function
// generator.
type FunctionGenerator struct {
	scpi.SCPI
}

// NewFunctionGenerator creates a new FunctionGenerator communicating over
// TCP.
func NewFunctionGenerator(addr string) *FunctionGenerator {
	maker := comm.BackingOffTCPConnMaker(addr, 3*time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	return &FunctionGenerator{scpi.SCPI{Pool: pool, Handshaking: true}}
}

// NewFunctionGeneratorFromPool creates a FunctionGenerator over an existing
// connection pool.
func NewFunctionGeneratorFromPool(pool *comm.Pool) *FunctionGenerator {
	return &FunctionGenerator{scpi.SCPI{Pool: pool, Handshaking: true}}
}

func validAFGChannel(ch int) error {
	if ch < 1 || ch > afgChannels {
		return InvalidChannelError{Channel: ch, Max: afgChannels}
	}
	return nil
}

// Identification returns the *IDN? response of the generator.
func (f *FunctionGenerator) Identification() (string, error) {
	return f.ReadString("*IDN?")
}

// CheckIdentification errors if the instrument does not identify as an
// AFG31000 series generator.
func (f *FunctionGenerator) CheckIdentification() error {
	idn, err := f.Identification()
	if err != nil {
		return err
	}
	if !strings.Contains(idn, "AFG31") {
		return fmt.Errorf("instrument identifies as %q, not an AFG31000", idn)
	}
	return nil
}

// SetShape sets the output waveform shape of a channel.
func (f *FunctionGenerator) SetShape(channel int, shape Shape) error {
	if err := validAFGChannel(channel); err != nil {
		return err
	}
	return f.Write(fmt.Sprintf("SOURce%d:FUNCtion:SHAPe %s", channel, shape))
}

// GetShape returns the output waveform shape of a channel.
func (f *FunctionGenerator) GetShape(channel int) (Shape, error) {
	if err := validAFGChannel(channel); err != nil {
		return ShapeSine, err
	}
	resp, err := f.ReadString(fmt.Sprintf("SOURce%d:FUNCtion:SHAPe?", channel))
	if err != nil {
		return ShapeSine, err
	}
	return ParseShape(resp)
}

// SetFrequency sets the output frequency of a channel in Hz.
func (f *FunctionGenerator) SetFrequency(channel int, hz float64) error {
	if err := validAFGChannel(channel); err != nil {
		return err
	}
	if hz <= 0 {
		return fmt.Errorf("frequency %G must be positive", hz)
	}
	return f.Write(fmt.Sprintf("SOURce%d:FREQuency %G", channel, hz))
}

// GetFrequency returns the output frequency of a channel in Hz.
func (f *FunctionGenerator) GetFrequency(channel int) (float64, error) {
	if err := validAFGChannel(channel); err != nil {
		return 0, err
	}
	return f.ReadFloat(fmt.Sprintf("SOURce%d:FREQuency?", channel))
}

// SetAmplitude sets the output amplitude of a channel in volts
// peak-to-peak.
func (f *FunctionGenerator) SetAmplitude(channel int, vpp float64) error {
	if err := validAFGChannel(channel); err != nil {
		return err
	}
	if vpp < 0 {
		return fmt.Errorf("amplitude %G must not be negative", vpp)
	}
	return f.Write(fmt.Sprintf("SOURce%d:VOLTage:LEVel:IMMediate:AMPLitude %G", channel, vpp))
}

// GetAmplitude returns the output amplitude of a channel in volts
// peak-to-peak.
func (f *FunctionGenerator) GetAmplitude(channel int) (float64, error) {
	if err := validAFGChannel(channel); err != nil {
		return 0, err
	}
	return f.ReadFloat(fmt.Sprintf("SOURce%d:VOLTage:LEVel:IMMediate:AMPLitude?", channel))
}

// SetOffset sets the DC offset of a channel in volts.
func (f *FunctionGenerator) SetOffset(channel int, volts float64) error {
	if err := validAFGChannel(channel); err != nil {
		return err
	}
	return f.Write(fmt.Sprintf("SOURce%d:VOLTage:LEVel:IMMediate:OFFSet %G", channel, volts))
}

// GetOffset returns the DC offset of a channel in volts.
func (f *FunctionGenerator) GetOffset(channel int) (float64, error) {
	if err := validAFGChannel(channel); err != nil {
		return 0, err
	}
	return f.ReadFloat(fmt.Sprintf("SOURce%d:VOLTage:LEVel:IMMediate:OFFSet?", channel))
}

// SetLoad sets the output load impedance of a channel.
func (f *FunctionGenerator) SetLoad(channel int, z Impedance) error {
	if err := validAFGChannel(channel); err != nil {
		return err
	}
	return f.Write(fmt.Sprintf("OUTPut%d:LOAD %s", channel, z))
}

// GetLoad returns the output load impedance of a channel.
func (f *FunctionGenerator) GetLoad(channel int) (Impedance, error) {
	if err := validAFGChannel(channel); err != nil {
		return Impedance{}, err
	}
	resp, err := f.ReadString(fmt.Sprintf("OUTPut%d:LOAD?", channel))
	if err != nil {
		return Impedance{}, err
	}
	return ParseImpedance(resp)
}

// SetOutput turns the output connector of a channel on or off.
func (f *FunctionGenerator) SetOutput(channel int, state OutputState) error {
	if err := validAFGChannel(channel); err != nil {
		return err
	}
	return f.Write(fmt.Sprintf("OUTPut%d:STATe %s", channel, state))
}

// GetOutput returns whether the output connector of a channel is on.
func (f *FunctionGenerator) GetOutput(channel int) (OutputState, error) {
	if err := validAFGChannel(channel); err != nil {
		return Off, err
	}
	resp, err := f.ReadString(fmt.Sprintf("OUTPut%d:STATe?", channel))
	if err != nil {
		return Off, err
	}
	return ParseOutputState(resp)
}

// SetFrequencyLock locks or unlocks the frequency of both channels
// together.
func (f *FunctionGenerator) SetFrequencyLock(state OutputState) error {
	return f.Write(fmt.Sprintf("SOURce:FREQuency:CONCurrent %s", state))
}

// GetFrequencyLock returns whether the channel frequencies are locked.
func (f *FunctionGenerator) GetFrequencyLock() (OutputState, error) {
	resp, err := f.ReadString("SOURce:FREQuency:CONCurrent?")
	if err != nil {
		return Off, err
	}
	return ParseOutputState(resp)
}

// SetPhase sets the phase of a channel.  The unit is explicit on the wire:
// the value is suffixed with DEG or RAD so the instrument and the caller
// agree without any magnitude guessing.
func (f *FunctionGenerator) SetPhase(channel int, value float64, unit PhaseUnit) error {
	if err := validAFGChannel(channel); err != nil {
		return err
	}
	limit := 2 * math.Pi
	if unit == Degrees {
		limit = 360
	}
	if value < -limit || value > limit {
		return fmt.Errorf("phase %G out of range ±%G %s", value, limit, unit)
	}
	return f.Write(fmt.Sprintf("SOURce%d:PHASe:ADJust %G%s", channel, value, unit))
}

// GetPhase returns the phase of a channel in the requested unit.  The
// instrument reports phase in radians; the conversion happens here, at the
// boundary, so no downstream code has to guess the unit.
func (f *FunctionGenerator) GetPhase(channel int, unit PhaseUnit) (float64, error) {
	if err := validAFGChannel(channel); err != nil {
		return 0, err
	}
	radians, err := f.ReadFloat(fmt.Sprintf("SOURce%d:PHASe:ADJust?", channel))
	if err != nil {
		return 0, err
	}
	if unit == Degrees {
		return radians * 180 / math.Pi, nil
	}
	return radians, nil
}
