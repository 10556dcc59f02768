package tektronix

import (
	"fmt"
	"strings"
	"time"

	"github.com/oscillab/golascope/comm"
	"github.com/oscillab/golascope/scpi"
	"github.com/tarm/serial"
)

// scopeChannels is the number of analog inputs on the MSO44B.
const scopeChannels = 4

// Scope is an interface to an MSO44B oscilloscope.
type Scope struct {
	scpi.SCPI
}

// NewScope creates a new Scope instance communicating over TCP.
func NewScope(addr string) *Scope {
	maker := comm.BackingOffTCPConnMaker(addr, 3*time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	return &Scope{scpi.SCPI{Pool: pool, Handshaking: true}}
}

// NewScopeSerial creates a new Scope instance communicating over RS232.
func NewScopeSerial(port string) *Scope {
	cfg := &serial.Config{
		Name:        port,
		Baud:        115200,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 5 * time.Second}
	pool := comm.NewPool(1, time.Hour, comm.SerialConnMaker(cfg))
	return &Scope{scpi.SCPI{Pool: pool, Handshaking: true}}
}

// NewScopeFromPool creates a Scope over an existing connection pool, e.g.
// one backed by USBTMC.
func NewScopeFromPool(pool *comm.Pool) *Scope {
	return &Scope{scpi.SCPI{Pool: pool, Handshaking: true}}
}

// Identification returns the *IDN? response of the scope.
func (s *Scope) Identification() (string, error) {
	return s.ReadString("*IDN?")
}

// CheckIdentification errors if the instrument at the other end does not
// identify as an MSO44B.
func (s *Scope) CheckIdentification() error {
	idn, err := s.Identification()
	if err != nil {
		return err
	}
	if !strings.Contains(idn, "MSO44") {
		return fmt.Errorf("instrument identifies as %q, not an MSO44", idn)
	}
	return nil
}

// Reset restores the scope to its default settings.
func (s *Scope) Reset() error {
	return s.Write("*RST")
}

// ClearStatus clears the scope's status and error queues.
func (s *Scope) ClearStatus() error {
	return s.Write("*CLS")
}

func validChannel(ch int) error {
	if ch < 1 || ch > scopeChannels {
		return InvalidChannelError{Channel: ch, Max: scopeChannels}
	}
	return nil
}

// SetChannelScale sets the vertical scale of a channel in volts per division.
func (s *Scope) SetChannelScale(channel int, voltsPerDiv float64) error {
	if err := validChannel(channel); err != nil {
		return err
	}
	return s.Write(fmt.Sprintf("CH%d:SCALE %G", channel, voltsPerDiv))
}

// GetChannelScale returns the vertical scale of a channel in volts per division.
func (s *Scope) GetChannelScale(channel int) (float64, error) {
	if err := validChannel(channel); err != nil {
		return 0, err
	}
	return s.ReadFloat(fmt.Sprintf("CH%d:SCALE?", channel))
}

// SetChannelOffset sets the vertical offset of a channel in volts.
func (s *Scope) SetChannelOffset(channel int, volts float64) error {
	if err := validChannel(channel); err != nil {
		return err
	}
	return s.Write(fmt.Sprintf("CH%d:OFFSET %G", channel, volts))
}

// GetChannelOffset returns the vertical offset of a channel in volts.
func (s *Scope) GetChannelOffset(channel int) (float64, error) {
	if err := validChannel(channel); err != nil {
		return 0, err
	}
	return s.ReadFloat(fmt.Sprintf("CH%d:OFFSET?", channel))
}

// SetChannelCoupling sets the input coupling of a channel.
func (s *Scope) SetChannelCoupling(channel int, c Coupling) error {
	if err := validChannel(channel); err != nil {
		return err
	}
	return s.Write(fmt.Sprintf("CH%d:COUPLING %s", channel, c))
}

// GetChannelCoupling returns the input coupling of a channel.
func (s *Scope) GetChannelCoupling(channel int) (Coupling, error) {
	if err := validChannel(channel); err != nil {
		return CouplingDC, err
	}
	resp, err := s.ReadString(fmt.Sprintf("CH%d:COUPLING?", channel))
	if err != nil {
		return CouplingDC, err
	}
	return ParseCoupling(resp)
}

// SetChannelState turns the display and acquisition of a channel on or off.
func (s *Scope) SetChannelState(channel int, state OutputState) error {
	if err := validChannel(channel); err != nil {
		return err
	}
	return s.Write(fmt.Sprintf("CH%d:STATE %s", channel, state))
}

// GetChannelState returns whether a channel is on.
func (s *Scope) GetChannelState(channel int) (OutputState, error) {
	if err := validChannel(channel); err != nil {
		return Off, err
	}
	resp, err := s.ReadString(fmt.Sprintf("CH%d:STATE?", channel))
	if err != nil {
		return Off, err
	}
	return ParseOutputState(resp)
}

// ActiveChannels returns the channels that are currently on.
func (s *Scope) ActiveChannels() ([]int, error) {
	var active []int
	for ch := 1; ch <= scopeChannels; ch++ {
		state, err := s.GetChannelState(ch)
		if err != nil {
			return nil, err
		}
		if state == On {
			active = append(active, ch)
		}
	}
	return active, nil
}

// SetTimeScale sets the horizontal scale in seconds per division.
func (s *Scope) SetTimeScale(secPerDiv float64) error {
	return s.Write(fmt.Sprintf("HOR:SCA %G", secPerDiv))
}

// GetTimeScale returns the horizontal scale in seconds per division.
func (s *Scope) GetTimeScale() (float64, error) {
	return s.ReadFloat("HOR:SCA?")
}

// SetSampleRate sets the sample rate in samples per second.
func (s *Scope) SetSampleRate(samplesPerSec float64) error {
	return s.Write(fmt.Sprintf("HOR:SAMPLER %G", samplesPerSec))
}

// GetSampleRate returns the sample rate in samples per second.
func (s *Scope) GetSampleRate() (float64, error) {
	return s.ReadFloat("HOR:SAMPLER?")
}

// SetRecordLength sets the number of samples in an acquisition.
func (s *Scope) SetRecordLength(points int) error {
	if points <= 0 {
		return fmt.Errorf("record length %d must be positive", points)
	}
	return s.Write(fmt.Sprintf("HOR:RECORDLENGTH %d", points))
}

// GetRecordLength returns the number of samples in an acquisition.
func (s *Scope) GetRecordLength() (int, error) {
	return s.ReadInt("HOR:RECORDLENGTH?")
}

// TriggerConfig selects the edge trigger for an acquisition.
type TriggerConfig struct {
	// Source is the channel that sources the trigger
	Source int `json:"source" yaml:"Source"`

	// Level is the trigger level in volts
	Level float64 `json:"level" yaml:"Level"`

	// Slope is the edge direction that fires the trigger
	Slope Slope `json:"slope" yaml:"Slope"`
}

// SetTrigger configures the edge trigger.
func (s *Scope) SetTrigger(cfg TriggerConfig) error {
	if err := validChannel(cfg.Source); err != nil {
		return err
	}
	err := s.Write(fmt.Sprintf("TRIGGER:EDGE:SOURCE CH%d", cfg.Source))
	if err != nil {
		return err
	}
	err = s.Write(fmt.Sprintf("TRIGGER:EDGE:LEVEL %G", cfg.Level))
	if err != nil {
		return err
	}
	return s.Write(fmt.Sprintf("TRIGGER:EDGE:SLOPE %s", cfg.Slope))
}

// GetTrigger returns the current edge trigger configuration.
func (s *Scope) GetTrigger() (TriggerConfig, error) {
	var cfg TriggerConfig
	src, err := s.ReadString("TRIGGER:EDGE:SOURCE?")
	if err != nil {
		return cfg, err
	}
	// response is "CH2" or similar
	_, err = fmt.Sscanf(strings.TrimSpace(src), "CH%d", &cfg.Source)
	if err != nil {
		return cfg, fmt.Errorf("cannot parse trigger source %q: %w", src, err)
	}
	cfg.Level, err = s.ReadFloat("TRIGGER:EDGE:LEVEL?")
	if err != nil {
		return cfg, err
	}
	slope, err := s.ReadString("TRIGGER:EDGE:SLOPE?")
	if err != nil {
		return cfg, err
	}
	cfg.Slope, err = ParseSlope(slope)
	return cfg, err
}

// TriggerState returns the raw trigger state of the scope, e.g. "READY",
// "TRIGGER", "SAVE".
func (s *Scope) TriggerState() (string, error) {
	resp, err := s.ReadString("TRIGger:STATE?")
	return strings.ToUpper(strings.TrimSpace(resp)), err
}

// Run starts continuous acquisition.
func (s *Scope) Run() error {
	return s.Write("ACQuire:STATE RUN")
}

// Stop halts acquisition.
func (s *Scope) Stop() error {
	return s.Write("ACQuire:STATE STOP")
}

// Single arms a single acquisition.
func (s *Scope) Single() error {
	return s.Write("ACQuire:STATE SINGLE")
}

// GetAcqState returns the raw acquisition state of the scope.
func (s *Scope) GetAcqState() (string, error) {
	return s.ReadString("ACQuire:STATE?")
}

// SetAcqMode sets the acquisition mode.
func (s *Scope) SetAcqMode(mode AcqMode) error {
	return s.Write(fmt.Sprintf("ACQuire:MODE %s", mode))
}

// GetAcqMode returns the acquisition mode.
func (s *Scope) GetAcqMode() (AcqMode, error) {
	resp, err := s.ReadString("ACQuire:MODE?")
	if err != nil {
		return AcqSample, err
	}
	return ParseAcqMode(resp)
}

// OpComplete returns true when the scope has finished its pending
// operations.
func (s *Scope) OpComplete() (bool, error) {
	resp, err := s.ReadString("*OPC?")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(resp) == "1", nil
}
