package tektronix

import (
	"context"
	"fmt"
	"time"

	"github.com/oscillab/golascope/oscilloscope"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultPollInterval = 100 * time.Millisecond
)

// AcquireConfig describes one triggered acquisition.
type AcquireConfig struct {
	// Channels are the channel numbers to capture, 1..4
	Channels []int

	// RecordLength is the number of samples to request.  Zero leaves the
	// record length as currently configured on the scope.
	RecordLength int

	// Encoding selects the wire format for curve transfers
	Encoding oscilloscope.Encoding

	// Trigger, if non-nil, reconfigures the edge trigger before arming.
	// nil uses whatever trigger the scope already has.
	Trigger *TriggerConfig

	// Mode is the acquisition mode, Sample unless set
	Mode AcqMode

	// Timeout bounds the wait for the trigger; 10s if zero
	Timeout time.Duration

	// PollInterval bounds how often the trigger state is queried while
	// waiting; 100ms if zero
	PollInterval time.Duration
}

// validate rejects bad configurations before any command reaches the
// instrument.
func (cfg *AcquireConfig) validate() error {
	if len(cfg.Channels) == 0 {
		return fmt.Errorf("no channels requested")
	}
	for _, ch := range cfg.Channels {
		if err := validChannel(ch); err != nil {
			return err
		}
	}
	if cfg.RecordLength < 0 {
		return fmt.Errorf("record length %d must not be negative", cfg.RecordLength)
	}
	if err := cfg.Encoding.Validate(); err != nil {
		return err
	}
	if cfg.Trigger != nil {
		if err := validChannel(cfg.Trigger.Source); err != nil {
			return err
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return nil
}

/*AcquireWaveform runs one triggered acquisition and returns the scaled
result.

The call moves through arm, wait-for-trigger, and capture in sequence:
configure the requested channels, record length, wire encoding, trigger,
and acquisition mode; arm a single sequence; poll the trigger state at a
bounded interval until it reports done or the timeout deadline passes; then
for each channel fetch the preamble scaling constants and the curve data,
decode, and scale.  The first channel fetched establishes the time axis;
any later channel whose length disagrees fails the whole call.  On any
failure, including timeout, no partial waveform is returned.

Repeat calls are independent; the scope connection is the only state shared
between them.  Calls must not run concurrently against one scope.
*/
func (s *Scope) AcquireWaveform(cfg AcquireConfig) (*oscilloscope.Waveform, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := s.arm(&cfg); err != nil {
		return nil, fmt.Errorf("arming acquisition: %w", err)
	}
	if err := s.waitForTrigger(cfg.Timeout, cfg.PollInterval); err != nil {
		return nil, err
	}
	wav, err := s.capture(&cfg)
	if err != nil {
		return nil, err
	}
	return wav, nil
}

// arm configures the scope for the acquisition and starts a single
// sequence.
func (s *Scope) arm(cfg *AcquireConfig) error {
	for _, ch := range cfg.Channels {
		if err := s.SetChannelState(ch, On); err != nil {
			return err
		}
	}
	if cfg.RecordLength > 0 {
		if err := s.SetRecordLength(cfg.RecordLength); err != nil {
			return err
		}
		if err := s.Write("DATa:STARt 1"); err != nil {
			return err
		}
		if err := s.Write(fmt.Sprintf("DATa:STOP %d", cfg.RecordLength)); err != nil {
			return err
		}
	}
	if err := s.setDataEncoding(cfg.Encoding); err != nil {
		return err
	}
	if cfg.Trigger != nil {
		if err := s.SetTrigger(*cfg.Trigger); err != nil {
			return err
		}
	}
	if err := s.SetAcqMode(cfg.Mode); err != nil {
		return err
	}
	return s.Single()
}

// setDataEncoding tells the scope the curve transfer format matching the
// encoding descriptor.  The decoder trusts this agreement.
func (s *Scope) setDataEncoding(enc oscilloscope.Encoding) error {
	if enc.ASCII {
		return s.Write("DATa:ENCdg ASCii")
	}
	var mnemonic string
	switch {
	case enc.WordSize == 8:
		mnemonic = "FPBinary"
	case enc.Signed:
		mnemonic = "RIBinary"
	default:
		mnemonic = "RPBinary"
	}
	if err := s.Write("DATa:ENCdg " + mnemonic); err != nil {
		return err
	}
	if err := s.Write(fmt.Sprintf("DATa:WIDth %d", enc.WordSize)); err != nil {
		return err
	}
	order := "LSB"
	if enc.Order == oscilloscope.BigEndian {
		order = "MSB"
	}
	return s.Write("WFMOutpre:BYT_Or " + order)
}

// waitForTrigger polls the trigger state at pollInterval until the scope
// reports the sequence fired, or the deadline passes.  The rate limiter
// bounds the poll frequency; the context deadline bounds the wall clock.
func (s *Scope) waitForTrigger(timeout, pollInterval time.Duration) error {
	deadline := time.Now().Add(timeout)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	lim := rate.NewLimiter(rate.Every(pollInterval), 1)
	for {
		if err := lim.Wait(ctx); err != nil {
			return oscilloscope.TimeoutError{Waited: timeout}
		}
		state, err := s.TriggerState()
		if err != nil {
			return fmt.Errorf("waiting for trigger: %w", err)
		}
		switch state {
		case "TRIGGER", "SAVE":
			// fired, or fired and already stopped
			return nil
		}
		if time.Now().After(deadline) {
			return oscilloscope.TimeoutError{Waited: timeout}
		}
	}
}

// capture fetches, decodes, and scales every requested channel.  The first
// channel establishes the shared time axis.
func (s *Scope) capture(cfg *AcquireConfig) (*oscilloscope.Waveform, error) {
	var (
		timeAxis []float64
		channels = make(map[string][]float64, len(cfg.Channels))
	)
	for i, ch := range cfg.Channels {
		label := fmt.Sprintf("CH%d", ch)
		if err := s.Write("DATa:SOUrce " + label); err != nil {
			return nil, fmt.Errorf("capturing %s: %w", label, err)
		}
		yp, err := s.readYParameters()
		if err != nil {
			return nil, fmt.Errorf("capturing %s: %w", label, err)
		}
		raw, err := s.fetchCurve(cfg.Encoding)
		if err != nil {
			return nil, fmt.Errorf("capturing %s: %w", label, err)
		}
		samples, err := oscilloscope.Decode(raw, cfg.Encoding)
		if err != nil {
			return nil, fmt.Errorf("capturing %s: %w", label, err)
		}
		volts := oscilloscope.Volts(samples, yp)
		if i == 0 {
			xp, err := s.readXParameters()
			if err != nil {
				return nil, fmt.Errorf("capturing %s: %w", label, err)
			}
			timeAxis = oscilloscope.TimeAxis(len(volts), xp)
		} else if len(volts) != len(timeAxis) {
			return nil, oscilloscope.LengthMismatchError{
				Channel: label,
				Got:     len(volts),
				Want:    len(timeAxis),
			}
		}
		channels[label] = volts
	}
	return &oscilloscope.Waveform{
		Time:      timeAxis,
		Channels:  channels,
		Requested: append([]int(nil), cfg.Channels...),
		Points:    len(timeAxis),
	}, nil
}

// readYParameters fetches the vertical scaling constants for the current
// data source from the waveform preamble.
func (s *Scope) readYParameters() (oscilloscope.YParameters, error) {
	var p oscilloscope.YParameters
	var err error
	p.Mult, err = s.ReadFloat("WFMOutpre:YMUlt?")
	if err != nil {
		return p, err
	}
	p.Zero, err = s.ReadFloat("WFMOutpre:YZEro?")
	if err != nil {
		return p, err
	}
	p.Off, err = s.ReadFloat("WFMOutpre:YOFf?")
	return p, err
}

// readXParameters fetches the horizontal scaling constants, which are
// shared by every channel of one acquisition.
func (s *Scope) readXParameters() (oscilloscope.XParameters, error) {
	var p oscilloscope.XParameters
	var err error
	p.Incr, err = s.ReadFloat("WFMOutpre:XINcr?")
	if err != nil {
		return p, err
	}
	p.Zero, err = s.ReadFloat("WFMOutpre:XZEro?")
	if err != nil {
		return p, err
	}
	p.PtOff, err = s.ReadInt("WFMOutpre:PT_Off?")
	return p, err
}

// fetchCurve transfers the raw curve data for the current data source.
func (s *Scope) fetchCurve(enc oscilloscope.Encoding) ([]byte, error) {
	if enc.ASCII {
		resp, err := s.ReadString("CURVe?")
		if err != nil {
			return nil, err
		}
		return []byte(resp), nil
	}
	return s.ReadBlock("CURVe?")
}

// AcquireActive captures all channels that are currently on, with the given
// configuration applied to them.  cfg.Channels is ignored.
func (s *Scope) AcquireActive(cfg AcquireConfig) (*oscilloscope.Waveform, error) {
	active, err := s.ActiveChannels()
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("no channels are active")
	}
	cfg.Channels = active
	return s.AcquireWaveform(cfg)
}
