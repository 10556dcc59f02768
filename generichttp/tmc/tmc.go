// Package tmc provides an HTTP interface to test and measurement devices
package tmc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"goji.io/pat"

	"github.com/oscillab/golascope/generichttp"
	"github.com/oscillab/golascope/oscilloscope"
	"github.com/oscillab/golascope/server"
	"github.com/oscillab/golascope/tektronix"
)

// Oscilloscope describes the interface an HTTP-exposed scope must have
type Oscilloscope interface {
	Identification() (string, error)

	SetChannelScale(int, float64) error
	GetChannelScale(int) (float64, error)

	SetChannelOffset(int, float64) error
	GetChannelOffset(int) (float64, error)

	SetTimeScale(float64) error
	GetTimeScale() (float64, error)

	SetSampleRate(float64) error
	GetSampleRate() (float64, error)

	SetRecordLength(int) error
	GetRecordLength() (int, error)

	SetTrigger(tektronix.TriggerConfig) error
	GetTrigger() (tektronix.TriggerConfig, error)

	AcquireWaveform(tektronix.AcquireConfig) (*oscilloscope.Waveform, error)
	AcquireActive(tektronix.AcquireConfig) (*oscilloscope.Waveform, error)
	CollectMetadata([]int, bool) tektronix.Metadata

	Raw(string) (string, error)
}

// channelParam pulls the :ch URL parameter and validates it is a number.
// Range validation belongs to the driver.
func channelParam(r *http.Request) (int, error) {
	s := pat.Param(r, "ch")
	ch, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("channel %q is not a number", s)
	}
	return ch, nil
}

// acquireStatus maps acquisition failures onto HTTP codes: configuration
// mistakes are the client's fault, a trigger that never came is a timeout,
// anything else is on the instrument side.
func acquireStatus(err error) int {
	var (
		to  oscilloscope.TimeoutError
		ice tektronix.InvalidChannelError
	)
	switch {
	case errors.As(err, &to):
		return http.StatusGatewayTimeout
	case errors.As(err, &ice):
		return http.StatusBadRequest
	case strings.Contains(err.Error(), "cannot parse"),
		strings.Contains(err.Error(), "unsupported word size"),
		strings.Contains(err.Error(), "no channels"):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// AcquireRequest is the JSON body of an acquire-waveform call
type AcquireRequest struct {
	// Channels to capture; empty means all currently active channels
	Channels []int `json:"channels"`

	RecordLength int `json:"recordLength"`

	// Encoding is ascii, int8, uint8, int16, uint16, or float64
	Encoding string `json:"encoding"`

	// ByteOrder is little or big, little if empty
	ByteOrder string `json:"byteOrder"`

	Trigger *tektronix.TriggerConfig `json:"trigger,omitempty"`

	// Mode is SAMPLE or HIRES
	Mode string `json:"mode"`

	TimeoutMS      int `json:"timeoutMS"`
	PollIntervalMS int `json:"pollIntervalMS"`
}

func (req AcquireRequest) config() (tektronix.AcquireConfig, error) {
	var cfg tektronix.AcquireConfig
	order, err := oscilloscope.ParseByteOrder(req.ByteOrder)
	if err != nil {
		return cfg, err
	}
	enc, err := oscilloscope.ParseEncoding(req.Encoding, order)
	if err != nil {
		return cfg, err
	}
	mode := tektronix.AcqSample
	if req.Mode != "" {
		mode, err = tektronix.ParseAcqMode(req.Mode)
		if err != nil {
			return cfg, err
		}
	}
	return tektronix.AcquireConfig{
		Channels:     req.Channels,
		RecordLength: req.RecordLength,
		Encoding:     enc,
		Trigger:      req.Trigger,
		Mode:         mode,
		Timeout:      time.Duration(req.TimeoutMS) * time.Millisecond,
		PollInterval: time.Duration(req.PollIntervalMS) * time.Millisecond,
	}, nil
}

// HTTPOscilloscope exposes an Oscilloscope over HTTP
type HTTPOscilloscope struct {
	O Oscilloscope

	RouteTable server.RouteTable
}

// NewHTTPOscilloscope wraps a scope in an HTTP route table
func NewHTTPOscilloscope(o Oscilloscope) HTTPOscilloscope {
	w := HTTPOscilloscope{O: o}
	rt := server.RouteTable{
		pat.Get("/id"): generichttp.GetString(o.Identification),

		pat.Get("/channel/:ch/scale"):   w.getChannelFloat(o.GetChannelScale),
		pat.Post("/channel/:ch/scale"):  w.setChannelFloat(o.SetChannelScale),
		pat.Get("/channel/:ch/offset"):  w.getChannelFloat(o.GetChannelOffset),
		pat.Post("/channel/:ch/offset"): w.setChannelFloat(o.SetChannelOffset),

		pat.Get("/timescale"):      generichttp.GetFloat(o.GetTimeScale),
		pat.Post("/timescale"):     generichttp.SetFloat(o.SetTimeScale),
		pat.Get("/sample-rate"):    generichttp.GetFloat(o.GetSampleRate),
		pat.Post("/sample-rate"):   generichttp.SetFloat(o.SetSampleRate),
		pat.Get("/record-length"):  generichttp.GetInt(o.GetRecordLength),
		pat.Post("/record-length"): generichttp.SetInt(o.SetRecordLength),

		pat.Get("/trigger"):  w.getTrigger,
		pat.Post("/trigger"): w.setTrigger,

		pat.Post("/acquire-waveform"): w.acquireWaveform,
		pat.Get("/metadata"):          w.metadata,

		pat.Post("/raw"): w.raw,
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the HTTPer interface
func (h HTTPOscilloscope) RT() server.RouteTable {
	return h.RouteTable
}

func (h HTTPOscilloscope) getChannelFloat(fcn func(int) (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := channelParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		generichttp.GetFloat(func() (float64, error) { return fcn(ch) })(w, r)
	}
}

func (h HTTPOscilloscope) setChannelFloat(fcn func(int, float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := channelParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		generichttp.SetFloat(func(f float64) error { return fcn(ch, f) })(w, r)
	}
}

func (h HTTPOscilloscope) getTrigger(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.O.GetTrigger()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}

func (h HTTPOscilloscope) setTrigger(w http.ResponseWriter, r *http.Request) {
	var cfg tektronix.TriggerConfig
	err := json.NewDecoder(r.Body).Decode(&cfg)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err = h.O.SetTrigger(cfg); err != nil {
		http.Error(w, err.Error(), acquireStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

/*acquireWaveform runs one triggered acquisition.  The body is an
AcquireRequest; the fmt query parameter picks the response format:

	json (default)  the waveform as a JSON object
	csv             one time column and one column per channel
	fits            a FITS image, one plane per axis, with the scope
	                configuration in the header

Nothing is streamed until the acquisition has fully succeeded, so an error
always arrives as a proper status code, never a truncated body.
*/
func (h HTTPOscilloscope) acquireWaveform(w http.ResponseWriter, r *http.Request) {
	var req AcquireRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg, err := req.config()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var wav *oscilloscope.Waveform
	if len(cfg.Channels) == 0 {
		wav, err = h.O.AcquireActive(cfg)
	} else {
		wav, err = h.O.AcquireWaveform(cfg)
	}
	if err != nil {
		http.Error(w, err.Error(), acquireStatus(err))
		return
	}
	switch r.URL.Query().Get("fmt") {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(wav); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		if err := wav.EncodeCSV(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	case "fits":
		md := h.O.CollectMetadata(wav.Requested, true)
		w.Header().Set("Content-Type", "image/fits")
		if err := wav.EncodeFITS(w, md.FITSCards()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	default:
		http.Error(w, fmt.Sprintf("unknown format %q", r.URL.Query().Get("fmt")), http.StatusBadRequest)
	}
}

// metadata returns a configuration snapshot.  channels is a comma separated
// list; global=false skips the instrument-wide fields.
func (h HTTPOscilloscope) metadata(w http.ResponseWriter, r *http.Request) {
	var channels []int
	if s := r.URL.Query().Get("channels"); s != "" {
		for _, piece := range strings.Split(s, ",") {
			ch, err := strconv.Atoi(strings.TrimSpace(piece))
			if err != nil {
				http.Error(w, fmt.Sprintf("channel %q is not a number", piece), http.StatusBadRequest)
				return
			}
			channels = append(channels, ch)
		}
	}
	includeGlobal := r.URL.Query().Get("global") != "false"
	md := h.O.CollectMetadata(channels, includeGlobal)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(md); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h HTTPOscilloscope) raw(w http.ResponseWriter, r *http.Request) {
	s := server.StrT{}
	err := json.NewDecoder(r.Body).Decode(&s)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := h.O.Raw(s.Str)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(server.StrT{Str: resp})
}

// FunctionGenerator describes the interface an HTTP-exposed function
// generator must have
type FunctionGenerator interface {
	Identification() (string, error)

	SetShape(int, tektronix.Shape) error
	GetShape(int) (tektronix.Shape, error)

	SetFrequency(int, float64) error
	GetFrequency(int) (float64, error)

	SetAmplitude(int, float64) error
	GetAmplitude(int) (float64, error)

	SetOffset(int, float64) error
	GetOffset(int) (float64, error)

	SetLoad(int, tektronix.Impedance) error
	GetLoad(int) (tektronix.Impedance, error)

	SetOutput(int, tektronix.OutputState) error
	GetOutput(int) (tektronix.OutputState, error)

	SetFrequencyLock(tektronix.OutputState) error
	GetFrequencyLock() (tektronix.OutputState, error)

	SetPhase(int, float64, tektronix.PhaseUnit) error
	GetPhase(int, tektronix.PhaseUnit) (float64, error)

	Raw(string) (string, error)
}

// HTTPFunctionGenerator exposes a FunctionGenerator over HTTP
type HTTPFunctionGenerator struct {
	FG FunctionGenerator

	RouteTable server.RouteTable
}

// NewHTTPFunctionGenerator wraps a function generator in an HTTP route table
func NewHTTPFunctionGenerator(fg FunctionGenerator) HTTPFunctionGenerator {
	w := HTTPFunctionGenerator{FG: fg}
	rt := server.RouteTable{
		pat.Get("/id"): generichttp.GetString(fg.Identification),

		pat.Get("/channel/:ch/shape"):  w.getShape,
		pat.Post("/channel/:ch/shape"): w.setShape,

		pat.Get("/channel/:ch/frequency"):  w.getChannelFloat(fg.GetFrequency),
		pat.Post("/channel/:ch/frequency"): w.setChannelFloat(fg.SetFrequency),
		pat.Get("/channel/:ch/amplitude"):  w.getChannelFloat(fg.GetAmplitude),
		pat.Post("/channel/:ch/amplitude"): w.setChannelFloat(fg.SetAmplitude),
		pat.Get("/channel/:ch/offset"):     w.getChannelFloat(fg.GetOffset),
		pat.Post("/channel/:ch/offset"):    w.setChannelFloat(fg.SetOffset),

		pat.Get("/channel/:ch/load"):  w.getLoad,
		pat.Post("/channel/:ch/load"): w.setLoad,

		pat.Get("/channel/:ch/output"):  w.getOutput,
		pat.Post("/channel/:ch/output"): w.setOutput,

		pat.Get("/channel/:ch/phase"):  w.getPhase,
		pat.Post("/channel/:ch/phase"): w.setPhase,

		pat.Get("/frequency-lock"):  w.getFreqLock,
		pat.Post("/frequency-lock"): w.setFreqLock,

		pat.Post("/raw"): w.raw,
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the HTTPer interface
func (h HTTPFunctionGenerator) RT() server.RouteTable {
	return h.RouteTable
}

func (h HTTPFunctionGenerator) getChannelFloat(fcn func(int) (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := channelParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		generichttp.GetFloat(func() (float64, error) { return fcn(ch) })(w, r)
	}
}

func (h HTTPFunctionGenerator) setChannelFloat(fcn func(int, float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := channelParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		generichttp.SetFloat(func(f float64) error { return fcn(ch, f) })(w, r)
	}
}

func (h HTTPFunctionGenerator) getShape(w http.ResponseWriter, r *http.Request) {
	ch, err := channelParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	generichttp.GetString(func() (string, error) {
		shape, err := h.FG.GetShape(ch)
		return shape.String(), err
	})(w, r)
}

func (h HTTPFunctionGenerator) setShape(w http.ResponseWriter, r *http.Request) {
	ch, err := channelParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	generichttp.SetString(func(s string) error {
		shape, err := tektronix.ParseShape(s)
		if err != nil {
			return err
		}
		return h.FG.SetShape(ch, shape)
	})(w, r)
}

// loadT carries an impedance over JSON; highZ wins over ohms
type loadT struct {
	Ohms  float64 `json:"ohms"`
	HighZ bool    `json:"highZ"`
}

func (h HTTPFunctionGenerator) getLoad(w http.ResponseWriter, r *http.Request) {
	ch, err := channelParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	z, err := h.FG.GetLoad(ch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loadT{Ohms: z.Ohms, HighZ: z.HighZ})
}

func (h HTTPFunctionGenerator) setLoad(w http.ResponseWriter, r *http.Request) {
	ch, err := channelParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var l loadT
	err = json.NewDecoder(r.Body).Decode(&l)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err = h.FG.SetLoad(ch, tektronix.Impedance{Ohms: l.Ohms, HighZ: l.HighZ}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h HTTPFunctionGenerator) getOutput(w http.ResponseWriter, r *http.Request) {
	ch, err := channelParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	generichttp.GetBool(func() (bool, error) {
		state, err := h.FG.GetOutput(ch)
		return state == tektronix.On, err
	})(w, r)
}

func (h HTTPFunctionGenerator) setOutput(w http.ResponseWriter, r *http.Request) {
	ch, err := channelParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	generichttp.SetBool(func(b bool) error {
		state := tektronix.Off
		if b {
			state = tektronix.On
		}
		return h.FG.SetOutput(ch, state)
	})(w, r)
}

// phaseUnit resolves the unit query parameter, degrees unless rad is asked
// for explicitly
func phaseUnit(r *http.Request) tektronix.PhaseUnit {
	switch strings.ToLower(r.URL.Query().Get("unit")) {
	case "rad", "radians":
		return tektronix.Radians
	}
	return tektronix.Degrees
}

func (h HTTPFunctionGenerator) getPhase(w http.ResponseWriter, r *http.Request) {
	ch, err := channelParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	unit := phaseUnit(r)
	generichttp.GetFloat(func() (float64, error) {
		return h.FG.GetPhase(ch, unit)
	})(w, r)
}

func (h HTTPFunctionGenerator) setPhase(w http.ResponseWriter, r *http.Request) {
	ch, err := channelParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	unit := phaseUnit(r)
	generichttp.SetFloat(func(f float64) error {
		return h.FG.SetPhase(ch, f, unit)
	})(w, r)
}

func (h HTTPFunctionGenerator) getFreqLock(w http.ResponseWriter, r *http.Request) {
	generichttp.GetBool(func() (bool, error) {
		state, err := h.FG.GetFrequencyLock()
		return state == tektronix.On, err
	})(w, r)
}

func (h HTTPFunctionGenerator) setFreqLock(w http.ResponseWriter, r *http.Request) {
	generichttp.SetBool(func(b bool) error {
		state := tektronix.Off
		if b {
			state = tektronix.On
		}
		return h.FG.SetFrequencyLock(state)
	})(w, r)
}

func (h HTTPFunctionGenerator) raw(w http.ResponseWriter, r *http.Request) {
	s := server.StrT{}
	err := json.NewDecoder(r.Body).Decode(&s)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := h.FG.Raw(s.Str)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(server.StrT{Str: resp})
}
