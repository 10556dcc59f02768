// Command scopecap captures one triggered waveform from an MSO44B and
// writes it to a file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/theckman/yacspin"

	"github.com/oscillab/golascope/comm"
	"github.com/oscillab/golascope/oscilloscope"
	"github.com/oscillab/golascope/tektronix"
	"github.com/oscillab/golascope/usbtmc"
)

var (
	addr     = flag.String("addr", "", "TCP address of the scope, e.g. 192.168.100.40:4000")
	serial   = flag.Bool("serial", false, "addr is a serial port, e.g. /dev/ttyUSB0")
	usb      = flag.String("usb", "", "USBTMC vid:pid in hex, e.g. 0699:0527; overrides addr")
	channels = flag.String("channels", "", "comma separated channels to capture, e.g. 1,2; empty captures the active channels")
	reclen   = flag.Int("reclen", 0, "record length in samples; 0 leaves the scope as configured")
	encoding = flag.String("enc", "int16", "wire encoding: ascii, int8, uint8, int16, uint16, float64")
	order    = flag.String("order", "little", "byte order for binary encodings: little or big")
	tsource  = flag.Int("tsource", 0, "trigger source channel; 0 leaves the trigger as configured")
	tlevel   = flag.Float64("tlevel", 0, "trigger level in volts")
	tslope   = flag.String("tslope", "RISING", "trigger slope: RISING or FALLING")
	mode     = flag.String("mode", "SAMPLE", "acquisition mode: SAMPLE or HIRES")
	timeout  = flag.Duration("timeout", 10*time.Second, "how long to wait for the trigger")
	format   = flag.String("fmt", "", "output format: csv, fits, or json; inferred from the output name if empty")
	output   = flag.String("o", "waveform.csv", "output file name")
)

func parseChannels(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, piece := range strings.Split(s, ",") {
		ch, err := strconv.Atoi(strings.TrimSpace(piece))
		if err != nil {
			return nil, fmt.Errorf("channel %q is not a number", piece)
		}
		out = append(out, ch)
	}
	return out, nil
}

func buildConfig() (tektronix.AcquireConfig, error) {
	var cfg tektronix.AcquireConfig
	chans, err := parseChannels(*channels)
	if err != nil {
		return cfg, err
	}
	byteOrder, err := oscilloscope.ParseByteOrder(*order)
	if err != nil {
		return cfg, err
	}
	enc, err := oscilloscope.ParseEncoding(*encoding, byteOrder)
	if err != nil {
		return cfg, err
	}
	acqMode, err := tektronix.ParseAcqMode(*mode)
	if err != nil {
		return cfg, err
	}
	cfg = tektronix.AcquireConfig{
		Channels:     chans,
		RecordLength: *reclen,
		Encoding:     enc,
		Mode:         acqMode,
		Timeout:      *timeout,
	}
	if *tsource != 0 {
		slope, err := tektronix.ParseSlope(*tslope)
		if err != nil {
			return cfg, err
		}
		cfg.Trigger = &tektronix.TriggerConfig{
			Source: *tsource,
			Level:  *tlevel,
			Slope:  slope,
		}
	}
	return cfg, nil
}

func connect() (*tektronix.Scope, error) {
	if *usb != "" {
		pieces := strings.Split(*usb, ":")
		if len(pieces) != 2 {
			return nil, fmt.Errorf("usb %q is not of the form vid:pid", *usb)
		}
		vid, err := strconv.ParseUint(pieces[0], 16, 16)
		if err != nil {
			return nil, err
		}
		pid, err := strconv.ParseUint(pieces[1], 16, 16)
		if err != nil {
			return nil, err
		}
		pool := comm.NewPool(1, comm.DefaultIdleTime, usbtmc.ConnMaker(uint16(vid), uint16(pid)))
		return tektronix.NewScopeFromPool(pool), nil
	}
	if *addr == "" {
		return nil, fmt.Errorf("one of -addr or -usb is required")
	}
	if *serial {
		return tektronix.NewScopeSerial(*addr), nil
	}
	return tektronix.NewScope(*addr), nil
}

// outputFormat resolves -fmt, falling back to the output file extension.
func outputFormat() string {
	if *format != "" {
		return *format
	}
	switch {
	case strings.HasSuffix(*output, ".fits"), strings.HasSuffix(*output, ".fit"):
		return "fits"
	case strings.HasSuffix(*output, ".json"):
		return "json"
	}
	return "csv"
}

func spinner() (*yacspin.Spinner, error) {
	cfg := yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[11],
		Suffix:            " capture",
		SuffixAutoColon:   true,
		Message:           "waiting for trigger",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	}
	return yacspin.New(cfg)
}

func main() {
	flag.Parse()
	cfg, err := buildConfig()
	if err != nil {
		log.Fatal(err)
	}
	scope, err := connect()
	if err != nil {
		log.Fatal(err)
	}
	if err = scope.CheckIdentification(); err != nil {
		log.Fatal(err)
	}

	spin, err := spinner()
	if err != nil {
		log.Fatal(err)
	}
	spin.Start()

	var wav *oscilloscope.Waveform
	if len(cfg.Channels) == 0 {
		wav, err = scope.AcquireActive(cfg)
	} else {
		wav, err = scope.AcquireWaveform(cfg)
	}
	if err != nil {
		spin.StopFailMessage(err.Error())
		spin.StopFail()
		os.Exit(1)
	}
	spin.Message(fmt.Sprintf("%d points on %d channels", wav.Points, len(wav.Channels)))

	f, err := os.Create(*output)
	if err != nil {
		spin.StopFailMessage(err.Error())
		spin.StopFail()
		os.Exit(1)
	}
	defer f.Close()

	switch outputFormat() {
	case "csv":
		err = wav.EncodeCSV(f)
	case "fits":
		md := scope.CollectMetadata(wav.Requested, true)
		err = wav.EncodeFITS(f, md.FITSCards())
	case "json":
		err = json.NewEncoder(f).Encode(wav)
	default:
		err = fmt.Errorf("unknown format %q", outputFormat())
	}
	if err != nil {
		spin.StopFailMessage(err.Error())
		spin.StopFail()
		os.Exit(1)
	}
	spin.StopMessage(fmt.Sprintf("wrote %s", *output))
	spin.Stop()
}
