package tektronix

import (
	"fmt"
	"strings"
	"time"

	"github.com/astrogo/fitsio"
)

// Field is one best-effort metadata probe result.  A query the instrument
// does not support leaves the field unavailable rather than failing the
// whole snapshot.
type Field struct {
	Value     string `json:"value,omitempty"`
	Available bool   `json:"available"`
}

// ChannelMetadata is the configuration snapshot of one scope channel.
type ChannelMetadata struct {
	Scale    Field `json:"scale"`
	Offset   Field `json:"offset"`
	Coupling Field `json:"coupling"`
	State    Field `json:"state"`
}

// TriggerMetadata is the trigger configuration snapshot.
type TriggerMetadata struct {
	Source Field `json:"source"`
	Level  Field `json:"level"`
	Slope  Field `json:"slope"`
}

// Metadata is a read-only snapshot of the scope configuration, captured at
// or near acquisition time so a stored waveform can be reproduced.  It is
// pure data; collection failures degrade individual fields, never the
// snapshot.
type Metadata struct {
	Identity     Field                      `json:"identity"`
	AcqState     Field                      `json:"acqState"`
	AcqMode      Field                      `json:"acqMode"`
	TimeScale    Field                      `json:"timeScale"`
	SampleRate   Field                      `json:"sampleRate"`
	RecordLength Field                      `json:"recordLength"`
	Trigger      TriggerMetadata            `json:"trigger"`
	Channels     map[string]ChannelMetadata `json:"channels"`
	Taken        time.Time                  `json:"taken"`
}

// probe runs one query and degrades any failure to an unavailable field.
func (s *Scope) probe(cmd string) Field {
	resp, err := s.ReadString(cmd)
	if err != nil {
		return Field{}
	}
	return Field{Value: strings.TrimSpace(resp), Available: true}
}

// CollectMetadata snapshots the scope configuration for the given channels.
// includeGlobal adds the instrument-wide fields (identity, acquisition,
// trigger, horizontal).  Every field is probed independently; a probe that
// fails yields an unavailable field.
func (s *Scope) CollectMetadata(channels []int, includeGlobal bool) Metadata {
	md := Metadata{
		Channels: make(map[string]ChannelMetadata, len(channels)),
		Taken:    time.Now(),
	}
	if includeGlobal {
		md.Identity = s.probe("*IDN?")
		md.AcqState = s.probe("ACQuire:STATE?")
		md.AcqMode = s.probe("ACQuire:MODE?")
		md.TimeScale = s.probe("HOR:SCA?")
		md.SampleRate = s.probe("HOR:SAMPLER?")
		md.RecordLength = s.probe("HOR:RECORDLENGTH?")
		md.Trigger = TriggerMetadata{
			Source: s.probe("TRIGGER:EDGE:SOURCE?"),
			Level:  s.probe("TRIGGER:EDGE:LEVEL?"),
			Slope:  s.probe("TRIGGER:EDGE:SLOPE?"),
		}
	}
	for _, ch := range channels {
		label := fmt.Sprintf("CH%d", ch)
		md.Channels[label] = ChannelMetadata{
			Scale:    s.probe(fmt.Sprintf("CH%d:SCALE?", ch)),
			Offset:   s.probe(fmt.Sprintf("CH%d:OFFSET?", ch)),
			Coupling: s.probe(fmt.Sprintf("CH%d:COUPLING?", ch)),
			State:    s.probe(fmt.Sprintf("CH%d:STATE?", ch)),
		}
	}
	return md
}

// FITSCards flattens the snapshot into FITS header cards for archival
// alongside waveform data.  Unavailable fields are omitted.
func (m Metadata) FITSCards() []fitsio.Card {
	var cards []fitsio.Card
	add := func(name string, f Field, comment string) {
		if !f.Available {
			return
		}
		v := f.Value
		// FITS string values are limited to 68 characters
		if len(v) > 68 {
			v = v[:68]
		}
		cards = append(cards, fitsio.Card{Name: name, Value: v, Comment: comment})
	}
	add("INSTRUME", m.Identity, "instrument identity")
	add("ACQSTATE", m.AcqState, "acquisition state")
	add("ACQMODE", m.AcqMode, "acquisition mode")
	add("HSCALE", m.TimeScale, "s/div")
	add("SRATE", m.SampleRate, "samples/s")
	add("RECLEN", m.RecordLength, "record length")
	add("TRIGSRC", m.Trigger.Source, "trigger source")
	add("TRIGLVL", m.Trigger.Level, "trigger level, V")
	add("TRIGSLP", m.Trigger.Slope, "trigger slope")
	for label, ch := range m.Channels {
		// CH1SCALE, CH1COUP, ... 8 character FITS keyword limit
		add(label+"SCALE", ch.Scale, "V/div")
		add(label+"COUP", ch.Coupling, "coupling")
	}
	return cards
}
