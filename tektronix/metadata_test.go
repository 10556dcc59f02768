package tektronix

import (
	"encoding/json"
	"testing"
)

// metadataHandler answers the snapshot queries, treating any command not in
// the table as unsupported: the instrument pushes an error that surfaces on
// the chained error query, the way a real scope rejects an unknown header.
func metadataHandler(table map[string]string) func(string) []byte {
	pendingErr := ""
	return func(q string) []byte {
		if q == "SYSTem:ERRor?" {
			if pendingErr != "" {
				r := pendingErr
				pendingErr = ""
				return []byte(r)
			}
			return []byte(`0,"No error"`)
		}
		if v, ok := table[q]; ok {
			return []byte(v)
		}
		pendingErr = `-113,"Undefined header"`
		return []byte{}
	}
}

func TestCollectMetadata(t *testing.T) {
	s, _ := newFakeScope(metadataHandler(map[string]string{
		"*IDN?":                "TEKTRONIX,MSO44B,C000001,FV:2.0.3",
		"ACQuire:STATE?":       "0",
		"ACQuire:MODE?":        "SAM",
		"HOR:SCA?":             "4.0E-6",
		"HOR:SAMPLER?":         "3.125E+9",
		"HOR:RECORDLENGTH?":    "12500",
		"TRIGGER:EDGE:SOURCE?": "CH1",
		"TRIGGER:EDGE:LEVEL?":  "5.0E-1",
		"TRIGGER:EDGE:SLOPE?":  "RISE",
		"CH1:SCALE?":           "1.0E+0",
		"CH1:OFFSET?":          "0.0E+0",
		"CH1:COUPLING?":        "DC",
		"CH1:STATE?":           "1",
	}))
	md := s.CollectMetadata([]int{1}, true)
	if !md.Identity.Available || md.Identity.Value != "TEKTRONIX,MSO44B,C000001,FV:2.0.3" {
		t.Errorf("Identity = %+v", md.Identity)
	}
	if !md.SampleRate.Available || md.SampleRate.Value != "3.125E+9" {
		t.Errorf("SampleRate = %+v", md.SampleRate)
	}
	if !md.Trigger.Source.Available || md.Trigger.Source.Value != "CH1" {
		t.Errorf("Trigger.Source = %+v", md.Trigger.Source)
	}
	ch, ok := md.Channels["CH1"]
	if !ok || !ch.Coupling.Available || ch.Coupling.Value != "DC" {
		t.Errorf("Channels[CH1] = %+v", ch)
	}
	if md.Taken.IsZero() {
		t.Error("Taken was not stamped")
	}
}

func TestCollectMetadataDegradesUnsupportedFields(t *testing.T) {
	s, _ := newFakeScope(metadataHandler(map[string]string{
		"*IDN?":      "TEKTRONIX,MSO44B,C000001,FV:2.0.3",
		"CH2:SCALE?": "2.0E+0",
	}))
	md := s.CollectMetadata([]int{2}, true)
	if !md.Identity.Available {
		t.Error("Identity should be available")
	}
	if md.SampleRate.Available {
		t.Errorf("SampleRate should degrade to unavailable, got %+v", md.SampleRate)
	}
	if md.Trigger.Level.Available {
		t.Error("Trigger.Level should degrade to unavailable")
	}
	ch := md.Channels["CH2"]
	if !ch.Scale.Available || ch.Scale.Value != "2.0E+0" {
		t.Errorf("Channels[CH2].Scale = %+v", ch.Scale)
	}
	if ch.Coupling.Available {
		t.Error("Channels[CH2].Coupling should degrade to unavailable")
	}
}

func TestCollectMetadataChannelsOnly(t *testing.T) {
	s, fi := newFakeScope(metadataHandler(map[string]string{
		"CH1:SCALE?":    "1.0E+0",
		"CH1:OFFSET?":   "0.0E+0",
		"CH1:COUPLING?": "DC",
		"CH1:STATE?":    "1",
	}))
	md := s.CollectMetadata([]int{1}, false)
	if md.Identity.Available {
		t.Error("global fields collected when includeGlobal is false")
	}
	for _, q := range fi.queries {
		if q == "*IDN?" {
			t.Error("identity queried when includeGlobal is false")
		}
	}
	if !md.Channels["CH1"].Scale.Available {
		t.Error("channel fields missing")
	}
}

func TestMetadataFITSCards(t *testing.T) {
	m := Metadata{
		Identity:   Field{Value: "TEKTRONIX,MSO44B,C000001,FV:2.0.3", Available: true},
		SampleRate: Field{Value: "3.125E+9", Available: true},
		Channels: map[string]ChannelMetadata{
			"CH1": {Scale: Field{Value: "1.0E+0", Available: true}},
		},
	}
	cards := m.FITSCards()
	byName := map[string]string{}
	for _, c := range cards {
		byName[c.Name] = c.Value.(string)
	}
	if byName["INSTRUME"] != "TEKTRONIX,MSO44B,C000001,FV:2.0.3" {
		t.Errorf("INSTRUME = %q", byName["INSTRUME"])
	}
	if byName["SRATE"] != "3.125E+9" {
		t.Errorf("SRATE = %q", byName["SRATE"])
	}
	if byName["CH1SCALE"] != "1.0E+0" {
		t.Errorf("CH1SCALE = %q", byName["CH1SCALE"])
	}
	if _, ok := byName["ACQSTATE"]; ok {
		t.Error("unavailable field emitted a card")
	}
}

func TestMetadataJSONShape(t *testing.T) {
	m := Metadata{Identity: Field{Value: "x", Available: true}}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Metadata
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Identity != m.Identity {
		t.Errorf("round trip changed identity: %+v", back.Identity)
	}
}
