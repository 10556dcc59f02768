package oscilloscope

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestDecodeASCII(t *testing.T) {
	got, err := Decode([]byte("1.0,2.0,3.0"), ASCIIEncoding())
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	want := []float64{1.0, 2.0, 3.0}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecodeASCIITolerantOfWhitespace(t *testing.T) {
	got, err := Decode([]byte(" -1.5E-3, 2 ,7.25\r\n"), ASCIIEncoding())
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	want := []float64{-1.5e-3, 2, 7.25}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecodeASCIIRejectsBadToken(t *testing.T) {
	_, err := Decode([]byte("1.0,garbage,3.0"), ASCIIEncoding())
	if !errors.Is(err, ErrMalformedSample) {
		t.Fatalf("expected ErrMalformedSample, got %v", err)
	}
}

func TestDecodeBinaryInt16LittleEndian(t *testing.T) {
	raw := []byte{0x64, 0x00, 0x9C, 0xFF}
	got, err := Decode(raw, BinaryEncoding(2, true, LittleEndian))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	want := []float64{100, -100}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Decode = %v, want %v", got, want)
	}
}

func TestDecodeBinaryInt16BigEndian(t *testing.T) {
	raw := []byte{0x00, 0x64, 0xFF, 0x9C}
	got, err := Decode(raw, BinaryEncoding(2, true, BigEndian))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got[0] != 100 || got[1] != -100 {
		t.Errorf("Decode = %v, want [100 -100]", got)
	}
}

func TestDecodeBinaryUint16(t *testing.T) {
	raw := []byte{0xFF, 0xFF}
	got, err := Decode(raw, BinaryEncoding(2, false, LittleEndian))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got[0] != 65535 {
		t.Errorf("Decode = %v, want [65535]", got)
	}
}

func TestDecodeBinaryInt8(t *testing.T) {
	raw := []byte{0x7F, 0x80}
	got, err := Decode(raw, BinaryEncoding(1, true, LittleEndian))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got[0] != 127 || got[1] != -128 {
		t.Errorf("Decode = %v, want [127 -128]", got)
	}
}

func TestDecodeBinaryFloat64(t *testing.T) {
	want := []float64{0.5, -2.25}
	raw := make([]byte, 16)
	binary.LittleEndian.PutUint64(raw[0:8], math.Float64bits(want[0]))
	binary.LittleEndian.PutUint64(raw[8:16], math.Float64bits(want[1]))
	got, err := Decode(raw, BinaryEncoding(8, false, LittleEndian))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Decode = %v, want %v", got, want)
	}
}

func TestDecodeBinaryTruncated(t *testing.T) {
	raw := []byte{0x64, 0x00, 0x9C}
	_, err := Decode(raw, BinaryEncoding(2, true, LittleEndian))
	if !errors.Is(err, ErrTruncatedBuffer) {
		t.Fatalf("expected ErrTruncatedBuffer, got %v", err)
	}
}

func TestDecodeRejectsBadWordSize(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3, 4}, BinaryEncoding(4, true, LittleEndian)); err == nil {
		t.Fatal("expected error for unsupported word size")
	}
}
