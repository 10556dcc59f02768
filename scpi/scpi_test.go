package scpi

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/oscillab/golascope/comm"
)

// fakeConn is an in-memory instrument endpoint.  Commands written to it are
// answered synchronously by respond; replies wait in a buffer for the next
// Read.  maxRead throttles reads to exercise reassembly loops.
type fakeConn struct {
	respond func(cmd string) []byte
	pending bytes.Buffer
	partial bytes.Buffer
	maxRead int
	closed  bool
}

func (f *fakeConn) Write(b []byte) (int, error) {
	f.partial.Write(b)
	for {
		data := f.partial.String()
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		cmd := data[:idx]
		f.partial.Next(idx + 1)
		if resp := f.respond(cmd); resp != nil {
			f.pending.Write(resp)
		}
	}
	return len(b), nil
}

func (f *fakeConn) Read(b []byte) (int, error) {
	if f.pending.Len() == 0 {
		return 0, io.EOF
	}
	if f.maxRead > 0 && len(b) > f.maxRead {
		b = b[:f.maxRead]
	}
	return f.pending.Read(b)
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func newFakeSCPI(respond func(cmd string) []byte) (*SCPI, *fakeConn) {
	fc := &fakeConn{respond: respond}
	pool := comm.NewPool(1, time.Hour, func() (io.ReadWriteCloser, error) {
		return fc, nil
	})
	return &SCPI{Pool: pool}, fc
}

func TestReadString(t *testing.T) {
	s, _ := newFakeSCPI(func(cmd string) []byte {
		if cmd == "*IDN?" {
			return []byte("TEKTRONIX,MSO44B,C000001,FV:1.0\n")
		}
		return nil
	})
	got, err := s.ReadString("*IDN?")
	if err != nil {
		t.Fatalf("ReadString returned error: %v", err)
	}
	if got != "TEKTRONIX,MSO44B,C000001,FV:1.0" {
		t.Errorf("unexpected response %q", got)
	}
}

func TestReadFloatIntBool(t *testing.T) {
	s, _ := newFakeSCPI(func(cmd string) []byte {
		switch cmd {
		case "FLOAT?":
			return []byte("2.5E-3\n")
		case "INT?":
			return []byte("1250\n")
		case "BOOL?":
			return []byte("1\n")
		}
		return nil
	})
	f, err := s.ReadFloat("FLOAT?")
	if err != nil || f != 2.5e-3 {
		t.Errorf("ReadFloat = %v, %v; want 2.5e-3, nil", f, err)
	}
	i, err := s.ReadInt("INT?")
	if err != nil || i != 1250 {
		t.Errorf("ReadInt = %v, %v; want 1250, nil", i, err)
	}
	b, err := s.ReadBool("BOOL?")
	if err != nil || !b {
		t.Errorf("ReadBool = %v, %v; want true, nil", b, err)
	}
}

func TestReadStringReassemblesChunkedCurve(t *testing.T) {
	// a long ASCII curve whose first sample is 0; delivered 16 bytes at a
	// time, a prefix ends in a piece like "0,1,..." which must not be
	// mistaken for the error-queue reply
	samples := make([]string, 200)
	for i := range samples {
		samples[i] = strconv.Itoa(i % 100)
	}
	curve := strings.Join(samples, ",")
	s, fc := newFakeSCPI(func(cmd string) []byte {
		if strings.Contains(cmd, "CURVe?") {
			return []byte(curve + `;0,"No error"` + "\n")
		}
		return nil
	})
	s.Handshaking = true
	fc.maxRead = 16
	got, err := s.ReadString("CURVe?")
	if err != nil {
		t.Fatalf("ReadString returned error: %v", err)
	}
	if got != curve {
		t.Fatalf("reassembled %d bytes, want %d", len(got), len(curve))
	}
}

func TestWriteHandshaking(t *testing.T) {
	var seen []string
	s, _ := newFakeSCPI(func(cmd string) []byte {
		seen = append(seen, cmd)
		if strings.Contains(cmd, "SYSTem:ERRor?") {
			return []byte("0,\"No error\"\n")
		}
		return nil
	})
	s.Handshaking = true
	if err := s.Write("CH1:SCALE 0.5"); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if len(seen) != 1 || !strings.Contains(seen[0], "CH1:SCALE 0.5") {
		t.Errorf("unexpected commands sent: %v", seen)
	}
}

func TestWriteHandshakingSurfacesDeviceError(t *testing.T) {
	s, _ := newFakeSCPI(func(cmd string) []byte {
		if strings.Contains(cmd, "SYSTem:ERRor?") {
			return []byte("-113,\"Undefined header\"\n")
		}
		return nil
	})
	s.Handshaking = true
	err := s.Write("BOGUS:CMD 1")
	if err == nil || !strings.Contains(err.Error(), "-113") {
		t.Fatalf("expected device error, got %v", err)
	}
}

func TestReadBlock(t *testing.T) {
	payload := []byte{0x64, 0x00, 0x9C, 0xFF}
	s, _ := newFakeSCPI(func(cmd string) []byte {
		if cmd == "CURVe?" {
			resp := []byte("#14")
			resp = append(resp, payload...)
			return append(resp, '\n')
		}
		return nil
	})
	got, err := s.ReadBlock("CURVe?")
	if err != nil {
		t.Fatalf("ReadBlock returned error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadBlock = % X, want % X", got, payload)
	}
}

func TestReadBlockSpansReads(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB, 0xCD}, 64)
	s, fc := newFakeSCPI(func(cmd string) []byte {
		if cmd == "CURVe?" {
			resp := []byte("#3128")
			resp = append(resp, payload...)
			return append(resp, '\n')
		}
		return nil
	})
	fc.maxRead = 16
	got, err := s.ReadBlock("CURVe?")
	if err != nil {
		t.Fatalf("ReadBlock returned error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("reassembled payload does not match, len %d want %d", len(got), len(payload))
	}
}

func TestReadBlockRejectsNonBlock(t *testing.T) {
	s, _ := newFakeSCPI(func(cmd string) []byte {
		return []byte("1.0,2.0\n")
	})
	if _, err := s.ReadBlock("CURVe?"); err == nil {
		t.Fatal("expected error for response without block header")
	}
}

func TestRaw(t *testing.T) {
	s, _ := newFakeSCPI(func(cmd string) []byte {
		if cmd == "TRIGger:STATE?" {
			return []byte("READY\n")
		}
		return nil
	})
	s.Handshaking = true // Raw must bypass handshaking
	resp, err := s.Raw("TRIGger:STATE?")
	if err != nil {
		t.Fatalf("Raw returned error: %v", err)
	}
	if resp != "READY" {
		t.Errorf("Raw = %q, want READY", resp)
	}
	if !s.Handshaking {
		t.Error("Raw did not restore handshaking")
	}
}
