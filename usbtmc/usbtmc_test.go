package usbtmc

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestBTagSkipsZero(t *testing.T) {
	var g bTagGen
	g.value = 254
	if tag := g.next(); tag != 255 {
		t.Fatalf("tag = %d, want 255", tag)
	}
	if tag := g.next(); tag != 1 {
		t.Errorf("tag after wrap = %d, want 1 (zero is reserved)", tag)
	}
}

func TestBulkOutHeader(t *testing.T) {
	hdr := encBulkOutHeader(7, 300)
	if hdr[0] != msgDevDepOut {
		t.Errorf("MsgID = %#x, want %#x", hdr[0], msgDevDepOut)
	}
	if hdr[1] != 7 || hdr[2] != invbTag(7) {
		t.Errorf("bTag pair = %#x %#x", hdr[1], hdr[2])
	}
	if size := binary.LittleEndian.Uint32(hdr[4:8]); size != 300 {
		t.Errorf("transferSize = %d, want 300", size)
	}
	if hdr[8] != 0x01 {
		t.Errorf("EOM bit not set, byte 8 = %#x", hdr[8])
	}
}

func TestBulkInHeaderTerminator(t *testing.T) {
	term := byte('\n')
	hdr := encBulkInHeader(3, 1500, &term)
	if hdr[0] != msgDevDepIn {
		t.Errorf("MsgID = %#x, want %#x", hdr[0], msgDevDepIn)
	}
	if hdr[8] != 0x02 || hdr[9] != '\n' {
		t.Errorf("terminator bytes = %#x %#x", hdr[8], hdr[9])
	}
	hdr = encBulkInHeader(3, 1500, nil)
	if hdr[8] != 0x00 || hdr[9] != 0x00 {
		t.Errorf("terminator bytes with nil terminator = %#x %#x", hdr[8], hdr[9])
	}
}

func TestPaddedAlignment(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 4, 5, 13} {
		got := padded(make([]byte, n))
		if len(got)%4 != 0 {
			t.Errorf("padded(%d bytes) has length %d, not 4-aligned", n, len(got))
		}
		if len(got)-n > 3 {
			t.Errorf("padded(%d bytes) added %d bytes, more than needed", n, len(got)-n)
		}
	}
}

// fakeEndpoints is the device side of the bulk pipe.  Writes from the
// Conn accumulate in out; reads serve queued responses.
type fakeEndpoints struct {
	out  bytes.Buffer
	resp [][]byte
}

func (f *fakeEndpoints) Write(b []byte) (int, error) {
	return f.out.Write(b)
}

func (f *fakeEndpoints) Read(b []byte) (int, error) {
	r := f.resp[0]
	n := copy(b, r)
	if n == len(r) {
		f.resp = f.resp[1:]
	} else {
		f.resp[0] = r[n:]
	}
	return n, nil
}

// respond frames a payload as a DEV_DEP_MSG_IN response with alignment
// padding, the way a device answers a read request.
func (f *fakeEndpoints) respond(payload []byte) {
	hdr := [headerLen]byte{msgDevDepIn, 5, invbTag(5)}
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	hdr[8] = 0x01
	f.resp = append(f.resp, padded(append(hdr[:], payload...)))
}

func TestConnWriteFraming(t *testing.T) {
	fe := &fakeEndpoints{}
	c := &Conn{in: fe, out: fe}
	msg := []byte("*IDN?\n")
	n, err := c.Write(msg)
	if err != nil || n != len(msg) {
		t.Fatalf("Write = %d, %v; want %d, nil", n, err, len(msg))
	}
	sent := fe.out.Bytes()
	if len(sent)%4 != 0 {
		t.Errorf("transfer length %d not 4-aligned", len(sent))
	}
	if sent[0] != msgDevDepOut {
		t.Errorf("MsgID = %#x", sent[0])
	}
	if size := binary.LittleEndian.Uint32(sent[4:8]); int(size) != len(msg) {
		t.Errorf("transferSize = %d, want %d", size, len(msg))
	}
	if !bytes.Equal(sent[headerLen:headerLen+len(msg)], msg) {
		t.Errorf("payload = %q", sent[headerLen:])
	}
}

func TestConnReadStripsHeaderAndPadding(t *testing.T) {
	fe := &fakeEndpoints{}
	c := &Conn{in: fe, out: fe}
	fe.respond([]byte("TEKTRONIX,MSO44B\n"))
	buf := make([]byte, 64)
	n, err := c.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "TEKTRONIX,MSO44B\n" {
		t.Errorf("payload = %q", buf[:n])
	}
	// the read request itself must have been framed
	req := fe.out.Bytes()
	if req[0] != msgDevDepIn {
		t.Errorf("read request MsgID = %#x", req[0])
	}
}

func TestConnReadBuffersOverflow(t *testing.T) {
	fe := &fakeEndpoints{}
	c := &Conn{in: fe, out: fe}
	fe.respond([]byte("abcdefgh"))
	buf := make([]byte, 3)
	n, err := c.Read(buf)
	if err != nil || string(buf[:n]) != "abc" {
		t.Fatalf("first read = %q, %v", buf[:n], err)
	}
	n, err = c.Read(buf)
	if err != nil || string(buf[:n]) != "def" {
		t.Fatalf("second read = %q, %v", buf[:n], err)
	}
	n, err = c.Read(buf)
	if err != nil || string(buf[:n]) != "gh" {
		t.Fatalf("third read = %q, %v", buf[:n], err)
	}
}

func TestConnReadRejectsBadHeader(t *testing.T) {
	fe := &fakeEndpoints{}
	c := &Conn{in: fe, out: fe}
	bad := make([]byte, headerLen)
	bad[0] = msgDevDepIn
	bad[1] = 5
	bad[2] = 5 // not the inverse
	fe.resp = append(fe.resp, bad)
	if _, err := c.Read(make([]byte, 8)); err == nil {
		t.Error("expected error for corrupt bTag pair")
	}
}
