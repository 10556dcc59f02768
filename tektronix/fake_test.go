package tektronix

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/oscillab/golascope/comm"
)

// fakeInstrument is an in-memory SCPI endpoint.  Each line written to it is
// split on ';' into chained commands; queries are answered by handle,
// non-query commands are recorded and passed to onSet.  Responses to one
// line are joined with ';' the way real instruments chain them, so the
// handshaking path through the transport layer is exercised for real.
type fakeInstrument struct {
	handle  func(query string) []byte
	onSet   func(cmd string)
	sets    []string
	queries []string
	pending bytes.Buffer
	partial bytes.Buffer
	maxRead int
	closed  bool
}

func (f *fakeInstrument) Write(b []byte) (int, error) {
	f.partial.Write(b)
	for {
		data := f.partial.String()
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := data[:idx]
		f.partial.Next(idx + 1)
		f.process(line)
	}
	return len(b), nil
}

func (f *fakeInstrument) process(line string) {
	var resps [][]byte
	for _, part := range strings.Split(line, ";") {
		cmd := strings.TrimPrefix(strings.TrimSpace(part), ":")
		if cmd == "" {
			continue
		}
		if strings.Contains(cmd, "?") {
			f.queries = append(f.queries, cmd)
			var resp []byte
			if f.handle != nil {
				resp = f.handle(cmd)
			}
			if resp == nil && cmd == "SYSTem:ERRor?" {
				resp = []byte(`0,"No error"`)
			}
			if resp == nil {
				resp = []byte{}
			}
			resps = append(resps, resp)
		} else {
			f.sets = append(f.sets, cmd)
			if f.onSet != nil {
				f.onSet(cmd)
			}
		}
	}
	if len(resps) > 0 {
		f.pending.Write(bytes.Join(resps, []byte{';'}))
		f.pending.WriteByte('\n')
	}
}

// Read hands back pending response bytes, at most maxRead at a time when it
// is set, mimicking segmented delivery of a long response.
func (f *fakeInstrument) Read(b []byte) (int, error) {
	if f.pending.Len() == 0 {
		return 0, io.EOF
	}
	if f.maxRead > 0 && len(b) > f.maxRead {
		b = b[:f.maxRead]
	}
	return f.pending.Read(b)
}

func (f *fakeInstrument) Close() error {
	f.closed = true
	return nil
}

// touched reports whether any command reached the fake.
func (f *fakeInstrument) touched() bool {
	return len(f.sets) > 0 || len(f.queries) > 0
}

// sawSet reports whether a set command was received, ignoring the *CLS
// injected by handshaking.
func (f *fakeInstrument) sawSet(cmd string) bool {
	for _, s := range f.sets {
		if s == cmd {
			return true
		}
	}
	return false
}

func newFakeScope(handle func(string) []byte) (*Scope, *fakeInstrument) {
	fi := &fakeInstrument{handle: handle}
	pool := comm.NewPool(1, time.Hour, func() (io.ReadWriteCloser, error) {
		return fi, nil
	})
	return NewScopeFromPool(pool), fi
}

func newFakeAFG(handle func(string) []byte) (*FunctionGenerator, *fakeInstrument) {
	fi := &fakeInstrument{handle: handle}
	pool := comm.NewPool(1, time.Hour, func() (io.ReadWriteCloser, error) {
		return fi, nil
	})
	return NewFunctionGeneratorFromPool(pool), fi
}

// block wraps a payload in an IEEE 488.2 definite-length header.
func block(t *testing.T, payload []byte) []byte {
	t.Helper()
	lenStr := strconv.Itoa(len(payload))
	head := append([]byte{'#', byte('0' + len(lenStr))}, lenStr...)
	return append(head, payload...)
}
