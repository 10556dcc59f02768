package comm

import (
	"io"
	"time"
)

// Terminator wraps an io.ReadWriter, appending the Tx terminator to every
// write and stripping a trailing Rx terminator (and any preceding carriage
// return) from every read.
type Terminator struct {
	rw io.ReadWriter
	tx byte
	rx byte
}

// NewTerminator returns a Terminator wrapping rw with the given terminator
// bytes.
func NewTerminator(rw io.ReadWriter, tx, rx byte) *Terminator {
	return &Terminator{rw: rw, tx: tx, rx: rx}
}

func (t *Terminator) Write(b []byte) (int, error) {
	buf := make([]byte, len(b)+1)
	copy(buf, b)
	buf[len(b)] = t.tx
	n, err := t.rw.Write(buf)
	if n > len(b) {
		n = len(b)
	}
	return n, err
}

func (t *Terminator) Read(b []byte) (int, error) {
	n, err := t.rw.Read(b)
	if n > 0 && b[n-1] == t.rx {
		n--
	}
	if n > 0 && b[n-1] == '\r' {
		n--
	}
	return n, err
}

// Underlying returns the wrapped ReadWriter.
func (t *Terminator) Underlying() io.ReadWriter { return t.rw }

type deadliner interface {
	SetDeadline(time.Time) error
}

type unwrapper interface {
	Underlying() io.ReadWriter
}

// NewTimeout applies a deadline of now+d to the connection at the bottom of
// a wrapper chain, if it supports deadlines.  In-memory connections used in
// tests do not; they pass through untouched.
func NewTimeout(rw io.ReadWriter, d time.Duration) (io.ReadWriter, error) {
	cur := rw
	for {
		if dl, ok := cur.(deadliner); ok {
			return rw, dl.SetDeadline(time.Now().Add(d))
		}
		u, ok := cur.(unwrapper)
		if !ok {
			return rw, nil
		}
		cur = u.Underlying()
	}
}
