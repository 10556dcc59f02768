// Package scpi provides primitives for working with devices that
// have SCPI interfaces
package scpi

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/oscillab/golascope/comm"
)

const (
	timeout = 5 * time.Second

	tcpFrameSize = 1500

	// jumboFrameSize is used for bulk waveform transfers, which routinely
	// exceed one TCP MTU
	jumboFrameSize = 9000
)

// SCPI is a type for encapsulating SCPI communication
type SCPI struct {
	Pool *comm.Pool

	// Handshaking indicates if the communication shall use handshaking,
	// where an error query is sent with every message
	// to ensure the device accepted the input
	Handshaking bool
}

// Write sends a command to the device.  if s.Handshaking == true,
// it also requests an error response and checks that it is OK.
// it is assumed this is used for set operations and not get.
func (s *SCPI) Write(cmds ...string) error {
	conn, err := s.Pool.Get()
	if err != nil {
		return err
	}
	defer func() { s.Pool.ReturnWithError(conn, err) }()
	var wrap io.ReadWriter
	wrap = comm.NewTerminator(conn, '\n', '\n')
	wrap, err = comm.NewTimeout(wrap, timeout)
	if err != nil {
		return err
	}
	if s.Handshaking {
		cmds = append([]string{"*CLS;"}, cmds...)
		cmds = append(cmds, ";:SYSTem:ERRor?")
	}
	str := strings.Join(cmds, " ")
	_, err = io.WriteString(wrap, str)
	if err != nil {
		return err
	}
	if s.Handshaking {
		var resp []byte
		resp, err = readResponse(conn, '\n')
		if err != nil {
			return err
		}
		if es := string(resp); !errorFree(es) {
			return fmt.Errorf(es)
		}
	}
	return nil
}

// readResponse accumulates reads until the response ends with the message
// terminator, then strips it and a preceding carriage return.  Bulk
// responses such as ASCII curve dumps span many TCP segments; a single
// read returns only a prefix.
func readResponse(r io.Reader, term byte) ([]byte, error) {
	var resp []byte
	buf := make([]byte, tcpFrameSize)
	for {
		n, err := r.Read(buf)
		resp = append(resp, buf[:n]...)
		if err != nil {
			return resp, err
		}
		if len(resp) > 0 && resp[len(resp)-1] == term {
			break
		}
	}
	resp = resp[:len(resp)-1]
	if len(resp) > 0 && resp[len(resp)-1] == '\r' {
		resp = resp[:len(resp)-1]
	}
	return resp, nil
}

// WriteRead is write, but with a read call after.  It is assumed that "get"
// calls use this underlying mechanism
func (s *SCPI) WriteRead(cmds ...string) ([]byte, error) {
	var resp []byte
	conn, err := s.Pool.Get()
	if err != nil {
		return resp, err
	}
	defer func() { s.Pool.ReturnWithError(conn, err) }()
	var wrap io.ReadWriter
	wrap = comm.NewTerminator(conn, '\n', '\n')
	wrap, err = comm.NewTimeout(wrap, timeout)
	if err != nil {
		return resp, err
	}
	if s.Handshaking {
		cmds = append([]string{"*CLS;"}, cmds...)
		cmds = append(cmds, ";:SYSTem:ERRor?")
	}
	str := strings.Join(cmds, " ")
	_, err = io.WriteString(wrap, str)
	if err != nil {
		return resp, err
	}
	// read the raw connection; readResponse owns terminator handling so the
	// end of message stays visible across split reads
	resp, err = readResponse(conn, '\n')
	if err != nil {
		return resp, err
	}
	if s.Handshaking {
		pieces := bytes.Split(resp, []byte{';'})
		errS := string(pieces[len(pieces)-1])
		if !errorFree(errS) {
			return resp, fmt.Errorf(errS)
		}
		return bytes.Join(pieces[:len(pieces)-1], []byte{}), nil
	}
	return resp, err
}

// ReadBlock sends a command to the device and reads the response as an
// IEEE 488.2 definite-length binary block, "#<n><len><payload>".  The
// header and trailing terminator are stripped; the raw payload is returned.
// Handshaking is suspended for the exchange, an error query would be
// interleaved with the binary payload.
func (s *SCPI) ReadBlock(cmd string) ([]byte, error) {
	var ret []byte
	conn, err := s.Pool.Get()
	if err != nil {
		return ret, err
	}
	defer func() { s.Pool.ReturnWithError(conn, err) }()
	var wrap io.ReadWriter
	wrap, err = comm.NewTimeout(conn, timeout)
	if err != nil {
		return ret, err
	}
	_, err = wrap.Write(append([]byte(cmd), '\n'))
	if err != nil {
		return ret, err
	}
	buf := make([]byte, jumboFrameSize)
	n, err := wrap.Read(buf)
	if err != nil {
		return ret, err
	}
	if n < 2 {
		err = fmt.Errorf("scpi: block response was only %d bytes, expected >2", n)
		return ret, err
	}
	if buf[0] != '#' {
		err = fmt.Errorf("scpi: first byte in block response was %q, expected #", buf[0])
		return ret, err
	}
	nDigits := int(buf[1] - '0')
	if nDigits < 1 || nDigits > 9 || n < 2+nDigits {
		err = fmt.Errorf("scpi: invalid block header %q", buf[:n])
		return ret, err
	}
	upper := 2 + nDigits
	dataBuf := buf[:n]
	nbytes, err := strconv.Atoi(string(dataBuf[2:upper]))
	if err != nil {
		return ret, err
	}
	dataBuf = dataBuf[upper:]
	// the payload plus its terminator may span many reads
	for len(dataBuf) < nbytes+1 {
		buf := make([]byte, jumboFrameSize)
		n, err = wrap.Read(buf)
		if err != nil {
			return ret, err
		}
		dataBuf = append(dataBuf, buf[:n]...)
	}
	return dataBuf[:nbytes], nil
}

// ReadString sends a command to the device, the reads the response
// and returns it as a decoded ASCII or UTF-8 string
func (s *SCPI) ReadString(cmds ...string) (string, error) {
	resp, err := s.WriteRead(cmds...)
	if err == nil && len(resp) > 0 {
		if resp[len(resp)-1] == '\n' {
			resp = resp[:len(resp)-1]
		}
		if len(resp) > 0 && resp[len(resp)-1] == '\r' {
			resp = resp[:len(resp)-1]
		}
	}
	return string(resp), err
}

// ReadFloat sends a command to the device, then reads the
// response and parses it as a floating point value
func (s *SCPI) ReadFloat(cmds ...string) (float64, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(resp), 64)
}

// ReadBool sends a command to the device, then reads the
// response and parses it as a boolean
func (s *SCPI) ReadBool(cmds ...string) (bool, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(strings.TrimSpace(resp))
}

// ReadInt sends a command to the device, then reads the
// response and parses it as an integer
func (s *SCPI) ReadInt(cmds ...string) (int, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(resp))
}

// Raw sends a command to the device and returns a response if it was a
// query, else a blank string
func (s *SCPI) Raw(str string) (string, error) {
	prev := s.Handshaking
	s.Handshaking = false
	defer func() { s.Handshaking = prev }()
	if strings.Contains(str, "?") {
		return s.ReadString(str)
	}
	return "", s.Write(str)
}

// PopError gets a single error from the queue on the device
func (s *SCPI) PopError() error {
	str, err := s.ReadString("SYSTem:ERRor?")
	if err != nil {
		return err
	}
	if errorFree(str) {
		return nil
	}
	return fmt.Errorf(str)
}

// AllErrors returns all errors from the device as a list
func (s *SCPI) AllErrors() []error {
	var errs []error
	var err error
	for {
		err = s.PopError()
		if err == nil {
			break
		}
		errs = append(errs, err)
	}
	return errs
}

// AllErrorsString is equivalent to AllErrors, but joining by newline
// if there were no errors, the error return value is nil, otherwise
// it is the first error in the list and has no particular meaning
func (s *SCPI) AllErrorsString() (string, error) {
	errs := s.AllErrors()
	if len(errs) == 0 {
		return "", nil
	}
	strs := make([]string, len(errs))
	for i := 0; i < len(errs); i++ {
		strs[i] = errs[i].Error()
	}
	return strings.Join(strs, "\n"), errs[0]
}

// errorFree is true if a SYSTem:ERRor? response indicates no error.
// Keysight prefixes the code with a sign ("+0"), Tektronix does not ("0").
func errorFree(resp string) bool {
	resp = strings.TrimSpace(resp)
	return strings.HasPrefix(resp, "+0") || strings.HasPrefix(resp, "0,") || resp == "0"
}
