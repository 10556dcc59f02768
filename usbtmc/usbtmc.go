/*Package usbtmc implements datagram encoding and decoding for USB Test and
Measurement Class devices, exposed as an io.ReadWriteCloser so the same
connection pooling and SCPI layers used for TCP and serial instruments work
over USB unchanged.

This is bulk transfer only.  Multi-packet messages are reassembled by
following the transfer size in the bulk-in header; vendor-specific control
requests are not implemented.
*/
package usbtmc

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/google/gousb"

	"github.com/oscillab/golascope/comm"
)

const (
	reserved = 0x00

	headerLen = 12

	// msgDevDepOut and msgDevDepIn are the MsgID values for device
	// dependent bulk messages, USBTMC standard table 2
	msgDevDepOut = 0x01
	msgDevDepIn  = 0x02

	// bulkBufSize is the transfer size requested per bulk-in exchange
	bulkBufSize = 1500
)

// bTagGen is a concurrent-safe bTag generator.  Tags increment with each
// message and skip zero, which the standard reserves.
type bTagGen struct {
	sync.Mutex

	value byte
}

func (b *bTagGen) next() byte {
	b.Lock()
	defer b.Unlock()
	b.value++
	if b.value == 0 {
		b.value = 1
	}
	return b.value
}

// invbTag computes the bitwise inversion of a bTag, standard table 1
// offset 2.
func invbTag(b byte) byte {
	return b ^ 0xff
}

// encBulkOutHeader creates the DEV_DEP_MSG_OUT header, standard table 3.
// datalen is the payload length exclusive of header and alignment.
func encBulkOutHeader(tag byte, datalen int) [headerLen]byte {
	out := [headerLen]byte{}
	out[0] = msgDevDepOut
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(datalen))
	out[8] = 0x01 // EOM, single message per stream
	out[9] = reserved
	out[10] = reserved
	out[11] = reserved
	return out
}

// encBulkInHeader creates the REQUEST_DEV_DEP_MSG_IN header, standard
// table 4.  A nil terminator disables the termination character bit.
func encBulkInHeader(tag byte, bufsize int, terminator *byte) [headerLen]byte {
	out := [headerLen]byte{}
	out[0] = msgDevDepIn
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(bufsize))
	if terminator != nil {
		out[8] = 0x02 // TermCharEnabled
		out[9] = *terminator
	}
	out[10] = reserved
	out[11] = reserved
	return out
}

// decBulkInHeader pulls the transfer size and EOM flag out of a
// DEV_DEP_MSG_IN response header.
func decBulkInHeader(hdr []byte) (transferSize int, eom bool, err error) {
	if len(hdr) < headerLen {
		return 0, false, fmt.Errorf("usbtmc: bulk-in header was %d bytes, need %d", len(hdr), headerLen)
	}
	if hdr[0] != msgDevDepIn {
		return 0, false, fmt.Errorf("usbtmc: bulk-in MsgID was %#x, expected %#x", hdr[0], msgDevDepIn)
	}
	if hdr[2] != invbTag(hdr[1]) {
		return 0, false, fmt.Errorf("usbtmc: bTag %#x does not match its inverse %#x", hdr[1], hdr[2])
	}
	size := binary.LittleEndian.Uint32(hdr[4:8])
	return int(size), hdr[8]&0x01 == 1, nil
}

// padded appends zero bytes until the buffer length is a multiple of 4,
// the alignment bulk-out transfers require.
func padded(b []byte) []byte {
	const alignment = 4
	if residual := len(b) % alignment; residual > 0 {
		b = append(b, make([]byte, alignment-residual)...)
	}
	return b
}

// Conn is a USBTMC connection behaving like any other instrument stream:
// Write sends one device dependent message, Read returns response payload
// bytes, buffering whatever one bulk-in exchange returns beyond the caller's
// slice.
type Conn struct {
	tagger bTagGen
	in     io.Reader
	out    io.Writer
	leftov []byte
	closer func() error
}

// Write frames b as a DEV_DEP_MSG_OUT transfer and sends it.
func (c *Conn) Write(b []byte) (int, error) {
	hdr := encBulkOutHeader(c.tagger.next(), len(b))
	msg := padded(append(hdr[:], b...))
	_, err := c.out.Write(msg)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Read requests a device dependent message and copies its payload into b.
// Payload beyond len(b) is retained for subsequent calls.
func (c *Conn) Read(b []byte) (int, error) {
	if len(c.leftov) > 0 {
		n := copy(b, c.leftov)
		c.leftov = c.leftov[n:]
		return n, nil
	}
	term := byte('\n')
	hdr := encBulkInHeader(c.tagger.next(), bulkBufSize, &term)
	if err := c.writeFull(hdr[:]); err != nil {
		return 0, err
	}
	buf := make([]byte, bulkBufSize)
	n, err := c.in.Read(buf)
	if err != nil {
		return 0, err
	}
	size, _, err := decBulkInHeader(buf[:n])
	if err != nil {
		return 0, err
	}
	payload := buf[headerLen:n]
	// the remainder of a transfer that spans bulk reads
	for len(payload) < size {
		n, err = c.in.Read(buf)
		if err != nil {
			return 0, err
		}
		payload = append(payload, buf[:n]...)
	}
	// alignment padding past the transfer size is discarded
	payload = payload[:size]
	n = copy(b, payload)
	c.leftov = payload[n:]
	return n, nil
}

// writeFull retries short writes until the whole buffer is sent.
func (c *Conn) writeFull(b []byte) error {
	total := 0
	for total < len(b) {
		n, err := c.out.Write(b[total:])
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("usbtmc: wrote %d of %d bytes", total, len(b))
		}
		total += n
	}
	return nil
}

// Close releases the USB interface and device.
func (c *Conn) Close() error {
	if c.closer != nil {
		return c.closer()
	}
	return nil
}

// Open claims the USBTMC interface of the device with the given vendor and
// product ID.
func Open(vid, pid uint16) (*Conn, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, err
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("usbtmc: no device with VID:PID %04x:%04x", vid, pid)
	}
	if err = dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	iface, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	in, err := iface.InEndpoint(2)
	if err != nil {
		done()
		dev.Close()
		ctx.Close()
		return nil, err
	}
	out, err := iface.OutEndpoint(2)
	if err != nil {
		done()
		dev.Close()
		ctx.Close()
		return nil, err
	}
	return &Conn{
		in:  in,
		out: out,
		closer: func() error {
			done()
			err := dev.Close()
			err2 := ctx.Close()
			if err != nil {
				return err
			}
			return err2
		},
	}, nil
}

// ConnMaker adapts Open to the connection pool's creation function, so a
// USB instrument pools exactly like a TCP one.
func ConnMaker(vid, pid uint16) comm.CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return Open(vid, pid)
	}
}
