package oscilloscope

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ByteOrder selects the endianness of binary wire words.
type ByteOrder int

// Byte orders for binary encodings.
const (
	LittleEndian ByteOrder = iota
	BigEndian
)

func (o ByteOrder) String() string {
	if o == BigEndian {
		return "big-endian"
	}
	return "little-endian"
}

func (o ByteOrder) order() binary.ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Encoding describes how sample data is laid out on the wire.  The decoder
// trusts its descriptor completely: an encoding that disagrees with what
// was requested from the instrument produces garbage values, not errors.
type Encoding struct {
	// ASCII selects comma separated decimal text.  The binary fields are
	// ignored when it is set.
	ASCII bool

	// WordSize is the number of bytes per sample, 1, 2, or 8.
	WordSize int

	// Signed selects two's complement integers over unsigned.  8-byte words
	// are always IEEE 754 doubles and ignore this flag.
	Signed bool

	// Order is the byte order of multi-byte words.
	Order ByteOrder
}

// ASCIIEncoding returns the descriptor for comma separated decimal text.
func ASCIIEncoding() Encoding {
	return Encoding{ASCII: true}
}

// BinaryEncoding returns the descriptor for fixed-width binary words.
func BinaryEncoding(wordSize int, signed bool, order ByteOrder) Encoding {
	return Encoding{WordSize: wordSize, Signed: signed, Order: order}
}

// Validate rejects descriptors the decoder cannot honor.
func (e Encoding) Validate() error {
	if e.ASCII {
		return nil
	}
	switch e.WordSize {
	case 1, 2, 8:
		return nil
	default:
		return fmt.Errorf("unsupported word size %d, must be 1, 2, or 8", e.WordSize)
	}
}

// ParseByteOrder resolves the names used in configs and HTTP requests.
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "little", "little-endian", "lsb":
		return LittleEndian, nil
	case "big", "big-endian", "msb":
		return BigEndian, nil
	}
	return LittleEndian, fmt.Errorf("cannot parse %q as a byte order", s)
}

// ParseEncoding resolves an encoding name, "ascii", "int8", "uint8",
// "int16", "uint16", or "float64", with the given byte order for the
// multi-byte forms.
func ParseEncoding(name string, order ByteOrder) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ascii":
		return ASCIIEncoding(), nil
	case "int8":
		return BinaryEncoding(1, true, order), nil
	case "uint8":
		return BinaryEncoding(1, false, order), nil
	case "int16":
		return BinaryEncoding(2, true, order), nil
	case "uint16":
		return BinaryEncoding(2, false, order), nil
	case "float64":
		return BinaryEncoding(8, true, order), nil
	}
	return Encoding{}, fmt.Errorf("cannot parse %q as an encoding", name)
}

func (e Encoding) String() string {
	if e.ASCII {
		return "ascii"
	}
	sign := "unsigned"
	if e.Signed {
		sign = "signed"
	}
	if e.WordSize == 8 {
		sign = "float"
	}
	return fmt.Sprintf("binary %d-byte %s %s", e.WordSize, sign, e.Order)
}
