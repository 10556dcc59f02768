package oscilloscope

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Decode converts a raw curve response into numeric samples per the
// encoding descriptor.  ASCII responses are comma separated decimal
// numbers; any token that fails to parse rejects the whole buffer with
// ErrMalformedSample.  Binary responses are read in WordSize-byte chunks;
// a length that is not a multiple of the word size fails with
// ErrTruncatedBuffer.
func Decode(raw []byte, enc Encoding) ([]float64, error) {
	if err := enc.Validate(); err != nil {
		return nil, err
	}
	if enc.ASCII {
		return decodeASCII(raw)
	}
	return decodeBinary(raw, enc)
}

func decodeASCII(raw []byte) ([]float64, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return []float64{}, nil
	}
	tokens := strings.Split(text, ",")
	out := make([]float64, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: token %q at index %d", ErrMalformedSample, tok, i)
		}
		out[i] = v
	}
	return out, nil
}

func decodeBinary(raw []byte, enc Encoding) ([]float64, error) {
	ws := enc.WordSize
	if len(raw)%ws != 0 {
		return nil, fmt.Errorf("%w: %d bytes with %d-byte words", ErrTruncatedBuffer, len(raw), ws)
	}
	ord := enc.Order.order()
	out := make([]float64, len(raw)/ws)
	for i := range out {
		chunk := raw[i*ws : (i+1)*ws]
		switch ws {
		case 1:
			if enc.Signed {
				out[i] = float64(int8(chunk[0]))
			} else {
				out[i] = float64(chunk[0])
			}
		case 2:
			u := ord.Uint16(chunk)
			if enc.Signed {
				out[i] = float64(int16(u))
			} else {
				out[i] = float64(u)
			}
		case 8:
			out[i] = math.Float64frombits(ord.Uint64(chunk))
		}
	}
	return out, nil
}
