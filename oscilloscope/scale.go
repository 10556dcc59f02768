package oscilloscope

// YParameters hold the per-channel vertical scaling constants fetched from
// the instrument's waveform preamble.  Volts are computed as
// (raw - Off) * Mult + Zero.
type YParameters struct {
	// Mult is the volts per digitizer count
	Mult float64

	// Zero is the voltage of digitizer level Off
	Zero float64

	// Off is the digitizer level corresponding to Zero volts
	Off float64
}

// XParameters hold the per-acquisition horizontal scaling constants; they
// are shared by every channel of one capture.
type XParameters struct {
	// Incr is the time between samples in seconds
	Incr float64

	// Zero is the time of the sample at PtOff
	Zero float64

	// PtOff is the index of the sample at time Zero, usually the trigger
	PtOff int
}

// Volt scales one raw sample to volts.  NaN and Inf propagate untouched.
func Volt(raw float64, p YParameters) float64 {
	return (raw-p.Off)*p.Mult + p.Zero
}

// Volts scales a raw sample series to volts, elementwise.  The output has
// the same length as the input.
func Volts(raw []float64, p YParameters) []float64 {
	out := make([]float64, len(raw))
	for i := range raw {
		out[i] = (raw[i]-p.Off)*p.Mult + p.Zero
	}
	return out
}

// TimeAxis computes the sample times for a record of length n,
// t[i] = (i - PtOff) * Incr + Zero.  It is strictly increasing whenever
// Incr > 0.
func TimeAxis(n int, p XParameters) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i-p.PtOff)*p.Incr + p.Zero
	}
	return out
}
