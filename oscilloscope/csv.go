package oscilloscope

import (
	"bufio"
	"encoding/csv"
	"io"
	"strconv"
)

// EncodeCSV writes the waveform to w in streaming fashion.  The first
// column is the shared time axis, followed by one column per channel in
// label order.  Values are formatted so they round-trip through a float64
// parse within floating point tolerance.
func (w *Waveform) EncodeCSV(wr io.Writer) error {
	if err := w.Validate(); err != nil {
		return err
	}
	labels := w.Labels()
	header := append([]string{"time"}, labels...)

	bw := bufio.NewWriter(wr)
	cw := csv.NewWriter(bw)
	err := cw.Write(header)
	if err != nil {
		return err
	}
	record := make([]string, len(header))
	for i := range w.Time {
		record[0] = strconv.FormatFloat(w.Time[i], 'G', -1, 64)
		for j, label := range labels {
			record[j+1] = strconv.FormatFloat(w.Channels[label][i], 'G', -1, 64)
		}
		err = cw.Write(record)
		if err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}
