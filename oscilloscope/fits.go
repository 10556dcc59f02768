package oscilloscope

import (
	"fmt"
	"io"

	"github.com/astrogo/fitsio"
)

// EncodeFITS streams the waveform to w as a FITS file with one 64-bit
// float image HDU of shape [points, planes].  Plane 0 is the time axis,
// subsequent planes are channels in label order; PLANEn header cards name
// each one.  metadata cards are appended to the header after the layout
// cards, typically an instrument configuration snapshot.
func (w *Waveform) EncodeFITS(wr io.Writer, metadata []fitsio.Card) error {
	if err := w.Validate(); err != nil {
		return err
	}
	labels := w.Labels()
	npts := len(w.Time)
	nplanes := len(labels) + 1

	fits, err := fitsio.Create(wr)
	if err != nil {
		return err
	}
	defer fits.Close()

	im := fitsio.NewImage(-64, []int{npts, nplanes})
	defer im.Close()

	cards := []fitsio.Card{
		{Name: "NPTS", Value: npts, Comment: "samples per channel"},
		{Name: "PLANE0", Value: "TIME", Comment: "seconds"},
	}
	for i, label := range labels {
		cards = append(cards, fitsio.Card{
			Name:    fmt.Sprintf("PLANE%d", i+1),
			Value:   label,
			Comment: "volts",
		})
	}
	cards = append(cards, metadata...)
	err = im.Header().Append(cards...)
	if err != nil {
		return err
	}

	buf := make([]float64, 0, npts*nplanes)
	buf = append(buf, w.Time...)
	for _, label := range labels {
		buf = append(buf, w.Channels[label]...)
	}
	err = im.Write(buf)
	if err != nil {
		return err
	}
	return fits.Write(im)
}
