// Package frame serializes group state into the byte frames understood by
// the STM32 LED controller board.
package frame

import (
	"fmt"
	"math"

	"github.com/pixelbar/ledcontrol/internal/color"
)

// StartByte marks the beginning of a frame on the wire. It is reserved by the
// protocol; the payload bytes that follow it are located positionally, never
// by content.
const StartByte = 0xFF

// Profile is one firmware revision's transmission contract: how channel
// values are corrected before emission and the value range the controller
// expects on the wire. New firmware revisions are supported by adding a
// profile, not by editing the encoder.
type Profile struct {
	Name string

	// Gamma is the correction exponent. Zero disables correction and the
	// channel values are emitted verbatim.
	Gamma float64

	// Compensation holds per-channel linear brightness factors in R,G,B,W
	// order. Only consulted when Gamma is set.
	Compensation [color.Channels]float64

	// OutputMax is the largest per-channel value the firmware accepts.
	OutputMax uint8
}

// Raw is the profile of firmware revisions that take 0-255 channel values
// verbatim.
func Raw() Profile {
	return Profile{Name: "raw", OutputMax: 255}
}

// PixelbarCorrected is the profile of the pixelbar STM32 firmware: gamma 2.2
// with per-channel compensation for unequal strip brightness (blue runs about
// twice as bright as red), output scaled to the 0-100 range the firmware
// expects.
func PixelbarCorrected() Profile {
	return Profile{
		Name:         "pixelbar-corrected",
		Gamma:        2.2,
		Compensation: [color.Channels]float64{1, 1.5, 2, 1},
		OutputMax:    100,
	}
}

// ByName resolves a configured profile name.
func ByName(name string) (Profile, error) {
	switch name {
	case "", "raw":
		return Raw(), nil
	case "pixelbar-corrected":
		return PixelbarCorrected(), nil
	default:
		return Profile{}, fmt.Errorf("unknown encoding profile %q", name)
	}
}

// Encode serializes state into one wire frame: the start byte followed by
// four channel bytes per group, groups in wiring order, channels in R,G,B,W
// order. Output length is always 1 + 4*len(state).
func (p Profile) Encode(state color.GroupState) []byte {
	buf := make([]byte, 0, 1+color.Channels*len(state))
	buf = append(buf, StartByte)
	for _, group := range state {
		for ch, v := range group {
			buf = append(buf, p.correct(ch, v))
		}
	}
	return buf
}

// correct maps a raw 0-255 channel value to its on-wire representation.
func (p Profile) correct(ch int, v uint8) byte {
	if p.Gamma == 0 {
		return v
	}
	f := p.Compensation[ch]
	if f == 0 {
		f = 1
	}
	corrected := math.Pow(float64(v)/(f*255), p.Gamma) * float64(p.OutputMax)
	if corrected > float64(p.OutputMax) {
		return p.OutputMax
	}
	return byte(corrected)
}
