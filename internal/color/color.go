// Package color implements the canonical RGBW representation of the LED
// fixture state and the shorthand hex notation used to describe it.
package color

import (
	"encoding/hex"
)

// Channel indices within an RGBW quadruple. The order is a contract with the
// STM32 firmware and must never change.
const (
	Red = iota
	Green
	Blue
	White
	Channels
)

// RGBW holds the four channel values of one LED group.
type RGBW [Channels]uint8

// Hex renders the quadruple as 8 lowercase hex characters.
func (c RGBW) Hex() string {
	return hex.EncodeToString(c[:])
}

// GroupState is the state of every LED group, in hardware wiring order.
// The wire protocol addresses groups positionally; names are a presentation
// concern layered on top.
type GroupState []RGBW

// ParseColor expands a shorthand hex color into a full RGBW quadruple:
//
//	1 byte  "88"       -> (88,88,88,88)  same value on every channel
//	2 bytes "8844"     -> (88,88,88,44)  one value for R/G/B, one for W
//	3 bytes "884422"   -> (88,44,22,00)  explicit RGB, white off
//	4 bytes "88442211" -> (88,44,22,11)  explicit RGBW
//
// Anything that is not valid hex, or decodes to another length, fails with
// InvalidColorFormatError.
func ParseColor(s string) (RGBW, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return RGBW{}, &InvalidColorFormatError{Input: s}
	}
	switch len(raw) {
	case 1:
		return RGBW{raw[0], raw[0], raw[0], raw[0]}, nil
	case 2:
		return RGBW{raw[0], raw[0], raw[0], raw[1]}, nil
	case 3:
		return RGBW{raw[0], raw[1], raw[2], 0}, nil
	case 4:
		return RGBW{raw[0], raw[1], raw[2], raw[3]}, nil
	default:
		return RGBW{}, &InvalidColorFormatError{Input: s}
	}
}

// ParseGroupState parses one color per group. A single color is broadcast to
// every group; otherwise exactly groupCount colors are required.
func ParseGroupState(colors []string, groupCount int) (GroupState, error) {
	switch len(colors) {
	case 1:
		c, err := ParseColor(colors[0])
		if err != nil {
			return nil, err
		}
		state := make(GroupState, groupCount)
		for i := range state {
			state[i] = c
		}
		return state, nil
	case groupCount:
		state := make(GroupState, groupCount)
		for i, s := range colors {
			c, err := ParseColor(s)
			if err != nil {
				return nil, err
			}
			state[i] = c
		}
		return state, nil
	default:
		return nil, &WrongGroupCountError{Expected: groupCount, Got: len(colors)}
	}
}

// FullBright is the state the controller board assumes when powered on:
// every channel of every group at maximum.
func FullBright(groupCount int) GroupState {
	state := make(GroupState, groupCount)
	for i := range state {
		state[i] = RGBW{255, 255, 255, 255}
	}
	return state
}

// HexColors renders each group as 8 lowercase hex characters. It is the
// exact inverse of parsing the 4-byte explicit form; the shorthand forms are
// not recoverable once expanded.
func (s GroupState) HexColors() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Hex()
	}
	return out
}

// Clone returns an independent copy of the state.
func (s GroupState) Clone() GroupState {
	out := make(GroupState, len(s))
	copy(out, s)
	return out
}
