/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package reveal implements the per-item reveal protocol:
// Hidden -> PictureShown -> NameShown, then back to Hidden for the next item.
//
// The machine only tracks state. The caller owns the side effects (render,
// sound cues, scheduling the auto-advance) and tells the machine when a
// transition has settled.
package reveal

import "errors"

var ErrNotRevealed = errors.New("name has not been revealed yet")

type Phase int

const (
	Hidden Phase = iota
	PictureShown
	NameShown
)

func (p Phase) String() string {
	switch p {
	case Hidden:
		return "hidden"
	case PictureShown:
		return "picture"
	case NameShown:
		return "name"
	default:
		return "unknown"
	}
}

// Effect is what a tap asked the caller to do.
type Effect int

const (
	// None means the tap was ignored.
	None Effect = iota
	PictureRevealed
	// NameRevealed means the caller must schedule the auto-advance.
	NameRevealed
)

func (e Effect) String() string {
	switch e {
	case PictureRevealed:
		return "picture_revealed"
	case NameRevealed:
		return "name_revealed"
	default:
		return "ignored"
	}
}

// Machine is not safe for concurrent use.
type Machine struct {
	phase         Phase
	awaitingInput bool
}

func (m *Machine) Phase() Phase { return m.phase }

// AwaitingInput reports whether the next tap will be accepted.
func (m *Machine) AwaitingInput() bool { return m.awaitingInput }

// Reset puts the machine back to Hidden with input latched until Settle.
func (m *Machine) Reset() {
	m.phase = Hidden
	m.awaitingInput = false
}

// Settle re-arms input once the current phase has been rendered.
// NameShown never accepts taps; it only leaves via Next.
func (m *Machine) Settle() {
	m.awaitingInput = m.phase != NameShown
}

// Tap applies at most one transition per settled phase.
func (m *Machine) Tap() Effect {
	if !m.awaitingInput {
		return None
	}

	switch m.phase {
	case Hidden:
		m.awaitingInput = false
		m.phase = PictureShown
		return PictureRevealed
	case PictureShown:
		m.awaitingInput = false
		m.phase = NameShown
		return NameRevealed
	default:
		return None
	}
}

// Next leaves NameShown for the following item.
func (m *Machine) Next() error {
	if m.phase != NameShown {
		return ErrNotRevealed
	}

	m.Reset()

	return nil
}
