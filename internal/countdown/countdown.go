/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package countdown is the round clock. It counts whole seconds and derives
// the background music volume and tempo from how much of the round has
// elapsed. It does not own a ticker; the session loop calls Tick.
package countdown

import "errors"

var ErrInvalidDuration = errors.New("duration must be positive")

// Levels controls how music intensity ramps over a round.
type Levels struct {
	BaseVolume  float64
	VolumeRange float64
	MaxVolume   float64

	// TempoRamp disables tempo changes entirely when false.
	TempoRamp      bool
	BaseTempo      float64
	EarlyTempoRamp float64 // added across the first two thirds
	LateTempoRamp  float64 // added across the final third
}

func DefaultLevels() Levels {
	return Levels{
		BaseVolume:     0.3,
		VolumeRange:    0.5,
		MaxVolume:      0.8,
		TempoRamp:      true,
		BaseTempo:      1.0,
		EarlyTempoRamp: 0.15,
		LateTempoRamp:  0.4,
	}
}

// Volume ramps linearly from BaseVolume and is clamped to [BaseVolume, MaxVolume].
func (l Levels) Volume(elapsed, duration int) float64 {
	if duration <= 0 {
		return l.BaseVolume
	}

	v := l.BaseVolume + float64(elapsed)/float64(duration)*l.VolumeRange

	return min(max(v, l.BaseVolume), l.MaxVolume)
}

// Tempo is piecewise linear in elapsed time. The final third starts where the
// first segment ends and climbs LateTempoRamp over a third of the round, so
// with the defaults the late slope is eight times the early one.
func (l Levels) Tempo(elapsed, duration int) float64 {
	if !l.TempoRamp || duration <= 0 {
		return l.BaseTempo
	}

	elapsed = min(max(elapsed, 0), duration)
	ratio := float64(elapsed) / float64(duration)

	if elapsed*3 < duration*2 {
		return l.BaseTempo + ratio*l.EarlyTempoRamp
	}

	knee := l.BaseTempo + (2.0/3.0)*l.EarlyTempoRamp

	return knee + (ratio-2.0/3.0)*3*l.LateTempoRamp
}

// Reading is the clock state after a start or a tick.
type Reading struct {
	Elapsed   int
	Remaining int
	Duration  int
	Volume    float64
	Tempo     float64
	TimedOut  bool
}

// Countdown is not safe for concurrent use.
type Countdown struct {
	levels   Levels
	duration int
	elapsed  int
	running  bool
}

func New(levels Levels) *Countdown {
	return &Countdown{levels: levels}
}

// Start (re)starts the clock from zero. Any run in progress is replaced.
func (c *Countdown) Start(duration int) (Reading, error) {
	if duration <= 0 {
		return Reading{}, ErrInvalidDuration
	}

	c.duration = duration
	c.elapsed = 0
	c.running = true

	return c.reading(), nil
}

// Tick advances the clock one second. It is a no-op returning false once the
// clock has stopped. The tick that reaches the duration stops the clock,
// resets the tempo and reports TimedOut; that happens exactly once per Start.
func (c *Countdown) Tick() (Reading, bool) {
	if !c.running {
		return Reading{}, false
	}

	c.elapsed++

	r := c.reading()
	if c.elapsed >= c.duration {
		c.running = false
		r.TimedOut = true
		r.Tempo = c.levels.BaseTempo
	}

	return r, true
}

// Stop halts the clock without resetting elapsed time.
func (c *Countdown) Stop() {
	c.running = false
}

// Reset stops the clock and clears it back to its initial values.
func (c *Countdown) Reset() {
	c.running = false
	c.elapsed = 0
	c.duration = 0
}

func (c *Countdown) Running() bool { return c.running }

func (c *Countdown) Elapsed() int { return c.elapsed }

func (c *Countdown) Duration() int { return c.duration }

func (c *Countdown) Reading() Reading { return c.reading() }

func (c *Countdown) reading() Reading {
	return Reading{
		Elapsed:   c.elapsed,
		Remaining: max(c.duration-c.elapsed, 0),
		Duration:  c.duration,
		Volume:    c.levels.Volume(c.elapsed, c.duration),
		Tempo:     c.levels.Tempo(c.elapsed, c.duration),
	}
}
