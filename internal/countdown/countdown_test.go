/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package countdown

import (
	"errors"
	"math"
	"testing"
)

const epsilon = 1e-9

func TestStartRejectsNonPositive(t *testing.T) {
	c := New(DefaultLevels())

	for _, d := range []int{0, -5} {
		if _, err := c.Start(d); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("Start(%d): expected ErrInvalidDuration, got %v", d, err)
		}
	}
	if c.Running() {
		t.Fatalf("clock running after rejected start")
	}
}

func TestTimesOutExactlyOnce(t *testing.T) {
	c := New(DefaultLevels())

	if _, err := c.Start(90); err != nil {
		t.Fatalf("Start(90): %v", err)
	}

	timeouts := 0
	for i := 1; i <= 90; i++ {
		r, ok := c.Tick()
		if !ok {
			t.Fatalf("tick %d rejected while running", i)
		}
		if r.Elapsed != i || r.Remaining != 90-i {
			t.Fatalf("tick %d: elapsed=%d remaining=%d", i, r.Elapsed, r.Remaining)
		}
		if r.TimedOut {
			timeouts++
		}
	}

	if timeouts != 1 {
		t.Fatalf("timed out %d times, want 1", timeouts)
	}
	if c.Running() {
		t.Fatalf("clock still running after 90 ticks")
	}

	for i := 0; i < 5; i++ {
		if _, ok := c.Tick(); ok {
			t.Fatalf("tick after stop was not a no-op")
		}
	}
	if c.Elapsed() != 90 {
		t.Fatalf("elapsed moved after stop: %d", c.Elapsed())
	}
}

func TestVolumeRampsAndClamps(t *testing.T) {
	c := New(DefaultLevels())

	start, _ := c.Start(90)

	var r Reading
	for i := 0; i < 30; i++ {
		r, _ = c.Tick()
	}
	if r.Volume <= start.Volume {
		t.Fatalf("volume after 30 ticks %.3f not above initial %.3f", r.Volume, start.Volume)
	}

	prev := r.Volume
	for c.Running() {
		r, _ = c.Tick()
		if r.Volume < prev {
			t.Fatalf("volume decreased from %.3f to %.3f", prev, r.Volume)
		}
		prev = r.Volume
	}

	if math.Abs(r.Volume-0.8) > epsilon {
		t.Fatalf("final volume %.3f, want 0.8", r.Volume)
	}

	l := DefaultLevels()
	if v := l.Volume(500, 90); math.Abs(v-l.MaxVolume) > epsilon {
		t.Fatalf("volume past the end %.3f not clamped to %.3f", v, l.MaxVolume)
	}
	if v := l.Volume(-10, 90); math.Abs(v-l.BaseVolume) > epsilon {
		t.Fatalf("volume before start %.3f not clamped to %.3f", v, l.BaseVolume)
	}
}

func TestTempoSegments(t *testing.T) {
	l := DefaultLevels()
	const d = 90

	if got := l.Tempo(0, d); math.Abs(got-1.0) > epsilon {
		t.Fatalf("tempo at start = %.3f, want 1.0", got)
	}

	knee := l.Tempo(60, d)
	if math.Abs(knee-1.1) > epsilon {
		t.Fatalf("tempo at two thirds = %.4f, want 1.1", knee)
	}
	if just := l.Tempo(59, d); just >= knee {
		t.Fatalf("tempo not increasing into the knee: %.4f >= %.4f", just, knee)
	}

	if end := l.Tempo(d, d); math.Abs(end-1.5) > epsilon {
		t.Fatalf("tempo at end = %.4f, want 1.5", end)
	}

	early := l.Tempo(30, d) - l.Tempo(29, d)
	late := l.Tempo(80, d) - l.Tempo(79, d)
	if late <= early {
		t.Fatalf("late slope %.5f not steeper than early slope %.5f", late, early)
	}

	prev := l.Tempo(0, d)
	for e := 1; e <= d; e++ {
		cur := l.Tempo(e, d)
		if cur < prev-epsilon {
			t.Fatalf("tempo decreased at %d: %.4f -> %.4f", e, prev, cur)
		}
		prev = cur
	}
}

func TestTempoRampDisabled(t *testing.T) {
	l := DefaultLevels()
	l.TempoRamp = false

	for _, e := range []int{0, 30, 60, 89, 90} {
		if got := l.Tempo(e, 90); got != l.BaseTempo {
			t.Fatalf("tempo(%d) = %.3f with ramp disabled", e, got)
		}
	}
}

func TestTimeoutResetsTempo(t *testing.T) {
	c := New(DefaultLevels())
	_, _ = c.Start(3)

	c.Tick()
	c.Tick()
	r, _ := c.Tick()

	if !r.TimedOut {
		t.Fatalf("third tick of a 3s round did not time out")
	}
	if r.Tempo != DefaultLevels().BaseTempo {
		t.Fatalf("tempo %.3f not reset on timeout", r.Tempo)
	}
}

func TestRestartReplacesRun(t *testing.T) {
	c := New(DefaultLevels())
	_, _ = c.Start(10)
	for i := 0; i < 4; i++ {
		c.Tick()
	}

	r, err := c.Start(30)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if r.Elapsed != 0 || r.Remaining != 30 || !c.Running() {
		t.Fatalf("restart did not reset: %+v running=%v", r, c.Running())
	}

	c.Reset()
	if c.Running() || c.Elapsed() != 0 || c.Duration() != 0 {
		t.Fatalf("Reset left state behind")
	}
}
