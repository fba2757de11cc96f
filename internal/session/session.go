/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package session runs one player's game: it ties the deck, the reveal
// machine and the countdown together and owns every timer they need.
//
// All state changes happen on a single event loop (Run). Public methods
// enqueue work onto that loop and wait for it to be applied, timers and image
// loads post their completions onto it, so nothing inside ever observes
// concurrent mutation.
package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Seednode/snapcards/internal/catalog"
	"github.com/Seednode/snapcards/internal/countdown"
	"github.com/Seednode/snapcards/internal/deck"
	"github.com/Seednode/snapcards/internal/events"
	"github.com/Seednode/snapcards/internal/prefetch"
	"github.com/Seednode/snapcards/internal/prefs"
	"github.com/Seednode/snapcards/internal/reveal"
	"github.com/Seednode/snapcards/internal/sched"
)

const (
	DefaultAutoAdvance  = 800 * time.Millisecond
	DefaultTickInterval = time.Second
	DefaultDuration     = 90

	queueSize = 64
)

var (
	ErrClosed   = errors.New("session controller is closed")
	ErrPlayback = errors.New("audio playback failed")
)

type State int

const (
	Idle State = iota
	Running
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

type EndReason string

const (
	ReasonTimeout EndReason = "timeout"
	ReasonExit    EndReason = "exit"
)

// Cue is a one-shot sound effect.
type Cue string

const (
	CuePicture Cue = "reveal-picture"
	CueName    Cue = "reveal-name"
	CueCorrect Cue = "correct"
	CueTimeUp  Cue = "timer-end"
)

// Summary describes a finished round.
type Summary struct {
	SessionID string    `json:"session_id"`
	Category  string    `json:"category"`
	Duration  int       `json:"duration"`
	Elapsed   int       `json:"elapsed"`
	Revealed  int       `json:"revealed"`
	Score     int       `json:"score"`
	Laps      int       `json:"laps"`
	Reason    EndReason `json:"reason"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Renderer receives one-way notifications from the loop. Implementations
// must not block.
type Renderer interface {
	OnPhaseChanged(category string, phase reveal.Phase, item catalog.Item)
	OnTimerTick(elapsed, remaining int)
	OnSessionEnded(summary Summary)
	OnImageReady(category, imageRef string)
}

// Audio is best-effort. Errors are logged and never interrupt a round.
type Audio interface {
	Play() error
	SetLevel(volume, tempo float64) error
	Stop() error
	Cue(cue Cue) error
}

// Preference persists the selected round duration. Save reports values
// outside the accepted range with prefs.ErrInvalidDuration.
type Preference interface {
	Load(ctx context.Context) (int, error)
	Save(ctx context.Context, seconds int) error
}

// Policy holds the tunable rules of a round.
type Policy struct {
	AutoAdvance  time.Duration
	TickInterval time.Duration
	// ScoreReveals counts every name reveal as a correct answer.
	ScoreReveals bool
	Levels       countdown.Levels
}

func DefaultPolicy() Policy {
	return Policy{
		AutoAdvance:  DefaultAutoAdvance,
		TickInterval: DefaultTickInterval,
		ScoreReveals: true,
		Levels:       countdown.DefaultLevels(),
	}
}

type Options struct {
	GameID     string
	Catalog    *catalog.Source
	Images     *prefetch.Prefetcher
	Renderer   Renderer
	Audio      Audio
	Preference Preference
	Publisher  events.Publisher
	Clock      clockwork.Clock
	Rand       *rand.Rand
	Policy     Policy
}

// Snapshot is a copy of the controller's state.
type Snapshot struct {
	State              State
	Category           string
	Phase              reveal.Phase
	AwaitingInput      bool
	Item               *catalog.Item
	Cursor             int
	Laps               int
	Elapsed            int
	Remaining          int
	Duration           int
	Running            bool
	Revealed           int
	Score              int
	Volume             float64
	Tempo              float64
	AutoAdvancePending bool
	PreferredDuration  int
	Last               *Summary
}

type Controller struct {
	id      string
	source  *catalog.Source
	images  *prefetch.Prefetcher
	render  Renderer
	audio   Audio
	pref    Preference
	pub     events.Publisher
	clock   clockwork.Clock
	rng     *rand.Rand
	policy  Policy
	sched   *sched.Scheduler
	queue   chan func()
	done    chan struct{}
	summary *Summary

	autoAdvance sched.Slot
	ticker      sched.Slot

	state     State
	duration  int
	deck      *deck.Deck
	reveal    reveal.Machine
	countdown *countdown.Countdown
	sessionID string
	startedAt time.Time
	revealed  int
	score     int
}

func New(opts Options) *Controller {
	policy := opts.Policy
	if policy.AutoAdvance <= 0 {
		policy.AutoAdvance = DefaultAutoAdvance
	}
	if policy.TickInterval <= 0 {
		policy.TickInterval = DefaultTickInterval
	}
	if policy.Levels == (countdown.Levels{}) {
		policy.Levels = countdown.DefaultLevels()
	}

	c := &Controller{
		id:       opts.GameID,
		source:   opts.Catalog,
		images:   opts.Images,
		render:   opts.Renderer,
		audio:    opts.Audio,
		pref:     opts.Preference,
		pub:      opts.Publisher,
		clock:    opts.Clock,
		rng:      opts.Rand,
		policy:   policy,
		queue:    make(chan func(), queueSize),
		done:     make(chan struct{}),
		duration: DefaultDuration,
	}

	if c.render == nil {
		c.render = nopRenderer{}
	}
	if c.audio == nil {
		c.audio = nopAudio{}
	}
	if c.pub == nil {
		c.pub = events.Nop{}
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}

	c.countdown = countdown.New(policy.Levels)
	c.sched = sched.New(c.clock, c.post)
	c.reveal.Reset()

	return c
}

// Run processes events until ctx is cancelled. It reads the stored duration
// preference first, then exits any running round on the way out.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)

	if c.pref != nil {
		d, err := c.pref.Load(ctx)
		if err != nil {
			log.Warn().Err(err).Str("game_id", c.id).Msg("failed to load duration preference")
		}
		c.duration = d
	}

	for {
		select {
		case <-ctx.Done():
			c.exit()
			return
		case f := <-c.queue:
			f()
		}
	}
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) post(f func()) {
	select {
	case c.queue <- f:
	case <-c.done:
	}
}

// call runs f on the loop and waits for its result.
func (c *Controller) call(f func() error) error {
	reply := make(chan error, 1)

	select {
	case c.queue <- func() { reply <- f() }:
	case <-c.done:
		return ErrClosed
	}

	select {
	case err := <-reply:
		return err
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	}
}

// StartSession begins a round over category using the preferred duration.
// A round already in progress is replaced.
func (c *Controller) StartSession(category string) error {
	return c.call(func() error {
		return c.start(category)
	})
}

// SelectCategory is the player's category pick; it starts a round.
func (c *Controller) SelectCategory(category string) error {
	return c.StartSession(category)
}

// SetDuration validates and persists the preferred round duration. It takes
// effect from the next round. A failing preference store is logged and the
// duration still applies to this controller.
func (c *Controller) SetDuration(ctx context.Context, seconds int) error {
	if seconds <= 0 {
		return countdown.ErrInvalidDuration
	}

	if c.pref != nil {
		err := c.pref.Save(ctx, seconds)
		switch {
		case errors.Is(err, prefs.ErrInvalidDuration):
			return err
		case err != nil:
			log.Warn().Err(err).Str("game_id", c.id).Int("seconds", seconds).Msg("failed to save duration preference")
		}
	}

	return c.call(func() error {
		c.duration = seconds
		return nil
	})
}

func (c *Controller) Tap() error {
	return c.call(func() error {
		c.tap()
		return nil
	})
}

// PlayAgain leaves the summary screen for category selection.
func (c *Controller) PlayAgain() error {
	return c.call(func() error {
		if c.state == Ended {
			c.reset()
		}
		return nil
	})
}

// Exit abandons the current round, if any, and returns to idle.
func (c *Controller) Exit() error {
	return c.call(func() error {
		c.exit()
		return nil
	})
}

// ReportPlaybackFailure records an audio failure seen by the view.
func (c *Controller) ReportPlaybackFailure(source string, err error) {
	c.playbackFailed(source, err)
}

func (c *Controller) Snapshot() (Snapshot, error) {
	var s Snapshot

	err := c.call(func() error {
		s = c.snapshot()
		return nil
	})

	return s, err
}

type nopRenderer struct{}

func (nopRenderer) OnPhaseChanged(string, reveal.Phase, catalog.Item) {}

func (nopRenderer) OnTimerTick(int, int) {}

func (nopRenderer) OnSessionEnded(Summary) {}

func (nopRenderer) OnImageReady(string, string) {}

type nopAudio struct{}

func (nopAudio) Play() error { return nil }

func (nopAudio) SetLevel(float64, float64) error { return nil }

func (nopAudio) Stop() error { return nil }

func (nopAudio) Cue(Cue) error { return nil }
