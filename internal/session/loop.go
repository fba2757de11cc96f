/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Seednode/snapcards/internal/countdown"
	"github.com/Seednode/snapcards/internal/deck"
	"github.com/Seednode/snapcards/internal/events"
	"github.com/Seednode/snapcards/internal/metrics"
	"github.com/Seednode/snapcards/internal/reveal"
)

// Everything below runs on the event loop.

func (c *Controller) start(category string) error {
	cat, err := c.source.Catalog()
	if err != nil {
		metrics.SessionStartsRefused.WithLabelValues("catalog_unavailable").Inc()
		return err
	}

	items, err := cat.Items(category)
	if err != nil {
		metrics.SessionStartsRefused.WithLabelValues("unknown_category").Inc()
		return err
	}

	d, err := deck.New(category, items, c.rng)
	if err != nil {
		metrics.SessionStartsRefused.WithLabelValues("empty_category").Inc()
		log.Info().Str("game_id", c.id).Str("category", category).Msg("refused to start round on empty category")

		return fmt.Errorf("%w: %q", err, category)
	}

	if c.state == Running {
		c.finish(ReasonExit)
	}
	c.cancelTimers()

	r, err := c.countdown.Start(c.duration)
	if err != nil {
		return err
	}

	c.deck = d
	c.reveal.Reset()
	c.state = Running
	c.summary = nil
	c.sessionID = uuid.NewString()
	c.startedAt = c.clock.Now()
	c.revealed = 0
	c.score = 0

	c.ticker.Set(c.sched.Every(c.policy.TickInterval, c.tick))

	if c.images != nil {
		c.images.Prefetch(category, items, c.imageReady)
	}

	c.audioDo("level", func() error { return c.audio.SetLevel(r.Volume, r.Tempo) })
	c.audioDo("play", c.audio.Play)

	metrics.SessionsStarted.WithLabelValues(category).Inc()
	metrics.ActiveSessions.Inc()

	c.publish(events.RoundEvent{
		Type:      events.RoundStarted,
		SessionID: c.sessionID,
		GameID:    c.id,
		Category:  category,
		Duration:  r.Duration,
		At:        c.startedAt,
	})

	log.Info().
		Str("game_id", c.id).
		Str("session_id", c.sessionID).
		Str("category", category).
		Int("duration", r.Duration).
		Int("items", d.Len()).
		Msg("round started")

	c.render.OnTimerTick(r.Elapsed, r.Remaining)
	c.show()

	return nil
}

// show renders the current phase and re-arms input once it is on screen.
func (c *Controller) show() {
	c.render.OnPhaseChanged(c.deck.Category(), c.reveal.Phase(), c.deck.Current())
	c.reveal.Settle()
}

func (c *Controller) tap() {
	if c.state != Running {
		metrics.Taps.WithLabelValues("not_running").Inc()
		return
	}

	effect := c.reveal.Tap()
	metrics.Taps.WithLabelValues(effect.String()).Inc()

	switch effect {
	case reveal.PictureRevealed:
		c.cue(CuePicture)
		c.show()
	case reveal.NameRevealed:
		c.revealed++
		if c.policy.ScoreReveals {
			c.score++
			c.cue(CueCorrect)
		} else {
			c.cue(CueName)
		}

		c.autoAdvance.Set(c.sched.After(c.policy.AutoAdvance, c.advance))
		c.show()
	}
}

func (c *Controller) advance() {
	c.autoAdvance.Clear()

	if c.state != Running {
		return
	}

	if err := c.reveal.Next(); err != nil {
		log.Error().Err(err).Str("game_id", c.id).Msg("auto-advance fired outside name phase")
		return
	}

	if c.deck.Advance() {
		log.Debug().
			Str("game_id", c.id).
			Str("category", c.deck.Category()).
			Int("laps", c.deck.Laps()).
			Msg("deck reshuffled")
	}

	c.show()
}

func (c *Controller) tick() {
	if c.state != Running {
		return
	}

	r, ok := c.countdown.Tick()
	if !ok {
		return
	}

	c.render.OnTimerTick(r.Elapsed, r.Remaining)

	if r.TimedOut {
		c.timeout(r)
		return
	}

	c.audioDo("level", func() error { return c.audio.SetLevel(r.Volume, r.Tempo) })
}

func (c *Controller) timeout(r countdown.Reading) {
	c.cancelTimers()

	c.audioDo("stop", c.audio.Stop)
	c.audioDo("level", func() error { return c.audio.SetLevel(c.policy.Levels.BaseVolume, r.Tempo) })
	c.cue(CueTimeUp)

	summary := c.finish(ReasonTimeout)
	c.state = Ended

	c.render.OnSessionEnded(summary)
}

// exit is idempotent and valid in every state.
func (c *Controller) exit() {
	if c.state == Idle {
		return
	}

	c.cancelTimers()

	if c.state == Running {
		c.audioDo("stop", c.audio.Stop)
		c.finish(ReasonExit)
	}

	c.reset()
}

// finish records the end of the running round.
func (c *Controller) finish(reason EndReason) Summary {
	s := Summary{
		SessionID: c.sessionID,
		Category:  c.deck.Category(),
		Duration:  c.countdown.Duration(),
		Elapsed:   c.countdown.Elapsed(),
		Revealed:  c.revealed,
		Score:     c.score,
		Laps:      c.deck.Laps(),
		Reason:    reason,
		StartedAt: c.startedAt,
		EndedAt:   c.clock.Now(),
	}
	c.summary = &s

	c.countdown.Stop()

	metrics.SessionsEnded.WithLabelValues(string(reason)).Inc()
	metrics.ActiveSessions.Dec()

	c.publish(events.RoundEvent{
		Type:      events.RoundEnded,
		SessionID: s.SessionID,
		GameID:    c.id,
		Category:  s.Category,
		Duration:  s.Duration,
		Elapsed:   s.Elapsed,
		Revealed:  s.Revealed,
		Score:     s.Score,
		Laps:      s.Laps,
		Reason:    string(reason),
		At:        s.EndedAt,
	})

	log.Info().
		Str("game_id", c.id).
		Str("session_id", s.SessionID).
		Str("category", s.Category).
		Str("reason", string(reason)).
		Int("elapsed", s.Elapsed).
		Int("score", s.Score).
		Msg("round ended")

	return s
}

func (c *Controller) cancelTimers() {
	c.autoAdvance.Cancel()
	c.ticker.Cancel()
}

// reset returns to category selection with every value at its initial state.
func (c *Controller) reset() {
	c.state = Idle
	c.deck = nil
	c.reveal.Reset()
	c.countdown.Reset()
	c.sessionID = ""
	c.revealed = 0
	c.score = 0
}

func (c *Controller) imageReady(category, ref string) {
	c.post(func() {
		c.render.OnImageReady(category, ref)
	})
}

func (c *Controller) cue(cue Cue) {
	c.audioDo(string(cue), func() error { return c.audio.Cue(cue) })
}

func (c *Controller) audioDo(op string, f func() error) {
	if err := f(); err != nil {
		c.playbackFailed("server", fmt.Errorf("%s: %w", op, err))
	}
}

func (c *Controller) playbackFailed(source string, err error) {
	metrics.PlaybackFailures.WithLabelValues(source).Inc()

	if !errors.Is(err, ErrPlayback) {
		err = fmt.Errorf("%w: %w", ErrPlayback, err)
	}

	log.Warn().Err(err).Str("game_id", c.id).Str("source", source).Msg("audio playback failed")
}

func (c *Controller) publish(e events.RoundEvent) {
	if err := c.pub.Publish(context.Background(), e); err != nil {
		log.Warn().Err(err).Str("game_id", c.id).Str("event", e.Type).Msg("failed to publish round event")
	}
}

func (c *Controller) snapshot() Snapshot {
	r := c.countdown.Reading()

	s := Snapshot{
		State:              c.state,
		Phase:              c.reveal.Phase(),
		AwaitingInput:      c.reveal.AwaitingInput(),
		Elapsed:            r.Elapsed,
		Remaining:          r.Remaining,
		Duration:           r.Duration,
		Running:            c.countdown.Running(),
		Revealed:           c.revealed,
		Score:              c.score,
		Volume:             r.Volume,
		Tempo:              r.Tempo,
		AutoAdvancePending: c.autoAdvance.Pending(),
		PreferredDuration:  c.duration,
	}

	if c.deck != nil {
		item := c.deck.Current()
		s.Item = &item
		s.Category = c.deck.Category()
		s.Cursor = c.deck.Cursor()
		s.Laps = c.deck.Laps()
	}

	if c.summary != nil {
		last := *c.summary
		s.Last = &last
	}

	return s
}
