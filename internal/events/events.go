/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package events publishes round lifecycle notifications for anything
// outside the game that wants them (stats, leaderboards).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	RoundStarted = "round.started"
	RoundEnded   = "round.ended"
)

type RoundEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	GameID    string    `json:"game_id"`
	Category  string    `json:"category"`
	Duration  int       `json:"duration_seconds"`
	Elapsed   int       `json:"elapsed_seconds,omitempty"`
	Revealed  int       `json:"revealed,omitempty"`
	Score     int       `json:"score,omitempty"`
	Laps      int       `json:"laps,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e RoundEvent) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, RoundEvent) error { return nil }

func (Nop) Close() error { return nil }

// NATSPublisher publishes each event as JSON on <subject>.<event type>.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("snapcards"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &NATSPublisher{
		conn:    conn,
		subject: subject,
	}, nil
}

func (p *NATSPublisher) Subject(eventType string) string {
	return p.subject + "." + eventType
}

func (p *NATSPublisher) Publish(ctx context.Context, e RoundEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	return p.conn.Publish(p.Subject(e.Type), data)
}

func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
