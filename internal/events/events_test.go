/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}

	if err := p.Publish(context.Background(), RoundEvent{Type: RoundStarted}); err != nil {
		t.Fatalf("Nop.Publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Nop.Close: %v", err)
	}
}

// Integration-style test: runs only if NATS_URL is set.
func TestNATSPublisherIntegration(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set; skipping integration test")
	}

	subject := "snapcards_test_" + uuid.NewString()[:8]

	pub, err := NewNATSPublisher(url, subject)
	if err != nil {
		t.Fatalf("NewNATSPublisher: %v", err)
	}
	defer pub.Close()

	sub, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("nats.Connect: %v", err)
	}
	defer sub.Close()

	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe(subject+".>", msgs)
	if err != nil {
		t.Fatalf("ChanSubscribe: %v", err)
	}
	defer s.Unsubscribe()
	_ = sub.Flush()

	want := RoundEvent{
		Type:      RoundEnded,
		SessionID: uuid.NewString(),
		Category:  "animals",
		Duration:  10,
		Score:     3,
		Reason:    "timeout",
		At:        time.Now().UTC().Truncate(time.Second),
	}
	if err := pub.Publish(context.Background(), want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.Subject != subject+"."+RoundEnded {
			t.Fatalf("subject = %s", msg.Subject)
		}
		var got RoundEvent
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if got.SessionID != want.SessionID || got.Score != 3 {
			t.Fatalf("payload mismatch: %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no message received")
	}
}
