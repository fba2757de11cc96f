/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/spf13/afero"

	"github.com/Seednode/snapcards/internal/catalog"
	"github.com/Seednode/snapcards/internal/events"
	"github.com/Seednode/snapcards/internal/prefetch"
	"github.com/Seednode/snapcards/internal/prefs"
	"github.com/Seednode/snapcards/internal/session"
)

var catPNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type testServer struct {
	srv   *httptest.Server
	gm    *GameManager
	clock *clockwork.FakeClock
}

func newTestServer(t *testing.T, idleTimeout time.Duration) *testServer {
	t.Helper()

	cat, err := catalog.New(map[string][]catalog.Item{
		"animals": {{ImageRef: "images/animals/cat.png", DisplayName: "Cat"}},
		"empty":   {},
	})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}

	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/assets/images/animals/cat.png", catPNG, 0o644)

	cfg := validConfig()
	clock := clockwork.NewFakeClock()

	svc := &services{
		cfg:     cfg,
		catalog: catalog.Resolved(cat),
		images:  prefetch.New(prefetch.NewFSLoader(fs, "/assets"), 2, time.Second),
		prefs:   prefs.NewMemoryStore(),
		events:  events.Nop{},
		policy:  session.DefaultPolicy(),
		clock:   clock,
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	gm := newGameManager(ctx, svc, idleTimeout)

	mux := httprouter.New()
	errs := make(chan error, 64)
	registerGame(cfg, gamePath, mux, gm, errs)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testServer{
		srv:   srv,
		gm:    gm,
		clock: clock,
	}
}

func (ts *testServer) dial(t *testing.T, gameID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + gamePath + "/" + gameID + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

// readUntil returns the next message of type typ, skipping any others.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}

		if msg["type"] == typ {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()

	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func TestRoundOverWebSocket(t *testing.T) {
	ts := newTestServer(t, 0)
	conn := ts.dial(t, "TESTGAME")

	info := readUntil(t, conn, "session_info")
	if info["game_id"] != "TESTGAME" || info["is_owner"] != true {
		t.Fatalf("session_info = %v", info)
	}

	state := readUntil(t, conn, "state")
	if state["state"] != "idle" || state["preferred_duration"] != float64(90) {
		t.Fatalf("initial state = %v", state)
	}

	send(t, conn, ClientMessage{Type: "select_category", Category: "empty"})
	if msg := readUntil(t, conn, "error"); msg["message"] == "" {
		t.Fatalf("empty category error = %v", msg)
	}

	send(t, conn, ClientMessage{Type: "select_category", Category: "animals"})

	hidden := readUntil(t, conn, "phase")
	if hidden["phase"] != "hidden" || hidden["image"] != nil || hidden["name"] != nil {
		t.Fatalf("hidden phase leaks the card: %v", hidden)
	}

	send(t, conn, ClientMessage{Type: "tap"})

	picture := readUntil(t, conn, "phase")
	image, _ := picture["image"].(string)
	if picture["phase"] != "picture" || image != "/play/TESTGAME/images/animals/images/animals/cat.png" || picture["name"] != nil {
		t.Fatalf("picture phase = %v", picture)
	}

	resp, err := http.Get(ts.srv.URL + image)
	if err != nil {
		t.Fatalf("GET image: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != string(catPNG) {
		t.Fatalf("image response %d, %d bytes", resp.StatusCode, len(body))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("image content type = %q", ct)
	}

	send(t, conn, ClientMessage{Type: "tap"})

	name := readUntil(t, conn, "phase")
	if name["phase"] != "name" || name["name"] != "Cat" {
		t.Fatalf("name phase = %v", name)
	}

	send(t, conn, ClientMessage{Type: "exit"})

	state = readUntil(t, conn, "state")
	if state["state"] != "idle" || state["phase"] != "hidden" || state["elapsed"] != float64(0) {
		t.Fatalf("state after exit = %v", state)
	}
}

func TestSetDurationOverWebSocket(t *testing.T) {
	ts := newTestServer(t, 0)
	conn := ts.dial(t, "DURATION")

	readUntil(t, conn, "state")

	send(t, conn, ClientMessage{Type: "set_duration", Seconds: 30})
	if msg := readUntil(t, conn, "duration"); msg["seconds"] != float64(30) {
		t.Fatalf("duration = %v", msg)
	}

	send(t, conn, ClientMessage{Type: "set_duration", Seconds: 1})
	readUntil(t, conn, "error")

	send(t, conn, ClientMessage{Type: "select_category", Category: "animals"})
	if tick := readUntil(t, conn, "tick"); tick["remaining"] != float64(30) {
		t.Fatalf("first tick = %v, want 30 remaining", tick)
	}
}

func TestSecondClientSharesGame(t *testing.T) {
	ts := newTestServer(t, 0)

	first := ts.dial(t, "SHARED")
	readUntil(t, first, "state")

	second := ts.dial(t, "SHARED")
	if info := readUntil(t, second, "session_info"); info["is_owner"] != false {
		t.Fatalf("second client owns the game: %v", info)
	}
	readUntil(t, second, "state")

	send(t, first, ClientMessage{Type: "select_category", Category: "animals"})

	if phase := readUntil(t, second, "phase"); phase["phase"] != "hidden" {
		t.Fatalf("second client saw %v", phase)
	}
}

func TestImageOutsideCatalogNotServed(t *testing.T) {
	ts := newTestServer(t, 0)

	for _, path := range []string{
		"/play/X/images/animals/images/animals/dog.png",
		"/play/X/images/plants/images/animals/cat.png",
	} {
		resp, err := http.Get(ts.srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("GET %s = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestNewGameRedirect(t *testing.T) {
	ts := newTestServer(t, 0)

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Get(ts.srv.URL + gamePath)
	if err != nil {
		t.Fatalf("GET %s: %v", gamePath, err)
	}
	resp.Body.Close()

	location := resp.Header.Get("Location")
	if resp.StatusCode != http.StatusTemporaryRedirect || !strings.HasPrefix(location, gamePath+"/") || len(location) != len(gamePath)+9 {
		t.Fatalf("redirect = %d %q", resp.StatusCode, location)
	}
}

func TestReaperEndsIdleGames(t *testing.T) {
	ts := newTestServer(t, time.Hour)

	hub := ts.gm.getHub("IDLE")
	if ts.gm.games() != 1 {
		t.Fatalf("games() = %d, want 1", ts.gm.games())
	}

	ts.clock.Advance(2 * time.Hour)
	ts.gm.reap()

	if ts.gm.games() != 0 {
		t.Fatalf("idle game not reaped")
	}

	select {
	case <-hub.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("reaped hub still running")
	}
}

func TestReaperSparesRunningRound(t *testing.T) {
	ts := newTestServer(t, 0)
	ts.gm.idleTimeout = time.Hour

	conn := ts.dial(t, "LONGGAME")
	readUntil(t, conn, "state")

	send(t, conn, ClientMessage{Type: "set_duration", Seconds: 3600})
	readUntil(t, conn, "duration")

	send(t, conn, ClientMessage{Type: "select_category", Category: "animals"})
	readUntil(t, conn, "phase")

	// Nobody taps for two hours, but the round keeps ticking.
	ts.clock.Advance(2 * time.Hour)
	readUntil(t, conn, "tick")

	ts.gm.reap()

	if ts.gm.games() != 1 {
		t.Fatalf("running round was reaped")
	}
}
