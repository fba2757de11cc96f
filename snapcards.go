/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Snapcards
//
// One player (or a table of players sharing a screen) flips through a shuffled
// deck of pictures from a chosen category against a countdown: tap once for
// the picture, tap again for its name, and the next card follows on its own.
//
// Features:
// - WebSockets per game ID: /play/:gameid and /play/:gameid/ws
// - The first connection to a game owns its duration preference
// - Every client connected to a game sees the same round
// - Players identified by cookie (playerID)
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - Card images served from a background-warmed cache
// - In-browser QR button to share the current game, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/snapcards/internal/catalog"
	"github.com/Seednode/snapcards/internal/events"
	"github.com/Seednode/snapcards/internal/prefetch"
	"github.com/Seednode/snapcards/internal/prefs"
	"github.com/Seednode/snapcards/internal/reveal"
	"github.com/Seednode/snapcards/internal/session"
)

const gamePath = "/play"

// Messages coming from clients
type ClientMessage struct {
	Type     string `json:"type"`               // "select_category", "set_duration", "tap", "play_again", "exit", "audio_error"
	Category string `json:"category,omitempty"` // select_category
	Seconds  int    `json:"seconds,omitempty"`  // set_duration
	Message  string `json:"message,omitempty"`  // audio_error
}

type CategoryInfo struct {
	Name  string `json:"name"`
	Items int    `json:"items"`
}

// CatalogMessage lists the playable categories. Ready is false until the
// catalog has been loaded, and the view keeps category buttons disabled.
type CatalogMessage struct {
	Type       string         `json:"type"` // "catalog"
	Ready      bool           `json:"ready"`
	Categories []CategoryInfo `json:"categories"`
}

// SessionInfoMessage is sent immediately on connect.
type SessionInfoMessage struct {
	Type    string `json:"type"` // "session_info"
	GameID  string `json:"game_id"`
	IsOwner bool   `json:"is_owner"`
}

// StateMessage brings a client up to date with the whole game.
type StateMessage struct {
	Type              string           `json:"type"`  // "state"
	State             string           `json:"state"` // "idle", "running" or "ended"
	Category          string           `json:"category,omitempty"`
	Phase             string           `json:"phase"`
	Image             string           `json:"image,omitempty"`
	Name              string           `json:"name,omitempty"`
	Elapsed           int              `json:"elapsed"`
	Remaining         int              `json:"remaining"`
	Duration          int              `json:"duration"`
	PreferredDuration int              `json:"preferred_duration"`
	Score             int              `json:"score"`
	Summary           *session.Summary `json:"summary,omitempty"`
}

// PhaseMessage only carries what the phase allows the player to see.
type PhaseMessage struct {
	Type     string `json:"type"`  // "phase"
	Phase    string `json:"phase"` // "hidden", "picture" or "name"
	Category string `json:"category"`
	Image    string `json:"image,omitempty"`
	Name     string `json:"name,omitempty"`
}

type TickMessage struct {
	Type      string `json:"type"` // "tick"
	Elapsed   int    `json:"elapsed"`
	Remaining int    `json:"remaining"`
}

type EndedMessage struct {
	Type    string          `json:"type"` // "ended"
	Summary session.Summary `json:"summary"`
}

type ImageReadyMessage struct {
	Type  string `json:"type"` // "image_ready"
	Image string `json:"image"`
}

// AudioMessage drives the music and sound effects in the browser.
type AudioMessage struct {
	Type   string  `json:"type"`   // "audio"
	Action string  `json:"action"` // "play", "stop", "level" or "cue"
	Volume float64 `json:"volume,omitempty"`
	Tempo  float64 `json:"tempo,omitempty"`
	Cue    string  `json:"cue,omitempty"`
}

type DurationMessage struct {
	Type    string `json:"type"` // "duration"
	Seconds int    `json:"seconds"`
}

// SimpleMessage is for generic notifications ("error", etc.)
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// services are shared by every game on the server.
type services struct {
	cfg     *Config
	catalog *catalog.Source
	images  *prefetch.Prefetcher
	prefs   prefs.Store
	events  events.Publisher
	policy  session.Policy
	clock   clockwork.Clock
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type clientRequest struct {
	client *Client
	msg    ClientMessage
}

type Hub struct {
	id   string
	base string
	svc  *services

	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	requests chan clientRequest

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
	ownerID    string // cookie/playerID whose duration preference the game uses

	game   *session.Controller
	cancel context.CancelFunc
	done   chan struct{}
}

func newHub(svc *services, gameID string) *Hub {
	now := svc.clock.Now()
	return &Hub{
		id:         gameID,
		base:       svc.cfg.prefix + gamePath + "/" + gameID,
		svc:        svc,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		requests:   make(chan clientRequest),
		createdAt:  now,
		lastActive: now,
		done:       make(chan struct{}),
	}
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer h.closeAll()

	catalogReady := h.svc.catalog.Ready()

	for {
		select {
		case <-ctx.Done():
			return

		case <-catalogReady:
			// Fires once; a nil channel is never selected again.
			catalogReady = nil
			h.broadcast(h.catalogMessage())

		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = h.svc.clock.Now()

			// First connection owns the duration preference
			if h.ownerID == "" {
				h.ownerID = c.playerID
			}
			isOwner := h.ownerID == c.playerID

			h.clients[c] = true
			h.mu.Unlock()

			if h.game == nil {
				h.startGame(ctx)
			}

			h.sendTo(c, SessionInfoMessage{
				Type:    "session_info",
				GameID:  h.id,
				IsOwner: isOwner,
			})
			h.sendTo(c, h.catalogMessage())
			if state, ok := h.stateMessage(); ok {
				h.sendTo(c, state)
			}

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = h.svc.clock.Now()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case req := <-h.requests:
			h.touch()

			h.handleRequest(ctx, req)
		}
	}
}

// startGame creates the controller once the owner is known.
func (h *Hub) startGame(ctx context.Context) {
	h.mu.RLock()
	owner := h.ownerID
	h.mu.RUnlock()

	h.game = session.New(session.Options{
		GameID:     h.id,
		Catalog:    h.svc.catalog,
		Images:     h.svc.images,
		Renderer:   h,
		Audio:      h,
		Preference: prefs.Bind(h.svc.prefs, owner),
		Publisher:  h.svc.events,
		Clock:      h.svc.clock,
		Policy:     h.svc.policy,
	})

	go h.game.Run(ctx)
}

func (h *Hub) handleRequest(ctx context.Context, req clientRequest) {
	c := req.client
	msg := req.msg

	switch msg.Type {
	case "select_category":
		if err := h.game.SelectCategory(msg.Category); err != nil {
			h.sendTo(c, SimpleMessage{
				Type:    "error",
				Message: startErrorText(err),
			})

			return
		}

		logf(h.svc.cfg, "GAMES: Started %q round in game %s", msg.Category, h.id)

	case "set_duration":
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := h.game.SetDuration(ctx, msg.Seconds); err != nil {
			h.sendTo(c, SimpleMessage{
				Type:    "error",
				Message: "Could not set the round length: " + err.Error(),
			})

			return
		}

		h.broadcast(DurationMessage{
			Type:    "duration",
			Seconds: msg.Seconds,
		})

	case "tap":
		_ = h.game.Tap()

	case "play_again":
		_ = h.game.PlayAgain()
		h.broadcastState()

	case "exit":
		_ = h.game.Exit()
		h.broadcastState()

	case "audio_error":
		h.game.ReportPlaybackFailure("browser", errors.New(msg.Message))
	}
}

func startErrorText(err error) string {
	switch {
	case errors.Is(err, catalog.ErrCatalogUnavailable):
		return "The card catalog is still loading. Please try again in a moment."
	case errors.Is(err, catalog.ErrUnknownCategory):
		return "That category does not exist."
	default:
		return "That category has no cards yet."
	}
}

func (h *Hub) catalogMessage() CatalogMessage {
	msg := CatalogMessage{
		Type:       "catalog",
		Categories: []CategoryInfo{},
	}

	cat, err := h.svc.catalog.Catalog()
	if err != nil {
		return msg
	}

	msg.Ready = true
	msg.Categories = categoryInfo(cat)

	return msg
}

func categoryInfo(cat *catalog.Catalog) []CategoryInfo {
	names := cat.Names()

	infos := make([]CategoryInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, CategoryInfo{
			Name:  name,
			Items: cat.Len(name),
		})
	}

	return infos
}

func (h *Hub) stateMessage() (StateMessage, bool) {
	s, err := h.game.Snapshot()
	if err != nil {
		return StateMessage{}, false
	}

	msg := StateMessage{
		Type:              "state",
		State:             s.State.String(),
		Category:          s.Category,
		Phase:             s.Phase.String(),
		Elapsed:           s.Elapsed,
		Remaining:         s.Remaining,
		Duration:          s.Duration,
		PreferredDuration: s.PreferredDuration,
		Score:             s.Score,
		Summary:           s.Last,
	}

	if s.Item != nil {
		phase := h.phaseMessage(s.Phase, s.Category, *s.Item)
		msg.Image = phase.Image
		msg.Name = phase.Name
	}

	return msg, true
}

func (h *Hub) broadcastState() {
	if state, ok := h.stateMessage(); ok {
		h.broadcast(state)
	}
}

func (h *Hub) phaseMessage(phase reveal.Phase, category string, item catalog.Item) PhaseMessage {
	msg := PhaseMessage{
		Type:     "phase",
		Phase:    phase.String(),
		Category: category,
	}

	switch phase {
	case reveal.PictureShown:
		msg.Image = h.imageURL(category, item.ImageRef)
	case reveal.NameShown:
		msg.Image = h.imageURL(category, item.ImageRef)
		msg.Name = item.DisplayName
	}

	return msg
}

func (h *Hub) imageURL(category, ref string) string {
	segments := strings.Split(ref, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return h.base + "/images/" + url.PathEscape(category) + "/" + strings.Join(segments, "/")
}

// The hub renders for the controller by broadcasting to every client.

func (h *Hub) OnPhaseChanged(category string, phase reveal.Phase, item catalog.Item) {
	h.broadcast(h.phaseMessage(phase, category, item))
}

// A running round counts as activity, so the reaper never ends one that
// nobody is tapping.
func (h *Hub) OnTimerTick(elapsed, remaining int) {
	h.touch()

	h.broadcast(TickMessage{
		Type:      "tick",
		Elapsed:   elapsed,
		Remaining: remaining,
	})
}

func (h *Hub) OnSessionEnded(summary session.Summary) {
	logf(h.svc.cfg, "GAMES: Round in game %s ended after %ds with %d revealed", h.id, summary.Elapsed, summary.Revealed)

	h.broadcast(EndedMessage{
		Type:    "ended",
		Summary: summary,
	})
}

func (h *Hub) OnImageReady(category, ref string) {
	h.broadcast(ImageReadyMessage{
		Type:  "image_ready",
		Image: h.imageURL(category, ref),
	})
}

// Audio plays in the browser; the hub only relays.

func (h *Hub) Play() error {
	h.broadcast(AudioMessage{Type: "audio", Action: "play"})
	return nil
}

func (h *Hub) Stop() error {
	h.broadcast(AudioMessage{Type: "audio", Action: "stop"})
	return nil
}

func (h *Hub) SetLevel(volume, tempo float64) error {
	h.broadcast(AudioMessage{
		Type:   "audio",
		Action: "level",
		Volume: volume,
		Tempo:  tempo,
	})
	return nil
}

func (h *Hub) Cue(cue session.Cue) error {
	h.broadcast(AudioMessage{
		Type:   "audio",
		Action: "cue",
		Cue:    string(cue),
	})
	return nil
}

// broadcast drops any client that cannot keep up.
func (h *Hub) broadcast(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *Hub) sendTo(c *Client, msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

// closeAll disconnects all clients of this hub (used by reaper).
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = h.svc.clock.Now()
	h.mu.Unlock()
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastActive
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "snapcards_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated game.
type GameManager struct {
	ctx         context.Context
	svc         *services
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
}

func newGameManager(ctx context.Context, svc *services, idleTimeout time.Duration) *GameManager {
	gm := &GameManager{
		ctx:         ctx,
		svc:         svc,
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub
	}

	ctx, cancel := context.WithCancel(gm.ctx)

	hub := newHub(gm.svc, gameID)
	hub.cancel = cancel
	gm.hubs[gameID] = hub
	go hub.run(ctx)
	return hub
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically ends games that have been idle longer than
// idleTimeout. Ending a game exits any round in progress.
func (gm *GameManager) reaperLoop() {
	ticker := gm.svc.clock.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-gm.ctx.Done():
			return
		case <-ticker.Chan():
			gm.reap()
		}
	}
}

func (gm *GameManager) reap() {
	cutoff := gm.svc.clock.Now().Add(-gm.idleTimeout)

	gm.mu.Lock()
	defer gm.mu.Unlock()

	for id, hub := range gm.hubs {
		if hub.idleSince().Before(cutoff) {
			delete(gm.hubs, id)
			hub.cancel()

			log.Info().Str("game_id", id).Msg("reaped idle game")
		}
	}
}

func (gm *GameManager) games() int {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	return len(gm.hubs)
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)

		hub := gm.getHub(gameID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("game_id", gameID).Msg("websocket upgrade failed")
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 32),
			playerID: playerID,
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		logf(cfg, "GAMES: Player %s joined game %s from %s", playerID, gameID, realIP(r))

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "select_category", "set_duration", "tap", "play_again", "exit", "audio_error":
			select {
			case h.requests <- clientRequest{
				client: c,
				msg:    msg,
			}:
			case <-h.done:
				return
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// serveImage answers from the prefetch cache, loading on demand on a miss.
// Only images that belong to the named category are served.
func serveImage(cfg *Config, svc *services, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		category := ps.ByName("category")
		ref := strings.TrimPrefix(ps.ByName("ref"), "/")

		cat, err := svc.catalog.Catalog()
		if err != nil {
			http.Error(w, "catalog not loaded", http.StatusServiceUnavailable)
			return
		}

		items, err := cat.Items(category)
		if err != nil || !slices.ContainsFunc(items, func(i catalog.Item) bool { return i.ImageRef == ref }) {
			http.NotFound(w, r)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		img, err := svc.images.Fetch(ctx, category, ref)
		if err != nil {
			log.Warn().Err(err).Str("category", category).Str("image", ref).Msg("image unavailable")
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", img.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		if !img.ModTime.IsZero() {
			w.Header().Set("Last-Modified", img.ModTime.UTC().Format(http.TimeFormat))
		}
		securityHeaders(cfg, w)

		written, err := w.Write(img.Data)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Image %s/%s (%s) to %s in %s",
			category,
			ref,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func getIndexHandler(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, err := assets.ReadFile("assets/index.html")
		if err != nil {
			errs <- err

			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, err = w.Write(data)
		if err != nil {
			errs <- err
		}
	}
}

// redirectNewGame handles GET /path by generating a new random game ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		logf(cfg, "GAMES: Created game %s/%s", path, gameID)
		http.Redirect(w, r, cfg.prefix+path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerGame sets up routes so that:
//   - $path                                  → redirects to new random game (8-char ID)
//   - $path/:gameid                          → HTML client
//   - $path/:gameid/ws                       → WebSocket for that game
//   - $path/:gameid/qr                       → PNG QR code for that game URL
//   - $path/:gameid/images/:category/*ref    → card image
func registerGame(cfg *Config, path string, mux *httprouter.Router, gm *GameManager, errs chan<- error) {
	// Root path → redirect to new random game
	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, gm))

	// Per-game client view (HTML)
	mux.GET(cfg.prefix+path+"/:gameid", getIndexHandler(cfg, errs))

	// Per-game websocket
	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	// Per-game QR code
	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)

	// Card images, shared by every game
	mux.GET(cfg.prefix+path+"/:gameid/images/:category/*ref", serveImage(cfg, gm.svc, errs))
}
