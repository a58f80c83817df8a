// Package webchat serves browser chat rooms over WebSocket. Every room is a
// chat tab whose configured game system tags the messages typed in it, so
// players can roll from a web page or a virtual tabletop overlay alongside
// the Discord channels.
//
// Clients connect to the gateway handler with the query parameters room,
// name and optionally character, send [Inbound] frames and receive
// [Frame] values as JSON text messages.
package webchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/MrWong99/dicebot/internal/character"
	"github.com/MrWong99/dicebot/internal/chat"
)

// TabPrefix marks the chat tabs owned by the gateway.
const TabPrefix = "web:"

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
	readLimit    = 4096
	maxNameLen   = 64
)

// Frame types sent to clients.
const (
	FrameWelcome = "welcome"
	FrameMessage = "message"
	FrameResult  = "result"
	FrameSecret  = "secret"
)

// Inbound is a line typed by a client.
type Inbound struct {
	Text string `json:"text"`

	// Targets are the character IDs the line addresses.
	Targets []string `json:"targets,omitempty"`

	// To whispers the line to the given client IDs. The sender always sees
	// its own whisper and the results it causes.
	To []string `json:"to,omitempty"`
}

// Frame is a message sent to clients.
type Frame struct {
	Type      string   `json:"type"`
	ID        string   `json:"id,omitempty"`
	Room      string   `json:"room"`
	From      string   `json:"from,omitempty"`
	Name      string   `json:"name,omitempty"`
	Text      string   `json:"text,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
	To        []string `json:"to,omitempty"`
}

// ChatSink stores room messages. [chat.MemStore] implements it.
type ChatSink interface {
	EnsureTab(ctx context.Context, id, name string) error
	Post(ctx context.Context, m chat.Message) (chat.Message, error)
}

// EventPublisher announces stored messages. [bus.Bus] implements it.
type EventPublisher interface {
	PublishInbound(ctx context.Context, ev chat.Event) error
}

// CharacterGetter validates the character a client speaks as.
type CharacterGetter interface {
	Get(ctx context.Context, id string) (character.Character, error)
}

// Option configures a [Gateway].
type Option func(*Gateway)

// WithOriginPatterns allows cross-origin connections from the given host
// patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(g *Gateway) { g.originPatterns = slices.Clone(patterns) }
}

// WithCharacters validates the character query parameter against chars.
func WithCharacters(chars CharacterGetter) Option {
	return func(g *Gateway) { g.chars = chars }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// Gateway hosts the browser chat rooms.
type Gateway struct {
	chat           ChatSink
	events         EventPublisher
	chars          CharacterGetter
	originPatterns []string
	now            func() time.Time

	mu      sync.RWMutex
	rooms   map[string]string
	clients map[string]map[*client]struct{}
	closed  bool
}

type client struct {
	id        string
	room      string
	name      string
	character string
	conn      *websocket.Conn
	send      chan Frame
}

// New returns a gateway for the given room to game-system mapping.
// Connections to rooms missing from the mapping are refused.
func New(sink ChatSink, events EventPublisher, rooms map[string]string, opts ...Option) *Gateway {
	g := &Gateway{
		chat:    sink,
		events:  events,
		now:     time.Now,
		rooms:   maps.Clone(rooms),
		clients: make(map[string]map[*client]struct{}),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// SetRooms replaces the room to game-system mapping. Clients in rooms that
// were removed stay connected until they leave.
func (g *Gateway) SetRooms(rooms map[string]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rooms = maps.Clone(rooms)
}

// RoomSystem returns the game system of room and whether the room exists.
func (g *Gateway) RoomSystem(room string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.rooms[room]
	return s, ok
}

// Owns reports whether tabID belongs to a web chat room.
func (g *Gateway) Owns(tabID string) bool {
	return strings.HasPrefix(tabID, TabPrefix)
}

// Handler returns the WebSocket endpoint.
func (g *Gateway) Handler() http.Handler {
	return http.HandlerFunc(g.serveWS)
}

func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	room, name, char := q.Get("room"), strings.TrimSpace(q.Get("name")), q.Get("character")

	system, ok := g.RoomSystem(room)
	if !ok {
		http.Error(w, "unknown room", http.StatusNotFound)
		return
	}
	if name == "" || len([]rune(name)) > maxNameLen {
		http.Error(w, "name must be 1 to 64 characters", http.StatusBadRequest)
		return
	}
	if char != "" && g.chars != nil {
		if _, err := g.chars.Get(r.Context(), char); err != nil {
			http.Error(w, "unknown character", http.StatusBadRequest)
			return
		}
	}
	if err := g.chat.EnsureTab(r.Context(), TabPrefix+room, room); err != nil {
		http.Error(w, "room unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: g.originPatterns})
	if err != nil {
		slog.Debug("webchat: accept failed", "room", room, "err", err)
		return
	}
	conn.SetReadLimit(readLimit)

	c := &client{
		id:        uuid.NewString(),
		room:      room,
		name:      name,
		character: char,
		conn:      conn,
		send:      make(chan Frame, sendBuffer),
	}
	if !g.register(c) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer g.unregister(c)

	ctx := r.Context()
	go c.writeLoop(ctx)
	g.sendTo(c, Frame{Type: FrameWelcome, ID: c.id, Room: room, Name: name})
	slog.Info("webchat: client joined", "room", room, "client", c.id, "system", system)

	for {
		var in Inbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			if s := websocket.CloseStatus(err); s != websocket.StatusNormalClosure && s != websocket.StatusGoingAway {
				slog.Debug("webchat: read failed", "client", c.id, "err", err)
			}
			return
		}
		if err := g.accept(ctx, c, in); err != nil {
			slog.Warn("webchat: message dropped", "client", c.id, "err", err)
		}
	}
}

// accept stores a client line, publishes its event and echoes it to the
// room, or to the sender and recipients of a whisper.
func (g *Gateway) accept(ctx context.Context, c *client, in Inbound) error {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil
	}
	system, _ := g.RoomSystem(c.room)

	posted, err := g.chat.Post(ctx, chat.Message{
		TabID:     TabPrefix + c.room,
		Text:      text,
		Tag:       system,
		From:      c.id,
		Name:      c.name,
		Timestamp: g.now().UnixMilli(),
		SpeakerID: c.character,
		TargetIDs: slices.Clone(in.Targets),
		To:        whisperTo(c.id, in.To),
		FromSelf:  true,
	})
	if err != nil {
		return fmt.Errorf("webchat: store message: %w", err)
	}

	g.fanout(c.room, posted.To, Frame{
		Type: FrameMessage, ID: posted.ID, Room: c.room,
		From: c.id, Name: c.name, Text: posted.Text, Timestamp: posted.Timestamp, To: posted.To,
	})
	if err := g.events.PublishInbound(ctx, chat.Event{MessageID: posted.ID}); err != nil {
		return fmt.Errorf("webchat: publish message %s: %w", posted.ID, err)
	}
	return nil
}

// Deliver sends a generated message to its room. Results with recipients
// reach only those clients. Secret results reach the originating client and
// the other clients that would have seen them get a notice.
func (g *Gateway) Deliver(ctx context.Context, m chat.Message) error {
	if !g.Owns(m.TabID) {
		return fmt.Errorf("webchat: tab %s is not a web chat room", m.TabID)
	}
	room := strings.TrimPrefix(m.TabID, TabPrefix)

	// Result history is best effort.
	if _, err := g.chat.Post(ctx, m); err != nil {
		slog.Debug("webchat: result not stored", "room", room, "err", err)
	}

	f := Frame{Type: FrameResult, ID: m.ID, Room: room, Name: m.Name, Text: m.Text, Timestamp: m.Timestamp, To: m.To}
	notice := Frame{Type: FrameSecret, ID: m.ID, Room: room, Name: m.Name, Timestamp: m.Timestamp, To: m.To}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return errors.New("webchat: gateway closed")
	}

	for c := range g.clients[room] {
		switch {
		case m.IsDirect() && !slices.Contains(m.To, c.id):
		case m.IsSecret() && c.id != m.OriginFrom:
			g.trySend(c, notice)
		default:
			g.trySend(c, f)
		}
	}
	return nil
}

// whisperTo returns the recipients of a whisper from sender, or nil for a
// line to the whole room.
func whisperTo(sender string, to []string) []string {
	var out []string
	for _, id := range to {
		if id = strings.TrimSpace(id); id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil
	}
	if !slices.Contains(out, sender) {
		out = append(out, sender)
	}
	return out
}

// Clients returns the number of clients connected to room.
func (g *Gateway) Clients(room string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients[room])
}

// Close disconnects every client and refuses new connections.
func (g *Gateway) Close() error {
	g.mu.Lock()
	g.closed = true
	var conns []*websocket.Conn
	for _, cs := range g.clients {
		for c := range cs {
			conns = append(conns, c.conn)
		}
	}
	g.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	return nil
}

func (g *Gateway) register(c *client) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	if g.clients[c.room] == nil {
		g.clients[c.room] = make(map[*client]struct{})
	}
	g.clients[c.room][c] = struct{}{}
	return true
}

func (g *Gateway) unregister(c *client) {
	g.mu.Lock()
	if cs, ok := g.clients[c.room]; ok {
		if _, ok := cs[c]; ok {
			delete(cs, c)
			close(c.send)
		}
		if len(cs) == 0 {
			delete(g.clients, c.room)
		}
	}
	g.mu.Unlock()
	c.conn.CloseNow()
	slog.Info("webchat: client left", "room", c.room, "client", c.id)
}

// fanout sends f to the clients of room, or only to those listed in to.
func (g *Gateway) fanout(room string, to []string, f Frame) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for c := range g.clients[room] {
		if len(to) == 0 || slices.Contains(to, c.id) {
			g.trySend(c, f)
		}
	}
}

func (g *Gateway) sendTo(c *client, f Frame) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.clients[c.room][c]; ok {
		g.trySend(c, f)
	}
}

// trySend queues f without blocking. A client whose queue is full is
// disconnected. The caller holds g.mu.
func (g *Gateway) trySend(c *client, f Frame) {
	select {
	case c.send <- f:
	default:
		slog.Warn("webchat: client too slow, disconnecting", "client", c.id)
		go c.conn.Close(websocket.StatusPolicyViolation, "too slow")
	}
}

func (c *client) writeLoop(ctx context.Context) {
	for f := range c.send {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(wctx, c.conn, f)
		cancel()
		if err != nil {
			c.conn.CloseNow()
			// Drain until unregister closes the queue.
			for range c.send {
			}
			return
		}
	}
}
