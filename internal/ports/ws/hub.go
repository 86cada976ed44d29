package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bluff/internal/app"
	"bluff/internal/domain"
	"bluff/internal/ports"
)

var _ ports.Broadcaster = (*Hub)(nil)

const (
	sendBuffer     = 32
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Games is the part of the coordinator a connection drives.
type Games interface {
	State(ctx context.Context, gameID, userID string) (app.StateView, error)
	StartGame(ctx context.Context, gameID, userID string) (app.GameView, error)
	PlayCards(ctx context.Context, gameID, userID string, cards []string, declaredRank string) (app.GameView, error)
	Challenge(ctx context.Context, gameID, userID string) (app.GameView, error)
}

// Hub tracks game rooms and fans committed game events out to every
// connection in a room. Connections are accepted by the handler returned from Handler.
type Hub struct {
	sessions *app.SessionService
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	origins []string
	rooms   map[string]map[*client]struct{}
	clients map[*client]struct{}
}

type client struct {
	hub    *Hub
	games  Games
	conn   *websocket.Conn
	userID string
	send   chan []byte

	sendMu sync.Mutex
	closed bool

	// guarded by hub.mu
	rooms map[string]struct{}
}

func NewHub(sessions *app.SessionService, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		sessions: sessions,
		logger:   logger,
		rooms:    make(map[string]map[*client]struct{}),
		clients:  make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// AllowOrigins lets browser pages on other origins open connections. "*"
// allows any origin.
func (h *Hub) AllowOrigins(origins ...string) {
	h.mu.Lock()
	h.origins = append(h.origins, origins...)
	h.mu.Unlock()
}

// checkOrigin accepts handshakes without an Origin header, same-host
// origins and the allowed list.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	h.mu.RLock()
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			h.mu.RUnlock()
			return true
		}
	}
	h.mu.RUnlock()
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Handler upgrades authenticated requests into connections whose actions go to games.
func (h *Hub) Handler(games Games) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.serve(games, w, r)
	})
}

// serve authenticates then upgrades. Browsers cannot set headers on a
// WebSocket handshake, so the token may also come as ?token=.
func (h *Hub) serve(games Games, w http.ResponseWriter, r *http.Request) {
	credential := r.Header.Get("Authorization")
	if credential == "" {
		credential = r.URL.Query().Get("token")
	}
	userID, err := h.sessions.Authenticate(credential)
	if err != nil {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{
		hub:    h,
		games:  games,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
		rooms:  make(map[string]struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("connection opened", "user_id", userID)

	go c.writePump()
	c.readPump()
}

// Publish delivers envelopes to every connection in the game's room. A
// connection whose buffer is full is disconnected; it can rejoin and refetch state.
func (h *Hub) Publish(ctx context.Context, gameID string, envelopes ...ports.Envelope) error {
	frames := make([][]byte, 0, len(envelopes))
	for _, env := range envelopes {
		b, err := json.Marshal(env)
		if err != nil {
			return err
		}
		frames = append(frames, b)
	}

	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[gameID]))
	for c := range h.rooms[gameID] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		for _, f := range frames {
			if !c.enqueue(f) {
				h.logger.Warn("dropping slow connection", "game_id", gameID, "user_id", c.userID)
				c.close()
				break
			}
		}
	}
	return ctx.Err()
}

// RoomSize reports how many connections are in a game's room.
func (h *Hub) RoomSize(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[gameID])
}

// Close disconnects every connection.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.close()
	}
}

func (h *Hub) join(c *client, gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[gameID] == nil {
		h.rooms[gameID] = make(map[*client]struct{})
	}
	h.rooms[gameID][c] = struct{}{}
	c.rooms[gameID] = struct{}{}
}

func (h *Hub) leave(c *client, gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, gameID)
}

func (h *Hub) leaveLocked(c *client, gameID string) {
	delete(c.rooms, gameID)
	if room := h.rooms[gameID]; room != nil {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, gameID)
		}
	}
}

func (h *Hub) disconnect(c *client) {
	h.mu.Lock()
	for gameID := range c.rooms {
		h.leaveLocked(c, gameID)
	}
	delete(h.clients, c)
	h.mu.Unlock()
	h.logger.Debug("connection closed", "user_id", c.userID)
}

func (h *Hub) handleMessage(ctx context.Context, c *client, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.reply(notice(MsgError, app.ErrorReply{Code: domain.CodeInvalidArgument, Message: "invalid message format"}))
		return
	}
	if msg.GameID == "" {
		c.reply(notice(MsgError, app.Describe(domain.InvalidArgument("gameId is required"))))
		return
	}

	var err error
	switch msg.Type {
	case MsgJoinGameRoom:
		var state app.StateView
		if state, err = c.games.State(ctx, msg.GameID, c.userID); err == nil {
			h.join(c, msg.GameID)
			c.reply(notice(MsgGameState, state))
		}
	case MsgLeaveGameRoom:
		h.leave(c, msg.GameID)
	case MsgStartGame:
		_, err = c.games.StartGame(ctx, msg.GameID, c.userID)
	case MsgPlayCards:
		_, err = c.games.PlayCards(ctx, msg.GameID, c.userID, msg.Cards, msg.DeclaredRank)
	case MsgChallenge:
		_, err = c.games.Challenge(ctx, msg.GameID, c.userID)
	default:
		err = domain.InvalidArgument("unknown message type")
	}
	if err != nil {
		c.reply(notice(MsgError, app.Describe(err)))
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.disconnect(c)
		c.close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", "user_id", c.userID, "error", err)
			}
			return
		}
		c.hub.handleMessage(context.Background(), c, message)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) reply(env ports.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		c.hub.logger.Error("encode reply", "user_id", c.userID, "error", err)
		return
	}
	c.enqueue(b)
}

// enqueue reports false when the send buffer is full or already closed.
func (c *client) enqueue(frame []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
