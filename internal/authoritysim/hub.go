package authoritysim

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/wordrush/internal/engine/reconcile"
	"github.com/mcdev12/wordrush/internal/game"
	"github.com/rs/zerolog/log"
)

// Hub fans row envelopes out to the WebSocket clients of each room. It
// implements Publisher so it can be chained with the JetStream publisher.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*hubConn]bool

	upgrader websocket.Upgrader

	writeTimeout time.Duration
	pingInterval time.Duration
	sendBuffer   int
}

type hubConn struct {
	roomID uuid.UUID
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

// drop signals the write pump to finish. The send channel is never closed;
// broadcast may still hold a reference to this conn from a snapshot taken
// before unregister ran.
func (hc *hubConn) drop() {
	hc.once.Do(func() { close(hc.done) })
}

// NewHub creates a WebSocket fan-out hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[uuid.UUID]map[*hubConn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		writeTimeout: 10 * time.Second,
		pingInterval: 30 * time.Second,
		sendBuffer:   64,
	}
}

// HandleRoomFeed upgrades a connection and streams the room's envelopes.
func (h *Hub) HandleRoomFeed(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(r.URL.Query().Get("room_id"))
	if err != nil {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade feed connection")
		return
	}

	hc := &hubConn{
		roomID: roomID,
		conn:   conn,
		send:   make(chan []byte, h.sendBuffer),
		done:   make(chan struct{}),
	}
	h.register(hc)

	go h.writePump(hc)
	go h.readPump(hc)

	log.Info().Str("room_id", roomID.String()).Msg("feed connection established")
}

func (h *Hub) register(hc *hubConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[hc.roomID] == nil {
		h.rooms[hc.roomID] = make(map[*hubConn]bool)
	}
	h.rooms[hc.roomID][hc] = true
}

func (h *Hub) unregister(hc *hubConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[hc.roomID]; ok {
		if _, ok := conns[hc]; ok {
			delete(conns, hc)
			hc.drop()
			if len(conns) == 0 {
				delete(h.rooms, hc.roomID)
			}
		}
	}
}

func (h *Hub) writePump(hc *hubConn) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		hc.conn.Close()
		h.unregister(hc)
	}()

	for {
		select {
		case <-hc.done:
			hc.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			hc.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-hc.send:
			hc.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := hc.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			hc.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := hc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(hc *hubConn) {
	defer func() {
		h.unregister(hc)
		hc.conn.Close()
	}()
	hc.conn.SetReadLimit(1024)
	for {
		// The feed is one-way; clients only send control frames.
		if _, _, err := hc.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) broadcast(roomID uuid.UUID, env *reconcile.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns := make([]*hubConn, 0, len(h.rooms[roomID]))
	for hc := range h.rooms[roomID] {
		conns = append(conns, hc)
	}
	h.mu.RUnlock()

	for _, hc := range conns {
		select {
		case <-hc.done:
		case hc.send <- data:
		default:
			// Slow consumer; drop it, the feed is best-effort recovery via
			// turn_seq anyway.
			log.Warn().Str("room_id", roomID.String()).Msg("feed connection send buffer full, closing")
			h.unregister(hc)
			hc.conn.Close()
		}
	}
	return nil
}

// PublishGame implements Publisher.
func (h *Hub) PublishGame(ctx context.Context, g *game.Game) error {
	env, err := GameEnvelope(g)
	if err != nil {
		return err
	}
	return h.broadcast(g.RoomID, env)
}

// PublishPlayer implements Publisher.
func (h *Hub) PublishPlayer(ctx context.Context, p game.Player) error {
	env, err := PlayerEnvelope(p)
	if err != nil {
		return err
	}
	return h.broadcast(p.RoomID, env)
}

// CloseAll drops every feed connection.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID, conns := range h.rooms {
		for hc := range conns {
			hc.drop()
			hc.conn.Close()
		}
		delete(h.rooms, roomID)
	}
}

// MultiPublisher fans Publish calls out to several publishers.
type MultiPublisher []Publisher

// PublishGame implements Publisher.
func (m MultiPublisher) PublishGame(ctx context.Context, g *game.Game) error {
	var firstErr error
	for _, p := range m {
		if err := p.PublishGame(ctx, g); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PublishPlayer implements Publisher.
func (m MultiPublisher) PublishPlayer(ctx context.Context, p game.Player) error {
	var firstErr error
	for _, pub := range m {
		if err := pub.PublishPlayer(ctx, p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
