package reconcile

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSFeedConfig holds configuration for the WebSocket gateway source.
type WSFeedConfig struct {
	// GatewayURL is the ws:// or wss:// endpoint of the authority's event
	// gateway, e.g. "ws://localhost:8090/ws/rooms".
	GatewayURL     string
	HandshakeWait  time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	RedialWait     time.Duration
}

// DefaultWSFeedConfig returns the default WebSocket source configuration.
func DefaultWSFeedConfig() WSFeedConfig {
	return WSFeedConfig{
		HandshakeWait:  10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 16 * 1024,
		RedialWait:     2 * time.Second,
	}
}

// WSFeedSource consumes the authority gateway's per-room WebSocket event
// feed. It redials on connection loss; any rows missed while disconnected
// are recovered by the next authoritative update thanks to the turn_seq
// merge.
type WSFeedSource struct {
	roomID uuid.UUID
	cfg    WSFeedConfig

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewWSFeedSource creates a WebSocket source for one room.
func NewWSFeedSource(roomID uuid.UUID, cfg WSFeedConfig) *WSFeedSource {
	return &WSFeedSource{roomID: roomID, cfg: cfg}
}

func (s *WSFeedSource) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(s.cfg.GatewayURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway URL: %w", err)
	}
	q := u.Query()
	q.Set("room_id", s.roomID.String())
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeWait}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	return conn, nil
}

// Run implements Source.
func (s *WSFeedSource) Run(ctx context.Context, events chan<- *Envelope) error {
	for {
		if ctx.Err() != nil || s.isClosed() {
			return nil
		}

		conn, err := s.dial(ctx)
		if err != nil {
			log.Warn().
				Err(err).
				Str("room_id", s.roomID.String()).
				Msg("gateway dial failed, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.cfg.RedialWait):
				continue
			}
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return nil
		}
		s.conn = conn
		s.mu.Unlock()
		log.Info().
			Str("room_id", s.roomID.String()).
			Str("url", s.cfg.GatewayURL).
			Msg("connected to gateway event feed")

		if err := s.readPump(ctx, conn, events); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("gateway feed dropped, redialing")
		}
		conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *WSFeedSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// readPump reads envelopes off one connection until it dies or ctx ends.
func (s *WSFeedSource) readPump(ctx context.Context, conn *websocket.Conn, events chan<- *Envelope) error {
	conn.SetReadLimit(s.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	// Keep the connection alive; the gateway closes idle peers.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ctx.Done():
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.HandshakeWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				return fmt.Errorf("read gateway message: %w", err)
			}
			return nil
		}

		env, err := decodeEnvelope(message)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed gateway message")
			continue
		}
		select {
		case events <- env:
		case <-ctx.Done():
			return nil
		}
	}
}

// Close implements Source. It stops the redial loop and unblocks a pending
// read by closing the live connection, if any.
func (s *WSFeedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
