package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// PGListenConfig holds configuration for the Postgres LISTEN/NOTIFY source.
type PGListenConfig struct {
	DatabaseURL   string
	NotifyChannel string
	MinReconnect  time.Duration
	MaxReconnect  time.Duration
	PingInterval  time.Duration
}

// DefaultPGListenConfig returns the default listener configuration.
func DefaultPGListenConfig() PGListenConfig {
	return PGListenConfig{
		NotifyChannel: "wordrush_row_events",
		MinReconnect:  10 * time.Second,
		MaxReconnect:  time.Minute,
		PingInterval:  90 * time.Second,
	}
}

// PGListenSource consumes row-change notifications straight from Postgres
// LISTEN/NOTIFY. The authority NOTIFYs the envelope JSON on every row write;
// delivery is at-least-once from the engine's perspective because the
// connection can drop and resubscribe mid-stream.
type PGListenSource struct {
	roomID   uuid.UUID
	listener *pq.Listener
	cfg      PGListenConfig
}

// NewPGListenSource opens a LISTEN connection on the configured channel.
func NewPGListenSource(roomID uuid.UUID, cfg PGListenConfig) (*PGListenSource, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnect,
		cfg.MaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("pg listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Str("room_id", roomID.String()).
		Msg("listening for row notifications")

	return &PGListenSource{
		roomID:   roomID,
		listener: l,
		cfg:      cfg,
	}, nil
}

// Run implements Source.
func (s *PGListenSource) Run(ctx context.Context, events chan<- *Envelope) error {
	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("room_id", s.roomID.String()).Msg("pg listen source shutting down")
			return nil

		case n := <-s.listener.Notify:
			if n == nil {
				// nil notification signals a reconnect; the row feed may have
				// gaps but the turn_seq merge absorbs whatever arrives next.
				log.Warn().Msg("pg listener reconnected, notifications may have been missed")
				continue
			}
			env, err := decodeEnvelope([]byte(n.Extra))
			if err != nil {
				log.Warn().Err(err).Msg("dropping malformed notification payload")
				continue
			}
			// The channel is shared by all rooms; filter to ours here so the
			// bus only ever sees in-scope envelopes.
			if env.RoomID != s.roomID.String() {
				continue
			}
			select {
			case events <- env:
			case <-ctx.Done():
				return nil
			}

		case <-pingTicker.C:
			if err := s.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("pg listener ping failed")
			}
		}
	}
}

// Close implements Source.
func (s *PGListenSource) Close() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
