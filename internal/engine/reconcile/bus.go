package reconcile

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcdev12/wordrush/internal/engine/turnstate"
	"github.com/mcdev12/wordrush/internal/game"
	"github.com/rs/zerolog/log"
)

// Source delivers change-notification envelopes for one room into the bus's
// channel. Implementations own their transport (JetStream, Postgres
// LISTEN/NOTIFY, WebSocket, core NATS hints) and must stop consuming when
// the context is cancelled so a left room does not leak subscriptions.
type Source interface {
	// Run consumes notifications and pushes them into events until ctx is
	// cancelled. Returning an error means the source died unrecoverably.
	Run(ctx context.Context, events chan<- *Envelope) error
	// Close releases the underlying transport resources.
	Close() error
}

// Bus funnels every authoritative-origin signal through one mutation entry
// point into the turn state store. Centralizing the apply step keeps the
// monotonic turn_seq merge in a single place instead of scattered across
// subscription callbacks.
type Bus struct {
	roomID  uuid.UUID
	store   *turnstate.Store
	sources []Source
	events  chan *Envelope
}

// NewBus creates a bus for one room feeding the given store.
func NewBus(roomID uuid.UUID, store *turnstate.Store, sources ...Source) *Bus {
	return &Bus{
		roomID:  roomID,
		store:   store,
		sources: sources,
		events:  make(chan *Envelope, 256),
	}
}

// Run starts all sources and applies incoming events until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) error {
	for _, src := range b.sources {
		go func(s Source) {
			if err := s.Run(ctx, b.events); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("room_id", b.roomID.String()).Msg("reconcile source failed")
			}
		}(src)
	}

	for {
		select {
		case <-ctx.Done():
			b.Close()
			log.Debug().Str("room_id", b.roomID.String()).Msg("reconciliation bus stopped")
			return nil
		case env := <-b.events:
			b.apply(env)
		}
	}
}

// Close releases every source's transport resources.
func (b *Bus) Close() {
	for _, src := range b.sources {
		if err := src.Close(); err != nil {
			log.Error().Err(err).Str("room_id", b.roomID.String()).Msg("failed to close reconcile source")
		}
	}
}

// Inject pushes an envelope into the bus as if a source had delivered it.
func (b *Bus) Inject(env *Envelope) {
	select {
	case b.events <- env:
	default:
		log.Warn().Str("room_id", b.roomID.String()).Msg("event buffer full, dropping injected envelope")
	}
}

// apply is the single mutation entry point into the store.
func (b *Bus) apply(env *Envelope) {
	if env == nil {
		return
	}
	if env.RoomID != "" && env.RoomID != b.roomID.String() {
		// Subscriptions are scoped per room; anything else is a routing bug.
		log.Warn().
			Str("room_id", env.RoomID).
			Str("expected", b.roomID.String()).
			Msg("dropping envelope for foreign room")
		return
	}

	payload, err := ParsePayload(env)
	if err != nil {
		log.Error().
			Err(err).
			Str("event_id", env.ID).
			Str("type", string(env.Type)).
			Msg("failed to parse event payload")
		return
	}

	switch p := payload.(type) {
	case *game.Game:
		// Row replacement is last-writer-wins keyed by turn_seq; the store
		// drops anything older than what it already holds.
		b.store.ApplyAuthoritative(p)
		log.Debug().
			Str("event_id", env.ID).
			Int64("turn_seq", p.TurnSeq).
			Msg("applied authoritative game row")

	case game.Player:
		// Player rows carry no turn state: keyed by entity id, always applied.
		b.store.ApplyPlayer(p)

	case []game.Player:
		b.store.ApplyPlayers(p)

	case game.TurnDescriptor:
		// Best-effort hint from the client that just advanced the turn.
		b.store.ApplyShadow(p)
		log.Debug().
			Str("event_id", env.ID).
			Int64("turn_seq", p.TurnSeq).
			Msg("applied turn-advanced hint")

	default:
		log.Debug().Str("type", string(env.Type)).Msg("skipping unknown event type")
	}
}
