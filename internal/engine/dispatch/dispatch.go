package dispatch

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/wordrush/internal/authority"
	"github.com/mcdev12/wordrush/internal/engine/turnstate"
	"github.com/mcdev12/wordrush/internal/engine/turntimer"
	"github.com/mcdev12/wordrush/internal/game"
	"github.com/rs/zerolog/log"
)

// TimeoutCommander is the slice of the authority client the dispatcher uses.
type TimeoutCommander interface {
	HandleTimeout(ctx context.Context, roomID, playerID uuid.UUID) (*authority.TimeoutResult, error)
}

// HintPublisher broadcasts the next turn to the other clients in the room.
type HintPublisher interface {
	PublishTurnAdvanced(ctx context.Context, td game.TurnDescriptor) error
}

// Dispatcher issues the authoritative timeout command when the turn timer
// expires. At most one command is issued per turn_seq from this client;
// losing the race to another client's dispatcher is an expected outcome.
type Dispatcher struct {
	roomID   uuid.UUID
	identity game.Identity
	store    *turnstate.Store
	client   TimeoutCommander
	hints    HintPublisher // may be nil

	// onFailure surfaces non-benign command failures upward as a
	// recoverable condition. Optional.
	onFailure func(error)

	mu       sync.Mutex
	inFlight bool
	lastSeq  int64
}

// SetFailureHandler installs a callback for non-benign command failures.
func (d *Dispatcher) SetFailureHandler(fn func(error)) {
	d.onFailure = fn
}

// New creates a dispatcher for one room. identity is the local participant;
// only the player who ran out of time drives the transition.
func New(roomID uuid.UUID, identity game.Identity, store *turnstate.Store, client TimeoutCommander, hints HintPublisher) *Dispatcher {
	return &Dispatcher{
		roomID:   roomID,
		identity: identity,
		store:    store,
		client:   client,
		hints:    hints,
	}
}

// HandleExpiry reacts to one timer expiration. All guard failures return
// silently: they mean this client simply is not the one that should (or
// needs to) drive the transition.
func (d *Dispatcher) HandleExpiry(ctx context.Context, exp turntimer.Expiry) {
	st := d.store.EffectiveState()
	if st == nil || st.Status != game.StatusPlaying {
		return
	}

	current, ok := d.store.PlayerByID(st.CurrentPlayerID)
	if !ok {
		log.Debug().
			Str("player_id", st.CurrentPlayerID.String()).
			Msg("current player not in roster, skipping timeout")
		return
	}

	// Spectating clients stay quiet; the timed-out player's own client
	// issues the command.
	if d.identity != nil && current.ParticipantID != d.identity.ParticipantKey() {
		return
	}

	d.mu.Lock()
	if d.inFlight || exp.TurnSeq <= d.lastSeq {
		d.mu.Unlock()
		log.Debug().
			Int64("turn_seq", exp.TurnSeq).
			Int64("last_handled", d.lastSeq).
			Msg("timeout already handled or in flight")
		return
	}
	d.inFlight = true
	d.lastSeq = exp.TurnSeq
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.inFlight = false
		d.mu.Unlock()
	}()

	log.Info().
		Str("room_id", d.roomID.String()).
		Str("player_id", current.ID.String()).
		Int64("turn_seq", exp.TurnSeq).
		Msg("dispatching timeout command")

	result, err := d.client.HandleTimeout(ctx, d.roomID, current.ID)
	if err != nil {
		if authority.IsBenign(err) {
			// Another client's dispatcher won the race; their transition is
			// the one we wanted anyway.
			log.Debug().
				Err(err).
				Str("room_id", d.roomID.String()).
				Int64("turn_seq", exp.TurnSeq).
				Msg("timeout lost benign race")
			return
		}
		log.Error().
			Err(err).
			Str("room_id", d.roomID.String()).
			Str("player_id", current.ID.String()).
			Int64("turn_seq", exp.TurnSeq).
			Msg("timeout command failed")
		if d.onFailure != nil {
			d.onFailure(err)
		}
		return
	}

	if result.NextTurn != nil {
		// Prime the shadow for instant local feedback and unlock the other
		// clients' input gates without waiting for the row notification.
		d.store.ApplyShadow(*result.NextTurn)
		if !result.GameEnded && d.hints != nil {
			if err := d.hints.PublishTurnAdvanced(ctx, *result.NextTurn); err != nil {
				log.Warn().Err(err).Msg("failed to publish timeout hint")
			}
		}
	}

	log.Info().
		Str("room_id", d.roomID.String()).
		Int("lives_remaining", result.LivesRemaining).
		Bool("eliminated", result.PlayerEliminated).
		Bool("game_ended", result.GameEnded).
		Msg("timeout applied")
}
