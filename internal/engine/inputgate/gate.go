package inputgate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/wordrush/internal/authority"
	"github.com/mcdev12/wordrush/internal/engine/turnstate"
	"github.com/mcdev12/wordrush/internal/game"
	"github.com/rs/zerolog/log"
)

// WordCommander is the slice of the authority client the gate uses.
type WordCommander interface {
	SubmitWord(ctx context.Context, req authority.SubmitWordRequest) (*authority.SubmitWordResult, error)
}

// HintPublisher broadcasts the next turn to the other clients in the room.
type HintPublisher interface {
	PublishTurnAdvanced(ctx context.Context, td game.TurnDescriptor) error
}

// ErrNotPermitted is returned by Submit when the gate is closed: it is not
// this participant's turn, the turn window has passed, or a submission is
// already in flight.
var ErrNotPermitted = errors.New("submission not currently permitted")

// DefaultGrace is the tolerance added after the nominal deadline so a
// legitimate last-moment submission is not rejected purely due to clock or
// network jitter.
const DefaultGrace = 400 * time.Millisecond

// Gate decides whether the local participant may submit a word right now and
// relays accepted submissions to the authority. The authoritative
// accept/reject decision always remains with the authority; the gate's local
// pre-checks exist only for instant feedback.
type Gate struct {
	roomID   uuid.UUID
	identity game.Identity
	store    *turnstate.Store
	client   WordCommander
	hints    HintPublisher // may be nil
	now      func() time.Time
	grace    time.Duration

	mu       sync.Mutex
	inFlight bool
}

// New creates a gate for one room.
func New(roomID uuid.UUID, identity game.Identity, store *turnstate.Store, client WordCommander, hints HintPublisher, now func() time.Time) *Gate {
	return &Gate{
		roomID:   roomID,
		identity: identity,
		store:    store,
		client:   client,
		hints:    hints,
		now:      now,
		grace:    DefaultGrace,
	}
}

// SetGrace overrides the post-deadline tolerance.
func (g *Gate) SetGrace(d time.Duration) { g.grace = d }

// CanSubmit reports whether a submission is currently permitted.
func (g *Gate) CanSubmit() bool {
	return g.CanSubmitAt(g.now())
}

// CanSubmitAt evaluates the gate at a given authority-time instant.
func (g *Gate) CanSubmitAt(now time.Time) bool {
	g.mu.Lock()
	inFlight := g.inFlight
	g.mu.Unlock()
	if inFlight {
		return false
	}

	st := g.store.EffectiveState()
	if st == nil || st.Status != game.StatusPlaying || st.TimerEndTime == nil {
		return false
	}

	current, ok := g.store.PlayerByID(st.CurrentPlayerID)
	if !ok || !current.IsAlive {
		return false
	}
	if g.identity == nil || current.ParticipantID != g.identity.ParticipantKey() {
		return false
	}

	// The deadline is computed before the player is unlocked, so the window
	// opens at turn start, not at row arrival; it closes grace after the
	// nominal deadline.
	start := st.TurnStart()
	end := st.TimerEndTime.Add(g.grace)
	if now.Before(start) || now.After(end) {
		return false
	}
	return true
}

// Submit runs the local pre-checks and relays the word to the authority.
// A false Accepted with a reason means the word was rejected (locally or
// authoritatively); the caller keeps the typed text so the player can
// correct and resubmit. ErrNotPermitted means the gate is closed.
func (g *Gate) Submit(ctx context.Context, word string) (*authority.SubmitWordResult, error) {
	if !g.CanSubmit() {
		return nil, ErrNotPermitted
	}

	st := g.store.EffectiveState()
	normalized := game.NormalizeWord(word)

	// Cheap local pre-checks for instant feedback, duplicate first to match
	// the authoritative ordering. The authority re-checks everything
	// regardless.
	if st.HasUsedWord(normalized) {
		return &authority.SubmitWordResult{
			Accepted: false,
			Reason:   authority.ReasonAlreadyUsed,
		}, nil
	}
	if !game.ContainsSyllable(normalized, st.CurrentSyllable) {
		return &authority.SubmitWordResult{
			Accepted: false,
			Reason:   authority.ReasonMissingSyllable,
		}, nil
	}

	g.mu.Lock()
	if g.inFlight {
		g.mu.Unlock()
		return nil, ErrNotPermitted
	}
	g.inFlight = true
	g.mu.Unlock()

	// Release the in-flight guard on every path so one failed call can
	// never lock the player out permanently.
	defer func() {
		g.mu.Lock()
		g.inFlight = false
		g.mu.Unlock()
	}()

	result, err := g.client.SubmitWord(ctx, authority.SubmitWordRequest{
		RoomID:   g.roomID,
		PlayerID: st.CurrentPlayerID,
		TurnSeq:  st.TurnSeq,
		Word:     normalized,
	})
	if err != nil {
		if authority.IsBenign(err) {
			// The turn advanced under us (e.g. a double-click raced its own
			// duplicate); treat as a plain rejection.
			log.Debug().Err(err).Int64("turn_seq", st.TurnSeq).Msg("submission lost benign race")
			return &authority.SubmitWordResult{Accepted: false, Reason: authority.CodeStaleTurn}, nil
		}
		log.Error().
			Err(err).
			Str("room_id", g.roomID.String()).
			Int64("turn_seq", st.TurnSeq).
			Str("word", normalized).
			Msg("submit command failed")
		return nil, err
	}

	if result.Accepted && result.NextTurn != nil {
		g.store.ApplyShadow(*result.NextTurn)
		if g.hints != nil {
			if err := g.hints.PublishTurnAdvanced(ctx, *result.NextTurn); err != nil {
				log.Warn().Err(err).Msg("failed to publish submission hint")
			}
		}
	}

	log.Info().
		Str("room_id", g.roomID.String()).
		Int64("turn_seq", st.TurnSeq).
		Bool("accepted", result.Accepted).
		Str("reason", result.Reason).
		Msg("word submission resolved")
	return result, nil
}
