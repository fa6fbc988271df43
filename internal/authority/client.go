package authority

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/wordrush/internal/game"
)

// Client is the command surface of the Authority Service. The authority owns
// the canonical game and player rows and executes all turn transitions
// atomically (compare-and-swap on turn_seq); the engine only issues commands
// and mirrors the results.
type Client interface {
	// GetServerTime returns the authority's current wall-clock time. Used by
	// the clock synchronizer only.
	GetServerTime(ctx context.Context) (time.Time, error)

	// GetRoomState fetches the current game row and roster for a room.
	GetRoomState(ctx context.Context, roomID uuid.UUID) (*RoomState, error)

	// StartGame transitions a waiting game to playing, selecting the first
	// player and challenge syllable.
	StartGame(ctx context.Context, roomID uuid.UUID) (*game.Game, error)

	// SubmitWord submits a candidate word for the given turn. A rejection
	// (word invalid, already used) comes back as Accepted=false with a
	// reason, not as an error. Racing against another transition for the
	// same turn_seq yields a benign error.
	SubmitWord(ctx context.Context, req SubmitWordRequest) (*SubmitWordResult, error)

	// HandleTimeout applies the timeout transition for the current player.
	// Losing the race to another client's dispatcher yields a benign error.
	HandleTimeout(ctx context.Context, roomID, playerID uuid.UUID) (*TimeoutResult, error)
}

// RoomState is the authoritative view of one room.
type RoomState struct {
	Game    *game.Game    `json:"game"`
	Players []game.Player `json:"players"`
}

// SubmitWordRequest carries one word submission.
type SubmitWordRequest struct {
	RoomID   uuid.UUID `json:"room_id"`
	PlayerID uuid.UUID `json:"player_id"`
	TurnSeq  int64     `json:"turn_seq"`
	Word     string    `json:"word"`
}

// SubmitWordResult is the authoritative accept/reject decision.
type SubmitWordResult struct {
	Accepted bool                 `json:"accepted"`
	Reason   string               `json:"reason,omitempty"`
	NextTurn *game.TurnDescriptor `json:"next_turn,omitempty"`
}

// TimeoutResult describes the outcome of a timeout transition.
type TimeoutResult struct {
	Success          bool                 `json:"success"`
	LivesRemaining   int                  `json:"lives_remaining"`
	PlayerEliminated bool                 `json:"player_eliminated"`
	GameEnded        bool                 `json:"game_ended"`
	NextTurn         *game.TurnDescriptor `json:"next_turn,omitempty"`
}

// Rejection reasons returned in SubmitWordResult.Reason.
const (
	ReasonMissingSyllable = "missing_syllable"
	ReasonAlreadyUsed     = "already_used"
	ReasonNotRecognized   = "not_recognized"
)
