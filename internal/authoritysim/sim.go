package authoritysim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/wordrush/internal/authority"
	"github.com/mcdev12/wordrush/internal/game"
	"github.com/rs/zerolog/log"
)

// Sim is an in-memory Authority Service: it owns canonical game and player
// rows and executes turn transitions atomically under one lock, with
// compare-and-swap semantics on turn_seq. It exists for local development
// and integration tests; it is not the production authority.
type Sim struct {
	clock     clockwork.Clock
	publisher Publisher // may be nil

	mu    sync.Mutex
	rooms map[uuid.UUID]*room
}

type room struct {
	game     *game.Game
	players  []game.Player // sorted by TurnOrder
	rotation *SyllableRotation
}

// PlayerSpec describes one participant joining a simulated room.
type PlayerSpec struct {
	ParticipantID string
	Name          string
}

const (
	startingLives   = 3
	minWordLength   = 2
	defaultTurnSecs = 15
)

// NewSim creates a simulator. publisher may be nil when no change feed is
// needed (direct-wired tests).
func NewSim(clock clockwork.Clock, publisher Publisher) *Sim {
	return &Sim{
		clock:     clock,
		publisher: publisher,
		rooms:     make(map[uuid.UUID]*room),
	}
}

// CreateRoom sets up a waiting game for the given participants and returns
// the created rows.
func (s *Sim) CreateRoom(roomID uuid.UUID, specs []PlayerSpec, turnDurationSec int) (*authority.RoomState, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("room needs at least one player")
	}
	if turnDurationSec <= 0 {
		turnDurationSec = defaultTurnSecs
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[roomID]; exists {
		return nil, fmt.Errorf("room %s already exists", roomID)
	}

	players := make([]game.Player, len(specs))
	for i, spec := range specs {
		players[i] = game.Player{
			ID:            uuid.New(),
			RoomID:        roomID,
			ParticipantID: spec.ParticipantID,
			Name:          spec.Name,
			Lives:         startingLives,
			IsAlive:       true,
			TurnOrder:     i,
		}
	}

	rng := rand.New(rand.NewSource(s.clock.Now().UnixNano()))
	r := &room{
		game: &game.Game{
			ID:               uuid.New(),
			RoomID:           roomID,
			Status:           game.StatusWaiting,
			TimerDurationSec: turnDurationSec,
			TurnSeq:          0,
			UsedWords:        []string{},
		},
		players:  players,
		rotation: NewSyllableRotation(DefaultSyllables, rng),
	}
	s.rooms[roomID] = r

	log.Info().
		Str("room_id", roomID.String()).
		Int("players", len(players)).
		Msg("simulated room created")
	return &authority.RoomState{Game: r.game.Clone(), Players: append([]game.Player(nil), players...)}, nil
}

// GetServerTime implements authority.Client.
func (s *Sim) GetServerTime(ctx context.Context) (time.Time, error) {
	return s.clock.Now(), nil
}

// GetRoomState implements authority.Client.
func (s *Sim) GetRoomState(ctx context.Context, roomID uuid.UUID) (*authority.RoomState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.roomLocked(roomID)
	if err != nil {
		return nil, err
	}
	return &authority.RoomState{
		Game:    r.game.Clone(),
		Players: append([]game.Player(nil), r.players...),
	}, nil
}

// StartGame implements authority.Client.
func (s *Sim) StartGame(ctx context.Context, roomID uuid.UUID) (*game.Game, error) {
	s.mu.Lock()
	r, err := s.roomLocked(roomID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if r.game.Status != game.StatusWaiting {
		s.mu.Unlock()
		return nil, authority.ErrAlreadyAdvanced
	}

	first, ok := r.nextAliveAfter(-1)
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("no alive players to start with")
	}

	end := s.clock.Now().Add(time.Duration(r.game.TimerDurationSec) * time.Second)
	r.game.Status = game.StatusPlaying
	r.game.CurrentPlayerID = first.ID
	r.game.CurrentSyllable = r.rotation.Next()
	r.game.TimerEndTime = &end
	r.game.TurnSeq++
	r.game.RoundNumber = 1

	snapshot := r.game.Clone()
	s.mu.Unlock()

	s.publishGame(ctx, snapshot)
	log.Info().
		Str("room_id", roomID.String()).
		Str("syllable", snapshot.CurrentSyllable).
		Int64("turn_seq", snapshot.TurnSeq).
		Msg("game started")
	return snapshot, nil
}

// SubmitWord implements authority.Client. The duplicate check runs first and
// is idempotent, so a double-click racing itself resolves the same way in
// either order.
func (s *Sim) SubmitWord(ctx context.Context, req authority.SubmitWordRequest) (*authority.SubmitWordResult, error) {
	s.mu.Lock()
	r, err := s.roomLocked(req.RoomID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if r.game.Status != game.StatusPlaying {
		s.mu.Unlock()
		return nil, authority.ErrAlreadyAdvanced
	}
	if req.TurnSeq != r.game.TurnSeq {
		s.mu.Unlock()
		return nil, authority.ErrStaleTurn
	}
	if req.PlayerID != r.game.CurrentPlayerID {
		s.mu.Unlock()
		return nil, authority.ErrNotCurrentTurn
	}

	word := game.NormalizeWord(req.Word)
	if r.game.HasUsedWord(word) {
		s.mu.Unlock()
		return &authority.SubmitWordResult{Accepted: false, Reason: authority.ReasonAlreadyUsed}, nil
	}
	if !game.ContainsSyllable(word, r.game.CurrentSyllable) {
		s.mu.Unlock()
		return &authority.SubmitWordResult{Accepted: false, Reason: authority.ReasonMissingSyllable}, nil
	}
	if len(word) < minWordLength {
		s.mu.Unlock()
		return &authority.SubmitWordResult{Accepted: false, Reason: authority.ReasonNotRecognized}, nil
	}

	r.game.UsedWords = append(r.game.UsedWords, word)
	next := r.advanceTurn(s.clock.Now(), true)
	snapshot := r.game.Clone()
	s.mu.Unlock()

	s.publishGame(ctx, snapshot)
	log.Info().
		Str("room_id", req.RoomID.String()).
		Str("word", word).
		Int64("turn_seq", snapshot.TurnSeq).
		Msg("word accepted")
	return &authority.SubmitWordResult{Accepted: true, NextTurn: next}, nil
}

// HandleTimeout implements authority.Client.
func (s *Sim) HandleTimeout(ctx context.Context, roomID, playerID uuid.UUID) (*authority.TimeoutResult, error) {
	s.mu.Lock()
	r, err := s.roomLocked(roomID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if r.game.Status != game.StatusPlaying {
		s.mu.Unlock()
		return nil, authority.ErrAlreadyAdvanced
	}
	if playerID != r.game.CurrentPlayerID {
		s.mu.Unlock()
		return nil, authority.ErrNotCurrentTurn
	}

	idx := r.playerIndex(playerID)
	if idx < 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("player %s not in room", playerID)
	}

	p := &r.players[idx]
	if p.Lives > 0 {
		p.Lives--
	}
	eliminated := false
	if p.Lives == 0 && p.IsAlive {
		p.IsAlive = false
		eliminated = true
	}
	playerRow := *p

	result := &authority.TimeoutResult{
		Success:          true,
		LivesRemaining:   p.Lives,
		PlayerEliminated: eliminated,
	}

	if r.gameOver() {
		r.game.Status = game.StatusFinished
		r.game.TimerEndTime = nil
		r.game.TurnSeq++
		result.GameEnded = true
	} else {
		// The syllable survives a timeout; only an accepted word rotates it.
		result.NextTurn = r.advanceTurn(s.clock.Now(), false)
	}
	snapshot := r.game.Clone()
	s.mu.Unlock()

	s.publishPlayer(ctx, playerRow)
	s.publishGame(ctx, snapshot)
	log.Info().
		Str("room_id", roomID.String()).
		Str("player_id", playerID.String()).
		Int("lives_remaining", result.LivesRemaining).
		Bool("eliminated", eliminated).
		Bool("game_ended", result.GameEnded).
		Msg("timeout applied")
	return result, nil
}

// roomLocked fetches a room; the caller holds s.mu.
func (s *Sim) roomLocked(roomID uuid.UUID) (*room, error) {
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("unknown room %s", roomID)
	}
	return r, nil
}

// advanceTurn moves play to the next alive player, bumping turn_seq by
// exactly one, and returns the new turn's descriptor. The caller holds s.mu.
func (r *room) advanceTurn(now time.Time, rotateSyllable bool) *game.TurnDescriptor {
	cur := r.playerIndex(r.game.CurrentPlayerID)
	next, _ := r.nextAliveAfter(cur)

	if next.TurnOrder <= r.players[cur].TurnOrder {
		r.game.RoundNumber++
	}
	if rotateSyllable {
		r.game.CurrentSyllable = r.rotation.Next()
	}

	end := now.Add(time.Duration(r.game.TimerDurationSec) * time.Second)
	r.game.CurrentPlayerID = next.ID
	r.game.TimerEndTime = &end
	r.game.TurnSeq++

	return &game.TurnDescriptor{
		TurnSeq:          r.game.TurnSeq,
		CurrentPlayerID:  next.ID,
		CurrentSyllable:  r.game.CurrentSyllable,
		TimerDurationSec: r.game.TimerDurationSec,
		TimerEndTime:     end,
	}
}

// gameOver reports whether the end condition holds: everyone is out, or a
// multiplayer game is down to its last survivor. A single-participant
// practice game runs until that player is out of lives.
func (r *room) gameOver() bool {
	alive := 0
	for _, p := range r.players {
		if p.IsAlive {
			alive++
		}
	}
	if alive == 0 {
		return true
	}
	return len(r.players) > 1 && alive <= 1
}

// playerIndex finds a player's slot by id, -1 when absent.
func (r *room) playerIndex(id uuid.UUID) int {
	for i, p := range r.players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// nextAliveAfter returns the next alive player after slot idx in turn order,
// wrapping around. idx -1 scans from the top.
func (r *room) nextAliveAfter(idx int) (game.Player, bool) {
	n := len(r.players)
	for step := 1; step <= n; step++ {
		p := r.players[(idx+step+n)%n]
		if p.IsAlive {
			return p, true
		}
	}
	return game.Player{}, false
}

func (s *Sim) publishGame(ctx context.Context, g *game.Game) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishGame(ctx, g); err != nil {
		log.Warn().Err(err).Str("room_id", g.RoomID.String()).Msg("failed to publish game row")
	}
}

func (s *Sim) publishPlayer(ctx context.Context, p game.Player) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPlayer(ctx, p); err != nil {
		log.Warn().Err(err).Str("room_id", p.RoomID.String()).Msg("failed to publish player row")
	}
}
