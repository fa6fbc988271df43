package turnstate

import (
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/wordrush/internal/game"
	"github.com/rs/zerolog/log"
)

// Store caches the last-known authoritative game row plus an optional shadow
// snapshot. turn_seq is the single tie-break key: no apply path ever lets a
// lower-or-equal sequence overwrite turn state, so out-of-order delivery of
// rows or hints cannot regress the perceived turn.
//
// The store is owned by one client session; the mutex only serializes the
// engine's own goroutines (bus, timer, dispatcher, UI reads).
type Store struct {
	mu      sync.RWMutex
	game    *game.Game
	players map[uuid.UUID]game.Player
	shadow  *game.TurnDescriptor

	subMu sync.Mutex
	subs  []chan struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		players: make(map[uuid.UUID]game.Player),
	}
}

// Subscribe returns a coalesced change-signal channel. Each subscriber gets
// its own channel; a signal pending on one does not starve the others.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// ApplyAuthoritative merges an incoming authoritative game row:
// last-writer-wins keyed by turn_seq. Once the authoritative row has caught
// up with the shadow (turn_seq >= shadow.turn_seq) the shadow is cleared and
// the row rules the effective state again.
func (s *Store) ApplyAuthoritative(g *game.Game) {
	if g == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.game != nil && s.game.ID == g.ID && g.TurnSeq < s.game.TurnSeq {
		log.Debug().
			Int64("incoming_seq", g.TurnSeq).
			Int64("held_seq", s.game.TurnSeq).
			Msg("dropping stale authoritative row")
		return
	}

	s.game = g.Clone()

	if s.shadow != nil && g.TurnSeq >= s.shadow.TurnSeq {
		log.Debug().
			Int64("turn_seq", g.TurnSeq).
			Msg("authoritative row caught up, clearing shadow")
		s.shadow = nil
	}
	s.notify()
}

// ApplyShadow accepts an optimistic next-turn snapshot. It is ignored unless
// strictly newer than both the held shadow and the authoritative row.
func (s *Store) ApplyShadow(td game.TurnDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shadow != nil && td.TurnSeq <= s.shadow.TurnSeq {
		return
	}
	if s.game != nil && td.TurnSeq <= s.game.TurnSeq {
		return
	}
	s.shadow = &td
	s.notify()
}

// ApplyPlayer upserts one player row. Player rows carry no turn state, so
// they are keyed by entity id and always applied.
func (s *Store) ApplyPlayer(p game.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[p.ID] = p
	s.notify()
}

// ApplyPlayers replaces the roster wholesale (initial fetch, resync).
func (s *Store) ApplyPlayers(players []game.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players = make(map[uuid.UUID]game.Player, len(players))
	for _, p := range players {
		s.players[p.ID] = p
	}
	s.notify()
}

// EffectiveState returns the authoritative row with the shadow overlaid when
// one is held (shadow fields win), or nil when nothing is cached yet.
func (s *Store) EffectiveState() *game.Game {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.game == nil {
		return nil
	}
	eff := s.game.Clone()
	if s.shadow != nil {
		end := s.shadow.TimerEndTime
		eff.TurnSeq = s.shadow.TurnSeq
		eff.CurrentPlayerID = s.shadow.CurrentPlayerID
		eff.CurrentSyllable = s.shadow.CurrentSyllable
		eff.TimerDurationSec = s.shadow.TimerDurationSec
		eff.TimerEndTime = &end
	}
	return eff
}

// AuthoritativeState returns the raw authoritative row, shadow excluded.
func (s *Store) AuthoritativeState() *game.Game {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.game.Clone()
}

// Shadow returns the held shadow snapshot, if any.
func (s *Store) Shadow() *game.TurnDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.shadow == nil {
		return nil
	}
	td := *s.shadow
	return &td
}

// Players returns the cached roster.
func (s *Store) Players() []game.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]game.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	return out
}

// PlayerByID looks up one player row.
func (s *Store) PlayerByID(id uuid.UUID) (game.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	return p, ok
}

// Reset drops all cached state. Used when leaving a room.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.game = nil
	s.shadow = nil
	s.players = make(map[uuid.UUID]game.Player)
	s.notify()
}
