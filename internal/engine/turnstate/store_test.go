package turnstate

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/wordrush/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gameRow(id uuid.UUID, seq int64, syllable string) *game.Game {
	end := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute)
	return &game.Game{
		ID:               id,
		RoomID:           uuid.New(),
		Status:           game.StatusPlaying,
		CurrentSyllable:  syllable,
		TimerDurationSec: 15,
		TimerEndTime:     &end,
		TurnSeq:          seq,
	}
}

func TestApplyAuthoritativeMonotonicMerge(t *testing.T) {
	s := NewStore()
	id := uuid.New()

	s.ApplyAuthoritative(gameRow(id, 5, "lu"))
	s.ApplyAuthoritative(gameRow(id, 3, "ka")) // late delivery of an older row
	s.ApplyAuthoritative(gameRow(id, 7, "to"))

	st := s.AuthoritativeState()
	require.NotNil(t, st)
	assert.Equal(t, int64(7), st.TurnSeq)
	assert.Equal(t, "to", st.CurrentSyllable)
}

func TestApplyAuthoritativeEqualSeqRewrites(t *testing.T) {
	s := NewStore()
	id := uuid.New()

	s.ApplyAuthoritative(gameRow(id, 5, "lu"))
	redelivered := gameRow(id, 5, "lu")
	redelivered.UsedWords = []string{"lufte"}
	s.ApplyAuthoritative(redelivered)

	st := s.AuthoritativeState()
	require.NotNil(t, st)
	assert.Equal(t, []string{"lufte"}, st.UsedWords, "equal turn_seq is a redelivery, not a regression")
}

func TestApplyAuthoritativeNewGameReplacesOld(t *testing.T) {
	s := NewStore()
	s.ApplyAuthoritative(gameRow(uuid.New(), 42, "lu"))

	// A fresh game row (new id) starts its own sequence.
	fresh := gameRow(uuid.New(), 1, "ka")
	s.ApplyAuthoritative(fresh)

	st := s.AuthoritativeState()
	require.NotNil(t, st)
	assert.Equal(t, fresh.ID, st.ID)
	assert.Equal(t, int64(1), st.TurnSeq)
}

func TestShadowOverlayAndClear(t *testing.T) {
	s := NewStore()
	id := uuid.New()
	playerID := uuid.New()
	s.ApplyAuthoritative(gameRow(id, 5, "lu"))

	end := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	s.ApplyShadow(game.TurnDescriptor{
		TurnSeq:          6,
		CurrentPlayerID:  playerID,
		CurrentSyllable:  "ka",
		TimerDurationSec: 15,
		TimerEndTime:     end,
	})

	eff := s.EffectiveState()
	require.NotNil(t, eff)
	assert.Equal(t, int64(6), eff.TurnSeq)
	assert.Equal(t, "ka", eff.CurrentSyllable)
	assert.Equal(t, playerID, eff.CurrentPlayerID)
	require.NotNil(t, eff.TimerEndTime)
	assert.True(t, eff.TimerEndTime.Equal(end))

	// The authoritative row still lags behind.
	assert.Equal(t, int64(5), s.AuthoritativeState().TurnSeq)

	// Once the row catches up, the shadow is superseded.
	s.ApplyAuthoritative(gameRow(id, 6, "ka"))
	assert.Nil(t, s.Shadow())
	assert.Equal(t, int64(6), s.EffectiveState().TurnSeq)
}

func TestShadowRejectedWhenStale(t *testing.T) {
	s := NewStore()
	id := uuid.New()
	s.ApplyAuthoritative(gameRow(id, 5, "lu"))

	s.ApplyShadow(game.TurnDescriptor{TurnSeq: 5, CurrentSyllable: "ka"})
	assert.Nil(t, s.Shadow(), "shadow at the authoritative seq carries no new information")

	s.ApplyShadow(game.TurnDescriptor{TurnSeq: 7, CurrentSyllable: "to"})
	s.ApplyShadow(game.TurnDescriptor{TurnSeq: 6, CurrentSyllable: "ka"})
	require.NotNil(t, s.Shadow())
	assert.Equal(t, int64(7), s.Shadow().TurnSeq, "older hint must not replace a newer shadow")
}

func TestAuthoritativeRowBelowShadowKeepsOverlay(t *testing.T) {
	s := NewStore()
	id := uuid.New()
	s.ApplyAuthoritative(gameRow(id, 5, "lu"))
	s.ApplyShadow(game.TurnDescriptor{TurnSeq: 8, CurrentSyllable: "to"})

	// A row for turn 6 arrives: newer than what was held, still behind the
	// shadow. It replaces the row but the overlay stays visible.
	s.ApplyAuthoritative(gameRow(id, 6, "ka"))

	require.NotNil(t, s.Shadow())
	assert.Equal(t, int64(8), s.EffectiveState().TurnSeq)
	assert.Equal(t, int64(6), s.AuthoritativeState().TurnSeq)
}

func TestApplyPlayerIsEntityKeyed(t *testing.T) {
	s := NewStore()
	pid := uuid.New()

	s.ApplyPlayer(game.Player{ID: pid, Name: "Ada", Lives: 3, IsAlive: true})
	s.ApplyPlayer(game.Player{ID: pid, Name: "Ada", Lives: 2, IsAlive: true})

	p, ok := s.PlayerByID(pid)
	require.True(t, ok)
	assert.Equal(t, 2, p.Lives)
	assert.Len(t, s.Players(), 1)
}

func TestApplyPlayersReplacesRoster(t *testing.T) {
	s := NewStore()
	s.ApplyPlayer(game.Player{ID: uuid.New(), Name: "Ghost"})

	roster := []game.Player{
		{ID: uuid.New(), Name: "Ada"},
		{ID: uuid.New(), Name: "Bruno"},
	}
	s.ApplyPlayers(roster)

	assert.Len(t, s.Players(), 2)
}

func TestSubscribeCoalescesAndFansOut(t *testing.T) {
	s := NewStore()
	a := s.Subscribe()
	b := s.Subscribe()

	id := uuid.New()
	s.ApplyAuthoritative(gameRow(id, 1, "lu"))
	s.ApplyAuthoritative(gameRow(id, 2, "ka"))

	// Both subscribers see a pending signal despite two rapid changes.
	select {
	case <-a:
	default:
		t.Fatal("subscriber a missed the change signal")
	}
	select {
	case <-b:
	default:
		t.Fatal("subscriber b missed the change signal")
	}
}

func TestEffectiveStateNilWhenEmpty(t *testing.T) {
	s := NewStore()
	assert.Nil(t, s.EffectiveState())

	// A shadow alone produces no effective state either.
	s.ApplyShadow(game.TurnDescriptor{TurnSeq: 1})
	assert.Nil(t, s.EffectiveState())
}

func TestReset(t *testing.T) {
	s := NewStore()
	s.ApplyAuthoritative(gameRow(uuid.New(), 3, "lu"))
	s.ApplyPlayer(game.Player{ID: uuid.New()})
	s.ApplyShadow(game.TurnDescriptor{TurnSeq: 4})

	s.Reset()

	assert.Nil(t, s.EffectiveState())
	assert.Nil(t, s.Shadow())
	assert.Empty(t, s.Players())
}
