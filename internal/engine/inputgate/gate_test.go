package inputgate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/wordrush/internal/authority"
	"github.com/mcdev12/wordrush/internal/engine/turnstate"
	"github.com/mcdev12/wordrush/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommander struct {
	calls  []authority.SubmitWordRequest
	result *authority.SubmitWordResult
	err    error
}

func (f *fakeCommander) SubmitWord(ctx context.Context, req authority.SubmitWordRequest) (*authority.SubmitWordResult, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeHints struct {
	published []game.TurnDescriptor
}

func (f *fakeHints) PublishTurnAdvanced(ctx context.Context, td game.TurnDescriptor) error {
	f.published = append(f.published, td)
	return nil
}

type fixture struct {
	roomID uuid.UUID
	store  *turnstate.Store
	client *fakeCommander
	hints  *fakeHints
	gate   *Gate
	me     game.Player
	other  game.Player
	start  time.Time
	end    time.Time
	now    time.Time
}

// newFixture seeds a playing room where the local participant holds the turn:
// syllable "lu", 15s window ending at f.end, "lufte" already used.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	roomID := uuid.New()
	identity := game.Guest{GuestID: "guest:me", Name: "Me"}

	me := game.Player{ID: uuid.New(), RoomID: roomID, ParticipantID: "guest:me", Lives: 3, IsAlive: true, TurnOrder: 0}
	other := game.Player{ID: uuid.New(), RoomID: roomID, ParticipantID: "guest:them", Lives: 3, IsAlive: true, TurnOrder: 1}

	end := time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC)
	store := turnstate.NewStore()
	store.ApplyPlayers([]game.Player{me, other})
	store.ApplyAuthoritative(&game.Game{
		ID:               uuid.New(),
		RoomID:           roomID,
		Status:           game.StatusPlaying,
		CurrentPlayerID:  me.ID,
		CurrentSyllable:  "lu",
		TimerDurationSec: 15,
		TimerEndTime:     &end,
		TurnSeq:          5,
		UsedWords:        []string{"lufte"},
	})

	f := &fixture{
		roomID: roomID,
		store:  store,
		client: &fakeCommander{result: &authority.SubmitWordResult{Accepted: true}},
		hints:  &fakeHints{},
		me:     me,
		other:  other,
		start:  end.Add(-15 * time.Second),
		end:    end,
		now:    end.Add(-10 * time.Second), // mid-turn
	}
	f.gate = New(roomID, identity, store, f.client, f.hints, func() time.Time { return f.now })
	return f
}

func TestWindowBoundaries(t *testing.T) {
	f := newFixture(t)
	grace := DefaultGrace

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before turn start", f.start.Add(-time.Millisecond), false},
		{"at turn start", f.start, true},
		{"mid turn", f.start.Add(7 * time.Second), true},
		{"at nominal deadline", f.end, true},
		{"inside grace", f.end.Add(grace - time.Millisecond), true},
		{"at grace boundary", f.end.Add(grace), true},
		{"past grace", f.end.Add(grace + time.Millisecond), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.gate.CanSubmitAt(tt.at))
		})
	}
}

func TestGateClosedForOtherPlayer(t *testing.T) {
	f := newFixture(t)
	st := f.store.AuthoritativeState()
	st.CurrentPlayerID = f.other.ID
	st.TurnSeq = 6
	f.store.ApplyAuthoritative(st)

	assert.False(t, f.gate.CanSubmit())

	_, err := f.gate.Submit(context.Background(), "lufte")
	assert.ErrorIs(t, err, ErrNotPermitted)
	assert.Empty(t, f.client.calls)
}

func TestGateClosedWhenNotPlaying(t *testing.T) {
	f := newFixture(t)
	st := f.store.AuthoritativeState()
	st.Status = game.StatusFinished
	st.TurnSeq = 6
	f.store.ApplyAuthoritative(st)

	assert.False(t, f.gate.CanSubmit())
}

func TestGateClosedForEliminatedPlayer(t *testing.T) {
	f := newFixture(t)
	f.me.IsAlive = false
	f.me.Lives = 0
	f.store.ApplyPlayer(f.me)

	assert.False(t, f.gate.CanSubmit())
}

func TestSubmitRejectsMissingSyllableLocally(t *testing.T) {
	f := newFixture(t)

	result, err := f.gate.Submit(context.Background(), "spelling")
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, authority.ReasonMissingSyllable, result.Reason)
	assert.Empty(t, f.client.calls, "local pre-checks never reach the authority")
}

func TestSubmitRejectsDuplicateLocally(t *testing.T) {
	f := newFixture(t)

	result, err := f.gate.Submit(context.Background(), "LUFTE")
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, authority.ReasonAlreadyUsed, result.Reason)
	assert.Empty(t, f.client.calls)
}

func TestSubmitDuplicateCheckedBeforeSyllable(t *testing.T) {
	f := newFixture(t)

	// "berg" is both a duplicate and missing the syllable; the duplicate
	// reason wins, matching the authoritative ordering.
	st := f.store.AuthoritativeState()
	st.UsedWords = append(st.UsedWords, "berg")
	f.store.ApplyAuthoritative(st)

	result, err := f.gate.Submit(context.Background(), "Berg")
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, authority.ReasonAlreadyUsed, result.Reason)
	assert.Empty(t, f.client.calls)
}

func TestSubmitAcceptedPrimesShadowAndHint(t *testing.T) {
	f := newFixture(t)
	next := &game.TurnDescriptor{
		TurnSeq:         6,
		CurrentPlayerID: f.other.ID,
		CurrentSyllable: "ka",
		TimerEndTime:    f.end.Add(15 * time.Second),
	}
	f.client.result = &authority.SubmitWordResult{Accepted: true, NextTurn: next}

	result, err := f.gate.Submit(context.Background(), "  Aflutter ")
	require.NoError(t, err)
	assert.True(t, result.Accepted)

	require.Len(t, f.client.calls, 1)
	req := f.client.calls[0]
	assert.Equal(t, "aflutter", req.Word, "the word goes out normalized")
	assert.Equal(t, int64(5), req.TurnSeq)
	assert.Equal(t, f.me.ID, req.PlayerID)
	assert.Equal(t, f.roomID, req.RoomID)

	require.NotNil(t, f.store.Shadow())
	assert.Equal(t, int64(6), f.store.Shadow().TurnSeq)
	require.Len(t, f.hints.published, 1)
}

func TestSubmitAuthoritativeRejectionKeepsTurn(t *testing.T) {
	f := newFixture(t)
	f.client.result = &authority.SubmitWordResult{Accepted: false, Reason: authority.ReasonNotRecognized}

	result, err := f.gate.Submit(context.Background(), "luzz")
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, authority.ReasonNotRecognized, result.Reason)
	assert.Nil(t, f.store.Shadow())

	// The gate reopened: the player can correct and resubmit.
	assert.True(t, f.gate.CanSubmit())
}

func TestSubmitBenignRaceReadsAsRejection(t *testing.T) {
	f := newFixture(t)
	f.client.err = authority.ErrStaleTurn

	result, err := f.gate.Submit(context.Background(), "aflutter")
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, authority.CodeStaleTurn, result.Reason)
}

func TestSubmitHardErrorPropagatesAndReleasesGuard(t *testing.T) {
	f := newFixture(t)
	f.client.err = errors.New("authority unreachable")

	_, err := f.gate.Submit(context.Background(), "aflutter")
	require.Error(t, err)

	f.client.err = nil
	result, err := f.gate.Submit(context.Background(), "aflutter")
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Len(t, f.client.calls, 2)
}

func TestCustomGrace(t *testing.T) {
	f := newFixture(t)
	f.gate.SetGrace(time.Second)

	assert.True(t, f.gate.CanSubmitAt(f.end.Add(time.Second)))
	assert.False(t, f.gate.CanSubmitAt(f.end.Add(time.Second+time.Millisecond)))
}
