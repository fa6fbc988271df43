package reconcile

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/wordrush/internal/engine/turnstate"
	"github.com/mcdev12/wordrush/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(t *testing.T, roomID uuid.UUID, typ EventType, payload interface{}) *Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &Envelope{
		ID:        uuid.New().String(),
		RoomID:    roomID.String(),
		Type:      typ,
		Timestamp: time.Now(),
		Payload:   data,
	}
}

func gameRow(roomID uuid.UUID, id uuid.UUID, seq int64, syllable string) *game.Game {
	end := time.Now().Add(15 * time.Second)
	return &game.Game{
		ID:               id,
		RoomID:           roomID,
		Status:           game.StatusPlaying,
		CurrentSyllable:  syllable,
		TimerDurationSec: 15,
		TimerEndTime:     &end,
		TurnSeq:          seq,
	}
}

func runBus(t *testing.T, bus *Bus) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = bus.Run(ctx)
	}()
	return cancel
}

func TestBusAppliesRowsOutOfOrder(t *testing.T) {
	roomID := uuid.New()
	gameID := uuid.New()
	store := turnstate.NewStore()
	bus := NewBus(roomID, store)
	cancel := runBus(t, bus)
	defer cancel()

	bus.Inject(envelope(t, roomID, EventTypeGameUpdated, gameRow(roomID, gameID, 5, "lu")))
	bus.Inject(envelope(t, roomID, EventTypeGameUpdated, gameRow(roomID, gameID, 3, "ka")))
	bus.Inject(envelope(t, roomID, EventTypeGameUpdated, gameRow(roomID, gameID, 7, "to")))

	require.Eventually(t, func() bool {
		st := store.AuthoritativeState()
		return st != nil && st.TurnSeq == 7
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "to", store.AuthoritativeState().CurrentSyllable)
}

func TestBusAppliesPlayerAndRosterEvents(t *testing.T) {
	roomID := uuid.New()
	store := turnstate.NewStore()
	bus := NewBus(roomID, store)
	cancel := runBus(t, bus)
	defer cancel()

	roster := []game.Player{
		{ID: uuid.New(), RoomID: roomID, Name: "Ada", Lives: 3, IsAlive: true},
		{ID: uuid.New(), RoomID: roomID, Name: "Bruno", Lives: 3, IsAlive: true},
	}
	bus.Inject(envelope(t, roomID, EventTypeRosterReplaced, roster))

	require.Eventually(t, func() bool {
		return len(store.Players()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	hurt := roster[0]
	hurt.Lives = 2
	bus.Inject(envelope(t, roomID, EventTypePlayerUpdated, hurt))

	require.Eventually(t, func() bool {
		p, ok := store.PlayerByID(roster[0].ID)
		return ok && p.Lives == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBusAppliesTurnHintAsShadow(t *testing.T) {
	roomID := uuid.New()
	store := turnstate.NewStore()
	store.ApplyAuthoritative(gameRow(roomID, uuid.New(), 5, "lu"))
	bus := NewBus(roomID, store)
	cancel := runBus(t, bus)
	defer cancel()

	bus.Inject(envelope(t, roomID, EventTypeTurnAdvanced, game.TurnDescriptor{
		TurnSeq:         6,
		CurrentSyllable: "ka",
		TimerEndTime:    time.Now().Add(15 * time.Second),
	}))

	require.Eventually(t, func() bool {
		return store.Shadow() != nil && store.Shadow().TurnSeq == 6
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(6), store.EffectiveState().TurnSeq)
}

func TestBusDropsForeignRoomEvents(t *testing.T) {
	roomID := uuid.New()
	otherRoom := uuid.New()
	store := turnstate.NewStore()
	bus := NewBus(roomID, store)
	cancel := runBus(t, bus)
	defer cancel()

	bus.Inject(envelope(t, otherRoom, EventTypeGameUpdated, gameRow(otherRoom, uuid.New(), 5, "lu")))
	bus.Inject(envelope(t, roomID, EventTypeGameUpdated, gameRow(roomID, uuid.New(), 1, "ka")))

	require.Eventually(t, func() bool {
		return store.AuthoritativeState() != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), store.AuthoritativeState().TurnSeq, "the foreign room's row must never land")
}

func TestBusSurvivesMalformedAndUnknownEvents(t *testing.T) {
	roomID := uuid.New()
	store := turnstate.NewStore()
	bus := NewBus(roomID, store)
	cancel := runBus(t, bus)
	defer cancel()

	bus.Inject(&Envelope{ID: "x", RoomID: roomID.String(), Type: EventTypeGameUpdated, Payload: []byte("{not json")})
	bus.Inject(&Envelope{ID: "y", RoomID: roomID.String(), Type: EventType("SomethingNew"), Payload: []byte("{}")})
	bus.Inject(nil)
	bus.Inject(envelope(t, roomID, EventTypeGameUpdated, gameRow(roomID, uuid.New(), 2, "ka")))

	require.Eventually(t, func() bool {
		st := store.AuthoritativeState()
		return st != nil && st.TurnSeq == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestParsePayload(t *testing.T) {
	roomID := uuid.New()

	env := envelope(t, roomID, EventTypeGameUpdated, gameRow(roomID, uuid.New(), 4, "lu"))
	got, err := ParsePayload(env)
	require.NoError(t, err)
	g, ok := got.(*game.Game)
	require.True(t, ok)
	assert.Equal(t, int64(4), g.TurnSeq)

	env = envelope(t, roomID, EventTypePlayerUpdated, game.Player{Name: "Ada"})
	got, err = ParsePayload(env)
	require.NoError(t, err)
	p, ok := got.(game.Player)
	require.True(t, ok)
	assert.Equal(t, "Ada", p.Name)

	env = envelope(t, roomID, EventTypeTurnAdvanced, game.TurnDescriptor{TurnSeq: 9})
	got, err = ParsePayload(env)
	require.NoError(t, err)
	td, ok := got.(game.TurnDescriptor)
	require.True(t, ok)
	assert.Equal(t, int64(9), td.TurnSeq)

	got, err = ParsePayload(&Envelope{Type: EventType("Unknown")})
	require.NoError(t, err)
	assert.Nil(t, got, "unknown event types are skipped, not failed")
}
