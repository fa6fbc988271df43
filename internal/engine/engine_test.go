package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/wordrush/internal/authority"
	"github.com/mcdev12/wordrush/internal/authoritysim"
	"github.com/mcdev12/wordrush/internal/engine/reconcile"
	"github.com/mcdev12/wordrush/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// injectingPublisher routes the simulator's row feed straight into engine
// buses, standing in for JetStream.
type injectingPublisher struct {
	engines []*Engine
}

func (p *injectingPublisher) inject(env *reconcile.Envelope) {
	for _, e := range p.engines {
		e.InjectEvent(env)
	}
}

func (p *injectingPublisher) PublishGame(ctx context.Context, g *game.Game) error {
	env, err := authoritysim.GameEnvelope(g)
	if err != nil {
		return err
	}
	p.inject(env)
	return nil
}

func (p *injectingPublisher) PublishPlayer(ctx context.Context, pl game.Player) error {
	env, err := authoritysim.PlayerEnvelope(pl)
	if err != nil {
		return err
	}
	p.inject(env)
	return nil
}

// hintBridge delivers one engine's turn-advanced hints to its peers,
// standing in for the core-NATS hint subject.
type hintBridge struct {
	roomID uuid.UUID
	peers  []*Engine
}

func (b *hintBridge) PublishTurnAdvanced(ctx context.Context, td game.TurnDescriptor) error {
	payload, err := json.Marshal(td)
	if err != nil {
		return err
	}
	env := &reconcile.Envelope{
		ID:        uuid.New().String(),
		RoomID:    b.roomID.String(),
		Type:      reconcile.EventTypeTurnAdvanced,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	for _, e := range b.peers {
		e.InjectEvent(env)
	}
	return nil
}

type session struct {
	roomID uuid.UUID
	sim    *authoritysim.Sim
	ada    *Engine
	bruno  *Engine
	state  *authority.RoomState
}

// newSession wires two live engines against one simulator room with short
// turns. Rows and hints travel through the injecting bridges.
func newSession(t *testing.T, turnSecs int) *session {
	t.Helper()
	roomID := uuid.New()
	pub := &injectingPublisher{}
	sim := authoritysim.NewSim(clockwork.NewRealClock(), pub)

	state, err := sim.CreateRoom(roomID, []authoritysim.PlayerSpec{
		{ParticipantID: "guest:ada", Name: "Ada"},
		{ParticipantID: "guest:bruno", Name: "Bruno"},
	}, turnSecs)
	require.NoError(t, err)

	adaHints := &hintBridge{roomID: roomID}
	brunoHints := &hintBridge{roomID: roomID}
	ada := New(sim, Options{
		RoomID:   roomID,
		Identity: game.Guest{GuestID: "guest:ada", Name: "Ada"},
		Warmup:   50 * time.Millisecond,
		Hints:    adaHints,
	})
	bruno := New(sim, Options{
		RoomID:   roomID,
		Identity: game.Guest{GuestID: "guest:bruno", Name: "Bruno"},
		Warmup:   50 * time.Millisecond,
		Hints:    brunoHints,
	})
	pub.engines = []*Engine{ada, bruno}
	adaHints.peers = []*Engine{bruno}
	brunoHints.peers = []*Engine{ada}

	ctx := context.Background()
	require.NoError(t, ada.Start(ctx))
	require.NoError(t, bruno.Start(ctx))
	t.Cleanup(ada.Stop)
	t.Cleanup(bruno.Stop)

	return &session{roomID: roomID, sim: sim, ada: ada, bruno: bruno, state: state}
}

// engineFor maps the current player id to the engine holding that identity.
func (s *session) engineFor(playerID uuid.UUID) *Engine {
	for _, p := range s.state.Players {
		if p.ID == playerID {
			if p.ParticipantID == "guest:ada" {
				return s.ada
			}
			return s.bruno
		}
	}
	return nil
}

func waitForSeq(t *testing.T, e *Engine, seq int64) *game.Game {
	t.Helper()
	require.Eventually(t, func() bool {
		st := e.EffectiveState()
		return st != nil && st.TurnSeq >= seq
	}, 10*time.Second, 20*time.Millisecond, "engine never reached turn_seq %d", seq)
	return e.EffectiveState()
}

func TestEngineSubmitFlowAcrossClients(t *testing.T) {
	s := newSession(t, 30)

	require.NoError(t, s.ada.StartGame(context.Background()))

	adaView := waitForSeq(t, s.ada, 1)
	brunoView := waitForSeq(t, s.bruno, 1)
	require.Equal(t, adaView.CurrentPlayerID, brunoView.CurrentPlayerID)

	onTurn := s.engineFor(adaView.CurrentPlayerID)
	require.NotNil(t, onTurn)

	require.Eventually(t, onTurn.CanSubmit, 5*time.Second, 20*time.Millisecond,
		"the current player's gate should open")

	result, err := onTurn.Submit(context.Background(), "xx"+adaView.CurrentSyllable+"xx")
	require.NoError(t, err)
	require.True(t, result.Accepted)

	// Both clients converge on the next turn, the submitter via its shadow,
	// the peer via hint and row feed.
	waitForSeq(t, s.ada, 2)
	waitForSeq(t, s.bruno, 2)

	// The non-current player's gate stays shut.
	next := s.ada.EffectiveState()
	off := s.ada
	if s.engineFor(next.CurrentPlayerID) == s.ada {
		off = s.bruno
	}
	assert.False(t, off.CanSubmit())
}

func TestEngineTimeoutFlowAcrossClients(t *testing.T) {
	s := newSession(t, 1)

	require.NoError(t, s.ada.StartGame(context.Background()))
	first := waitForSeq(t, s.ada, 1)
	waitForSeq(t, s.bruno, 1)
	timedOut := first.CurrentPlayerID

	// Nobody submits; the current player's own engine dispatches the
	// timeout once the deadline passes.
	adaView := waitForSeq(t, s.ada, 2)
	brunoView := waitForSeq(t, s.bruno, 2)
	assert.NotEqual(t, timedOut, adaView.CurrentPlayerID, "the turn moved on")
	assert.Equal(t, first.CurrentSyllable, adaView.CurrentSyllable, "a timeout keeps the syllable")
	assert.Equal(t, adaView.CurrentPlayerID, brunoView.CurrentPlayerID)

	// The published player row carried the lost life to both clients.
	require.Eventually(t, func() bool {
		p, ok := s.ada.Store().PlayerByID(timedOut)
		return ok && p.Lives == 2
	}, 10*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		p, ok := s.bruno.Store().PlayerByID(timedOut)
		return ok && p.Lives == 2
	}, 10*time.Second, 20*time.Millisecond)
}

func TestEngineSpectatorStartsWithoutIdentity(t *testing.T) {
	roomID := uuid.New()
	sim := authoritysim.NewSim(clockwork.NewRealClock(), nil)
	_, err := sim.CreateRoom(roomID, []authoritysim.PlayerSpec{
		{ParticipantID: "guest:ada", Name: "Ada"},
		{ParticipantID: "guest:bruno", Name: "Bruno"},
	}, 30)
	require.NoError(t, err)
	_, err = sim.StartGame(context.Background(), roomID)
	require.NoError(t, err)

	// A spectator carries no identity: it watches the room but never
	// submits or dispatches timeouts.
	e := New(sim, Options{RoomID: roomID})
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	st := e.EffectiveState()
	require.NotNil(t, st)
	assert.Equal(t, game.StatusPlaying, st.Status)
	assert.False(t, e.CanSubmit())
}

func TestEngineResyncSeedsColdStart(t *testing.T) {
	roomID := uuid.New()
	sim := authoritysim.NewSim(clockwork.NewRealClock(), nil)
	_, err := sim.CreateRoom(roomID, []authoritysim.PlayerSpec{
		{ParticipantID: "guest:solo", Name: "Solo"},
	}, 30)
	require.NoError(t, err)
	_, err = sim.StartGame(context.Background(), roomID)
	require.NoError(t, err)

	// The engine joins after the game already started: the initial resync
	// alone must produce a playable view.
	e := New(sim, Options{
		RoomID:   roomID,
		Identity: game.Guest{GuestID: "guest:solo", Name: "Solo"},
	})
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	st := e.EffectiveState()
	require.NotNil(t, st)
	assert.Equal(t, game.StatusPlaying, st.Status)
	assert.Equal(t, int64(1), st.TurnSeq)
	assert.Len(t, e.Players(), 1)
	assert.Greater(t, e.TimeLeft(), 0)
	assert.True(t, e.Now().After(time.Time{}))
}
