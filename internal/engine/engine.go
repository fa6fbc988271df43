package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/wordrush/internal/authority"
	"github.com/mcdev12/wordrush/internal/engine/clocksync"
	"github.com/mcdev12/wordrush/internal/engine/dispatch"
	"github.com/mcdev12/wordrush/internal/engine/inputgate"
	"github.com/mcdev12/wordrush/internal/engine/reconcile"
	"github.com/mcdev12/wordrush/internal/engine/turnstate"
	"github.com/mcdev12/wordrush/internal/engine/turntimer"
	"github.com/mcdev12/wordrush/internal/game"
	"github.com/rs/zerolog/log"
)

// Options configures one engine session.
type Options struct {
	RoomID   uuid.UUID
	Identity game.Identity

	// Clock defaults to the real clock.
	Clock clockwork.Clock

	// ClockSyncInterval defaults to clocksync.DefaultSampleInterval.
	ClockSyncInterval time.Duration
	// Grace defaults to inputgate.DefaultGrace.
	Grace time.Duration
	// Warmup defaults to turntimer.DefaultWarmup.
	Warmup time.Duration

	// Sources feed the reconciliation bus. At least one row-change source
	// is required for live play; tests may inject events directly.
	Sources []reconcile.Source
	// Hints publishes turn-advanced hints to the other clients. Optional.
	Hints HintPublisher
}

// HintPublisher is re-exported here so callers wiring an engine do not need
// to import the component packages.
type HintPublisher interface {
	PublishTurnAdvanced(ctx context.Context, td game.TurnDescriptor) error
}

// Notice is a user-facing recoverable-failure message.
type Notice struct {
	Message string
	Err     error
}

// Engine is the per-room session facade: it owns the turn state store, the
// clock synchronizer, the reconciliation bus, the turn timer, the timeout
// dispatcher and the input gate, and exposes the upward interface consumed
// by presentation code.
type Engine struct {
	roomID   uuid.UUID
	identity game.Identity
	client   authority.Client

	store      *turnstate.Store
	clocksync  *clocksync.Synchronizer
	bus        *reconcile.Bus
	timer      *turntimer.Timer
	dispatcher *dispatch.Dispatcher
	gate       *inputgate.Gate

	notices chan Notice

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New wires an engine session for one room.
func New(client authority.Client, opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	store := turnstate.NewStore()
	cs := clocksync.New(client, clock, opts.ClockSyncInterval)
	bus := reconcile.NewBus(opts.RoomID, store, opts.Sources...)
	timer := turntimer.New(store, clock, cs.Now)
	if opts.Warmup > 0 {
		timer.SetWarmup(opts.Warmup)
	}

	dispatcher := dispatch.New(opts.RoomID, opts.Identity, store, client, opts.Hints)
	gate := inputgate.New(opts.RoomID, opts.Identity, store, client, opts.Hints, cs.Now)
	if opts.Grace > 0 {
		gate.SetGrace(opts.Grace)
	}

	e := &Engine{
		roomID:     opts.RoomID,
		identity:   opts.Identity,
		client:     client,
		store:      store,
		clocksync:  cs,
		bus:        bus,
		timer:      timer,
		dispatcher: dispatcher,
		gate:       gate,
		notices:    make(chan Notice, 8),
	}
	dispatcher.SetFailureHandler(func(err error) {
		e.notify(Notice{Message: "turn timeout could not be applied, please retry", Err: err})
	})
	return e
}

func (e *Engine) notify(n Notice) {
	select {
	case e.notices <- n:
	default:
	}
}

// Notices delivers user-facing recoverable-failure messages.
func (e *Engine) Notices() <-chan Notice { return e.notices }

// Store exposes the turn state store (read-only use expected).
func (e *Engine) Store() *turnstate.Store { return e.store }

// Start launches the session goroutines and performs the initial state
// fetch. It returns once the engine is live; Stop releases everything.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.started = true
	e.mu.Unlock()

	// Seed the clock estimate and the store before anything ticks.
	if err := e.Resync(runCtx); err != nil {
		log.Warn().Err(err).Str("room_id", e.roomID.String()).Msg("initial resync failed, engine starts cold")
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		e.clocksync.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		if err := e.bus.Run(runCtx); err != nil {
			log.Error().Err(err).Msg("reconciliation bus failed")
		}
	}()
	go func() {
		defer wg.Done()
		e.timer.Run(runCtx)
	}()

	// Expiry pump: timer events feed the timeout dispatcher.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case exp := <-e.timer.Expired():
				e.dispatcher.HandleExpiry(runCtx, exp)
			}
		}
	}()

	go func() {
		wg.Wait()
		close(e.done)
	}()

	started := log.Info().Str("room_id", e.roomID.String())
	if e.identity != nil {
		started = started.Str("participant", e.identity.ParticipantKey())
	}
	started.Msg("engine started")
	return nil
}

// Stop cancels the session: the bus unsubscribes its sources, the timer and
// clock sampler stop ticking. Safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	done := e.done
	e.started = false
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
	log.Info().Str("room_id", e.roomID.String()).Msg("engine stopped")
}

// Resync samples the authority clock and refetches the authoritative room
// state. Called on start and when the client regains foreground/visibility.
func (e *Engine) Resync(ctx context.Context) error {
	if err := e.clocksync.SampleOnce(ctx); err != nil {
		log.Debug().Err(err).Msg("clock resample failed during resync")
	}

	state, err := e.client.GetRoomState(ctx, e.roomID)
	if err != nil {
		return fmt.Errorf("fetch room state: %w", err)
	}
	e.store.ApplyAuthoritative(state.Game)
	e.store.ApplyPlayers(state.Players)
	return nil
}

// StartGame issues the authoritative start command for the room.
func (e *Engine) StartGame(ctx context.Context) error {
	g, err := e.client.StartGame(ctx, e.roomID)
	if err != nil {
		return fmt.Errorf("start game: %w", err)
	}
	e.store.ApplyAuthoritative(g)
	return nil
}

// EffectiveState returns the current game view, shadow overlay included.
func (e *Engine) EffectiveState() *game.Game {
	return e.store.EffectiveState()
}

// Players returns the cached roster.
func (e *Engine) Players() []game.Player {
	return e.store.Players()
}

// TimeLeft returns the remaining whole seconds of the current turn.
func (e *Engine) TimeLeft() int {
	return e.timer.TimeLeft()
}

// TimerState returns the turn timer's state machine position.
func (e *Engine) TimerState() turntimer.State {
	return e.timer.State()
}

// CanSubmit reports whether the local participant may submit right now.
func (e *Engine) CanSubmit() bool {
	return e.gate.CanSubmit()
}

// Submit relays a word submission through the input gate.
func (e *Engine) Submit(ctx context.Context, word string) (*authority.SubmitWordResult, error) {
	return e.gate.Submit(ctx, word)
}

// Now returns the authority-approximated current time.
func (e *Engine) Now() time.Time {
	return e.clocksync.Now()
}

// Updates returns a fresh coalesced change-signal channel, for UIs that
// re-render reactively.
func (e *Engine) Updates() <-chan struct{} {
	return e.store.Subscribe()
}

// InjectEvent pushes an envelope into the reconciliation bus, bypassing the
// transport sources. Used by tests and local tooling.
func (e *Engine) InjectEvent(env *reconcile.Envelope) {
	e.bus.Inject(env)
}
