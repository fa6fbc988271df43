package turntimer

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/wordrush/internal/game"
	"github.com/rs/zerolog/log"
)

// State is the timer's state machine position.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateExpired State = "expired"
)

// StateReader is what the timer needs from the turn state store.
type StateReader interface {
	EffectiveState() *game.Game
	Subscribe() <-chan struct{}
}

// Expiry is the one-shot expiration event for a turn deadline.
type Expiry struct {
	TurnSeq  int64
	Deadline time.Time
}

const (
	// DefaultTickInterval is the countdown evaluation cadence.
	DefaultTickInterval = time.Second
	// DefaultWarmup is the window after a deadline is first observed during
	// which expiry never fires. Guards against clock skew or a stale
	// deadline producing an instant false expiry.
	DefaultWarmup = 2 * time.Second
)

// Timer derives remaining time from the store and the synchronized clock and
// raises exactly one expiration event per distinct deadline. It performs no
// network I/O and cannot fail; with no valid deadline it degrades to idle.
type Timer struct {
	store  StateReader
	clock  clockwork.Clock  // local wall clock: tick cadence, warm-up elapse
	now    func() time.Time // authority-approximated time
	tick   time.Duration
	warmup time.Duration

	mu             sync.Mutex
	state          State
	lastDeadline   time.Time
	deadlineSeenAt time.Time // local instant the deadline was last observed to change
	firedDeadline  time.Time // expiry latch, keyed on deadline identity

	expiredCh chan Expiry
}

// New creates a timer reading the store and the synchronized now func.
func New(store StateReader, clock clockwork.Clock, now func() time.Time) *Timer {
	return &Timer{
		store:     store,
		clock:     clock,
		now:       now,
		tick:      DefaultTickInterval,
		warmup:    DefaultWarmup,
		state:     StateIdle,
		expiredCh: make(chan Expiry, 1),
	}
}

// SetWarmup overrides the warm-up window.
func (t *Timer) SetWarmup(d time.Duration) { t.warmup = d }

// Expired delivers the one-shot expiration events.
func (t *Timer) Expired() <-chan Expiry {
	return t.expiredCh
}

// State returns the current state machine position.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// TimeLeft computes the remaining whole seconds for the current turn,
// ceiling-rounded, zero when idle or already past the deadline.
func (t *Timer) TimeLeft() int {
	st := t.store.EffectiveState()
	if st == nil || st.Status != game.StatusPlaying || st.TimerEndTime == nil {
		return 0
	}
	return SecondsLeft(*st.TimerEndTime, t.now())
}

// SecondsLeft returns ceil((end-now)/1s), clamped at zero.
func SecondsLeft(end, now time.Time) int {
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// Run evaluates once per tick and on every store change until ctx is
// cancelled.
func (t *Timer) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(t.tick)
	defer ticker.Stop()
	changes := t.store.Subscribe()

	t.Evaluate()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("turn timer stopped")
			return
		case <-ticker.Chan():
			t.Evaluate()
		case <-changes:
			t.Evaluate()
		}
	}
}

// Evaluate advances the state machine from the current store content. Safe
// to call at any cadence; expiry fires at most once per deadline.
func (t *Timer) Evaluate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.store.EffectiveState()
	if st == nil || st.Status != game.StatusPlaying || st.TimerEndTime == nil {
		if t.state != StateIdle {
			log.Debug().Msg("turn timer idle")
		}
		t.state = StateIdle
		t.lastDeadline = time.Time{}
		return
	}

	end := *st.TimerEndTime
	if !end.Equal(t.lastDeadline) {
		// A fresh deadline re-arms the latch and restarts the warm-up.
		t.lastDeadline = end
		t.deadlineSeenAt = t.clock.Now()
		t.state = StateRunning
		log.Debug().
			Time("deadline", end).
			Int64("turn_seq", st.TurnSeq).
			Msg("turn timer armed")
	}

	if t.state == StateExpired {
		return
	}

	if end.After(t.now()) {
		t.state = StateRunning
		return
	}

	// Deadline reached. Hold fire inside the warm-up window: a deadline that
	// is already in the past when first observed is skew, not a timeout.
	if t.clock.Now().Sub(t.deadlineSeenAt) < t.warmup {
		return
	}
	if t.firedDeadline.Equal(end) {
		return
	}
	t.firedDeadline = end
	t.state = StateExpired

	select {
	case t.expiredCh <- Expiry{TurnSeq: st.TurnSeq, Deadline: end}:
		log.Debug().
			Int64("turn_seq", st.TurnSeq).
			Time("deadline", end).
			Msg("turn timer expired")
	default:
		log.Warn().Int64("turn_seq", st.TurnSeq).Msg("expiry channel full, dropping event")
	}
}
