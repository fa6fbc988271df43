package clocksync

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// TimeSource is the authority endpoint the synchronizer samples.
type TimeSource interface {
	GetServerTime(ctx context.Context) (time.Time, error)
}

// Synchronizer estimates the offset between the local clock and the
// Authority Service's clock with NTP-style one-sample round trips. A stale
// or zero offset only degrades countdown smoothness; deadline enforcement is
// validated server-side regardless.
type Synchronizer struct {
	source   TimeSource
	clock    clockwork.Clock
	interval time.Duration

	mu     sync.RWMutex
	offset time.Duration
	rtt    time.Duration
	synced bool
}

// DefaultSampleInterval is how often the offset is re-estimated.
const DefaultSampleInterval = 30 * time.Second

// New creates a synchronizer sampling source at the given interval.
func New(source TimeSource, clock clockwork.Clock, interval time.Duration) *Synchronizer {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Synchronizer{
		source:   source,
		clock:    clock,
		interval: interval,
	}
}

// Now returns the local clock translated into (approximate) authority time.
func (s *Synchronizer) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock.Now().Add(s.offset)
}

// Offset returns the current offset estimate.
func (s *Synchronizer) Offset() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offset
}

// RTT returns the round-trip time of the last successful sample.
func (s *Synchronizer) RTT() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rtt
}

// Synced reports whether at least one sample has succeeded.
func (s *Synchronizer) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// SampleOnce performs a single round trip and updates the offset estimate.
// Failures keep the previous offset (default 0).
func (s *Synchronizer) SampleOnce(ctx context.Context) error {
	departure := s.clock.Now()
	serverTime, err := s.source.GetServerTime(ctx)
	arrival := s.clock.Now()
	if err != nil {
		log.Debug().Err(err).Msg("clock sample failed, keeping previous offset")
		return err
	}

	rtt := arrival.Sub(departure)
	// The server reported its time somewhere mid-flight; estimate it at
	// arrival by adding half the round trip.
	estimatedAtArrival := serverTime.Add(rtt / 2)
	offset := estimatedAtArrival.Sub(arrival)

	s.mu.Lock()
	s.offset = offset
	s.rtt = rtt
	s.synced = true
	s.mu.Unlock()

	log.Debug().
		Dur("offset", offset).
		Dur("rtt", rtt).
		Msg("clock offset updated")
	return nil
}

// Run samples immediately and then at the configured interval until ctx is
// cancelled. Sample failures are ignored.
func (s *Synchronizer) Run(ctx context.Context) {
	_ = s.SampleOnce(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("clock synchronizer stopped")
			return
		case <-ticker.Chan():
			_ = s.SampleOnce(ctx)
		}
	}
}
