package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/wordrush/internal/game"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// HintSubject is the core-NATS subject carrying turn-advanced hints for a
// room. Hints are best-effort and unordered; dropping one only costs the
// other clients a round trip, the row feed still delivers the truth.
func HintSubject(roomID uuid.UUID) string {
	return fmt.Sprintf("wordrush.rooms.%s.hints", roomID)
}

// HintChannel publishes and subscribes turn-advanced hints over core NATS.
// The client that just completed a turn-advancing command publishes; every
// other client in the room applies the hint as a shadow snapshot.
type HintChannel struct {
	roomID uuid.UUID
	nc     *nats.Conn
	owned  bool
}

// NewHintChannel connects to NATS for hint traffic.
func NewHintChannel(roomID uuid.UUID, url string) (*HintChannel, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &HintChannel{roomID: roomID, nc: nc, owned: true}, nil
}

// NewHintChannelWithConn reuses an existing NATS connection.
func NewHintChannelWithConn(roomID uuid.UUID, nc *nats.Conn) *HintChannel {
	return &HintChannel{roomID: roomID, nc: nc}
}

// PublishTurnAdvanced broadcasts the next turn's descriptor to the room.
// Failures are logged and swallowed: the hint is an optimization, never a
// correctness dependency.
func (h *HintChannel) PublishTurnAdvanced(ctx context.Context, td game.TurnDescriptor) error {
	payload, err := json.Marshal(td)
	if err != nil {
		return fmt.Errorf("marshal turn descriptor: %w", err)
	}
	env := Envelope{
		ID:        uuid.New().String(),
		RoomID:    h.roomID.String(),
		Type:      EventTypeTurnAdvanced,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := h.nc.Publish(HintSubject(h.roomID), data); err != nil {
		log.Warn().Err(err).Str("room_id", h.roomID.String()).Msg("failed to publish turn hint")
		return err
	}
	log.Debug().
		Str("room_id", h.roomID.String()).
		Int64("turn_seq", td.TurnSeq).
		Msg("published turn-advanced hint")
	return nil
}

// Run implements Source: subscribes to the room's hint subject and forwards
// envelopes into the bus until ctx is cancelled.
func (h *HintChannel) Run(ctx context.Context, events chan<- *Envelope) error {
	msgCh := make(chan *nats.Msg, 64)
	sub, err := h.nc.ChanSubscribe(HintSubject(h.roomID), msgCh)
	if err != nil {
		return fmt.Errorf("subscribe to hints: %w", err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Error().Err(err).Msg("failed to unsubscribe from hints")
		}
	}()

	log.Info().Str("room_id", h.roomID.String()).Msg("subscribed to turn hints")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgCh:
			env, err := decodeEnvelope(msg.Data)
			if err != nil {
				log.Warn().Err(err).Msg("dropping malformed hint")
				continue
			}
			select {
			case events <- env:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Close implements Source. The connection is only closed when this channel
// opened it.
func (h *HintChannel) Close() error {
	if h.owned && h.nc != nil {
		h.nc.Close()
	}
	return nil
}
