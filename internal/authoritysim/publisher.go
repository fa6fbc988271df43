package authoritysim

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/wordrush/internal/engine/reconcile"
	"github.com/mcdev12/wordrush/internal/game"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Publisher is the simulator's change-notification feed: row updates go out
// after every accepted transition. Implementations may drop or duplicate
// messages; clients reconcile via turn_seq.
type Publisher interface {
	PublishGame(ctx context.Context, g *game.Game) error
	PublishPlayer(ctx context.Context, p game.Player) error
}

// GameEnvelope wraps a game row in the wire envelope.
func GameEnvelope(g *game.Game) (*reconcile.Envelope, error) {
	payload, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("marshal game row: %w", err)
	}
	return &reconcile.Envelope{
		ID:        uuid.New().String(),
		RoomID:    g.RoomID.String(),
		Type:      reconcile.EventTypeGameUpdated,
		Timestamp: time.Now(),
		Payload:   payload,
	}, nil
}

// PlayerEnvelope wraps a player row in the wire envelope.
func PlayerEnvelope(p game.Player) (*reconcile.Envelope, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal player row: %w", err)
	}
	return &reconcile.Envelope{
		ID:        uuid.New().String(),
		RoomID:    p.RoomID.String(),
		Type:      reconcile.EventTypePlayerUpdated,
		Timestamp: time.Now(),
		Payload:   payload,
	}, nil
}

// JetStreamPublisher publishes row envelopes onto the per-room JetStream
// subject consumed by reconcile.JetStreamSource.
type JetStreamPublisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewJetStreamPublisher connects to NATS and ensures the events stream
// exists.
func NewJetStreamPublisher(url, streamName string) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(context.Background(), jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"wordrush.rooms.*.rows"},
		MaxAge:   time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	log.Info().Str("stream", streamName).Msg("JetStream publisher ready")
	return &JetStreamPublisher{nc: nc, js: js}, nil
}

func (p *JetStreamPublisher) publish(ctx context.Context, roomID uuid.UUID, env *reconcile.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if _, err := p.js.Publish(ctx, reconcile.RoomSubject(roomID), data); err != nil {
		return fmt.Errorf("publish envelope: %w", err)
	}
	return nil
}

// PublishGame implements Publisher.
func (p *JetStreamPublisher) PublishGame(ctx context.Context, g *game.Game) error {
	env, err := GameEnvelope(g)
	if err != nil {
		return err
	}
	return p.publish(ctx, g.RoomID, env)
}

// PublishPlayer implements Publisher.
func (p *JetStreamPublisher) PublishPlayer(ctx context.Context, pl game.Player) error {
	env, err := PlayerEnvelope(pl)
	if err != nil {
		return err
	}
	return p.publish(ctx, pl.RoomID, env)
}

// Close releases the NATS connection.
func (p *JetStreamPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// FuncPublisher adapts plain functions into a Publisher. Tests use it to
// route rows straight into an engine's reconciliation bus.
type FuncPublisher struct {
	GameFn   func(ctx context.Context, g *game.Game) error
	PlayerFn func(ctx context.Context, p game.Player) error
}

// PublishGame implements Publisher.
func (f FuncPublisher) PublishGame(ctx context.Context, g *game.Game) error {
	if f.GameFn == nil {
		return nil
	}
	return f.GameFn(ctx, g)
}

// PublishPlayer implements Publisher.
func (f FuncPublisher) PublishPlayer(ctx context.Context, p game.Player) error {
	if f.PlayerFn == nil {
		return nil
	}
	return f.PlayerFn(ctx, p)
}
