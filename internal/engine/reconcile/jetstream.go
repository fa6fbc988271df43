package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConfig holds configuration for the JetStream row-change source.
type JetStreamConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultJetStreamConfig returns the default JetStream source configuration.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "WORDRUSH_EVENTS",
		ConsumerName:  "wordrush-client",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// RoomSubject is the JetStream subject carrying row-change events for a room.
func RoomSubject(roomID uuid.UUID) string {
	return fmt.Sprintf("wordrush.rooms.%s.rows", roomID)
}

// JetStreamSource consumes the authority's row-change feed from a JetStream
// stream. Delivery is at-least-once: duplicates and reordering are normal
// and absorbed by the store's turn_seq merge.
type JetStreamSource struct {
	roomID   uuid.UUID
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	config   JetStreamConfig
}

// NewJetStreamSource connects to NATS and sets up an ephemeral consumer
// filtered to the room's row subject.
func NewJetStreamSource(roomID uuid.UUID, config JetStreamConfig) (*JetStreamSource, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	src := &JetStreamSource{
		roomID: roomID,
		nc:     nc,
		js:     js,
		config: config,
	}

	if err := src.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}

	return src, nil
}

func (s *JetStreamSource) ensureConsumer(ctx context.Context) error {
	stream, err := s.js.Stream(ctx, s.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	// One ephemeral consumer per client session, scoped to this room. It
	// dies with the session so a left room leaves nothing behind server-side.
	consumerConfig := jetstream.ConsumerConfig{
		Description:   "wordrush client row-change consumer",
		FilterSubject: RoomSubject(s.roomID),
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    s.config.MaxDeliver,
		AckWait:       s.config.AckWait,
		MaxAckPending: s.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.CreateConsumer(ctx, consumerConfig)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	log.Info().
		Str("stream", s.config.StreamName).
		Str("subject", RoomSubject(s.roomID)).
		Msg("created JetStream consumer")

	s.consumer = consumer
	return nil
}

// Run implements Source.
func (s *JetStreamSource) Run(ctx context.Context, events chan<- *Envelope) error {
	log.Info().
		Str("room_id", s.roomID.String()).
		Str("stream", s.config.StreamName).
		Msg("starting JetStream row-change source")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := s.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("room_id", s.roomID.String()).Msg("JetStream source shutting down")
			return nil
		case msg := <-messageCh:
			env, err := decodeEnvelope(msg.Data())
			if err != nil {
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to decode envelope")
				if nakErr := msg.Nak(); nakErr != nil {
					log.Error().Err(nakErr).Msg("failed to NAK message")
				}
				continue
			}

			select {
			case events <- env:
				if ackErr := msg.Ack(); ackErr != nil {
					log.Error().Err(ackErr).Msg("failed to ACK message")
				}
			case <-ctx.Done():
				msg.Nak()
				return nil
			}
		}
	}
}

// Close implements Source.
func (s *JetStreamSource) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

func decodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return &env, nil
}
