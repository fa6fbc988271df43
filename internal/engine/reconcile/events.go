package reconcile

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/wordrush/internal/game"
)

// EventType identifies a change-notification kind on the wire.
type EventType string

const (
	EventTypeGameUpdated    EventType = "GameUpdated"
	EventTypePlayerUpdated  EventType = "PlayerUpdated"
	EventTypeRosterReplaced EventType = "RosterReplaced"
	EventTypeTurnAdvanced   EventType = "TurnAdvanced"
)

// Envelope is the wire shape shared by every notification source. Row-level
// events (GameUpdated, PlayerUpdated, RosterReplaced) originate from the
// authority's change feed and are delivered at-least-once, in no particular
// order. TurnAdvanced is the best-effort broadcast hint sent by the client
// that just completed a turn-advancing command.
type Envelope struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ParsePayload decodes the payload for the envelope's event type.
func ParsePayload(env *Envelope) (interface{}, error) {
	switch env.Type {
	case EventTypeGameUpdated:
		var g game.Game
		if err := json.Unmarshal(env.Payload, &g); err != nil {
			return nil, err
		}
		return &g, nil

	case EventTypePlayerUpdated:
		var p game.Player
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventTypeRosterReplaced:
		var players []game.Player
		if err := json.Unmarshal(env.Payload, &players); err != nil {
			return nil, err
		}
		return players, nil

	case EventTypeTurnAdvanced:
		var td game.TurnDescriptor
		if err := json.Unmarshal(env.Payload, &td); err != nil {
			return nil, err
		}
		return td, nil

	default:
		return nil, nil // unknown event types are skipped
	}
}
