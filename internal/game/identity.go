package game

import "github.com/google/uuid"

// Identity is the capability interface shared by registered and guest
// participants. The engine only ever needs the stable participant key to
// decide whether a player row belongs to the local client.
type Identity interface {
	ParticipantKey() string
	DisplayName() string
}

// Registered is an account-backed participant.
type Registered struct {
	UserID uuid.UUID
	Name   string
}

func (r Registered) ParticipantKey() string { return r.UserID.String() }
func (r Registered) DisplayName() string    { return r.Name }

// Guest is an ephemeral participant identified by a client-generated id and
// an ad-hoc display name.
type Guest struct {
	GuestID string
	Name    string
}

func (g Guest) ParticipantKey() string { return g.GuestID }
func (g Guest) DisplayName() string    { return g.Name }

// PlayerFor resolves the player row belonging to an identity, if any.
func PlayerFor(players []Player, id Identity) (Player, bool) {
	if id == nil {
		return Player{}, false
	}
	key := id.ParticipantKey()
	for _, p := range players {
		if p.ParticipantID == key {
			return p, true
		}
	}
	return Player{}, false
}
