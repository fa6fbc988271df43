package game

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GameStatus represents the lifecycle state of a game row.
type GameStatus string

const (
	StatusWaiting  GameStatus = "waiting"
	StatusPlaying  GameStatus = "playing"
	StatusFinished GameStatus = "finished"
)

// Game mirrors the authoritative game row owned by the Authority Service.
// The engine treats it as read-only; all mutation happens through commands.
type Game struct {
	ID               uuid.UUID  `json:"id"`
	RoomID           uuid.UUID  `json:"room_id"`
	Status           GameStatus `json:"status"`
	CurrentPlayerID  uuid.UUID  `json:"current_player_id"`
	CurrentSyllable  string     `json:"current_syllable"`
	TimerDurationSec int        `json:"timer_duration_sec"`
	TimerEndTime     *time.Time `json:"timer_end_time,omitempty"`
	TurnSeq          int64      `json:"turn_seq"`
	UsedWords        []string   `json:"used_words"`
	RoundNumber      int        `json:"round_number"`
}

// TurnStart derives the instant the current turn began. The deadline is
// computed before the player is unlocked, so input before this instant is
// denied.
func (g *Game) TurnStart() time.Time {
	if g.TimerEndTime == nil {
		return time.Time{}
	}
	return g.TimerEndTime.Add(-time.Duration(g.TimerDurationSec) * time.Second)
}

// HasUsedWord reports whether a word was already accepted this game.
// Comparison happens on the normalized form.
func (g *Game) HasUsedWord(word string) bool {
	w := NormalizeWord(word)
	for _, used := range g.UsedWords {
		if NormalizeWord(used) == w {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the game row.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	out := *g
	if g.TimerEndTime != nil {
		t := *g.TimerEndTime
		out.TimerEndTime = &t
	}
	out.UsedWords = append([]string(nil), g.UsedWords...)
	return &out
}

// Player mirrors the authoritative player row for one room.
type Player struct {
	ID            uuid.UUID `json:"id"`
	RoomID        uuid.UUID `json:"room_id"`
	ParticipantID string    `json:"participant_id"`
	Name          string    `json:"name"`
	Lives         int       `json:"lives"`
	IsAlive       bool      `json:"is_alive"`
	TurnOrder     int       `json:"turn_order"`
}

// TurnDescriptor is the shadow-snapshot shape: the fields of the next turn
// returned by a turn-advancing command, applied optimistically to mask
// latency until the authoritative row arrives.
type TurnDescriptor struct {
	TurnSeq          int64     `json:"turn_seq"`
	CurrentPlayerID  uuid.UUID `json:"current_player_id"`
	CurrentSyllable  string    `json:"current_syllable"`
	TimerDurationSec int       `json:"timer_duration_sec"`
	TimerEndTime     time.Time `json:"timer_end_time"`
}

// NormalizeWord lowercases and trims a candidate word. Both the local
// pre-checks and the authoritative used-words set operate on this form.
func NormalizeWord(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

// ContainsSyllable reports whether the normalized word literally contains
// the challenge token (substring, anywhere in the word).
func ContainsSyllable(word, syllable string) bool {
	if syllable == "" {
		return false
	}
	return strings.Contains(NormalizeWord(word), NormalizeWord(syllable))
}
