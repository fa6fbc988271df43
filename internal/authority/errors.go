package authority

import (
	"errors"
	"fmt"
)

// Benign error codes: the command lost a race against another client that
// already completed the same logical transition. Expected under normal
// multi-client operation and never surfaced to the user.
const (
	CodeAlreadyAdvanced = "already_advanced"
	CodeNotCurrentTurn  = "not_current_turn"
	CodeStaleTurn       = "stale_turn"
)

// BenignError marks a command rejection that signals another client won the
// race for the same turn transition.
type BenignError struct {
	Code    string
	Message string
}

func (e *BenignError) Error() string {
	return fmt.Sprintf("benign race (%s): %s", e.Code, e.Message)
}

// Sentinel instances for the three benign codes.
var (
	ErrAlreadyAdvanced = &BenignError{Code: CodeAlreadyAdvanced, Message: "turn already advanced"}
	ErrNotCurrentTurn  = &BenignError{Code: CodeNotCurrentTurn, Message: "not the current turn"}
	ErrStaleTurn       = &BenignError{Code: CodeStaleTurn, Message: "stale turn sequence"}
)

// IsBenign reports whether err (or any error it wraps) is a benign race.
func IsBenign(err error) bool {
	var be *BenignError
	return errors.As(err, &be)
}

// BenignFromCode maps a wire error code to a benign error, or nil when the
// code does not name a benign race.
func BenignFromCode(code, message string) *BenignError {
	switch code {
	case CodeAlreadyAdvanced, CodeNotCurrentTurn, CodeStaleTurn:
		return &BenignError{Code: code, Message: message}
	default:
		return nil
	}
}
