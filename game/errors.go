package game

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller is expected to react.
type Kind string

const (
	// KindValidation is a caller mistake; retrying with different input is safe.
	KindValidation Kind = "validation"
	// KindTurn means the caller must wait for its turn or stop.
	KindTurn Kind = "turn"
	// KindConflict means another move won the turn lock; the caller may retry.
	KindConflict Kind = "conflict"
	// KindConsistency means the persisted match is corrupt and needs an operator.
	KindConsistency Kind = "consistency"
)

// Error is the coded game error. Two errors are equal under errors.Is when
// their codes match, so wrapped instances still match the sentinels below.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap returns a copy of base carrying cause.
func Wrap(base *Error, cause error) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: base.Message, Cause: cause}
}

// Errorf returns a copy of base with a formatted detail appended to its message.
func Errorf(base *Error, format string, args ...any) *Error {
	return &Error{
		Kind:    base.Kind,
		Code:    base.Code,
		Message: base.Message + ": " + fmt.Sprintf(format, args...),
	}
}

// KindOf returns the kind of the first game error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

var (
	ErrInvalidPairCount    = newError(KindValidation, "invalid_pair_count", "pair count must be at least 1")
	ErrInvalidPlayers      = newError(KindValidation, "invalid_players", "a match needs two distinct players")
	ErrInvalidTurnDuration = newError(KindValidation, "invalid_turn_duration", "turn duration must be positive")
	ErrCardNotFound        = newError(KindValidation, "card_not_found", "card not found")
	ErrCardAlreadyMatched  = newError(KindValidation, "card_already_matched", "card is already matched")
	ErrCardAlreadyRevealed = newError(KindValidation, "card_already_revealed", "card is already revealed")

	ErrMatchFinished  = newError(KindTurn, "match_finished", "match is finished")
	ErrNotYourTurn    = newError(KindTurn, "not_your_turn", "you are not allowed to move now")
	ErrNotParticipant = newError(KindTurn, "not_participant", "player is not part of this match")

	ErrTurnConflict = newError(KindConflict, "turn_conflict", "another move is in progress")

	ErrInvalidStage  = newError(KindConsistency, "invalid_stage", "match has an impossible stage")
	ErrCorruptTurn   = newError(KindConsistency, "corrupt_turn", "unfinished match has no active player")
	ErrCorruptDeck   = newError(KindConsistency, "corrupt_deck", "deck violates the two cards per pair rule")
	ErrPartialCommit = newError(KindConsistency, "partial_commit", "match completion could not be committed")
)
