package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine readable reason a game action was refused.
type ErrorCode string

const (
	CodeNotYourTurn         ErrorCode = "NOT_YOUR_TURN"
	CodeInvalidCards        ErrorCode = "INVALID_CARDS"
	CodeInvalidRank         ErrorCode = "INVALID_RANK"
	CodeRankNotAllowed      ErrorCode = "RANK_NOT_ALLOWED"
	CodeNothingToChallenge  ErrorCode = "NOTHING_TO_CHALLENGE"
	CodeCannotChallengeSelf ErrorCode = "CANNOT_CHALLENGE_SELF"
	CodeGameNotFound        ErrorCode = "GAME_NOT_FOUND"
	CodeGameAlreadyFinished ErrorCode = "GAME_ALREADY_FINISHED"
	CodeGameNotWaiting      ErrorCode = "GAME_NOT_WAITING"
	CodeGameNotPlaying      ErrorCode = "GAME_NOT_PLAYING"
	CodeGameFull            ErrorCode = "GAME_FULL"
	CodeNotCreator          ErrorCode = "NOT_CREATOR"
	CodeNotEnoughPlayers    ErrorCode = "NOT_ENOUGH_PLAYERS"
	CodeNotSeated           ErrorCode = "NOT_SEATED"
	CodeInvalidArgument     ErrorCode = "INVALID_ARGUMENT"
	CodeInternal            ErrorCode = "INTERNAL"
)

// Error is a precondition failure reported back to the acting player only.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error carrying the same code, so wrapped or re-created
// errors compare equal to the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrNotYourTurn         = &Error{Code: CodeNotYourTurn, Message: "it is not your turn"}
	ErrInvalidCards        = &Error{Code: CodeInvalidCards, Message: "cards are missing or not in your hand"}
	ErrInvalidRank         = &Error{Code: CodeInvalidRank, Message: "declared rank is not a valid rank"}
	ErrRankNotAllowed      = &Error{Code: CodeRankNotAllowed, Message: "declared rank must be adjacent to the current rank"}
	ErrNothingToChallenge  = &Error{Code: CodeNothingToChallenge, Message: "there is no play to challenge"}
	ErrCannotChallengeSelf = &Error{Code: CodeCannotChallengeSelf, Message: "you cannot challenge your own play"}
	ErrGameNotFound        = &Error{Code: CodeGameNotFound, Message: "game not found"}
	ErrGameAlreadyFinished = &Error{Code: CodeGameAlreadyFinished, Message: "game already finished"}
	ErrGameNotWaiting      = &Error{Code: CodeGameNotWaiting, Message: "game already started"}
	ErrGameNotPlaying      = &Error{Code: CodeGameNotPlaying, Message: "game has not started"}
	ErrGameFull            = &Error{Code: CodeGameFull, Message: "game is full"}
	ErrNotCreator          = &Error{Code: CodeNotCreator, Message: "only the creator can start the game"}
	ErrNotEnoughPlayers    = &Error{Code: CodeNotEnoughPlayers, Message: "not enough players to start"}
	ErrNotSeated           = &Error{Code: CodeNotSeated, Message: "you are not seated in this game"}
)

// ErrInvariant marks a state that must never be committed.
var ErrInvariant = &Error{Code: CodeInternal, Message: "game state invariant violated"}

// InvalidArgument builds a coded error for malformed input such as an empty game name.
func InvalidArgument(msg string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: msg}
}

// CodeOf extracts the code of a domain error, or CodeInternal for anything else.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
