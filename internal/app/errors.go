package app

import (
	"errors"

	"bluff/internal/domain"
	"bluff/internal/ports"
)

// ErrorReply is the error message sent back to the acting connection.
type ErrorReply struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// Describe turns any action error into a reply safe to show the player.
// Refused actions keep their code and message; everything else is INTERNAL.
func Describe(err error) ErrorReply {
	var de *domain.Error
	if errors.As(err, &de) && de.Code != domain.CodeInternal {
		return ErrorReply{Code: de.Code, Message: de.Message}
	}
	if errors.Is(err, ports.ErrConflict) {
		return ErrorReply{Code: domain.CodeInternal, Message: "game changed concurrently, try again"}
	}
	return ErrorReply{Code: domain.CodeInternal, Message: "internal error"}
}

// IsRefusal reports whether err is a rule violation rather than a server failure.
func IsRefusal(err error) bool {
	return Describe(err).Code != domain.CodeInternal
}
