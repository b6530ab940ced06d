// Package apperr holds the error taxonomy shared by invites and game sessions.
// Every error is local and recoverable; callers surface the reason code to the client.
package apperr

import "errors"

type Code string

const (
	CodeInvalidTarget   Code = "invalid_target"
	CodeDuplicateInvite Code = "duplicate_invite"
	CodeNotFound        Code = "not_found"
	CodeUnauthorized    Code = "unauthorized"
	CodeInvalidState    Code = "invalid_state"
	CodeInvalidWord     Code = "invalid_word"
	CodeInvalidLetter   Code = "invalid_letter"
	CodeInternal        Code = "internal"
)

var ErrInvalidTarget = errors.New("invalid target")
var ErrDuplicateInvite = errors.New("duplicate invite")
var ErrNotFound = errors.New("not found")
var ErrUnauthorized = errors.New("unauthorized")
var ErrInvalidState = errors.New("invalid state")
var ErrInvalidWord = errors.New("invalid word")
var ErrInvalidLetter = errors.New("invalid letter")

var codes = []struct {
	err  error
	code Code
}{
	{ErrInvalidTarget, CodeInvalidTarget},
	{ErrDuplicateInvite, CodeDuplicateInvite},
	{ErrNotFound, CodeNotFound},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrInvalidState, CodeInvalidState},
	{ErrInvalidWord, CodeInvalidWord},
	{ErrInvalidLetter, CodeInvalidLetter},
}

// CodeOf returns the reason code for err, or CodeInternal when err is not
// part of the taxonomy.
func CodeOf(err error) Code {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
