package services

import (
	"context"
	"errors"
)

// Business outcomes. Handlers map these to user-facing responses; anything
// else is reported as a generic internal failure.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadyJoined     = errors.New("already joined")
	ErrMatchFull         = errors.New("match is full")
	ErrMatchLocked       = errors.New("match is locked")
	ErrNotFound          = errors.New("not found")
	ErrAccountNotFound   = wrapNotFound("account")
	ErrMatchNotFound     = wrapNotFound("match")
	ErrEntryNotFound     = wrapNotFound("ledger entry")
	ErrNotPending        = errors.New("entry is not pending")
	ErrSignatureInvalid  = errors.New("payment signature invalid")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrSlotTaken         = errors.New("team slot already taken")
	ErrInvalidSlot       = errors.New("invalid team slot")
	ErrNotTeamLeader     = errors.New("only the team leader can do this")
	ErrPlayerBanned      = errors.New("player is banned from matches")
	ErrInvalidInput      = errors.New("invalid input")
	ErrTransient         = errors.New("temporary storage failure, retry")
	ErrTimeout           = errors.New("operation timed out, nothing was applied")
)

type notFoundError struct{ what string }

func (e *notFoundError) Error() string { return e.what + " not found" }
func (e *notFoundError) Unwrap() error { return ErrNotFound }

func wrapNotFound(what string) error { return &notFoundError{what: what} }

type ErrorKind string

const (
	KindOK                ErrorKind = "ok"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindAlreadyJoined     ErrorKind = "already_joined"
	KindMatchFull         ErrorKind = "match_full"
	KindMatchLocked       ErrorKind = "match_locked"
	KindNotFound          ErrorKind = "not_found"
	KindNotPending        ErrorKind = "not_pending"
	KindSignatureInvalid  ErrorKind = "signature_invalid"
	KindInvalidAmount     ErrorKind = "invalid_amount"
	KindSlotTaken         ErrorKind = "slot_taken"
	KindInvalidSlot       ErrorKind = "invalid_slot"
	KindNotTeamLeader     ErrorKind = "not_team_leader"
	KindPlayerBanned      ErrorKind = "player_banned"
	KindInvalidInput      ErrorKind = "invalid_input"
	KindTransient         ErrorKind = "transient"
	KindTimeout           ErrorKind = "timeout"
	KindInternal          ErrorKind = "internal"
)

var kindTable = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrAlreadyJoined, KindAlreadyJoined},
	{ErrMatchFull, KindMatchFull},
	{ErrMatchLocked, KindMatchLocked},
	{ErrNotFound, KindNotFound},
	{ErrNotPending, KindNotPending},
	{ErrSignatureInvalid, KindSignatureInvalid},
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrSlotTaken, KindSlotTaken},
	{ErrInvalidSlot, KindInvalidSlot},
	{ErrNotTeamLeader, KindNotTeamLeader},
	{ErrPlayerBanned, KindPlayerBanned},
	{ErrInvalidInput, KindInvalidInput},
	{ErrTransient, KindTransient},
	{ErrTimeout, KindTimeout},
	{context.DeadlineExceeded, KindTimeout},
}

// KindOf classifies err into a stable kind. nil is KindOK.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindOK
	}
	for _, k := range kindTable {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsBusinessError reports whether err is an expected outcome that can be
// shown to the user as-is.
func IsBusinessError(err error) bool {
	switch KindOf(err) {
	case KindOK, KindInternal, KindTransient, KindTimeout:
		return false
	}
	return true
}
