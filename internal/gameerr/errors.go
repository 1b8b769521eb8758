// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

// Package gameerr defines the error kinds every adapter, connection and
// cache operation reports to callers.
//
// An *Error always names the game and the operation that failed and carries
// a stable Kind. The wrapped cause is kept for errors.Is/As but callers
// should branch on Kind, never on the cause's concrete type.
package gameerr

import (
	"errors"
	"fmt"
)

// Kind is the stable classification of an error.
type Kind string

const (
	KindConnection Kind = "connection"
	KindTimeout    Kind = "timeout"
	KindDataSource Kind = "data_source"
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindNetwork    Kind = "network"
	KindUnknown    Kind = "unknown"
)

// ErrNotFound is returned by sources when a player or asset does not exist.
var ErrNotFound = errors.New("not found")

// Error is the typed domain error.
type Error struct {
	Kind    Kind
	GameID  string
	Op      string
	Message string
	Err     error
}

// New builds an *Error with the given message.
func New(kind Kind, gameID, op, message string) *Error {
	return &Error{Kind: kind, GameID: gameID, Op: op, Message: message}
}

// Wrap builds an *Error whose message is err's text. A nil err yields nil.
func Wrap(kind Kind, gameID, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, GameID: gameID, Op: op, Message: err.Error(), Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.GameID != "" && e.Op != "":
		return fmt.Sprintf("%s error in %s/%s: %s", e.Kind, e.GameID, e.Op, e.Message)
	case e.Op != "":
		return fmt.Sprintf("%s error in %s: %s", e.Kind, e.Op, e.Message)
	default:
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind when target carries no game or op, so
// errors.Is(err, gameerr.Timeout) works as a kind test.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.GameID != "" && t.GameID != e.GameID {
		return false
	}
	if t.Op != "" && t.Op != e.Op {
		return false
	}
	return t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	Connection = &Error{Kind: KindConnection}
	Timeout    = &Error{Kind: KindTimeout}
	DataSource = &Error{Kind: KindDataSource}
	Validation = &Error{Kind: KindValidation}
	NotFound   = &Error{Kind: KindNotFound}
	Network    = &Error{Kind: KindNetwork}
	Unknown    = &Error{Kind: KindUnknown}
)

// KindOf returns the Kind of the outermost *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}
