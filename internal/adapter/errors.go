// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/chainplay/internal/gameerr"
	"github.com/tomtom215/chainplay/internal/validation"
)

// StatusError is a non-2xx response from an upstream HTTP API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// classify maps err onto a domain error kind.
func classify(err error) gameerr.Kind {
	var ge *gameerr.Error
	if errors.As(err, &ge) {
		return ge.Kind
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusNotFound:
			return gameerr.KindNotFound
		case statusErr.StatusCode == http.StatusRequestTimeout, statusErr.StatusCode == http.StatusGatewayTimeout:
			return gameerr.KindTimeout
		case statusErr.StatusCode == http.StatusBadRequest, statusErr.StatusCode == http.StatusUnprocessableEntity:
			return gameerr.KindValidation
		default:
			return gameerr.KindNetwork
		}
	}

	var validationErrs *validation.Errors
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, gameerr.ErrNotFound):
		return gameerr.KindNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return gameerr.KindTimeout
	case errors.As(err, &validationErrs), errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return gameerr.KindValidation
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return gameerr.KindNetwork
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return gameerr.KindNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return gameerr.KindTimeout
		}
		return gameerr.KindNetwork
	}
	return gameerr.KindUnknown
}

// wrapError turns err into an *gameerr.Error for gameID/op, keeping an
// existing domain error as is.
func wrapError(gameID, op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *gameerr.Error
	if errors.As(err, &ge) {
		return err
	}
	return &gameerr.Error{Kind: classify(err), GameID: gameID, Op: op, Message: err.Error(), Err: err}
}

// permanent reports whether retrying err cannot help.
func permanent(err error) bool {
	switch classify(err) {
	case gameerr.KindNotFound, gameerr.KindValidation:
		return true
	}
	return errors.Is(err, context.Canceled)
}
