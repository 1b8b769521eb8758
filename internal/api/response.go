// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/tomtom215/chainplay/internal/gameerr"
	"github.com/tomtom215/chainplay/internal/logging"
	"github.com/tomtom215/chainplay/internal/validation"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    APIMeta   `json:"meta"`
}

// APIError is the error part of a failed response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// APIMeta carries tracing metadata.
type APIMeta struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Error codes for API responses
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeUpstreamTimeout    = "UPSTREAM_TIMEOUT"
	ErrCodeUpstreamFailed     = "UPSTREAM_FAILED"
)

func meta(r *http.Request) APIMeta {
	return APIMeta{RequestID: middleware.GetReqID(r.Context()), Timestamp: time.Now().UTC()}
}

// respondJSON writes a successful envelope around data.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeEnvelope(w, r, status, &APIResponse{Success: status < 400, Data: data, Meta: meta(r)})
}

// respondError writes a failed envelope.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	writeEnvelope(w, r, status, &APIResponse{
		Error: &APIError{Code: code, Message: message, Details: details},
		Meta:  meta(r),
	})
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, status int, body *APIResponse) {
	data, err := json.Marshal(body)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondGameError maps a domain error onto an HTTP status by kind.
func respondGameError(w http.ResponseWriter, r *http.Request, err error) {
	kind := gameerr.KindOf(err)
	switch kind {
	case gameerr.KindNotFound:
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, err.Error(), nil)
	case gameerr.KindValidation:
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), nil)
	case gameerr.KindTimeout:
		respondError(w, r, http.StatusGatewayTimeout, ErrCodeUpstreamTimeout, err.Error(), nil)
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("kind", string(kind)).Msg("Game request failed")
		respondError(w, r, http.StatusBadGateway, ErrCodeUpstreamFailed, err.Error(), nil)
	}
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the error response itself and reports false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body", err.Error())
		return false
	}
	if err := validation.ValidateStruct(dst); err != nil {
		var verrs *validation.Errors
		if errors.As(err, &verrs) {
			respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, "request validation failed", verrs.Fields)
			return false
		}
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), nil)
		return false
	}
	return true
}
