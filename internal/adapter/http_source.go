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
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/chainplay/internal/gameerr"
	"github.com/tomtom215/chainplay/internal/logging"
	"github.com/tomtom215/chainplay/internal/metrics"
)

// HTTPSourceConfig configures an HTTPSource.
type HTTPSourceConfig struct {
	GameID  string
	BaseURL string
	// PlayerPath is appended to BaseURL; {playerId} is replaced with the
	// escaped player ID.
	PlayerPath string
	// HealthPath is requested by Ping.
	HealthPath        string
	Header            http.Header
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// HTTPSource fetches raw player payloads from a game's JSON API behind a
// circuit breaker and a client-side rate limit.
type HTTPSource struct {
	cfg     HTTPSourceConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[RawRecord]
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewHTTPSource builds an HTTPSource. Circuit breaker policy: opens at a
// 60% failure rate over at least 10 requests in a one-minute window and
// probes again after 30 seconds.
func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PlayerPath == "" {
		cfg.PlayerPath = "/players/{playerId}"
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = max(1, int(cfg.RequestsPerSecond))
	}

	name := cfg.GameID + "-source"
	logger := logging.WithComponent("source").With().Str("game_id", cfg.GameID).Logger()
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	s := &HTTPSource{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker[RawRecord](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= 0.6 {
				logger.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", ratio*100).Msg("Opening circuit")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info().Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		// A missing player or a rejected request says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			switch classify(err) {
			case gameerr.KindNotFound, gameerr.KindValidation:
				return true
			}
			return errors.Is(err, context.Canceled)
		},
	})
	return s
}

// FetchRaw makes one request for playerID.
func (s *HTTPSource) FetchRaw(ctx context.Context, playerID string) (RawRecord, error) {
	path := strings.ReplaceAll(s.cfg.PlayerPath, "{playerId}", url.PathEscape(playerID))
	return s.breaker.Execute(func() (RawRecord, error) {
		body, err := s.get(ctx, path)
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
				return nil, fmt.Errorf("player %s: %w", playerID, gameerr.ErrNotFound)
			}
			return nil, err
		}
		return DecodeRaw(body)
	})
}

// Ping requests the health path.
func (s *HTTPSource) Ping(ctx context.Context) error {
	_, err := s.breaker.Execute(func() (RawRecord, error) {
		_, err := s.get(ctx, s.cfg.HealthPath)
		return nil, err
	})
	return err
}

// Close releases idle connections.
func (s *HTTPSource) Close() {
	s.client.CloseIdleConnections()
}

// BreakerState returns the circuit breaker state name.
func (s *HTTPSource) BreakerState() string {
	return s.breaker.State().String()
}

func (s *HTTPSource) get(ctx context.Context, path string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := strings.TrimRight(s.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range s.cfg.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
