// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package adapter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/chainplay/internal/gameerr"
	"github.com/tomtom215/chainplay/internal/metrics"
)

// retryDelay returns the wait before retry n (1-based).
func (c RetryConfig) retryDelay(n int) time.Duration {
	d := float64(c.BaseDelay) * math.Pow(c.BackoffMultiplier, float64(n-1))
	if d > float64(c.MaxDelay) || math.IsInf(d, 0) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// executeWithRetry runs fn up to MaxRetries+1 times with exponential
// backoff between attempts. Not-found and validation failures are returned
// at once. When every attempt fails the result is a data_source error (or
// timeout, if the last attempt timed out) naming op and carrying the last
// error's message. A cancelled ctx ends the backoff wait early.
func (a *Adapter) executeWithRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := a.cfg.Retry.MaxRetries + 1
	var last error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := a.cfg.Retry.retryDelay(attempt - 1)
			metrics.AdapterRetries.WithLabelValues(a.cfg.GameID, op).Inc()
			a.logger.Warn().Err(last).Str("operation", op).
				Int("attempt", attempt).Int("max_attempts", attempts).Dur("delay", delay).
				Msg("Retry attempt")

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				err := wrapError(a.cfg.GameID, op, ctx.Err())
				a.recordError(op, err)
				return err
			}
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		if permanent(last) {
			err := wrapError(a.cfg.GameID, op, last)
			a.recordError(op, err)
			return err
		}
	}

	kind := gameerr.KindDataSource
	if classify(last) == gameerr.KindTimeout {
		kind = gameerr.KindTimeout
	}
	err := &gameerr.Error{
		Kind:    kind,
		GameID:  a.cfg.GameID,
		Op:      op,
		Message: fmt.Sprintf("failed after %d attempts: %s", attempts, last.Error()),
		Err:     last,
	}
	a.recordError(op, err)
	return err
}
