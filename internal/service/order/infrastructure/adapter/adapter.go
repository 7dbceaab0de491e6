// Package adapter implements the order saga's outbound ports over traced
// HTTP with discovery. Every remote operation gets its own circuit breaker,
// built once at adapter construction.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/breaker"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/httpclient"
)

// breakerConfig converts YAML-friendly settings into a breaker config.
func breakerConfig(s bootstrap.BreakerSettings) breaker.Config {
	return breaker.Config{
		Timeout:                  time.Duration(s.TimeoutMs) * time.Millisecond,
		ErrorThresholdPercentage: s.ErrorThresholdPercentage,
		ResetTimeout:             time.Duration(s.ResetTimeoutMs) * time.Millisecond,
		RollingWindow:            time.Duration(s.RollingWindowMs) * time.Millisecond,
		MinRequests:              s.MinRequests,
	}
}

// unavailableFallback is the standard fallback: an actionable message that
// keeps the breaker's cause chain intact for status mapping upstream.
func unavailableFallback(what string) breaker.Fallback {
	return func(ctx context.Context, cause error) error {
		return fmt.Errorf("%s is temporarily unavailable, please retry later: %w", what, cause)
	}
}

// newBreaker builds the breaker for one named remote operation from config.
func newBreaker(cfg *bootstrap.Config, operation, what string) *breaker.Breaker {
	return breaker.MustNew(operation, breakerConfig(cfg.BreakerFor(operation)), unavailableFallback(what))
}

// notFoundAs rewrites a collaborator 404 into the given domain error, leaving
// every other failure untouched.
func notFoundAs(err, domainErr error) error {
	var se *httpclient.StatusError
	if errors.As(err, &se) && se.Code == 404 {
		return domainErr
	}
	return err
}
