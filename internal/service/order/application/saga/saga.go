// Package saga runs order creation as a chain of handlers. Each handler
// does one step, may push a compensating action, and passes the shared
// context on. When a step fails the service unwinds the pushed
// compensations in reverse order.
package saga

import (
	"context"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/port"
)

// Context is the mutable state threaded through the chain.
type Context struct {
	UserID    string
	AddressID string

	Address *port.Address
	User    *port.UserProfile
	Cart    *port.Cart
	Order   *domain.Order

	compensations []compensation
}

type compensation struct {
	name string
	run  func(ctx context.Context) error
}

// AddCompensation registers an undo action for a completed step.
func (c *Context) AddCompensation(name string, run func(ctx context.Context) error) {
	c.compensations = append(c.compensations, compensation{name: name, run: run})
}

// Compensate unwinds registered actions newest first. Failures are logged
// and do not stop the unwind.
func (c *Context) Compensate(ctx context.Context) {
	for i := len(c.compensations) - 1; i >= 0; i-- {
		comp := c.compensations[i]
		if err := comp.run(ctx); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("compensation", comp.name).Msg("compensation failed")
			continue
		}
		logger.Ctx(ctx).Info().Str("compensation", comp.name).Msg("compensation applied")
	}
	c.compensations = nil
}

type Handler interface {
	Handle(ctx context.Context, sc *Context) error
	SetNext(next Handler) Handler
}

// Base provides the chaining plumbing; embed it in every step.
type Base struct {
	next Handler
}

func (b *Base) SetNext(next Handler) Handler {
	b.next = next
	return next
}

func (b *Base) executeNext(ctx context.Context, sc *Context) error {
	if b.next == nil {
		return nil
	}
	return b.next.Handle(ctx, sc)
}
