package saga

import (
	"context"

	"golang.org/x/sync/errgroup"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/port"
)

// CustomerHandler resolves the shipping address and the user profile. The
// two lookups are independent, so they run in parallel; either failure
// aborts the saga before anything has been charged or written.
type CustomerHandler struct {
	Base
	identity port.IdentityService
}

func NewCustomerHandler(identity port.IdentityService) *CustomerHandler {
	return &CustomerHandler{identity: identity}
}

func (h *CustomerHandler) Handle(ctx context.Context, sc *Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr, err := h.identity.GetAddress(gctx, sc.AddressID)
		if err != nil {
			return err
		}
		sc.Address = addr
		return nil
	})
	g.Go(func() error {
		user, err := h.identity.GetUser(gctx, sc.UserID)
		if err != nil {
			return err
		}
		sc.User = user
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Ctx(ctx).Debug().Str("user_id", sc.UserID).Str("address_id", sc.AddressID).Msg("customer resolved")
	return h.executeNext(ctx, sc)
}
