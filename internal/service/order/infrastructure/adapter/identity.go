package adapter

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/breaker"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/constants"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/service/order/port"
)

var (
	ErrAddressNotFound = errors.New("shipping address not found")
	ErrUserNotFound    = errors.New("user not found")
)

type IdentityAdapter struct {
	client    *httpclient.Client
	addressBr *breaker.Breaker
	userBr    *breaker.Breaker
}

func NewIdentityAdapter(client *httpclient.Client, cfg *bootstrap.Config) *IdentityAdapter {
	return &IdentityAdapter{
		client:    client,
		addressBr: newBreaker(cfg, "identity.get_address", "address lookup"),
		userBr:    newBreaker(cfg, "identity.get_user", "user lookup"),
	}
}

func (a *IdentityAdapter) GetAddress(ctx context.Context, addressID string) (*port.Address, error) {
	var addr port.Address
	err := a.addressBr.Do(ctx, func(ctx context.Context) error {
		path := fmt.Sprintf("%s/%s", constants.IdentityAddressPath, addressID)
		return a.client.GetJSON(ctx, constants.IdentityService, path, &addr)
	})
	if err != nil {
		return nil, notFoundAs(err, ErrAddressNotFound)
	}
	return &addr, nil
}

func (a *IdentityAdapter) GetUser(ctx context.Context, userID string) (*port.UserProfile, error) {
	var user port.UserProfile
	err := a.userBr.Do(ctx, func(ctx context.Context) error {
		path := fmt.Sprintf("%s/%s", constants.IdentityUserPath, userID)
		return a.client.GetJSON(ctx, constants.IdentityService, path, &user)
	})
	if err != nil {
		return nil, notFoundAs(err, ErrUserNotFound)
	}
	return &user, nil
}
