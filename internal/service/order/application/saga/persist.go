package saga

import (
	"context"

	"storefront/internal/service/order/domain"
)

// PersistHandler writes the order and its item snapshots in one transaction.
type PersistHandler struct {
	Base
	repo domain.Repository
}

func NewPersistHandler(repo domain.Repository) *PersistHandler {
	return &PersistHandler{repo: repo}
}

func (h *PersistHandler) Handle(ctx context.Context, sc *Context) error {
	if err := h.repo.Create(ctx, sc.Order); err != nil {
		return err
	}
	return h.executeNext(ctx, sc)
}
