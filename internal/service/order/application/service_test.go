package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"storefront/internal/idempotency"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/port"
)

type memOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]*domain.Order
	failNext  error
	createdAt []string // insertion order for FindAll
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]*domain.Order)}
}

func (r *memOrderRepo) Create(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	cp := *order
	r.orders[order.ID] = &cp
	r.createdAt = append(r.createdAt, order.ID)
	return nil
}

func (r *memOrderRepo) FindByID(ctx context.Context, orderID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *memOrderRepo) FindByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, id := range r.createdAt {
		if r.orders[id].UserID == userID {
			cp := *r.orders[id]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memOrderRepo) FindAll(ctx context.Context) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Order, 0, len(r.createdAt))
	for _, id := range r.createdAt {
		cp := *r.orders[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memOrderRepo) Save(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *order
	r.orders[order.ID] = &cp
	return nil
}

// fakeCollaborators implements every outbound port with canned data and
// failure injection.
type fakeCollaborators struct {
	mu          sync.Mutex
	cart        *port.Cart
	cartErr     error
	addressErr  error
	userErr     error
	chargeErr   error
	charges     int
	refunds     []string
	notified    []string
	notifyErr   error
	products    map[string]*port.Product
	nextPayment string
}

func newFakeCollaborators() *fakeCollaborators {
	return &fakeCollaborators{
		cart: &port.Cart{
			UserID: "u1",
			Items: []port.CartItem{
				{ProductID: "p1", Quantity: 2},
				{ProductID: "p2", Quantity: 1},
			},
		},
		products: map[string]*port.Product{
			"p1": {ID: "p1", Name: "Mug", Price: 10.0},
			"p2": {ID: "p2", Name: "Poster", Price: 25.0},
		},
		nextPayment: "pay-1",
	}
}

func (f *fakeCollaborators) GetAddress(ctx context.Context, addressID string) (*port.Address, error) {
	if f.addressErr != nil {
		return nil, f.addressErr
	}
	return &port.Address{ID: addressID, Line1: "1 Main St", City: "Springfield"}, nil
}

func (f *fakeCollaborators) GetUser(ctx context.Context, userID string) (*port.UserProfile, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	return &port.UserProfile{ID: userID, Email: "u@example.com", Name: "U"}, nil
}

func (f *fakeCollaborators) GetCart(ctx context.Context, userID string) (*port.Cart, error) {
	if f.cartErr != nil {
		return nil, f.cartErr
	}
	return f.cart, nil
}

func (f *fakeCollaborators) GetProduct(ctx context.Context, productID string) (*port.Product, error) {
	p, ok := f.products[productID]
	if !ok {
		return nil, errors.New("no such product")
	}
	return p, nil
}

func (f *fakeCollaborators) Charge(ctx context.Context, userID, orderID string, amount float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chargeErr != nil {
		return "", f.chargeErr
	}
	f.charges++
	return f.nextPayment, nil
}

func (f *fakeCollaborators) Refund(ctx context.Context, paymentID string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, paymentID)
	return nil
}

func (f *fakeCollaborators) OrderCreated(ctx context.Context, orderID, userID string, total float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.notified = append(f.notified, orderID)
	return nil
}

func (f *fakeCollaborators) OrderCancelled(ctx context.Context, orderID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, "cancel:"+orderID)
	return nil
}

func newTestService() (*Service, *memOrderRepo, *fakeCollaborators) {
	repo := newMemOrderRepo()
	collab := newFakeCollaborators()
	svc := NewService(
		repo,
		idempotency.NewMemory(),
		collab, collab, collab, collab, collab,
		Pricing{TaxRate: 0.10, ShippingFee: 5.0, PaymentEpsilon: 0.01},
		noop.NewTracerProvider().Tracer("test"),
	)
	return svc, repo, collab
}

func createReq() *CreateOrderRequest {
	return &CreateOrderRequest{UserID: "u1", ShippingAddressID: "a1"}
}

func TestCreateOrderHappyPath(t *testing.T) {
	svc, repo, collab := newTestService()
	ctx := context.Background()

	resp, err := svc.CreateOrder(ctx, createReq(), "key-1")
	require.NoError(t, err)

	// 2 * 10 + 1 * 25 = 45 subtotal, 4.50 tax, 5 shipping.
	assert.InDelta(t, 45.0, resp.Subtotal, 1e-9)
	assert.InDelta(t, 4.5, resp.Tax, 1e-9)
	assert.InDelta(t, 5.0, resp.ShippingFee, 1e-9)
	assert.InDelta(t, 54.5, resp.TotalPrice, 1e-9)
	assert.Equal(t, string(domain.StatusPaid), resp.Status)
	assert.Equal(t, "pay-1", resp.PaymentID)
	require.Len(t, resp.Items, 2)
	assert.InDelta(t, 20.0, resp.Items[0].LineTotal, 1e-9)

	stored, err := repo.FindByID(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, stored.Status)
	assert.Equal(t, []string{resp.ID}, collab.notified)
	assert.Equal(t, 1, collab.charges)
}

func TestCreateOrderEmptyCartAborts(t *testing.T) {
	svc, repo, collab := newTestService()
	collab.cart = &port.Cart{UserID: "u1"}

	_, err := svc.CreateOrder(context.Background(), createReq(), "key-1")
	require.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.Equal(t, 0, collab.charges, "nothing may be charged for an empty cart")
	all, _ := repo.FindAll(context.Background())
	assert.Empty(t, all)
}

func TestCreateOrderCustomerLookupFailureAborts(t *testing.T) {
	svc, _, collab := newTestService()
	collab.addressErr = errors.New("identity down")

	_, err := svc.CreateOrder(context.Background(), createReq(), "key-1")
	require.Error(t, err)
	assert.Equal(t, 0, collab.charges)
}

func TestCreateOrderPaymentFailureIsRetryable(t *testing.T) {
	svc, repo, collab := newTestService()
	ctx := context.Background()
	collab.chargeErr = errors.New("card declined")

	_, err := svc.CreateOrder(ctx, createReq(), "key-1")
	require.Error(t, err)
	all, _ := repo.FindAll(ctx)
	assert.Empty(t, all, "failed saga must not persist an order")

	// Same key retries cleanly once the payment processor recovers.
	collab.chargeErr = nil
	resp, err := svc.CreateOrder(ctx, createReq(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusPaid), resp.Status)
}

func TestCreateOrderPersistFailureRefundsPayment(t *testing.T) {
	svc, repo, collab := newTestService()
	repo.failNext = errors.New("deadlock")

	_, err := svc.CreateOrder(context.Background(), createReq(), "key-1")
	require.Error(t, err)
	assert.Equal(t, 1, collab.charges)
	assert.Equal(t, []string{"pay-1"}, collab.refunds, "captured payment must be refunded on abort")
}

func TestCreateOrderIdempotentReplay(t *testing.T) {
	svc, _, collab := newTestService()
	ctx := context.Background()

	first, err := svc.CreateOrder(ctx, createReq(), "key-1")
	require.NoError(t, err)
	second, err := svc.CreateOrder(ctx, createReq(), "key-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "replay must return the original order")
	assert.Equal(t, 1, collab.charges, "replay must not charge twice")
}

func TestCreateOrderNotificationFailureDoesNotAbort(t *testing.T) {
	svc, repo, collab := newTestService()
	collab.notifyErr = errors.New("broker down")

	resp, err := svc.CreateOrder(context.Background(), createReq(), "key-1")
	require.NoError(t, err)
	stored, err := repo.FindByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, stored.Status)
}

func TestCancelOrderGuards(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	resp, err := svc.CreateOrder(ctx, createReq(), "key-1")
	require.NoError(t, err)

	// Wrong owner.
	_, err = svc.CancelOrder(ctx, &CancelOrderRequest{OrderID: resp.ID, UserID: "intruder"}, "")
	require.ErrorIs(t, err, domain.ErrNotOwner)

	// PAID cancels fine.
	cancelled, err := svc.CancelOrder(ctx, &CancelOrderRequest{OrderID: resp.ID, UserID: "u1"}, "")
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusCancelled), cancelled.Status)

	// Shipped orders cannot be cancelled.
	resp2, err := svc.CreateOrder(ctx, createReq(), "key-2")
	require.NoError(t, err)
	_, err = svc.UpdateOrderStatus(ctx, &UpdateOrderStatusRequest{OrderID: resp2.ID, Status: "SHIPPED"}, "")
	require.NoError(t, err)
	_, err = svc.CancelOrder(ctx, &CancelOrderRequest{OrderID: resp2.ID, UserID: "u1"}, "")
	require.ErrorIs(t, err, domain.ErrCannotCancel)

	stored, err := repo.FindByID(ctx, resp2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusShipped, stored.Status, "failed cancel must not change status")
}

func TestUpdateOrderStatusForwardOnly(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	resp, err := svc.CreateOrder(ctx, createReq(), "key-1")
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(ctx, &UpdateOrderStatusRequest{OrderID: resp.ID, Status: "DELIVERED"}, "")
	require.NoError(t, err)

	// Backward move rejected.
	_, err = svc.UpdateOrderStatus(ctx, &UpdateOrderStatusRequest{OrderID: resp.ID, Status: "SHIPPED"}, "")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestAddPaymentRecordEpsilon(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	resp, err := svc.CreateOrder(ctx, createReq(), "key-1")
	require.NoError(t, err)

	// Off by half a cent: accepted.
	updated, err := svc.AddPaymentRecord(ctx, &AddPaymentRecordRequest{
		OrderID: resp.ID, PaymentID: "ext-1", Amount: resp.TotalPrice + 0.005,
	})
	require.NoError(t, err)
	assert.Equal(t, "ext-1", updated.PaymentID)

	// Off by a dollar: rejected.
	_, err = svc.AddPaymentRecord(ctx, &AddPaymentRecordRequest{
		OrderID: resp.ID, PaymentID: "ext-2", Amount: resp.TotalPrice + 1.0,
	})
	require.ErrorIs(t, err, domain.ErrPaymentMismatch)
}

func TestGetUserOrders(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, createReq(), "key-1")
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, createReq(), "key-2")
	require.NoError(t, err)

	orders, err := svc.GetUserOrders(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	none, err := svc.GetUserOrders(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}
