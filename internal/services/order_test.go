package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marshallmay28/zetumall-backend/internal/db"
	"github.com/Marshallmay28/zetumall-backend/internal/models"
)

var storeOwner = Identity{ID: "owner-1"}

func seedCatalog(store *db.MemStore) {
	store.SeedStore(models.Store{
		ID:             "store-1",
		UserID:         storeOwner.ID,
		Name:           "Corner Electronics",
		Status:         "ACTIVE",
		IsActive:       true,
		CommissionRate: d("10"),
	})
	store.SeedProduct(models.Product{ID: "prod-1", StoreID: "store-1", Name: "Phone", Price: d("250.00"), Stock: 5})
	store.SeedProduct(models.Product{ID: "prod-2", StoreID: "store-1", Name: "Charger", Price: d("25.50"), Stock: 10})
}

func newOrderService(store *db.MemStore) *OrderService {
	return NewOrderService(store, NewEscrowService(store))
}

func validOrderInput() CreateOrderInput {
	return CreateOrderInput{
		StoreID: "store-1",
		Items: []OrderItemInput{
			{ProductID: "prod-1", Quantity: 2},
			{ProductID: "prod-2", Quantity: 1},
		},
		ShippingAddress: "12 Moi Avenue, Nairobi",
		ShippingPhone:   "254700000001",
		PaymentMethod:   "MPESA",
	}
}

func TestCreateOrder(t *testing.T) {
	store := db.NewMemStore()
	seedCatalog(store)
	svc := newOrderService(store)

	order, err := svc.Create(context.Background(), buyer, validOrderInput())
	require.NoError(t, err)

	// Total is priced from the catalog: 2*250.00 + 25.50.
	assert.True(t, d("525.50").Equal(order.Total), "total = %s", order.Total)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, "PENDING", order.PaymentStatus)

	// The escrow is opened in the same unit, split per the store's rate.
	esc, err := store.EscrowByOrderID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowHeld, esc.Status)
	assert.Equal(t, storeOwner.ID, esc.SellerID)
	assert.True(t, d("52.55").Equal(esc.PlatformFee))
	assert.True(t, esc.Amount.Equal(esc.PlatformFee.Add(esc.SellerAmount)))
}

func TestCreateOrderMissingProductAbortsAll(t *testing.T) {
	store := db.NewMemStore()
	seedCatalog(store)
	svc := newOrderService(store)

	in := validOrderInput()
	in.Items = append(in.Items, OrderItemInput{ProductID: "prod-missing", Quantity: 1})

	_, err := svc.Create(context.Background(), buyer, in)
	assert.ErrorIs(t, err, ErrNotFound)

	// Nothing was written.
	orders, err := store.OrdersByBuyer(context.Background(), buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrderRejectsBadQuantity(t *testing.T) {
	store := db.NewMemStore()
	seedCatalog(store)
	svc := newOrderService(store)

	in := validOrderInput()
	in.Items[0].Quantity = 0

	_, err := svc.Create(context.Background(), buyer, in)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCreateOrderInactiveStore(t *testing.T) {
	store := db.NewMemStore()
	store.SeedStore(models.Store{ID: "store-1", UserID: storeOwner.ID, Status: "SUSPENDED", IsActive: false, CommissionRate: d("10")})
	svc := newOrderService(store)

	_, err := svc.Create(context.Background(), buyer, validOrderInput())
	assert.ErrorIs(t, err, ErrStoreNotOrderable)
}

func TestOrderStatusLifecycle(t *testing.T) {
	store := db.NewMemStore()
	seedCatalog(store)
	svc := newOrderService(store)
	ctx := context.Background()

	order, err := svc.Create(ctx, buyer, validOrderInput())
	require.NoError(t, err)

	for _, next := range []models.OrderStatus{
		models.OrderConfirmed,
		models.OrderProcessing,
		models.OrderShipped,
		models.OrderDelivered,
	} {
		order, err = svc.UpdateStatus(ctx, order.ID, next, storeOwner)
		require.NoError(t, err, "advance to %s", next)
		assert.Equal(t, next, order.Status)
	}
	require.NotNil(t, order.ShippedAt)
	require.NotNil(t, order.DeliveredAt)

	// Delivered is terminal.
	_, err = svc.UpdateStatus(ctx, order.ID, models.OrderCancelled, storeOwner)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatusRejectsSkips(t *testing.T) {
	store := db.NewMemStore()
	seedCatalog(store)
	svc := newOrderService(store)
	ctx := context.Background()

	order, err := svc.Create(ctx, buyer, validOrderInput())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, order.ID, models.OrderShipped, storeOwner)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatusOwnershipRequired(t *testing.T) {
	store := db.NewMemStore()
	seedCatalog(store)
	svc := newOrderService(store)
	ctx := context.Background()

	order, err := svc.Create(ctx, buyer, validOrderInput())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, order.ID, models.OrderConfirmed, buyer)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// An admin may act in the owner's stead.
	_, err = svc.UpdateStatus(ctx, order.ID, models.OrderConfirmed, admin)
	assert.NoError(t, err)
}

func TestCancel(t *testing.T) {
	store := db.NewMemStore()
	seedCatalog(store)
	svc := newOrderService(store)
	ctx := context.Background()

	order, err := svc.Create(ctx, buyer, validOrderInput())
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, order.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)
}

func TestCancelAfterConfirmFails(t *testing.T) {
	store := db.NewMemStore()
	seedCatalog(store)
	svc := newOrderService(store)
	ctx := context.Background()

	order, err := svc.Create(ctx, buyer, validOrderInput())
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, order.ID, models.OrderConfirmed, storeOwner)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, order.ID, buyer)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelNotBuyer(t *testing.T) {
	store := db.NewMemStore()
	seedCatalog(store)
	svc := newOrderService(store)
	ctx := context.Background()

	order, err := svc.Create(ctx, buyer, validOrderInput())
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, order.ID, storeOwner)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestGetOrderVisibility(t *testing.T) {
	store := db.NewMemStore()
	seedCatalog(store)
	svc := newOrderService(store)
	ctx := context.Background()

	order, err := svc.Create(ctx, buyer, validOrderInput())
	require.NoError(t, err)

	for _, actor := range []Identity{buyer, storeOwner, admin} {
		_, err := svc.Get(ctx, order.ID, actor)
		assert.NoError(t, err)
	}
	_, err = svc.Get(ctx, order.ID, Identity{ID: "stranger"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestListForStoreOwnershipRequired(t *testing.T) {
	store := db.NewMemStore()
	seedCatalog(store)
	svc := newOrderService(store)
	ctx := context.Background()

	_, err := svc.Create(ctx, buyer, validOrderInput())
	require.NoError(t, err)

	orders, err := svc.ListForStore(ctx, "store-1", storeOwner)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	_, err = svc.ListForStore(ctx, "store-1", buyer)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
