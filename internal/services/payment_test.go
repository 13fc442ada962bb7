package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marshallmay28/zetumall-backend/internal/db"
	"github.com/Marshallmay28/zetumall-backend/internal/gateway"
	"github.com/Marshallmay28/zetumall-backend/internal/models"
)

// stubGateway answers pushes from canned results; tests flip err to
// simulate an unreachable gateway.
type stubGateway struct {
	calls  int
	err    error
	result gateway.PushResult
}

func (g *stubGateway) InitiateSTKPush(_ context.Context, _ gateway.PushRequest) (*gateway.PushResult, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	res := g.result
	return &res, nil
}

func paymentFixture(t *testing.T) (*db.MemStore, *stubGateway, *PaymentService, *models.Order) {
	t.Helper()
	store := db.NewMemStore()
	order := newTestOrder("750.00")
	require.NoError(t, store.CreateOrder(context.Background(), order, nil))
	gw := &stubGateway{result: gateway.PushResult{
		MerchantRequestID: "merch-1",
		CheckoutRequestID: "ws_CO_0001",
		ResponseCode:      "0",
	}}
	return store, gw, NewPaymentService(store, gw), order
}

func successCallback(checkoutRef, receipt string) STKCallback {
	return STKCallback{
		MerchantRequestID: "merch-1",
		CheckoutRequestID: checkoutRef,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		CallbackMetadata: &CallbackItems{Item: []CallbackItem{
			{Name: "Amount", Value: 750.0},
			{Name: "MpesaReceiptNumber", Value: receipt},
			{Name: "TransactionDate", Value: 20260901101530.0},
			{Name: "PhoneNumber", Value: 254700000001.0},
		}},
	}
}

func TestInitiate(t *testing.T) {
	_, gw, svc, order := paymentFixture(t)

	p, err := svc.Initiate(context.Background(), buyer, order.ID, "254700000001")
	require.NoError(t, err)
	assert.Equal(t, 1, gw.calls)
	assert.Equal(t, models.PaymentPending, p.Status)
	require.NotNil(t, p.CheckoutRequestID)
	assert.Equal(t, "ws_CO_0001", *p.CheckoutRequestID)
	assert.True(t, order.Total.Equal(p.Amount))
}

func TestInitiateNotBuyer(t *testing.T) {
	_, _, svc, order := paymentFixture(t)

	_, err := svc.Initiate(context.Background(), Identity{ID: "stranger"}, order.ID, "254700000001")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestInitiateGatewayDown(t *testing.T) {
	store, gw, svc, order := paymentFixture(t)
	gw.err = errors.New("connection refused")

	p, err := svc.Initiate(context.Background(), buyer, order.ID, "254700000001")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	// The failed attempt is recorded; a retry is a fresh Initiate.
	stored, gerr := store.GetPayment(context.Background(), p.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.PaymentFailed, stored.Status)
	assert.Contains(t, stored.FailureReason, "connection refused")
}

func TestIngestCallbackCompletes(t *testing.T) {
	store, _, svc, order := paymentFixture(t)
	ctx := context.Background()

	p, err := svc.Initiate(ctx, buyer, order.ID, "254700000001")
	require.NoError(t, err)

	require.NoError(t, svc.IngestCallback(ctx, successCallback(*p.CheckoutRequestID, "TIU8XYZ123")))

	settled, err := store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, settled.Status)
	assert.Equal(t, "TIU8XYZ123", settled.ReceiptNumber)
	assert.Equal(t, "20260901101530", settled.TransactionDate)

	updated, err := store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "PAID", updated.PaymentStatus)
}

func TestIngestCallbackRedelivery(t *testing.T) {
	store, _, svc, order := paymentFixture(t)
	ctx := context.Background()

	p, err := svc.Initiate(ctx, buyer, order.ID, "254700000001")
	require.NoError(t, err)

	cb := successCallback(*p.CheckoutRequestID, "TIU8XYZ123")
	require.NoError(t, svc.IngestCallback(ctx, cb))
	// The gateway redelivers at-least-once; the repeat is a no-op.
	require.NoError(t, svc.IngestCallback(ctx, cb))

	settled, err := store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, settled.Status)
	assert.Equal(t, "TIU8XYZ123", settled.ReceiptNumber)
}

func TestIngestCallbackUnknownRefDropped(t *testing.T) {
	_, _, svc, _ := paymentFixture(t)

	err := svc.IngestCallback(context.Background(), successCallback("ws_CO_unknown", "TIU8XYZ123"))
	assert.NoError(t, err, "unknown references are discarded, not surfaced")
}

func TestIngestCallbackFailure(t *testing.T) {
	store, _, svc, order := paymentFixture(t)
	ctx := context.Background()

	p, err := svc.Initiate(ctx, buyer, order.ID, "254700000001")
	require.NoError(t, err)

	require.NoError(t, svc.IngestCallback(ctx, STKCallback{
		CheckoutRequestID: *p.CheckoutRequestID,
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user",
	}))

	failed, err := store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, failed.Status)
	assert.Equal(t, "Request cancelled by user", failed.FailureReason)

	// The order keeps waiting for a successful attempt.
	updated, err := store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", updated.PaymentStatus)
}

func TestStatusForOrder(t *testing.T) {
	_, _, svc, order := paymentFixture(t)
	ctx := context.Background()

	p, err := svc.Initiate(ctx, buyer, order.ID, "254700000001")
	require.NoError(t, err)

	got, err := svc.StatusForOrder(ctx, order.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = svc.StatusForOrder(ctx, order.ID, Identity{ID: "stranger"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}
