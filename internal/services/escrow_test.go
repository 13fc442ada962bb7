package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marshallmay28/zetumall-backend/internal/db"
	"github.com/Marshallmay28/zetumall-backend/internal/models"
)

var (
	buyer  = Identity{ID: "buyer-1"}
	seller = Identity{ID: "seller-1"}
	admin  = Identity{ID: "admin-1", Roles: []string{RoleFinanceAdmin}, SourceIP: "127.0.0.1"}
)

func newTestOrder(total string) *models.Order {
	return &models.Order{
		ID:            uuid.NewString(),
		BuyerID:       buyer.ID,
		StoreID:       "store-1",
		Total:         d(total),
		Status:        models.OrderPending,
		PaymentMethod: "MPESA",
	}
}

func openTestEscrow(t *testing.T, store *db.MemStore) (*EscrowService, *models.EscrowTransaction) {
	t.Helper()
	svc := NewEscrowService(store)
	order := newTestOrder("1000.00")
	require.NoError(t, store.CreateOrder(context.Background(), order, nil))
	esc, err := svc.Open(context.Background(), order, seller.ID, d("10"))
	require.NoError(t, err)
	return svc, esc
}

func TestOpenSplitsAmount(t *testing.T) {
	_, esc := openTestEscrow(t, db.NewMemStore())

	assert.Equal(t, models.EscrowHeld, esc.Status)
	assert.True(t, d("100.00").Equal(esc.PlatformFee))
	assert.True(t, d("900.00").Equal(esc.SellerAmount))
	assert.True(t, esc.Amount.Equal(esc.PlatformFee.Add(esc.SellerAmount)))
	assert.NotEmpty(t, esc.ReleaseCode)
	assert.WithinDuration(t, esc.HeldAt.Add(DefaultHoldWindow), esc.ExpiresAt, time.Second)
}

func TestOpenRejectsSecondEscrowForOrder(t *testing.T) {
	store := db.NewMemStore()
	svc := NewEscrowService(store)
	order := newTestOrder("50.00")
	require.NoError(t, store.CreateOrder(context.Background(), order, nil))

	_, err := svc.Open(context.Background(), order, seller.ID, d("10"))
	require.NoError(t, err)
	_, err = svc.Open(context.Background(), order, seller.ID, d("10"))
	assert.ErrorIs(t, err, ErrDuplicateEscrow)
}

func TestReleaseByCode(t *testing.T) {
	store := db.NewMemStore()
	svc, esc := openTestEscrow(t, store)

	released, err := svc.ReleaseByCode(context.Background(), esc.ID, esc.ReleaseCode, buyer)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowReleased, released.Status)
	require.NotNil(t, released.ReleasedAt)

	// The order is marked delivered in the same unit.
	order, err := store.GetOrder(context.Background(), esc.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderDelivered, order.Status)
	require.NotNil(t, order.DeliveredAt)
}

func TestReleaseByCodeWrongCode(t *testing.T) {
	store := db.NewMemStore()
	svc, esc := openTestEscrow(t, store)

	_, err := svc.ReleaseByCode(context.Background(), esc.ID, "WRONGCOD", buyer)
	assert.ErrorIs(t, err, ErrInvalidReleaseCode)

	// Funds stay put.
	cur, gerr := store.GetEscrow(context.Background(), esc.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.EscrowHeld, cur.Status)
}

func TestReleaseByCodeWrongBuyer(t *testing.T) {
	svc, esc := openTestEscrow(t, db.NewMemStore())

	_, err := svc.ReleaseByCode(context.Background(), esc.ID, esc.ReleaseCode, Identity{ID: "someone-else"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestReleaseByCodeTwice(t *testing.T) {
	svc, esc := openTestEscrow(t, db.NewMemStore())

	_, err := svc.ReleaseByCode(context.Background(), esc.ID, esc.ReleaseCode, buyer)
	require.NoError(t, err)
	_, err = svc.ReleaseByCode(context.Background(), esc.ID, esc.ReleaseCode, buyer)
	assert.ErrorIs(t, err, ErrAlreadyReleased)
}

func TestConcurrentReleaseExactlyOneWins(t *testing.T) {
	svc, esc := openTestEscrow(t, db.NewMemStore())

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ReleaseByCode(context.Background(), esc.ID, esc.ReleaseCode, buyer)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyReleased)
		}
	}
	assert.Equal(t, 1, wins, "exactly one racer may move the funds")
}

func TestAdminRelease(t *testing.T) {
	store := db.NewMemStore()
	svc, esc := openTestEscrow(t, store)

	released, err := svc.Release(context.Background(), esc.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowReleased, released.Status)

	audits := store.Audits()
	require.Len(t, audits, 1)
	assert.Equal(t, "ESCROW_RELEASE", audits[0].Action)
	assert.Equal(t, admin.ID, audits[0].ActorID)
	assert.Equal(t, string(models.EscrowHeld), audits[0].BeforeState)
	assert.Equal(t, string(models.EscrowReleased), audits[0].AfterState)
	assert.Equal(t, esc.ID, audits[0].TargetID)
}

func TestAdminReleaseRequiresRole(t *testing.T) {
	svc, esc := openTestEscrow(t, db.NewMemStore())

	_, err := svc.Release(context.Background(), esc.ID, buyer)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefund(t *testing.T) {
	store := db.NewMemStore()
	svc, esc := openTestEscrow(t, store)

	refunded, err := svc.Refund(context.Background(), esc.ID, "buyer never received goods", admin)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundedAt)

	audits := store.Audits()
	require.Len(t, audits, 1)
	assert.Equal(t, "ESCROW_REFUND", audits[0].Action)
	assert.Equal(t, "buyer never received goods", audits[0].Reason)
}

func TestRefundAfterReleaseFails(t *testing.T) {
	svc, esc := openTestEscrow(t, db.NewMemStore())

	_, err := svc.Release(context.Background(), esc.ID, admin)
	require.NoError(t, err)
	_, err = svc.Refund(context.Background(), esc.ID, "too late", admin)
	assert.ErrorIs(t, err, ErrAlreadyReleased)
}

func TestReleaseAfterRefundFails(t *testing.T) {
	svc, esc := openTestEscrow(t, db.NewMemStore())

	_, err := svc.Refund(context.Background(), esc.ID, "resolved for buyer", admin)
	require.NoError(t, err)
	_, err = svc.Release(context.Background(), esc.ID, admin)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDisputeThenResolve(t *testing.T) {
	store := db.NewMemStore()
	svc, esc := openTestEscrow(t, store)

	disputed, err := svc.Dispute(context.Background(), esc.ID, "item damaged", buyer)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowDisputed, disputed.Status)
	// Party disputes are not audited.
	assert.Empty(t, store.Audits())

	// A disputed escrow still resolves through the privileged paths.
	released, err := svc.Release(context.Background(), esc.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowReleased, released.Status)

	audits := store.Audits()
	require.Len(t, audits, 1)
	assert.Equal(t, string(models.EscrowDisputed), audits[0].BeforeState)
}

func TestDisputeByOutsiderFails(t *testing.T) {
	svc, esc := openTestEscrow(t, db.NewMemStore())

	_, err := svc.Dispute(context.Background(), esc.ID, "nope", Identity{ID: "stranger"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestExpireDue(t *testing.T) {
	store := db.NewMemStore()
	svc, esc := openTestEscrow(t, store)

	// Not yet due.
	n, err := svc.ExpireDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	// Past the hold window the sweep closes it as a refund to the buyer.
	n, err = svc.ExpireDue(context.Background(), time.Now().Add(DefaultHoldWindow+time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cur, err := store.GetEscrow(context.Background(), esc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowExpired, cur.Status)
	require.NotNil(t, cur.RefundedAt)

	// A second sweep finds nothing.
	n, err = svc.ExpireDue(context.Background(), time.Now().Add(DefaultHoldWindow+2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpireDueSkipsDisputed(t *testing.T) {
	store := db.NewMemStore()
	svc, esc := openTestEscrow(t, store)

	_, err := svc.Dispute(context.Background(), esc.ID, "under review", buyer)
	require.NoError(t, err)

	n, err := svc.ExpireDue(context.Background(), time.Now().Add(DefaultHoldWindow+time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "disputed escrows stay frozen until resolved")
}

func TestGetAndByOrderAuthorization(t *testing.T) {
	svc, esc := openTestEscrow(t, db.NewMemStore())
	ctx := context.Background()

	for _, actor := range []Identity{buyer, seller, admin} {
		got, err := svc.Get(ctx, esc.ID, actor)
		require.NoError(t, err)
		assert.Equal(t, esc.ID, got.ID)

		got, err = svc.ByOrder(ctx, esc.OrderID, actor)
		require.NoError(t, err)
		assert.Equal(t, esc.ID, got.ID)
	}

	_, err := svc.Get(ctx, esc.ID, Identity{ID: "stranger"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.ByOrder(ctx, esc.OrderID, Identity{ID: "stranger"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestListRequiresAdmin(t *testing.T) {
	svc, _ := openTestEscrow(t, db.NewMemStore())

	_, err := svc.List(context.Background(), db.EscrowFilter{}, buyer)
	assert.ErrorIs(t, err, ErrUnauthorized)

	escrows, err := svc.List(context.Background(), db.EscrowFilter{SellerID: seller.ID}, admin)
	require.NoError(t, err)
	assert.Len(t, escrows, 1)
}
