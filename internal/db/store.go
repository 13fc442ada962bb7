// Package db is the ledger store: durable, key-addressable storage for
// orders, escrow transactions and payment transactions. Every status
// change goes through a compare-and-swap primitive so that concurrent
// writers cannot both win, and Atomically groups dependent writes into
// one commit.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/Marshallmay28/zetumall-backend/internal/models"
)

var (
	// ErrRecordNotFound is returned when a keyed lookup misses.
	ErrRecordNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert violates a uniqueness
	// constraint (one escrow per order, one payment per checkout ref).
	ErrDuplicate = errors.New("duplicate record")

	// ErrStaleStatus is returned by a transition whose expected
	// pre-state no longer matches the stored row. The caller receives
	// the current row alongside it and decides what the loss means.
	ErrStaleStatus = errors.New("stale status")
)

// EscrowFilter narrows ListEscrows. Zero fields are ignored.
type EscrowFilter struct {
	BuyerID       string
	SellerID      string
	Status        models.EscrowStatus
	ExpiresBefore time.Time
}

// Store is the persistence boundary of the payment core. Implementations
// must make each transition method atomic on its own, and Atomically
// must make the grouped calls commit together or not at all.
type Store interface {
	// Atomically runs fn against a store view whose writes all commit
	// together. fn returning an error rolls everything back.
	Atomically(ctx context.Context, fn func(tx Store) error) error

	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	OrdersByBuyer(ctx context.Context, buyerID string) ([]models.Order, error)
	OrdersByStore(ctx context.Context, storeID string) ([]models.Order, error)
	// TransitionOrder applies fn to the order iff its status is in from,
	// re-validated at write time. On a lost race it returns the current
	// row and ErrStaleStatus.
	TransitionOrder(ctx context.Context, id string, from []models.OrderStatus, fn func(*models.Order)) (*models.Order, error)
	// SetOrderPaymentStatus updates only the payment marker; the order
	// lifecycle status is untouched.
	SetOrderPaymentStatus(ctx context.Context, orderID, paymentStatus string) error

	CreateEscrow(ctx context.Context, esc *models.EscrowTransaction) error
	GetEscrow(ctx context.Context, id string) (*models.EscrowTransaction, error)
	EscrowByOrderID(ctx context.Context, orderID string) (*models.EscrowTransaction, error)
	ListEscrows(ctx context.Context, f EscrowFilter) ([]models.EscrowTransaction, error)
	// TransitionEscrow is the compare-and-swap transition for escrow
	// status, same contract as TransitionOrder.
	TransitionEscrow(ctx context.Context, id string, from []models.EscrowStatus, fn func(*models.EscrowTransaction)) (*models.EscrowTransaction, error)

	CreatePayment(ctx context.Context, p *models.PaymentTransaction) error
	GetPayment(ctx context.Context, id string) (*models.PaymentTransaction, error)
	PaymentByCheckoutRef(ctx context.Context, ref string) (*models.PaymentTransaction, error)
	LatestPaymentByOrder(ctx context.Context, orderID string) (*models.PaymentTransaction, error)
	// UpdatePayment persists initiation bookkeeping (gateway refs,
	// synchronous failure detail) keyed by p.ID.
	UpdatePayment(ctx context.Context, p *models.PaymentTransaction) error
	TransitionPayment(ctx context.Context, id string, from []models.PaymentStatus, fn func(*models.PaymentTransaction)) (*models.PaymentTransaction, error)

	GetStore(ctx context.Context, id string) (*models.Store, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)

	// AppendAudit durably appends one audit entry. Entries are never
	// read back by this service.
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
}
