package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Marshallmay28/zetumall-backend/internal/db"
	"github.com/Marshallmay28/zetumall-backend/internal/models"
	"github.com/Marshallmay28/zetumall-backend/utils"
)

// DefaultHoldWindow is how long funds stay HELD before the expiry sweep
// resolves them.
const DefaultHoldWindow = 14 * 24 * time.Hour

// EscrowService owns the escrow lifecycle: HELD funds move to exactly
// one of RELEASED, REFUNDED or EXPIRED, with DISPUTED as the only
// intermediate stop. Every transition is compare-and-swap against the
// ledger, so two racing callers can never both move money.
type EscrowService struct {
	store      db.Store
	log        *utils.Logger
	holdWindow time.Duration
}

func NewEscrowService(store db.Store) *EscrowService {
	return &EscrowService{
		store:      store,
		log:        utils.DefaultLogger,
		holdWindow: DefaultHoldWindow,
	}
}

// Open creates the HELD escrow for an order with the store's commission
// split and a fresh release code. One escrow per order: a second open
// fails with ErrDuplicateEscrow, enforced by the ledger's uniqueness
// constraint rather than a pre-read.
func (s *EscrowService) Open(ctx context.Context, order *models.Order, sellerID string, commissionRate decimal.Decimal) (*models.EscrowTransaction, error) {
	return s.openWith(ctx, s.store, order, sellerID, commissionRate)
}

// openWith runs Open against an explicit store view so order creation
// can include it in its own atomic unit.
func (s *EscrowService) openWith(ctx context.Context, store db.Store, order *models.Order, sellerID string, commissionRate decimal.Decimal) (*models.EscrowTransaction, error) {
	platformFee, sellerAmount, err := SplitFee(order.Total, commissionRate)
	if err != nil {
		return nil, err
	}
	code, err := utils.NewReleaseCode()
	if err != nil {
		return nil, fmt.Errorf("generate release code: %w", err)
	}

	now := time.Now()
	esc := &models.EscrowTransaction{
		ID:            uuid.NewString(),
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		SellerID:      sellerID,
		Amount:        order.Total,
		PlatformFee:   platformFee,
		SellerAmount:  sellerAmount,
		Status:        models.EscrowHeld,
		HeldAt:        now,
		ExpiresAt:     now.Add(s.holdWindow),
		PaymentMethod: order.PaymentMethod,
		ReleaseCode:   code,
	}
	if err := store.CreateEscrow(ctx, esc); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, fmt.Errorf("%w: order %s", ErrDuplicateEscrow, order.ID)
		}
		return nil, err
	}
	s.log.Info("escrow opened: %s for order %s (fee %s, seller %s)", esc.ID, order.ID, platformFee, sellerAmount)
	return esc, nil
}

// ReleaseByCode is the buyer's self-service payout path. The supplied
// code is checked in constant time before any write; the transition
// itself is compare-and-swap, and the order is marked delivered in the
// same atomic unit.
func (s *EscrowService) ReleaseByCode(ctx context.Context, escrowID, suppliedCode string, actor Identity) (*models.EscrowTransaction, error) {
	esc, err := s.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, mapStoreErr(err, "escrow")
	}
	if esc.BuyerID != actor.ID {
		return nil, fmt.Errorf("%w: not the buyer of this escrow", ErrUnauthorized)
	}
	if !utils.CodeMatches(esc.ReleaseCode, suppliedCode) {
		return nil, ErrInvalidReleaseCode
	}

	now := time.Now()
	var released *models.EscrowTransaction
	err = s.store.Atomically(ctx, func(tx db.Store) error {
		upd, terr := tx.TransitionEscrow(ctx, escrowID, []models.EscrowStatus{models.EscrowHeld}, func(e *models.EscrowTransaction) {
			e.Status = models.EscrowReleased
			e.ReleasedAt = &now
			e.Notes = appendNote(e.Notes, now, "Released by buyer with release code")
		})
		if terr != nil {
			return mapEscrowTransitionErr(upd, terr)
		}
		released = upd

		// The delivered marker rides in the same commit; a released
		// escrow without a delivered order would be a partial apply.
		_, oerr := tx.TransitionOrder(ctx, esc.OrderID, nonTerminalOrderStatuses(), func(o *models.Order) {
			o.Status = models.OrderDelivered
			o.DeliveredAt = &now
		})
		if oerr != nil && !errors.Is(oerr, db.ErrStaleStatus) {
			return mapStoreErr(oerr, "order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("escrow released by buyer: %s (order %s)", escrowID, esc.OrderID)
	return released, nil
}

// Release is the privileged payout path: HELD or DISPUTED funds go to
// the seller, bypassing the release code. Always audited.
func (s *EscrowService) Release(ctx context.Context, escrowID string, actor Identity) (*models.EscrowTransaction, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: privileged release requires a finance role", ErrUnauthorized)
	}

	now := time.Now()
	var released *models.EscrowTransaction
	err := s.store.Atomically(ctx, func(tx db.Store) error {
		var before models.EscrowStatus
		upd, terr := tx.TransitionEscrow(ctx, escrowID, []models.EscrowStatus{models.EscrowHeld, models.EscrowDisputed}, func(e *models.EscrowTransaction) {
			before = e.Status
			e.Status = models.EscrowReleased
			e.ReleasedAt = &now
			e.Notes = appendNote(e.Notes, now, "Released by admin: "+actor.ID)
		})
		if terr != nil {
			return mapEscrowTransitionErr(upd, terr)
		}
		released = upd
		return tx.AppendAudit(ctx, s.auditEntry(actor, upd, before, "ESCROW_RELEASE", "Administrative release to seller"))
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("escrow released by admin %s: %s (seller amount %s)", actor.ID, escrowID, released.SellerAmount)
	return released, nil
}

// Refund returns HELD or DISPUTED funds to the buyer. Money already
// paid out cannot be clawed back here: a RELEASED escrow fails with
// ErrAlreadyReleased.
func (s *EscrowService) Refund(ctx context.Context, escrowID, reason string, actor Identity) (*models.EscrowTransaction, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: refund requires a finance role", ErrUnauthorized)
	}
	if reason == "" {
		reason = "Administrative refund"
	}

	now := time.Now()
	var refunded *models.EscrowTransaction
	err := s.store.Atomically(ctx, func(tx db.Store) error {
		var before models.EscrowStatus
		upd, terr := tx.TransitionEscrow(ctx, escrowID, []models.EscrowStatus{models.EscrowHeld, models.EscrowDisputed}, func(e *models.EscrowTransaction) {
			before = e.Status
			e.Status = models.EscrowRefunded
			e.RefundedAt = &now
			e.Notes = appendNote(e.Notes, now, fmt.Sprintf("Refunded by admin %s: %s", actor.ID, reason))
		})
		if terr != nil {
			return mapEscrowTransitionErr(upd, terr)
		}
		refunded = upd
		return tx.AppendAudit(ctx, s.auditEntry(actor, upd, before, "ESCROW_REFUND", reason))
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("escrow refunded by admin %s: %s (amount %s)", actor.ID, escrowID, refunded.Amount)
	return refunded, nil
}

// Dispute freezes a HELD escrow pending resolution. Buyer, seller or an
// admin may raise it; admin disputes are audited.
func (s *EscrowService) Dispute(ctx context.Context, escrowID, reason string, actor Identity) (*models.EscrowTransaction, error) {
	esc, err := s.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, mapStoreErr(err, "escrow")
	}
	if esc.BuyerID != actor.ID && esc.SellerID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: not a party to this escrow", ErrUnauthorized)
	}
	if reason == "" {
		reason = "unspecified"
	}

	now := time.Now()
	var disputed *models.EscrowTransaction
	err = s.store.Atomically(ctx, func(tx db.Store) error {
		upd, terr := tx.TransitionEscrow(ctx, escrowID, []models.EscrowStatus{models.EscrowHeld}, func(e *models.EscrowTransaction) {
			e.Status = models.EscrowDisputed
			e.Notes = appendNote(e.Notes, now, fmt.Sprintf("Dispute raised by %s: %s", actor.ID, reason))
		})
		if terr != nil {
			return mapEscrowTransitionErr(upd, terr)
		}
		disputed = upd
		if actor.IsAdmin() {
			return tx.AppendAudit(ctx, s.auditEntry(actor, upd, models.EscrowHeld, "ESCROW_DISPUTE", reason))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("escrow disputed: %s by %s", escrowID, actor.ID)
	return disputed, nil
}

// ExpireDue sweeps HELD escrows past their disposition window into
// EXPIRED. Disposition is refund-to-buyer: paying the seller on the
// buyer's silence would invert the trust model. Races with concurrent
// releases are fine; the loser of the compare-and-swap is skipped.
func (s *EscrowService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.store.ListEscrows(ctx, db.EscrowFilter{
		Status:        models.EscrowHeld,
		ExpiresBefore: now,
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, esc := range due {
		_, terr := s.store.TransitionEscrow(ctx, esc.ID, []models.EscrowStatus{models.EscrowHeld}, func(e *models.EscrowTransaction) {
			e.Status = models.EscrowExpired
			e.RefundedAt = &now
			e.Notes = appendNote(e.Notes, now, "Expired: disposition window elapsed, refunded to buyer")
		})
		if terr != nil {
			if errors.Is(terr, db.ErrStaleStatus) {
				continue
			}
			return expired, terr
		}
		expired++
		s.log.Info("escrow expired: %s (order %s, refund %s to buyer %s)", esc.ID, esc.OrderID, esc.Amount, esc.BuyerID)
	}
	return expired, nil
}

// Get returns one escrow to an admin or one of its parties.
func (s *EscrowService) Get(ctx context.Context, escrowID string, actor Identity) (*models.EscrowTransaction, error) {
	esc, err := s.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, mapStoreErr(err, "escrow")
	}
	if esc.BuyerID != actor.ID && esc.SellerID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: not a party to this escrow", ErrUnauthorized)
	}
	return esc, nil
}

// ByOrder resolves an order's escrow for its buyer, seller or an admin.
func (s *EscrowService) ByOrder(ctx context.Context, orderID string, actor Identity) (*models.EscrowTransaction, error) {
	esc, err := s.store.EscrowByOrderID(ctx, orderID)
	if err != nil {
		return nil, mapStoreErr(err, "escrow")
	}
	if esc.BuyerID != actor.ID && esc.SellerID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: not a party to this escrow", ErrUnauthorized)
	}
	return esc, nil
}

// List is the admin view over escrow transactions.
func (s *EscrowService) List(ctx context.Context, f db.EscrowFilter, actor Identity) ([]models.EscrowTransaction, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: listing escrows requires a finance role", ErrUnauthorized)
	}
	return s.store.ListEscrows(ctx, f)
}

func (s *EscrowService) auditEntry(actor Identity, esc *models.EscrowTransaction, before models.EscrowStatus, action, reason string) *models.AuditEntry {
	return &models.AuditEntry{
		ID:          uuid.NewString(),
		ActorID:     actor.ID,
		TargetType:  "escrow",
		TargetID:    esc.ID,
		Action:      action,
		BeforeState: string(before),
		AfterState:  string(esc.Status),
		Reason:      reason,
		SourceIP:    actor.SourceIP,
	}
}

// mapEscrowTransitionErr turns a lost compare-and-swap into the
// caller-facing error: money already paid out is ErrAlreadyReleased,
// everything else is ErrInvalidTransition.
func mapEscrowTransitionErr(cur *models.EscrowTransaction, err error) error {
	if !errors.Is(err, db.ErrStaleStatus) {
		return mapStoreErr(err, "escrow")
	}
	if cur != nil && cur.Status == models.EscrowReleased {
		return fmt.Errorf("%w: escrow is %s", ErrAlreadyReleased, cur.Status)
	}
	if cur != nil {
		return fmt.Errorf("%w: escrow is %s", ErrInvalidTransition, cur.Status)
	}
	return ErrInvalidTransition
}

func mapStoreErr(err error, what string) error {
	if errors.Is(err, db.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

func appendNote(notes string, at time.Time, line string) string {
	stamped := at.Format("2006-01-02 15:04:05") + " " + line
	if notes == "" {
		return stamped
	}
	return notes + "\n" + stamped
}

func nonTerminalOrderStatuses() []models.OrderStatus {
	return []models.OrderStatus{
		models.OrderPending,
		models.OrderConfirmed,
		models.OrderProcessing,
		models.OrderShipped,
		models.OrderDisputed,
	}
}
