package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Marshallmay28/zetumall-backend/internal/models"
)

// GormStore backs the ledger with MySQL through gorm. Compare-and-swap
// transitions are conditional UPDATEs guarded by the observed status;
// RowsAffected == 0 means the race was lost. Open the *gorm.DB with
// TranslateError so duplicate-key violations surface as
// gorm.ErrDuplicatedKey.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Atomically(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrRecordNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

// --- orders ---

func (s *GormStore) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	return s.Atomically(ctx, func(tx Store) error {
		g := tx.(*GormStore)
		if err := g.db.WithContext(ctx).Create(order).Error; err != nil {
			return translate(err)
		}
		if len(items) == 0 {
			return nil
		}
		return translate(g.db.WithContext(ctx).Create(&items).Error)
	})
}

func (s *GormStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (s *GormStore) OrdersByBuyer(ctx context.Context, buyerID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, translate(err)
}

func (s *GormStore) OrdersByStore(ctx context.Context, storeID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, translate(err)
}

func (s *GormStore) TransitionOrder(ctx context.Context, id string, from []models.OrderStatus, fn func(*models.Order)) (*models.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !containsOrderStatus(from, order.Status) {
		return order, ErrStaleStatus
	}
	prev := order.Status
	fn(order)

	res := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, prev).
		Updates(map[string]any{
			"status":          order.Status,
			"tracking_number": order.TrackingNumber,
			"shipped_at":      order.ShippedAt,
			"delivered_at":    order.DeliveredAt,
			"notes":           order.Notes,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		cur, gerr := s.GetOrder(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return cur, ErrStaleStatus
	}
	return order, nil
}

func (s *GormStore) SetOrderPaymentStatus(ctx context.Context, orderID, paymentStatus string) error {
	res := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("payment_status", paymentStatus)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// --- escrow ---

func (s *GormStore) CreateEscrow(ctx context.Context, esc *models.EscrowTransaction) error {
	return translate(s.db.WithContext(ctx).Create(esc).Error)
}

func (s *GormStore) GetEscrow(ctx context.Context, id string) (*models.EscrowTransaction, error) {
	var esc models.EscrowTransaction
	if err := s.db.WithContext(ctx).First(&esc, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &esc, nil
}

func (s *GormStore) EscrowByOrderID(ctx context.Context, orderID string) (*models.EscrowTransaction, error) {
	var esc models.EscrowTransaction
	if err := s.db.WithContext(ctx).First(&esc, "order_id = ?", orderID).Error; err != nil {
		return nil, translate(err)
	}
	return &esc, nil
}

func (s *GormStore) ListEscrows(ctx context.Context, f EscrowFilter) ([]models.EscrowTransaction, error) {
	q := s.db.WithContext(ctx).Model(&models.EscrowTransaction{})
	if f.BuyerID != "" {
		q = q.Where("buyer_id = ?", f.BuyerID)
	}
	if f.SellerID != "" {
		q = q.Where("seller_id = ?", f.SellerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.ExpiresBefore.IsZero() {
		q = q.Where("expires_at < ?", f.ExpiresBefore)
	}
	var escrows []models.EscrowTransaction
	err := q.Order("held_at DESC").Find(&escrows).Error
	return escrows, translate(err)
}

func (s *GormStore) TransitionEscrow(ctx context.Context, id string, from []models.EscrowStatus, fn func(*models.EscrowTransaction)) (*models.EscrowTransaction, error) {
	esc, err := s.GetEscrow(ctx, id)
	if err != nil {
		return nil, err
	}
	if !containsEscrowStatus(from, esc.Status) {
		return esc, ErrStaleStatus
	}
	prev := esc.Status
	fn(esc)

	res := s.db.WithContext(ctx).
		Model(&models.EscrowTransaction{}).
		Where("id = ? AND status = ?", id, prev).
		Updates(map[string]any{
			"status":      esc.Status,
			"released_at": esc.ReleasedAt,
			"refunded_at": esc.RefundedAt,
			"payment_ref": esc.PaymentRef,
			"notes":       esc.Notes,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		cur, gerr := s.GetEscrow(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return cur, ErrStaleStatus
	}
	return esc, nil
}

// --- payments ---

func (s *GormStore) CreatePayment(ctx context.Context, p *models.PaymentTransaction) error {
	return translate(s.db.WithContext(ctx).Create(p).Error)
}

func (s *GormStore) GetPayment(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	var p models.PaymentTransaction
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) PaymentByCheckoutRef(ctx context.Context, ref string) (*models.PaymentTransaction, error) {
	var p models.PaymentTransaction
	if err := s.db.WithContext(ctx).First(&p, "checkout_request_id = ?", ref).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) LatestPaymentByOrder(ctx context.Context, orderID string) (*models.PaymentTransaction, error) {
	var p models.PaymentTransaction
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) UpdatePayment(ctx context.Context, p *models.PaymentTransaction) error {
	res := s.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"merchant_request_id": p.MerchantRequestID,
			"checkout_request_id": p.CheckoutRequestID,
			"status":              p.Status,
			"failure_reason":      p.FailureReason,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) TransitionPayment(ctx context.Context, id string, from []models.PaymentStatus, fn func(*models.PaymentTransaction)) (*models.PaymentTransaction, error) {
	p, err := s.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !containsPaymentStatus(from, p.Status) {
		return p, ErrStaleStatus
	}
	prev := p.Status
	fn(p)

	res := s.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, prev).
		Updates(map[string]any{
			"status":           p.Status,
			"receipt_number":   p.ReceiptNumber,
			"failure_reason":   p.FailureReason,
			"transaction_date": p.TransactionDate,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		cur, gerr := s.GetPayment(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return cur, ErrStaleStatus
	}
	return p, nil
}

// --- catalog lookups ---

func (s *GormStore) GetStore(ctx context.Context, id string) (*models.Store, error) {
	var st models.Store
	if err := s.db.WithContext(ctx).First(&st, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &st, nil
}

func (s *GormStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// --- audit ---

func (s *GormStore) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return translate(s.db.WithContext(ctx).Create(entry).Error)
}

func containsOrderStatus(set []models.OrderStatus, s models.OrderStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func containsEscrowStatus(set []models.EscrowStatus, s models.EscrowStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func containsPaymentStatus(set []models.PaymentStatus, s models.PaymentStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
