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

// OrderService creates orders and drives their lifecycle. Order
// creation and escrow opening are one atomic unit: an order never
// exists without its protection.
type OrderService struct {
	store  db.Store
	escrow *EscrowService
	log    *utils.Logger
}

func NewOrderService(store db.Store, escrow *EscrowService) *OrderService {
	return &OrderService{store: store, escrow: escrow, log: utils.DefaultLogger}
}

// OrderItemInput is one requested line of a new order.
type OrderItemInput struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

// CreateOrderInput is the buyer's order request.
type CreateOrderInput struct {
	StoreID         string           `json:"store_id" binding:"required"`
	Items           []OrderItemInput `json:"items" binding:"required,min=1"`
	ShippingAddress string           `json:"shipping_address" binding:"required"`
	ShippingPhone   string           `json:"shipping_phone" binding:"required"`
	PaymentMethod   string           `json:"payment_method" binding:"required"`
	Notes           string           `json:"notes"`
}

// Create validates the store and every line item, computes the total
// from catalog prices, then persists the order together with its HELD
// escrow. Any missing product aborts the whole order; there are no
// partial orders.
func (s *OrderService) Create(ctx context.Context, actor Identity, in CreateOrderInput) (*models.Order, error) {
	store, err := s.store.GetStore(ctx, in.StoreID)
	if err != nil {
		return nil, mapStoreErr(err, "store "+in.StoreID)
	}
	if !store.Orderable() {
		return nil, fmt.Errorf("%w: store %s", ErrStoreNotOrderable, store.ID)
	}

	total := decimal.Zero
	items := make([]models.OrderItem, 0, len(in.Items))
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity %d for product %s", ErrInvalidAmount, it.Quantity, it.ProductID)
		}
		product, err := s.store.GetProduct(ctx, it.ProductID)
		if err != nil {
			return nil, mapStoreErr(err, "product "+it.ProductID)
		}
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		items = append(items, models.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     product.Price,
		})
	}

	order := &models.Order{
		ID:              uuid.NewString(),
		BuyerID:         actor.ID,
		StoreID:         store.ID,
		Total:           total,
		Status:          models.OrderPending,
		PaymentStatus:   "PENDING",
		PaymentMethod:   in.PaymentMethod,
		ShippingAddress: in.ShippingAddress,
		ShippingPhone:   in.ShippingPhone,
		Notes:           in.Notes,
	}
	for i := range items {
		items[i].OrderID = order.ID
	}

	err = s.store.Atomically(ctx, func(tx db.Store) error {
		if err := tx.CreateOrder(ctx, order, items); err != nil {
			return err
		}
		_, err := s.escrow.openWith(ctx, tx, order, store.UserID, store.CommissionRate)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order created: %s for buyer %s (total %s)", order.ID, actor.ID, total)
	return order, nil
}

// Get returns an order to its buyer, the store owner or an admin.
func (s *OrderService) Get(ctx context.Context, orderID string, actor Identity) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, mapStoreErr(err, "order")
	}
	if order.BuyerID == actor.ID || actor.IsAdmin() {
		return order, nil
	}
	store, err := s.store.GetStore(ctx, order.StoreID)
	if err == nil && store.UserID == actor.ID {
		return order, nil
	}
	return nil, fmt.Errorf("%w: not a party to this order", ErrUnauthorized)
}

// ListForBuyer returns the caller's orders, newest first.
func (s *OrderService) ListForBuyer(ctx context.Context, actor Identity) ([]models.Order, error) {
	return s.store.OrdersByBuyer(ctx, actor.ID)
}

// ListForStore returns a store's orders to its owner or an admin.
func (s *OrderService) ListForStore(ctx context.Context, storeID string, actor Identity) ([]models.Order, error) {
	store, err := s.store.GetStore(ctx, storeID)
	if err != nil {
		return nil, mapStoreErr(err, "store")
	}
	if store.UserID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: not the owner of store %s", ErrUnauthorized, storeID)
	}
	return s.store.OrdersByStore(ctx, storeID)
}

// orderNext is the forward edge set of the order status machine.
// CANCELLED and DISPUTED are reachable from any non-terminal state.
var orderNext = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:    {models.OrderConfirmed},
	models.OrderConfirmed:  {models.OrderProcessing},
	models.OrderProcessing: {models.OrderShipped},
	models.OrderShipped:    {models.OrderDelivered},
	models.OrderDisputed:   {models.OrderDelivered},
}

func orderTransitionAllowed(from, to models.OrderStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == models.OrderCancelled || to == models.OrderDisputed {
		return from != to
	}
	for _, next := range orderNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// UpdateStatus advances an order on behalf of the store owner (or an
// admin). The transition is re-validated at write time, so two sellers
// racing on the same order cannot both win.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, next models.OrderStatus, actor Identity) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, mapStoreErr(err, "order")
	}
	store, err := s.store.GetStore(ctx, order.StoreID)
	if err != nil {
		return nil, mapStoreErr(err, "store")
	}
	if store.UserID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: not the owner of store %s", ErrUnauthorized, order.StoreID)
	}
	if !orderTransitionAllowed(order.Status, next) {
		return nil, fmt.Errorf("%w: order %s -> %s", ErrInvalidTransition, order.Status, next)
	}

	now := time.Now()
	updated, err := s.store.TransitionOrder(ctx, orderID, []models.OrderStatus{order.Status}, func(o *models.Order) {
		o.Status = next
		switch next {
		case models.OrderShipped:
			o.ShippedAt = &now
		case models.OrderDelivered:
			o.DeliveredAt = &now
		}
	})
	if err != nil {
		if errors.Is(err, db.ErrStaleStatus) {
			return nil, fmt.Errorf("%w: order is %s", ErrInvalidTransition, updated.Status)
		}
		return nil, mapStoreErr(err, "order")
	}
	s.log.Info("order %s status: %s -> %s by %s", orderID, order.Status, next, actor.ID)
	return updated, nil
}

// Cancel lets the buyer withdraw an order that has not been confirmed.
func (s *OrderService) Cancel(ctx context.Context, orderID string, actor Identity) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, mapStoreErr(err, "order")
	}
	if order.BuyerID != actor.ID {
		return nil, fmt.Errorf("%w: not the buyer of this order", ErrUnauthorized)
	}

	cancelled, err := s.store.TransitionOrder(ctx, orderID, []models.OrderStatus{models.OrderPending}, func(o *models.Order) {
		o.Status = models.OrderCancelled
	})
	if err != nil {
		if errors.Is(err, db.ErrStaleStatus) {
			return nil, fmt.Errorf("%w: order is %s", ErrInvalidTransition, cancelled.Status)
		}
		return nil, mapStoreErr(err, "order")
	}
	s.log.Info("order cancelled by buyer: %s", orderID)
	return cancelled, nil
}
