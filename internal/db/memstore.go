package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Marshallmay28/zetumall-backend/internal/models"
)

// MemStore is an in-memory Store with the same compare-and-swap and
// uniqueness semantics as the gorm store. It backs unit tests and local
// development; records are kept by value, so readers never alias
// writer state.
type MemStore struct {
	mu sync.Mutex
	st *memState
}

type memState struct {
	orders        map[string]models.Order
	orderItems    map[string][]models.OrderItem
	escrows       map[string]models.EscrowTransaction
	escrowByOrder map[string]string
	payments      map[string]models.PaymentTransaction
	payByCheckout map[string]string
	stores        map[string]models.Store
	products      map[string]models.Product
	audits        []models.AuditEntry
}

func NewMemStore() *MemStore {
	return &MemStore{st: &memState{
		orders:        make(map[string]models.Order),
		orderItems:    make(map[string][]models.OrderItem),
		escrows:       make(map[string]models.EscrowTransaction),
		escrowByOrder: make(map[string]string),
		payments:      make(map[string]models.PaymentTransaction),
		payByCheckout: make(map[string]string),
		stores:        make(map[string]models.Store),
		products:      make(map[string]models.Product),
	}}
}

// SeedStore and SeedProduct load catalog fixtures. Not part of the
// Store interface; catalog writes belong to another service.
func (m *MemStore) SeedStore(st models.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.stores[st.ID] = st
}

func (m *MemStore) SeedProduct(p models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.products[p.ID] = p
}

// Audits returns a copy of the audit trail, oldest first.
func (m *MemStore) Audits() []models.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AuditEntry, len(m.st.audits))
	copy(out, m.st.audits)
	return out
}

func (m *MemStore) Atomically(_ context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.st.clone()
	if err := fn(&memTx{st: m.st}); err != nil {
		*m.st = *snap
		return err
	}
	return nil
}

func (s *memState) clone() *memState {
	c := &memState{
		orders:        make(map[string]models.Order, len(s.orders)),
		orderItems:    make(map[string][]models.OrderItem, len(s.orderItems)),
		escrows:       make(map[string]models.EscrowTransaction, len(s.escrows)),
		escrowByOrder: make(map[string]string, len(s.escrowByOrder)),
		payments:      make(map[string]models.PaymentTransaction, len(s.payments)),
		payByCheckout: make(map[string]string, len(s.payByCheckout)),
		stores:        make(map[string]models.Store, len(s.stores)),
		products:      make(map[string]models.Product, len(s.products)),
		audits:        append([]models.AuditEntry(nil), s.audits...),
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderItems {
		c.orderItems[k] = append([]models.OrderItem(nil), v...)
	}
	for k, v := range s.escrows {
		c.escrows[k] = v
	}
	for k, v := range s.escrowByOrder {
		c.escrowByOrder[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.payByCheckout {
		c.payByCheckout[k] = v
	}
	for k, v := range s.stores {
		c.stores[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	return c
}

// Locked Store methods delegate to the unlocked memTx implementation.

func (m *MemStore) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).CreateOrder(ctx, order, items)
}

func (m *MemStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).GetOrder(ctx, id)
}

func (m *MemStore) OrdersByBuyer(ctx context.Context, buyerID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).OrdersByBuyer(ctx, buyerID)
}

func (m *MemStore) OrdersByStore(ctx context.Context, storeID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).OrdersByStore(ctx, storeID)
}

func (m *MemStore) TransitionOrder(ctx context.Context, id string, from []models.OrderStatus, fn func(*models.Order)) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).TransitionOrder(ctx, id, from, fn)
}

func (m *MemStore) SetOrderPaymentStatus(ctx context.Context, orderID, paymentStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).SetOrderPaymentStatus(ctx, orderID, paymentStatus)
}

func (m *MemStore) CreateEscrow(ctx context.Context, esc *models.EscrowTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).CreateEscrow(ctx, esc)
}

func (m *MemStore) GetEscrow(ctx context.Context, id string) (*models.EscrowTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).GetEscrow(ctx, id)
}

func (m *MemStore) EscrowByOrderID(ctx context.Context, orderID string) (*models.EscrowTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).EscrowByOrderID(ctx, orderID)
}

func (m *MemStore) ListEscrows(ctx context.Context, f EscrowFilter) ([]models.EscrowTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).ListEscrows(ctx, f)
}

func (m *MemStore) TransitionEscrow(ctx context.Context, id string, from []models.EscrowStatus, fn func(*models.EscrowTransaction)) (*models.EscrowTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).TransitionEscrow(ctx, id, from, fn)
}

func (m *MemStore) CreatePayment(ctx context.Context, p *models.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).CreatePayment(ctx, p)
}

func (m *MemStore) GetPayment(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).GetPayment(ctx, id)
}

func (m *MemStore) PaymentByCheckoutRef(ctx context.Context, ref string) (*models.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).PaymentByCheckoutRef(ctx, ref)
}

func (m *MemStore) LatestPaymentByOrder(ctx context.Context, orderID string) (*models.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).LatestPaymentByOrder(ctx, orderID)
}

func (m *MemStore) UpdatePayment(ctx context.Context, p *models.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).UpdatePayment(ctx, p)
}

func (m *MemStore) TransitionPayment(ctx context.Context, id string, from []models.PaymentStatus, fn func(*models.PaymentTransaction)) (*models.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).TransitionPayment(ctx, id, from, fn)
}

func (m *MemStore) GetStore(ctx context.Context, id string) (*models.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).GetStore(ctx, id)
}

func (m *MemStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).GetProduct(ctx, id)
}

func (m *MemStore) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st}).AppendAudit(ctx, entry)
}

// memTx operates on memState with the MemStore lock already held.
type memTx struct {
	st *memState
}

// Atomically on a memTx is already inside the outer atomic unit.
func (t *memTx) Atomically(_ context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t *memTx) CreateOrder(_ context.Context, order *models.Order, items []models.OrderItem) error {
	if _, ok := t.st.orders[order.ID]; ok {
		return ErrDuplicate
	}
	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	t.st.orders[order.ID] = *order
	t.st.orderItems[order.ID] = append([]models.OrderItem(nil), items...)
	return nil
}

func (t *memTx) GetOrder(_ context.Context, id string) (*models.Order, error) {
	order, ok := t.st.orders[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &order, nil
}

func (t *memTx) OrdersByBuyer(_ context.Context, buyerID string) ([]models.Order, error) {
	var out []models.Order
	for _, o := range t.st.orders {
		if o.BuyerID == buyerID {
			out = append(out, o)
		}
	}
	sortOrders(out)
	return out, nil
}

func (t *memTx) OrdersByStore(_ context.Context, storeID string) ([]models.Order, error) {
	var out []models.Order
	for _, o := range t.st.orders {
		if o.StoreID == storeID {
			out = append(out, o)
		}
	}
	sortOrders(out)
	return out, nil
}

func (t *memTx) TransitionOrder(_ context.Context, id string, from []models.OrderStatus, fn func(*models.Order)) (*models.Order, error) {
	order, ok := t.st.orders[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if !containsOrderStatus(from, order.Status) {
		return &order, ErrStaleStatus
	}
	fn(&order)
	order.UpdatedAt = time.Now()
	t.st.orders[id] = order
	return &order, nil
}

func (t *memTx) SetOrderPaymentStatus(_ context.Context, orderID, paymentStatus string) error {
	order, ok := t.st.orders[orderID]
	if !ok {
		return ErrRecordNotFound
	}
	order.PaymentStatus = paymentStatus
	order.UpdatedAt = time.Now()
	t.st.orders[orderID] = order
	return nil
}

func (t *memTx) CreateEscrow(_ context.Context, esc *models.EscrowTransaction) error {
	if _, ok := t.st.escrows[esc.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := t.st.escrowByOrder[esc.OrderID]; ok {
		return ErrDuplicate
	}
	now := time.Now()
	if esc.CreatedAt.IsZero() {
		esc.CreatedAt = now
	}
	esc.UpdatedAt = now
	t.st.escrows[esc.ID] = *esc
	t.st.escrowByOrder[esc.OrderID] = esc.ID
	return nil
}

func (t *memTx) GetEscrow(_ context.Context, id string) (*models.EscrowTransaction, error) {
	esc, ok := t.st.escrows[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &esc, nil
}

func (t *memTx) EscrowByOrderID(_ context.Context, orderID string) (*models.EscrowTransaction, error) {
	id, ok := t.st.escrowByOrder[orderID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return t.GetEscrow(nil, id)
}

func (t *memTx) ListEscrows(_ context.Context, f EscrowFilter) ([]models.EscrowTransaction, error) {
	var out []models.EscrowTransaction
	for _, e := range t.st.escrows {
		if f.BuyerID != "" && e.BuyerID != f.BuyerID {
			continue
		}
		if f.SellerID != "" && e.SellerID != f.SellerID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if !f.ExpiresBefore.IsZero() && !e.ExpiresAt.Before(f.ExpiresBefore) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HeldAt.After(out[j].HeldAt) })
	return out, nil
}

func (t *memTx) TransitionEscrow(_ context.Context, id string, from []models.EscrowStatus, fn func(*models.EscrowTransaction)) (*models.EscrowTransaction, error) {
	esc, ok := t.st.escrows[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if !containsEscrowStatus(from, esc.Status) {
		return &esc, ErrStaleStatus
	}
	fn(&esc)
	esc.UpdatedAt = time.Now()
	t.st.escrows[id] = esc
	return &esc, nil
}

func (t *memTx) CreatePayment(_ context.Context, p *models.PaymentTransaction) error {
	if _, ok := t.st.payments[p.ID]; ok {
		return ErrDuplicate
	}
	if p.CheckoutRequestID != nil {
		if _, ok := t.st.payByCheckout[*p.CheckoutRequestID]; ok {
			return ErrDuplicate
		}
		t.st.payByCheckout[*p.CheckoutRequestID] = p.ID
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	t.st.payments[p.ID] = *p
	return nil
}

func (t *memTx) GetPayment(_ context.Context, id string) (*models.PaymentTransaction, error) {
	p, ok := t.st.payments[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &p, nil
}

func (t *memTx) PaymentByCheckoutRef(_ context.Context, ref string) (*models.PaymentTransaction, error) {
	id, ok := t.st.payByCheckout[ref]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return t.GetPayment(nil, id)
}

func (t *memTx) LatestPaymentByOrder(_ context.Context, orderID string) (*models.PaymentTransaction, error) {
	var latest *models.PaymentTransaction
	for _, p := range t.st.payments {
		if p.OrderID != orderID {
			continue
		}
		p := p
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = &p
		}
	}
	if latest == nil {
		return nil, ErrRecordNotFound
	}
	return latest, nil
}

func (t *memTx) UpdatePayment(_ context.Context, p *models.PaymentTransaction) error {
	stored, ok := t.st.payments[p.ID]
	if !ok {
		return ErrRecordNotFound
	}
	if p.CheckoutRequestID != nil {
		if owner, ok := t.st.payByCheckout[*p.CheckoutRequestID]; ok && owner != p.ID {
			return ErrDuplicate
		}
		t.st.payByCheckout[*p.CheckoutRequestID] = p.ID
	}
	stored.MerchantRequestID = p.MerchantRequestID
	stored.CheckoutRequestID = p.CheckoutRequestID
	stored.Status = p.Status
	stored.FailureReason = p.FailureReason
	stored.UpdatedAt = time.Now()
	t.st.payments[p.ID] = stored
	return nil
}

func (t *memTx) TransitionPayment(_ context.Context, id string, from []models.PaymentStatus, fn func(*models.PaymentTransaction)) (*models.PaymentTransaction, error) {
	p, ok := t.st.payments[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if !containsPaymentStatus(from, p.Status) {
		return &p, ErrStaleStatus
	}
	fn(&p)
	p.UpdatedAt = time.Now()
	t.st.payments[id] = p
	return &p, nil
}

func (t *memTx) GetStore(_ context.Context, id string) (*models.Store, error) {
	st, ok := t.st.stores[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &st, nil
}

func (t *memTx) GetProduct(_ context.Context, id string) (*models.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &p, nil
}

func (t *memTx) AppendAudit(_ context.Context, entry *models.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	t.st.audits = append(t.st.audits, *entry)
	return nil
}

func sortOrders(orders []models.Order) {
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
}
