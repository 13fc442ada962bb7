package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the order lifecycle state.
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderConfirmed  OrderStatus = "CONFIRMED"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
	OrderDisputed   OrderStatus = "DISPUTED"
)

// Terminal reports whether no further transition may leave the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// EscrowStatus is the custody state of held funds.
type EscrowStatus string

const (
	EscrowHeld     EscrowStatus = "HELD"
	EscrowReleased EscrowStatus = "RELEASED"
	EscrowRefunded EscrowStatus = "REFUNDED"
	EscrowDisputed EscrowStatus = "DISPUTED"
	EscrowExpired  EscrowStatus = "EXPIRED"
)

// Terminal reports whether the escrow can never move again.
// DISPUTED is not terminal: it still resolves to RELEASED or REFUNDED.
func (s EscrowStatus) Terminal() bool {
	return s == EscrowReleased || s == EscrowRefunded || s == EscrowExpired
}

// PaymentStatus is the state of one gateway payment attempt.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// Order is a buyer's purchase from one store.
type Order struct {
	ID              string          `gorm:"primaryKey;size:36" json:"id"`
	BuyerID         string          `gorm:"index;size:36;not null" json:"buyer_id"`
	StoreID         string          `gorm:"index;size:36;not null" json:"store_id"`
	Total           decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total"`
	Status          OrderStatus     `gorm:"size:20;not null;default:'PENDING'" json:"status"`
	PaymentStatus   string          `gorm:"size:20;not null;default:'PENDING'" json:"payment_status"`
	PaymentMethod   string          `gorm:"size:20;not null" json:"payment_method"`
	ShippingAddress string          `gorm:"size:255;not null" json:"shipping_address"`
	ShippingPhone   string          `gorm:"size:20;not null" json:"shipping_phone"`
	TrackingNumber  string          `gorm:"size:100" json:"tracking_number,omitempty"`
	Notes           string          `gorm:"type:text" json:"notes,omitempty"`
	ShippedAt       *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderItem is one priced line of an order. Price is the unit price
// captured at order time, not a live catalog reference.
type OrderItem struct {
	OrderID   string          `gorm:"primaryKey;size:36" json:"order_id"`
	ProductID string          `gorm:"primaryKey;size:36" json:"product_id"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
}

// EscrowTransaction holds custody of funds for exactly one order.
// Invariant: Amount = PlatformFee + SellerAmount, fixed at creation.
type EscrowTransaction struct {
	ID            string          `gorm:"primaryKey;size:36" json:"id"`
	OrderID       string          `gorm:"uniqueIndex;size:36;not null" json:"order_id"`
	BuyerID       string          `gorm:"index;size:36;not null" json:"buyer_id"`
	SellerID      string          `gorm:"index;size:36;not null" json:"seller_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	PlatformFee   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"platform_fee"`
	SellerAmount  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"seller_amount"`
	Status        EscrowStatus    `gorm:"index;size:20;not null;default:'HELD'" json:"status"`
	HeldAt        time.Time       `gorm:"not null" json:"held_at"`
	ReleasedAt    *time.Time      `json:"released_at,omitempty"`
	RefundedAt    *time.Time      `json:"refunded_at,omitempty"`
	ExpiresAt     time.Time       `gorm:"not null" json:"expires_at"`
	PaymentMethod string          `gorm:"size:20;not null" json:"payment_method"`
	PaymentRef    string          `gorm:"size:100" json:"payment_ref,omitempty"`
	ReleaseCode   string          `gorm:"size:16" json:"-"`
	Notes         string          `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PaymentTransaction is one attempt to collect an order's total through
// the external gateway. CheckoutRequestID is the gateway correlation
// reference; it is nil until the gateway accepts the push, and unique
// once assigned (the callback arrives keyed on it).
type PaymentTransaction struct {
	ID                string          `gorm:"primaryKey;size:36" json:"id"`
	OrderID           string          `gorm:"index;size:36;not null" json:"order_id"`
	UserID            string          `gorm:"size:36;not null" json:"user_id"`
	MerchantRequestID *string         `gorm:"size:100" json:"merchant_request_id,omitempty"`
	CheckoutRequestID *string         `gorm:"uniqueIndex;size:100" json:"checkout_request_id,omitempty"`
	Amount            decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	PhoneNumber       string          `gorm:"size:20;not null" json:"phone_number"`
	Status            PaymentStatus   `gorm:"size:20;not null;default:'PENDING'" json:"status"`
	ReceiptNumber     string          `gorm:"size:100" json:"receipt_number,omitempty"`
	FailureReason     string          `gorm:"size:255" json:"failure_reason,omitempty"`
	TransactionDate   string          `gorm:"size:20" json:"transaction_date,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// AuditEntry records one privileged action. Append-only: entries are
// never updated or deleted.
type AuditEntry struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	ActorID     string    `gorm:"index;size:36;not null" json:"actor_id"`
	TargetType  string    `gorm:"size:30;not null" json:"target_type"`
	TargetID    string    `gorm:"index;size:36;not null" json:"target_id"`
	Action      string    `gorm:"size:40;not null" json:"action"`
	BeforeState string    `gorm:"size:100" json:"before_state"`
	AfterState  string    `gorm:"size:100" json:"after_state"`
	Reason      string    `gorm:"type:text;not null" json:"reason"`
	SourceIP    string    `gorm:"size:45" json:"source_ip"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the catalog record consulted when an order is created.
// CRUD for stores lives outside this service; only lookups happen here.
type Store struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	UserID         string          `gorm:"index;size:36;not null" json:"user_id"`
	Name           string          `gorm:"size:100;not null" json:"name"`
	Status         string          `gorm:"size:20;not null;default:'PENDING'" json:"status"`
	IsActive       bool            `gorm:"not null;default:false" json:"is_active"`
	CommissionRate decimal.Decimal `gorm:"type:decimal(5,2);not null;default:10.00" json:"commission_rate"`
	MpesaNumber    string          `gorm:"size:20" json:"mpesa_number,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Orderable reports whether the store may accept new orders.
func (s *Store) Orderable() bool {
	return s.IsActive && s.Status == "ACTIVE"
}

// Product is the catalog record a line item is priced from.
type Product struct {
	ID        string          `gorm:"primaryKey;size:36" json:"id"`
	StoreID   string          `gorm:"index;size:36;not null" json:"store_id"`
	Name      string          `gorm:"size:100;not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Stock     int             `gorm:"not null;default:0" json:"stock"`
	IsActive  bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
