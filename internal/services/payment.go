package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/Marshallmay28/zetumall-backend/internal/db"
	"github.com/Marshallmay28/zetumall-backend/internal/gateway"
	"github.com/Marshallmay28/zetumall-backend/internal/models"
	"github.com/Marshallmay28/zetumall-backend/utils"
)

// PushGateway is the slice of the gateway client the payment service
// needs; tests substitute it.
type PushGateway interface {
	InitiateSTKPush(ctx context.Context, req gateway.PushRequest) (*gateway.PushResult, error)
}

// PaymentService initiates gateway payments and ingests their
// asynchronous result callbacks. Callback ingestion is idempotent by
// design: redelivery of a settled callback is a no-op.
type PaymentService struct {
	store db.Store
	gw    PushGateway
	log   *utils.Logger
}

func NewPaymentService(store db.Store, gw PushGateway) *PaymentService {
	return &PaymentService{store: store, gw: gw, log: utils.DefaultLogger}
}

// Initiate creates a PENDING payment transaction, then asks the gateway
// to prompt the payer. The gateway call happens outside any ledger
// transaction so gateway latency never holds a row lock. A synchronous
// gateway failure marks the transaction FAILED and surfaces
// ErrGatewayUnavailable; the caller retries with a fresh Initiate.
func (s *PaymentService) Initiate(ctx context.Context, actor Identity, orderID, phoneNumber string) (*models.PaymentTransaction, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, mapStoreErr(err, "order")
	}
	if order.BuyerID != actor.ID {
		return nil, fmt.Errorf("%w: not the buyer of this order", ErrUnauthorized)
	}
	if !order.Total.IsPositive() {
		return nil, fmt.Errorf("%w: order total %s", ErrInvalidAmount, order.Total)
	}

	p := &models.PaymentTransaction{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		UserID:      actor.ID,
		Amount:      order.Total,
		PhoneNumber: phoneNumber,
		Status:      models.PaymentPending,
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	res, err := s.gw.InitiateSTKPush(ctx, gateway.PushRequest{
		Amount:      order.Total,
		PhoneNumber: phoneNumber,
		// The payment transaction id is the idempotency key for the
		// external call.
		AccountReference: p.ID,
		Description:      "Payment for order " + shortRef(order.ID),
	})
	if err != nil {
		p.Status = models.PaymentFailed
		p.FailureReason = err.Error()
		if uerr := s.store.UpdatePayment(ctx, p); uerr != nil {
			s.log.Error("record initiation failure for payment %s: %v", p.ID, uerr)
		}
		return p, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	p.MerchantRequestID = &res.MerchantRequestID
	p.CheckoutRequestID = &res.CheckoutRequestID
	if err := s.store.UpdatePayment(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("payment initiated: %s for order %s (checkout %s)", p.ID, order.ID, res.CheckoutRequestID)
	return p, nil
}

// STKCallback is the gateway's asynchronous result notification.
type STKCallback struct {
	MerchantRequestID string         `json:"MerchantRequestID"`
	CheckoutRequestID string         `json:"CheckoutRequestID"`
	ResultCode        int            `json:"ResultCode"`
	ResultDesc        string         `json:"ResultDesc"`
	CallbackMetadata  *CallbackItems `json:"CallbackMetadata,omitempty"`
}

type CallbackItems struct {
	Item []CallbackItem `json:"Item"`
}

type CallbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

// IngestCallback resolves the pending payment by the gateway's
// correlation reference and settles it. Unknown references and repeat
// deliveries are logged and dropped without error: the gateway
// redelivers aggressively and must always be acknowledged. A returned
// error means internal ingestion failed; the transport layer still
// acknowledges the gateway and logs it.
func (s *PaymentService) IngestCallback(ctx context.Context, cb STKCallback) error {
	p, err := s.store.PaymentByCheckoutRef(ctx, cb.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, db.ErrRecordNotFound) {
			s.log.Warn("callback for unknown checkout ref %s discarded", cb.CheckoutRequestID)
			return nil
		}
		return err
	}
	if p.Status != models.PaymentPending {
		s.log.Info("callback redelivery for settled payment %s (%s) ignored", p.ID, p.Status)
		return nil
	}

	if cb.ResultCode == 0 {
		receipt, txDate := cb.metadata()
		return s.store.Atomically(ctx, func(tx db.Store) error {
			_, terr := tx.TransitionPayment(ctx, p.ID, []models.PaymentStatus{models.PaymentPending}, func(pt *models.PaymentTransaction) {
				pt.Status = models.PaymentCompleted
				pt.ReceiptNumber = receipt
				pt.TransactionDate = txDate
			})
			if terr != nil {
				if errors.Is(terr, db.ErrStaleStatus) {
					// A concurrent delivery settled it first.
					return nil
				}
				return terr
			}
			if err := tx.SetOrderPaymentStatus(ctx, p.OrderID, "PAID"); err != nil {
				return err
			}
			s.log.Info("payment completed: %s for order %s (receipt %s)", p.ID, p.OrderID, receipt)
			return nil
		})
	}

	_, terr := s.store.TransitionPayment(ctx, p.ID, []models.PaymentStatus{models.PaymentPending}, func(pt *models.PaymentTransaction) {
		pt.Status = models.PaymentFailed
		pt.FailureReason = cb.ResultDesc
	})
	if terr != nil && !errors.Is(terr, db.ErrStaleStatus) {
		return terr
	}
	s.log.Info("payment failed: %s for order %s: %s", p.ID, p.OrderID, cb.ResultDesc)
	return nil
}

func (cb STKCallback) metadata() (receipt, txDate string) {
	if cb.CallbackMetadata == nil {
		return "", ""
	}
	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "MpesaReceiptNumber":
			receipt, _ = item.Value.(string)
		case "TransactionDate":
			// Arrives as a JSON number (yyyyMMddHHmmss).
			switch v := item.Value.(type) {
			case string:
				txDate = v
			case float64:
				txDate = strconv.FormatInt(int64(v), 10)
			}
		}
	}
	return receipt, txDate
}

// StatusForOrder returns the latest payment attempt for an order to its
// buyer or an admin.
func (s *PaymentService) StatusForOrder(ctx context.Context, orderID string, actor Identity) (*models.PaymentTransaction, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, mapStoreErr(err, "order")
	}
	if order.BuyerID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: not the buyer of this order", ErrUnauthorized)
	}
	p, err := s.store.LatestPaymentByOrder(ctx, orderID)
	if err != nil {
		return nil, mapStoreErr(err, "payment for order "+orderID)
	}
	return p, nil
}

func shortRef(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
