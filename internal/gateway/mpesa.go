// Package gateway holds the M-Pesa Daraja client used to initiate STK
// push payments. The gateway is an opaque boundary: a push request
// returns a correlation reference synchronously, and the result arrives
// later on the callback endpoint.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Marshallmay28/zetumall-backend/utils"
)

// Config carries the Daraja credentials and endpoints.
type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	Passkey        string
	Shortcode      string
	CallbackURL    string
	AuthURL        string
	STKPushURL     string
	Timeout        time.Duration
}

// PushRequest is one STK push initiation. AccountReference doubles as
// the idempotency key sent to the gateway: callers pass the payment
// transaction id so a retried initiation is recognizable upstream.
type PushRequest struct {
	Amount           decimal.Decimal
	PhoneNumber      string
	AccountReference string
	Description      string
}

// PushResult is the gateway's synchronous acceptance of a push. The
// CheckoutRequestID is the correlation reference the asynchronous
// callback will carry.
type PushResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResponseCode      string
}

// Client talks to the Daraja API over a timeout-bounded HTTP client so
// a slow gateway maps to a failed initiation instead of a hung request.
type Client struct {
	cfg  Config
	http *http.Client
	log  *utils.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  utils.DefaultLogger,
	}
}

// InitiateSTKPush requests the gateway to prompt the payer's phone.
func (c *Client) InitiateSTKPush(ctx context.Context, req PushRequest) (*PushResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}

	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.Shortcode + c.cfg.Passkey + timestamp))

	body := map[string]any{
		"BusinessShortCode": c.cfg.Shortcode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		// Daraja takes whole currency units.
		"Amount":           req.Amount.Round(0).IntPart(),
		"PartyA":           req.PhoneNumber,
		"PartyB":           c.cfg.Shortcode,
		"PhoneNumber":      req.PhoneNumber,
		"CallBackURL":      c.cfg.CallbackURL,
		"AccountReference": req.AccountReference,
		"TransactionDesc":  req.Description,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.STKPushURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stk push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("stk push returned status %d: %s", resp.StatusCode, string(detail))
	}

	var out struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode stk push response: %w", err)
	}
	if out.ResponseCode != "0" {
		return nil, fmt.Errorf("stk push rejected: code %s: %s", out.ResponseCode, out.ResponseDescription)
	}

	c.log.Info("stk push accepted: merchant=%s checkout=%s", out.MerchantRequestID, out.CheckoutRequestID)
	return &PushResult{
		MerchantRequestID: out.MerchantRequestID,
		CheckoutRequestID: out.CheckoutRequestID,
		ResponseCode:      out.ResponseCode,
	}, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.AuthURL, nil)
	if err != nil {
		return "", err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("auth returned status %d: %s", resp.StatusCode, string(detail))
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("auth response carried no access token")
	}
	return out.AccessToken, nil
}
