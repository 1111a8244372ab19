package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
)

type RazorpayClient struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
}

var _ Gateway = (*RazorpayClient)(nil)

func NewRazorpayClient(baseURL, keyID, keySecret string, timeout time.Duration) *RazorpayClient {
	return &RazorpayClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		http:      &http.Client{Timeout: timeout},
	}
}

type orderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type paymentResponse struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (Order, error) {
	body, err := json.Marshal(orderRequest{Amount: amountMinor, Currency: currency, Receipt: receipt})
	if err != nil {
		return Order{}, err
	}
	var res orderResponse
	if err := c.do(ctx, http.MethodPost, "/v1/orders", body, &res); err != nil {
		return Order{}, errors.Wrap(err, "create gateway order")
	}
	return Order{ID: res.ID, Amount: res.Amount, Currency: res.Currency, Receipt: res.Receipt}, nil
}

// VerifyPayment checks the checkout signature and then fetches the payment to
// make sure it belongs to the order, covers the amount and is not failed.
func (c *RazorpayClient) VerifyPayment(ctx context.Context, p Payment, amountMinor int64) error {
	if p.PaymentID == "" {
		return domain.Validationf("payment token is required")
	}
	if !c.validSignature(p) {
		return domain.Validationf("payment signature does not match")
	}

	var res paymentResponse
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+p.PaymentID, nil, &res); err != nil {
		return errors.Wrap(err, "fetch payment")
	}
	if res.OrderID != p.OrderID {
		return domain.Validationf("payment %s belongs to order %s, not %s", p.PaymentID, res.OrderID, p.OrderID)
	}
	if res.Amount != amountMinor {
		return domain.Validationf("payment %s amount %d does not match %d", p.PaymentID, res.Amount, amountMinor)
	}
	if res.Status != "authorized" && res.Status != "captured" {
		return domain.Validationf("payment %s is %s", p.PaymentID, res.Status)
	}
	return nil
}

func (c *RazorpayClient) validSignature(p Payment) bool {
	return hmac.Equal([]byte(Sign(c.keySecret, p.OrderID, p.PaymentID)), []byte(p.Signature))
}

// Sign returns the checkout signature the provider issues for a payment.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *RazorpayClient) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Unavailable(err, "payment gateway")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return domain.Unavailable(fmt.Errorf("unexpected status code: %d", resp.StatusCode), "payment gateway")
	case resp.StatusCode == http.StatusNotFound:
		return domain.Validationf("payment gateway has no record of %s", path)
	case resp.StatusCode >= 300:
		return domain.Validationf("payment gateway rejected request: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Unavailable(err, "decode payment gateway response")
	}
	return nil
}
