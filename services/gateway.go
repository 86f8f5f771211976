package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tournament-ledger/utils"
)

type GatewayOrder struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Receipt  string          `json:"receipt"`
}

// CapturedPayment is a payment the gateway reports as captured.
type CapturedPayment struct {
	OrderID    string          `json:"order_id"`
	PaymentID  string          `json:"payment_id"`
	Amount     decimal.Decimal `json:"amount"`
	CapturedAt time.Time       `json:"captured_at"`
}

// PaymentGateway is the payment provider. Calls to it are always made
// outside ledger transactions.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*GatewayOrder, error)
	VerifySignature(orderID, paymentID, signature string) bool
	CapturedSince(ctx context.Context, since time.Time) ([]CapturedPayment, error)
}

// HTTPGateway talks to an orders/payments REST API with basic auth. With no
// BaseURL it runs in sandbox mode: order ids are generated locally and no
// captured payments are ever reported.
type HTTPGateway struct {
	BaseURL    string
	KeyID      string
	KeySecret  string
	HTTPClient *http.Client
}

func NewHTTPGateway(baseURL, keyID, keySecret string) *HTTPGateway {
	return &HTTPGateway{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		KeyID:      keyID,
		KeySecret:  keySecret,
		HTTPClient: utils.HTTPClient,
	}
}

// Sign returns the hex HMAC-SHA256 of "orderID|paymentID" under the key secret.
func (g *HTTPGateway) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(g.KeySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *HTTPGateway) VerifySignature(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" || g.KeySecret == "" {
		return false
	}
	expected := g.Sign(orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (g *HTTPGateway) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*GatewayOrder, error) {
	if g.BaseURL == "" {
		return &GatewayOrder{
			ID:       "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
			Amount:   amount,
			Currency: currency,
			Receipt:  receipt,
		}, nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"amount":   Minor(amount),
		"currency": currency,
		"receipt":  receipt,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.KeyID, g.KeySecret)

	var out struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Receipt  string `json:"receipt"`
	}
	if err := g.do(req, &out); err != nil {
		return nil, err
	}
	return &GatewayOrder{ID: out.ID, Amount: FromMinor(out.Amount), Currency: out.Currency, Receipt: out.Receipt}, nil
}

func (g *HTTPGateway) CapturedSince(ctx context.Context, since time.Time) ([]CapturedPayment, error) {
	if g.BaseURL == "" {
		return nil, nil
	}
	u, err := url.Parse(g.BaseURL + "/v1/payments")
	if err != nil {
		return nil, fmt.Errorf("failed to parse gateway URL: %w", err)
	}
	q := u.Query()
	q.Set("from", strconv.FormatInt(since.UTC().Unix(), 10))
	q.Set("count", "100")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create payments request: %w", err)
	}
	req.SetBasicAuth(g.KeyID, g.KeySecret)

	var out struct {
		Items []struct {
			ID        string `json:"id"`
			OrderID   string `json:"order_id"`
			Amount    int64  `json:"amount"`
			Status    string `json:"status"`
			CreatedAt int64  `json:"created_at"`
		} `json:"items"`
	}
	if err := g.do(req, &out); err != nil {
		return nil, err
	}

	payments := make([]CapturedPayment, 0, len(out.Items))
	for _, it := range out.Items {
		if it.Status != "captured" || it.OrderID == "" {
			continue
		}
		payments = append(payments, CapturedPayment{
			OrderID:    it.OrderID,
			PaymentID:  it.ID,
			Amount:     FromMinor(it.Amount),
			CapturedAt: time.Unix(it.CreatedAt, 0).UTC(),
		})
	}
	return payments, nil
}

func (g *HTTPGateway) do(req *http.Request, out interface{}) error {
	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request %s failed: %w", req.URL.Path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}
