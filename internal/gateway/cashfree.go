// Package gateway wraps the Cashfree payment gateway REST API: order
// creation and authoritative order-status lookup. It never touches the
// database; settlement decisions belong to the service layer.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	pkgerrors "github.com/ripvault/backend/pkg/errors"
)

const (
	DefaultBaseURL    = "https://sandbox.cashfree.com"
	DefaultAPIVersion = "2025-01-01"

	// Order statuses reported by Cashfree.
	StatusPaid       = "PAID"
	StatusExpired    = "EXPIRED"
	StatusTerminated = "TERMINATED"
	StatusActive     = "ACTIVE"
)

//go:generate mockgen -source=cashfree.go -destination=mocks/mock_client.go -package=mocks
type Client interface {
	CreateOrder(ctx context.Context, params CreateOrderParams) (*OrderResponse, error)
	GetOrderStatus(ctx context.Context, orderID string) (*OrderStatusResponse, error)
}

type CreateOrderParams struct {
	OrderID       string
	Amount        int64
	CustomerID    string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	ReturnURL     string
}

type OrderResponse struct {
	CfOrderID        string `json:"cf_order_id"`
	OrderID          string `json:"order_id"`
	OrderStatus      string `json:"order_status"`
	PaymentSessionID string `json:"payment_session_id"`
}

type Payment struct {
	CfPaymentID   json.Number    `json:"cf_payment_id"`
	PaymentStatus string         `json:"payment_status"`
	PaymentAmount float64        `json:"payment_amount"`
	PaymentMethod map[string]any `json:"payment_method"`
}

type OrderStatusResponse struct {
	CfOrderID     string    `json:"cf_order_id"`
	OrderID       string    `json:"order_id"`
	OrderStatus   string    `json:"order_status"`
	OrderAmount   float64   `json:"order_amount"`
	OrderCurrency string    `json:"order_currency"`
	Payments      []Payment `json:"payments"`
}

// PaymentMethodName reports the settled payment instrument, "unknown" when
// Cashfree omits it.
func (r *OrderStatusResponse) PaymentMethodName() string {
	if len(r.Payments) > 0 {
		for name := range r.Payments[0].PaymentMethod {
			return name
		}
	}
	return "unknown"
}

type CashfreeClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	apiVersion   string
	httpClient   *http.Client
}

func NewCashfreeClient(baseURL, clientID, clientSecret, apiVersion string) *CashfreeClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	return &CashfreeClient{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		apiVersion:   apiVersion,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *CashfreeClient) CreateOrder(ctx context.Context, params CreateOrderParams) (*OrderResponse, error) {
	customerName := params.CustomerName
	if customerName == "" {
		customerName = "Customer"
	}
	body := map[string]any{
		"order_id":       params.OrderID,
		"order_amount":   params.Amount,
		"order_currency": "INR",
		"customer_details": map[string]any{
			"customer_id":    params.CustomerID,
			"customer_email": params.CustomerEmail,
			"customer_phone": params.CustomerPhone,
			"customer_name":  customerName,
		},
		"order_meta": map[string]any{
			"return_url": params.ReturnURL,
		},
	}

	var resp OrderResponse
	if err := c.do(ctx, http.MethodPost, "/pg/orders", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *CashfreeClient) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatusResponse, error) {
	var resp OrderStatusResponse
	if err := c.doWithRetry(ctx, http.MethodGet, "/pg/orders/"+orderID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// doWithRetry retries transient gateway failures. Order creation is not
// retried: a duplicate create with the same order_id is a gateway-side
// conflict the caller has to handle anyway.
func (c *CashfreeClient) doWithRetry(ctx context.Context, method, path string, body, out any) error {
	op := func() error {
		err := c.do(ctx, method, path, body, out)
		if err != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx))
}

type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("cashfree returned status %d: %s", e.code, e.msg)
}

func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

func (c *CashfreeClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: failed to encode request", pkgerrors.ErrGatewayError)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrGatewayError, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-version", c.apiVersion)
	req.Header.Set("x-client-id", c.clientID)
	req.Header.Set("x-client-secret", c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("cashfree request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("%w: %v", pkgerrors.ErrGatewayError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Never propagate the raw gateway payload to callers; log the
		// gateway's message and surface our own error.
		var gwErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&gwErr)
		slog.Error("cashfree returned error", "method", method, "path", path, "status", resp.StatusCode, "message", gwErr.Message)
		return fmt.Errorf("%w: %w", pkgerrors.ErrGatewayError, &statusError{code: resp.StatusCode, msg: gwErr.Message})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		slog.Error("failed to decode cashfree response", "method", method, "path", path, "error", err)
		return fmt.Errorf("%w: malformed gateway response", pkgerrors.ErrGatewayError)
	}
	return nil
}
