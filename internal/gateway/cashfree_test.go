package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	pkgerrors "github.com/ripvault/backend/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCashfreeClient_CreateOrder(t *testing.T) {
	t.Run("sends auth headers and order payload", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/pg/orders", r.URL.Path)
			assert.Equal(t, "2025-01-01", r.Header.Get("x-api-version"))
			assert.Equal(t, "client-id", r.Header.Get("x-client-id"))
			assert.Equal(t, "client-secret", r.Header.Get("x-client-secret"))

			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "order_abc", body["order_id"])
			assert.Equal(t, float64(500), body["order_amount"])
			assert.Equal(t, "INR", body["order_currency"])
			details := body["customer_details"].(map[string]any)
			assert.Equal(t, "1", details["customer_id"])

			fmt.Fprint(w, `{"cf_order_id":"cf_123","order_id":"order_abc","order_status":"ACTIVE","payment_session_id":"session_xyz"}`)
		}))
		defer server.Close()

		client := NewCashfreeClient(server.URL, "client-id", "client-secret", "")
		resp, err := client.CreateOrder(context.Background(), CreateOrderParams{
			OrderID:    "order_abc",
			Amount:     500,
			CustomerID: "1",
		})
		assert.NoError(t, err)
		assert.Equal(t, "cf_123", resp.CfOrderID)
		assert.Equal(t, "session_xyz", resp.PaymentSessionID)
	})

	t.Run("gateway error is wrapped, payload never surfaces", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"authentication failed: secret super-secret is invalid"}`)
		}))
		defer server.Close()

		client := NewCashfreeClient(server.URL, "client-id", "bad-secret", "")
		_, err := client.CreateOrder(context.Background(), CreateOrderParams{OrderID: "order_abc", Amount: 500})
		assert.ErrorIs(t, err, pkgerrors.ErrGatewayError)
		assert.NotContains(t, err.Error(), "super-secret")
	})

	t.Run("create is not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		client := NewCashfreeClient(server.URL, "client-id", "client-secret", "")
		_, err := client.CreateOrder(context.Background(), CreateOrderParams{OrderID: "order_abc", Amount: 500})
		assert.ErrorIs(t, err, pkgerrors.ErrGatewayError)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestCashfreeClient_GetOrderStatus(t *testing.T) {
	t.Run("returns gateway status and payments", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/pg/orders/order_abc", r.URL.Path)
			fmt.Fprint(w, `{"cf_order_id":"cf_123","order_id":"order_abc","order_status":"PAID","order_amount":500,"payments":[{"cf_payment_id":987,"payment_status":"SUCCESS","payment_amount":500,"payment_method":{"upi":{"upi_id":"x@bank"}}}]}`)
		}))
		defer server.Close()

		client := NewCashfreeClient(server.URL, "client-id", "client-secret", "")
		resp, err := client.GetOrderStatus(context.Background(), "order_abc")
		assert.NoError(t, err)
		assert.Equal(t, StatusPaid, resp.OrderStatus)
		assert.Equal(t, "upi", resp.PaymentMethodName())
	})

	t.Run("retries transient gateway errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, `{"order_id":"order_abc","order_status":"ACTIVE"}`)
		}))
		defer server.Close()

		client := NewCashfreeClient(server.URL, "client-id", "client-secret", "")
		resp, err := client.GetOrderStatus(context.Background(), "order_abc")
		assert.NoError(t, err)
		assert.Equal(t, StatusActive, resp.OrderStatus)
		assert.GreaterOrEqual(t, calls.Load(), int32(2))
	})

	t.Run("client errors are permanent", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"order not found"}`)
		}))
		defer server.Close()

		client := NewCashfreeClient(server.URL, "client-id", "client-secret", "")
		_, err := client.GetOrderStatus(context.Background(), "order_missing")
		assert.ErrorIs(t, err, pkgerrors.ErrGatewayError)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestOrderStatusResponse_PaymentMethodName(t *testing.T) {
	resp := &OrderStatusResponse{}
	assert.Equal(t, "unknown", resp.PaymentMethodName())

	resp.Payments = []Payment{{PaymentMethod: map[string]any{"card": map[string]any{}}}}
	assert.Equal(t, "card", resp.PaymentMethodName())
}
