package models

import "time"

// Order is a deposit order created against the payment gateway.
// Status transitions PENDING -> SUCCESS or PENDING -> FAILED exactly once.
type Order struct {
	ID               int32       `json:"id"`
	OrderID          string      `json:"order_id"`
	UserID           int32       `json:"user_id"`
	Amount           int64       `json:"amount"`
	Status           OrderStatus `json:"status"`
	PaymentSessionID string      `json:"payment_session_id,omitempty"`
	CfOrderID        string      `json:"cf_order_id,omitempty"`
	PaymentMethod    string      `json:"payment_method,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

type OrderStatus string

const (
	OrderPending OrderStatus = "PENDING"
	OrderSuccess OrderStatus = "SUCCESS"
	OrderFailed  OrderStatus = "FAILED"
)
