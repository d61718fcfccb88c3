package repository

import (
	"context"

	"github.com/ripvault/backend/internal/models"
)

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	// MarkSuccessAndCredit marks the order SUCCESS and credits the owner's
	// balance by the order amount in a single database transaction. It
	// returns false when the order was not in PENDING state, in which case
	// no credit is applied.
	MarkSuccessAndCredit(ctx context.Context, orderID, paymentMethod string) (bool, error)
	MarkFailed(ctx context.Context, orderID string) error
	ListByUser(ctx context.Context, userID int32) ([]models.Order, error)
}
