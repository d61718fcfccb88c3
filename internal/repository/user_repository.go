package repository

import (
	"context"

	"github.com/ripvault/backend/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int32) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetBalance(ctx context.Context, userID int32) (int64, error)
}
