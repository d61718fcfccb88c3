package repository

import (
	"context"

	"github.com/ripvault/backend/internal/models"
)

type CardRepository interface {
	// UpsertTemplates creates or refreshes one card template per fetched
	// card, keyed by (card_id, catalog), and returns the stored rows.
	UpsertTemplates(ctx context.Context, catalog models.Catalog, cards []models.CardData) ([]models.CardTemplate, error)
	// GrantCards debits the buyer by purchase.Price, creates one owned
	// card per template id and records the purchase, all in a single
	// database transaction. Returns ErrInsufficientFunds without any
	// state change when the balance cannot cover the price.
	GrantCards(ctx context.Context, purchase *models.PackPurchase, templateIDs []int32) error
	ListOwned(ctx context.Context, userID int32) ([]models.OwnedCard, error)
	ListPurchases(ctx context.Context, userID int32) ([]models.PackPurchase, error)
}
