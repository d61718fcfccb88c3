package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ripvault/backend/internal/infrastructure/observability"
	"github.com/ripvault/backend/internal/models"
	pkgerrors "github.com/ripvault/backend/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type PostgresCardRepository struct {
	db *sql.DB
}

func NewPostgresCardRepository(db *sql.DB) *PostgresCardRepository {
	return &PostgresCardRepository{db: db}
}

func (r *PostgresCardRepository) UpsertTemplates(ctx context.Context, catalog models.Catalog, cards []models.CardData) ([]models.CardTemplate, error) {
	var err error
	tracer := otel.Tracer("card-repository")
	ctx, span := tracer.Start(ctx, "UpsertTemplates")
	span.SetAttributes(
		attribute.String("catalog", string(catalog)),
		attribute.Int("count", len(cards)),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("UpsertTemplates", status).Inc()
		observability.RepositoryDuration.WithLabelValues("UpsertTemplates").Observe(time.Since(start).Seconds())
	}()

	query := `
	INSERT INTO card_templates (card_id, catalog, name, image_url, rarity, card_type, price, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	ON CONFLICT (card_id, catalog) DO UPDATE
	SET name = EXCLUDED.name,
	    image_url = EXCLUDED.image_url,
	    rarity = EXCLUDED.rarity,
	    card_type = EXCLUDED.card_type,
	    price = EXCLUDED.price,
	    updated_at = now()
	RETURNING id, updated_at
	`

	templates := make([]models.CardTemplate, 0, len(cards))
	for _, card := range cards {
		tmpl := models.CardTemplate{
			CardID:   card.CardID,
			Catalog:  catalog,
			Name:     card.Name,
			ImageURL: card.ImageURL,
			Rarity:   card.Rarity,
			CardType: card.CardType,
			Price:    card.Price,
		}
		err = r.db.QueryRowContext(ctx, query,
			card.CardID, catalog, card.Name, card.ImageURL, card.Rarity, card.CardType, card.Price,
		).Scan(&tmpl.ID, &tmpl.UpdatedAt)
		if err != nil {
			slog.Error("failed to upsert card template", "method", "UpsertTemplates", "card_id", card.CardID, "catalog", catalog, "error", err)
			return nil, fmt.Errorf("failed to upsert card template: %w", err)
		}
		templates = append(templates, tmpl)
	}

	slog.Info("card templates upserted", "method", "UpsertTemplates", "catalog", catalog, "count", len(templates))
	return templates, nil
}

// GrantCards is the atomic write phase of a pack purchase. The debit is
// conditional on the balance staying non-negative, so two purchases racing
// past the service-level balance check cannot overdraw: the second one hits
// zero rows here and the whole transaction rolls back.
func (r *PostgresCardRepository) GrantCards(ctx context.Context, purchase *models.PackPurchase, templateIDs []int32) error {
	var err error
	tracer := otel.Tracer("card-repository")
	ctx, span := tracer.Start(ctx, "GrantCards")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("GrantCards", status).Inc()
		observability.RepositoryDuration.WithLabelValues("GrantCards").Observe(time.Since(start).Seconds())
	}()

	if purchase == nil {
		err = fmt.Errorf("purchase is nil")
		return err
	}
	if purchase.Price <= 0 || len(templateIDs) == 0 {
		err = pkgerrors.ErrInvalidInput
		slog.Error("invalid grant", "method", "GrantCards", "price", purchase.Price, "cards", len(templateIDs))
		return err
	}

	span.SetAttributes(
		attribute.Int("user_id", int(purchase.UserID)),
		attribute.Int64("price", purchase.Price),
		attribute.Int("cards", len(templateIDs)),
	)

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "GrantCards", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	debitQuery := `
	UPDATE users
	SET balance = balance - $1
	WHERE id = $2 AND balance - $1 >= 0
	RETURNING balance
	`
	var newBalance int64
	err = dbTx.QueryRowContext(ctx, debitQuery, purchase.Price, purchase.UserID).Scan(&newBalance)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrInsufficientFunds
		slog.Error("debit rejected", "method", "GrantCards", "user_id", purchase.UserID, "price", purchase.Price)
		return err
	}
	if err != nil {
		slog.Error("failed to debit balance", "method", "GrantCards", "user_id", purchase.UserID, "error", err)
		return fmt.Errorf("failed to debit balance: %w", err)
	}

	ownQuery := `INSERT INTO owned_cards (user_id, card_template_id) VALUES ($1, $2)`
	for _, templateID := range templateIDs {
		if _, err = dbTx.ExecContext(ctx, ownQuery, purchase.UserID, templateID); err != nil {
			slog.Error("failed to grant card", "method", "GrantCards", "user_id", purchase.UserID, "template_id", templateID, "error", err)
			return fmt.Errorf("failed to grant card: %w", err)
		}
	}

	historyQuery := `
	INSERT INTO pack_purchases (user_id, catalog, tier, card_count, price)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, created_at
	`
	err = dbTx.QueryRowContext(ctx, historyQuery,
		purchase.UserID, purchase.Catalog, purchase.Tier, purchase.CardCount, purchase.Price,
	).Scan(&purchase.ID, &purchase.CreatedAt)
	if err != nil {
		slog.Error("failed to record purchase", "method", "GrantCards", "user_id", purchase.UserID, "error", err)
		return fmt.Errorf("failed to record purchase: %w", err)
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit purchase", "method", "GrantCards", "user_id", purchase.UserID, "error", err)
		return fmt.Errorf("failed to commit purchase: %w", err)
	}

	slog.Info("cards granted", "method", "GrantCards", "user_id", purchase.UserID, "cards", len(templateIDs), "price", purchase.Price, "balance", newBalance)
	return nil
}

func (r *PostgresCardRepository) ListOwned(ctx context.Context, userID int32) ([]models.OwnedCard, error) {
	query := `
	SELECT oc.id, oc.user_id, oc.acquired_at,
	       ct.id, ct.card_id, ct.catalog, ct.name, ct.image_url, ct.rarity, ct.card_type, ct.price, ct.updated_at
	FROM owned_cards oc
	JOIN card_templates ct ON ct.id = oc.card_template_id
	WHERE oc.user_id = $1
	ORDER BY oc.acquired_at DESC, oc.id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned cards: %w", err)
	}
	defer rows.Close()

	var owned []models.OwnedCard
	for rows.Next() {
		var oc models.OwnedCard
		if err := rows.Scan(
			&oc.ID, &oc.UserID, &oc.AcquiredAt,
			&oc.Template.ID, &oc.Template.CardID, &oc.Template.Catalog, &oc.Template.Name,
			&oc.Template.ImageURL, &oc.Template.Rarity, &oc.Template.CardType,
			&oc.Template.Price, &oc.Template.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan owned card: %w", err)
		}
		owned = append(owned, oc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate owned cards: %w", err)
	}
	return owned, nil
}

func (r *PostgresCardRepository) ListPurchases(ctx context.Context, userID int32) ([]models.PackPurchase, error) {
	query := `
	SELECT id, user_id, catalog, tier, card_count, price, created_at
	FROM pack_purchases
	WHERE user_id = $1
	ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []models.PackPurchase
	for rows.Next() {
		var p models.PackPurchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.Catalog, &p.Tier, &p.CardCount, &p.Price, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate purchases: %w", err)
	}
	return purchases, nil
}
