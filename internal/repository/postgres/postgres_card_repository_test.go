package repository_test

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ripvault/backend/internal/models"
	repository "github.com/ripvault/backend/internal/repository/postgres"
	pkgerrors "github.com/ripvault/backend/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestPostgresCardRepository_UpsertTemplates(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresCardRepository(db)
	ctx := context.Background()

	upsert := regexp.QuoteMeta(`ON CONFLICT (card_id, catalog) DO UPDATE`)

	t.Run("Success", func(t *testing.T) {
		cards := []models.CardData{
			{CardID: "base1-4", Name: "Charizard", ImageURL: "https://img/4.png", Rarity: "Rare Holo", CardType: "Pokémon", Price: 420.69},
			{CardID: "base1-58", Name: "Pikachu", ImageURL: "https://img/58.png", Rarity: "Common", CardType: "Pokémon", Price: 1.25},
		}
		now := time.Now()
		mock.ExpectQuery(upsert).
			WithArgs("base1-4", models.CatalogPokemon, "Charizard", "https://img/4.png", "Rare Holo", "Pokémon", 420.69).
			WillReturnRows(sqlmock.NewRows([]string{"id", "updated_at"}).AddRow(int32(101), now))
		mock.ExpectQuery(upsert).
			WithArgs("base1-58", models.CatalogPokemon, "Pikachu", "https://img/58.png", "Common", "Pokémon", 1.25).
			WillReturnRows(sqlmock.NewRows([]string{"id", "updated_at"}).AddRow(int32(102), now))

		templates, err := repo.UpsertTemplates(ctx, models.CatalogPokemon, cards)
		assert.NoError(t, err)
		assert.Len(t, templates, 2)
		assert.Equal(t, int32(101), templates[0].ID)
		assert.Equal(t, models.CatalogPokemon, templates[0].Catalog)
		assert.Equal(t, "Pikachu", templates[1].Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		cards := []models.CardData{{CardID: "base1-4", Name: "Charizard"}}
		mock.ExpectQuery(upsert).
			WithArgs("base1-4", models.CatalogPokemon, "Charizard", "", "", "", 0.0).
			WillReturnError(fmt.Errorf("database error"))

		templates, err := repo.UpsertTemplates(ctx, models.CatalogPokemon, cards)
		assert.Nil(t, templates)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upsert card template")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresCardRepository_GrantCards(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresCardRepository(db)
	ctx := context.Background()

	debitQuery := regexp.QuoteMeta(`WHERE id = $2 AND balance - $1 >= 0`)
	ownQuery := regexp.QuoteMeta(`INSERT INTO owned_cards (user_id, card_template_id) VALUES ($1, $2)`)
	historyQuery := regexp.QuoteMeta(`INSERT INTO pack_purchases (user_id, catalog, tier, card_count, price)`)

	newPurchase := func() *models.PackPurchase {
		return &models.PackPurchase{
			UserID:    1,
			Catalog:   models.CatalogPokemon,
			Tier:      models.TierStarter,
			CardCount: 2,
			Price:     50,
		}
	}

	t.Run("DebitsAndGrantsAtomically", func(t *testing.T) {
		purchase := newPurchase()
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(debitQuery).
			WithArgs(int64(50), int32(1)).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(50)))
		mock.ExpectExec(ownQuery).WithArgs(int32(1), int32(101)).WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(ownQuery).WithArgs(int32(1), int32(102)).WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectQuery(historyQuery).
			WithArgs(int32(1), models.CatalogPokemon, models.TierStarter, 2, int64(50)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int32(7), now))
		mock.ExpectCommit()

		err := repo.GrantCards(ctx, purchase, []int32{101, 102})
		assert.NoError(t, err)
		assert.Equal(t, int32(7), purchase.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InsufficientFundsRollsBack", func(t *testing.T) {
		purchase := newPurchase()

		mock.ExpectBegin()
		mock.ExpectQuery(debitQuery).
			WithArgs(int64(50), int32(1)).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := repo.GrantCards(ctx, purchase, []int32{101, 102})
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GrantFailureRollsBack", func(t *testing.T) {
		purchase := newPurchase()

		mock.ExpectBegin()
		mock.ExpectQuery(debitQuery).
			WithArgs(int64(50), int32(1)).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(50)))
		mock.ExpectExec(ownQuery).WithArgs(int32(1), int32(101)).WillReturnError(fmt.Errorf("database error"))
		mock.ExpectRollback()

		err := repo.GrantCards(ctx, purchase, []int32{101, 102})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to grant card")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InvalidInput", func(t *testing.T) {
		err := repo.GrantCards(ctx, newPurchase(), nil)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})
}

func TestPostgresCardRepository_ListOwned(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresCardRepository(db)
	ctx := context.Background()

	t.Run("NewestFirst", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY oc.acquired_at DESC, oc.id DESC`)).
			WithArgs(int32(1)).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "user_id", "acquired_at",
				"ct.id", "card_id", "catalog", "name", "image_url", "rarity", "card_type", "price", "updated_at",
			}).
				AddRow(int32(2), int32(1), now, int32(102), "base1-58", models.CatalogPokemon, "Pikachu", "https://img/58.png", "Common", "Pokémon", 1.25, now).
				AddRow(int32(1), int32(1), now.Add(-time.Hour), int32(101), "base1-4", models.CatalogPokemon, "Charizard", "https://img/4.png", "Rare Holo", "Pokémon", 420.69, now))

		owned, err := repo.ListOwned(ctx, 1)
		assert.NoError(t, err)
		assert.Len(t, owned, 2)
		assert.Equal(t, "Pikachu", owned[0].Template.Name)
		assert.Equal(t, "Charizard", owned[1].Template.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Empty", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY oc.acquired_at DESC, oc.id DESC`)).
			WithArgs(int32(42)).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "user_id", "acquired_at",
				"ct.id", "card_id", "catalog", "name", "image_url", "rarity", "card_type", "price", "updated_at",
			}))

		owned, err := repo.ListOwned(ctx, 42)
		assert.NoError(t, err)
		assert.Empty(t, owned)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresCardRepository_ListPurchases(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresCardRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`FROM pack_purchases`)).
			WithArgs(int32(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "catalog", "tier", "card_count", "price", "created_at"}).
				AddRow(int32(7), int32(1), models.CatalogPokemon, models.TierStarter, 3, int64(50), now))

		purchases, err := repo.ListPurchases(ctx, 1)
		assert.NoError(t, err)
		assert.Len(t, purchases, 1)
		assert.Equal(t, models.TierStarter, purchases[0].Tier)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
