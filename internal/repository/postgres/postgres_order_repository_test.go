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

func TestPostgresOrderRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresOrderRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		order := &models.Order{
			OrderID:          "order_abc",
			UserID:           1,
			Amount:           500,
			PaymentSessionID: "session_xyz",
			CfOrderID:        "cf_123",
		}
		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO orders (order_id, user_id, amount, status, payment_session_id, cf_order_id)`)).
			WithArgs(order.OrderID, order.UserID, order.Amount, models.OrderPending, order.PaymentSessionID, order.CfOrderID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int32(10), now, now))

		err := repo.Create(ctx, order)
		assert.NoError(t, err)
		assert.Equal(t, int32(10), order.ID)
		assert.Equal(t, models.OrderPending, order.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		err := repo.Create(ctx, &models.Order{OrderID: "order_abc", UserID: 1, Amount: 0})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidAmount)
	})
}

func TestPostgresOrderRepository_GetByOrderID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresOrderRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE order_id = $1`)).
			WithArgs("order_abc").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "order_id", "user_id", "amount", "status",
				"payment_session_id", "cf_order_id", "payment_method", "created_at", "updated_at",
			}).AddRow(int32(10), "order_abc", int32(1), int64(500), models.OrderPending, "session_xyz", "cf_123", nil, now, now))

		order, err := repo.GetByOrderID(ctx, "order_abc")
		assert.NoError(t, err)
		assert.Equal(t, int32(1), order.UserID)
		assert.Equal(t, models.OrderPending, order.Status)
		assert.Empty(t, order.PaymentMethod)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("OrderNotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE order_id = $1`)).
			WithArgs("order_missing").
			WillReturnError(sql.ErrNoRows)

		order, err := repo.GetByOrderID(ctx, "order_missing")
		assert.Nil(t, order)
		assert.ErrorIs(t, err, pkgerrors.ErrOrderNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresOrderRepository_MarkSuccessAndCredit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresOrderRepository(db)
	ctx := context.Background()

	markQuery := regexp.QuoteMeta(`WHERE order_id = $1 AND status = $4`)
	creditQuery := regexp.QuoteMeta(`UPDATE users SET balance = balance + $1 WHERE id = $2`)

	t.Run("CreditsPendingOrder", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(markQuery).
			WithArgs("order_abc", models.OrderSuccess, "upi", models.OrderPending).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "amount"}).AddRow(int32(1), int64(500)))
		mock.ExpectExec(creditQuery).
			WithArgs(int64(500), int32(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		credited, err := repo.MarkSuccessAndCredit(ctx, "order_abc", "upi")
		assert.NoError(t, err)
		assert.True(t, credited)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AlreadySettledSkipsCredit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(markQuery).
			WithArgs("order_abc", models.OrderSuccess, "upi", models.OrderPending).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		credited, err := repo.MarkSuccessAndCredit(ctx, "order_abc", "upi")
		assert.NoError(t, err)
		assert.False(t, credited)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CreditFailureRollsBack", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(markQuery).
			WithArgs("order_abc", models.OrderSuccess, "upi", models.OrderPending).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "amount"}).AddRow(int32(1), int64(500)))
		mock.ExpectExec(creditQuery).
			WithArgs(int64(500), int32(1)).
			WillReturnError(fmt.Errorf("database error"))
		mock.ExpectRollback()

		credited, err := repo.MarkSuccessAndCredit(ctx, "order_abc", "upi")
		assert.Error(t, err)
		assert.False(t, credited)
		assert.Contains(t, err.Error(), "failed to credit balance")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresOrderRepository_MarkFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresOrderRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`WHERE order_id = $1 AND status = $3`)).
			WithArgs("order_abc", models.OrderFailed, models.OrderPending).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.MarkFailed(ctx, "order_abc")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresOrderRepository_ListByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresOrderRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE user_id = $1`)).
			WithArgs(int32(1)).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "order_id", "user_id", "amount", "status",
				"payment_session_id", "cf_order_id", "payment_method", "created_at", "updated_at",
			}).
				AddRow(int32(11), "order_b", int32(1), int64(200), models.OrderSuccess, "s2", "cf_2", "upi", now, now).
				AddRow(int32(10), "order_a", int32(1), int64(500), models.OrderFailed, "s1", "cf_1", nil, now.Add(-time.Hour), now))

		orders, err := repo.ListByUser(ctx, 1)
		assert.NoError(t, err)
		assert.Len(t, orders, 2)
		assert.Equal(t, "order_b", orders[0].OrderID)
		assert.Equal(t, "upi", orders[0].PaymentMethod)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
