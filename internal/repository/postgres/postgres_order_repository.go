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

type PostgresOrderRepository struct {
	db *sql.DB
}

func NewPostgresOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

func (r *PostgresOrderRepository) Create(ctx context.Context, order *models.Order) error {
	var err error
	tracer := otel.Tracer("order-repository")
	ctx, span := tracer.Start(ctx, "CreateOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("CreateOrder", status).Inc()
		observability.RepositoryDuration.WithLabelValues("CreateOrder").Observe(time.Since(start).Seconds())
	}()

	if order == nil {
		err = fmt.Errorf("order is nil")
		return err
	}
	if order.Amount < 1 {
		err = pkgerrors.ErrInvalidAmount
		slog.Error("invalid order amount", "method", "Create", "amount", order.Amount)
		return err
	}

	span.SetAttributes(
		attribute.String("order_id", order.OrderID),
		attribute.Int("user_id", int(order.UserID)),
		attribute.Int64("amount", order.Amount),
	)

	query := `
	INSERT INTO orders (order_id, user_id, amount, status, payment_session_id, cf_order_id)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		order.OrderID, order.UserID, order.Amount, models.OrderPending,
		order.PaymentSessionID, order.CfOrderID,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		slog.Error("failed to create order", "method", "Create", "order_id", order.OrderID, "error", err)
		return fmt.Errorf("failed to create order: %w", err)
	}

	order.Status = models.OrderPending
	slog.Info("order created", "method", "Create", "order_id", order.OrderID, "user_id", order.UserID, "amount", order.Amount)
	return nil
}

func (r *PostgresOrderRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	var paymentMethod sql.NullString
	query := `
	SELECT id, order_id, user_id, amount, status, payment_session_id, cf_order_id, payment_method, created_at, updated_at
	FROM orders
	WHERE order_id = $1
	`
	err := r.db.QueryRowContext(ctx, query, orderID).Scan(
		&order.ID, &order.OrderID, &order.UserID, &order.Amount, &order.Status,
		&order.PaymentSessionID, &order.CfOrderID, &paymentMethod,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	order.PaymentMethod = paymentMethod.String
	return &order, nil
}

// MarkSuccessAndCredit performs the settlement write: flip PENDING -> SUCCESS
// and credit the owner's balance by the order amount, both inside one
// transaction. The conditional UPDATE is what makes settlement exactly-once:
// if a concurrent verify already won, zero rows come back and the credit is
// skipped entirely.
func (r *PostgresOrderRepository) MarkSuccessAndCredit(ctx context.Context, orderID, paymentMethod string) (bool, error) {
	var err error
	tracer := otel.Tracer("order-repository")
	ctx, span := tracer.Start(ctx, "MarkSuccessAndCredit")
	span.SetAttributes(attribute.String("order_id", orderID))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("MarkSuccessAndCredit", status).Inc()
		observability.RepositoryDuration.WithLabelValues("MarkSuccessAndCredit").Observe(time.Since(start).Seconds())
	}()

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "MarkSuccessAndCredit", "error", err)
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	var userID int32
	var amount int64
	markQuery := `
	UPDATE orders
	SET status = $2, payment_method = $3, updated_at = now()
	WHERE order_id = $1 AND status = $4
	RETURNING user_id, amount
	`
	err = dbTx.QueryRowContext(ctx, markQuery, orderID, models.OrderSuccess, paymentMethod, models.OrderPending).
		Scan(&userID, &amount)
	if stderrors.Is(err, sql.ErrNoRows) {
		// Already settled by a concurrent call. Not an error; just no credit.
		err = nil
		slog.Info("order already settled, skipping credit", "method", "MarkSuccessAndCredit", "order_id", orderID)
		return false, nil
	}
	if err != nil {
		slog.Error("failed to mark order success", "method", "MarkSuccessAndCredit", "order_id", orderID, "error", err)
		return false, fmt.Errorf("failed to mark order success: %w", err)
	}

	creditQuery := `UPDATE users SET balance = balance + $1 WHERE id = $2`
	if _, err = dbTx.ExecContext(ctx, creditQuery, amount, userID); err != nil {
		slog.Error("failed to credit balance", "method", "MarkSuccessAndCredit", "order_id", orderID, "user_id", userID, "error", err)
		return false, fmt.Errorf("failed to credit balance: %w", err)
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit settlement", "method", "MarkSuccessAndCredit", "order_id", orderID, "error", err)
		return false, fmt.Errorf("failed to commit settlement: %w", err)
	}

	slog.Info("order settled and balance credited", "method", "MarkSuccessAndCredit", "order_id", orderID, "user_id", userID, "amount", amount)
	return true, nil
}

func (r *PostgresOrderRepository) MarkFailed(ctx context.Context, orderID string) error {
	var err error
	tracer := otel.Tracer("order-repository")
	ctx, span := tracer.Start(ctx, "MarkOrderFailed")
	span.SetAttributes(attribute.String("order_id", orderID))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("MarkOrderFailed", status).Inc()
		observability.RepositoryDuration.WithLabelValues("MarkOrderFailed").Observe(time.Since(start).Seconds())
	}()

	query := `
	UPDATE orders
	SET status = $2, updated_at = now()
	WHERE order_id = $1 AND status = $3
	`
	_, err = r.db.ExecContext(ctx, query, orderID, models.OrderFailed, models.OrderPending)
	if err != nil {
		slog.Error("failed to mark order failed", "method", "MarkFailed", "order_id", orderID, "error", err)
		return fmt.Errorf("failed to mark order failed: %w", err)
	}

	slog.Info("order marked failed", "method", "MarkFailed", "order_id", orderID)
	return nil
}

func (r *PostgresOrderRepository) ListByUser(ctx context.Context, userID int32) ([]models.Order, error) {
	query := `
	SELECT id, order_id, user_id, amount, status, payment_session_id, cf_order_id, payment_method, created_at, updated_at
	FROM orders
	WHERE user_id = $1
	ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		var paymentMethod sql.NullString
		if err := rows.Scan(
			&order.ID, &order.OrderID, &order.UserID, &order.Amount, &order.Status,
			&order.PaymentSessionID, &order.CfOrderID, &paymentMethod,
			&order.CreatedAt, &order.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		order.PaymentMethod = paymentMethod.String
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}
