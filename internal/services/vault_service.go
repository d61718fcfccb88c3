package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ripvault/backend/internal/catalog"
	"github.com/ripvault/backend/internal/gateway"
	"github.com/ripvault/backend/internal/infrastructure/kafka"
	"github.com/ripvault/backend/internal/infrastructure/redis"
	"github.com/ripvault/backend/internal/models"
	"github.com/ripvault/backend/internal/repository"
	pkgerrors "github.com/ripvault/backend/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"
)

const (
	topicPurchases = "purchases"
	topicPayments  = "payments"

	catalogCacheTTL = time.Hour
)

// SettlementResult is the outcome of a verify call against the gateway.
type SettlementResult struct {
	Status  models.OrderStatus `json:"status"`
	Message string             `json:"message"`
}

type History struct {
	Deposits  []models.Order        `json:"deposits"`
	Purchases []models.PackPurchase `json:"purchases"`
}

type VaultService interface {
	Register(ctx context.Context, username, email, password string) (string, error)
	Login(ctx context.Context, username, password string) (string, error)
	CreateDepositOrder(ctx context.Context, userID int32, amount int64) (*models.Order, error)
	VerifyPayment(ctx context.Context, userID int32, orderID string) (*SettlementResult, error)
	PurchasePack(ctx context.Context, userID int32, catalogName, tier, requestID string) ([]models.CardTemplate, error)
	GetBalance(ctx context.Context, userID int32) (int64, error)
	GetCollection(ctx context.Context, userID int32) ([]models.OwnedCard, error)
	GetHistory(ctx context.Context, userID int32) (*History, error)
	BrowseCatalog(ctx context.Context, catalogName string, page, pageSize int) (*catalog.Listing, error)
}

type vaultService struct {
	userRepo      repository.UserRepository
	orderRepo     repository.OrderRepository
	cardRepo      repository.CardRepository
	gatewayClient gateway.Client
	fetchers      map[models.Catalog]catalog.Fetcher
	redisClient   redis.RedisClient
	kafkaProducer kafka.KafkaProducer
	jwtSecret     string
	returnURL     string
}

func NewVaultService(
	userRepo repository.UserRepository,
	orderRepo repository.OrderRepository,
	cardRepo repository.CardRepository,
	gatewayClient gateway.Client,
	fetchers []catalog.Fetcher,
	redisClient redis.RedisClient,
	kafkaProducer kafka.KafkaProducer,
	jwtSecret string,
	returnURL string,
) *vaultService {
	byCatalog := make(map[models.Catalog]catalog.Fetcher, len(fetchers))
	for _, f := range fetchers {
		byCatalog[f.Catalog()] = f
	}
	return &vaultService{
		userRepo:      userRepo,
		orderRepo:     orderRepo,
		cardRepo:      cardRepo,
		gatewayClient: gatewayClient,
		fetchers:      byCatalog,
		redisClient:   redisClient,
		kafkaProducer: kafkaProducer,
		jwtSecret:     jwtSecret,
		returnURL:     returnURL,
	}
}

func (s *vaultService) Register(ctx context.Context, username, email, password string) (string, error) {
	tracer := otel.Tracer("vault-service")
	ctx, span := tracer.Start(ctx, "Register")
	defer span.End()

	if username == "" || password == "" {
		span.SetStatus(codes.Error, "empty username or password")
		return "", pkgerrors.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "password hashing failed")
		slog.Error("failed to hash password", "username", username, "error", err)
		return "", fmt.Errorf("%w: failed to hash password", pkgerrors.ErrInternal)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if stderrors.Is(err, pkgerrors.ErrUsernameExists) {
			span.SetStatus(codes.Error, "username already exists")
			slog.Warn("username already exists", "username", username)
			return "", err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "user creation failed")
		slog.Error("failed to create user in DB", "username", username, "error", err)
		return "", fmt.Errorf("%w: failed to create user", pkgerrors.ErrInternal)
	}

	slog.Info("user registered successfully", "user_id", user.ID, "username", username)
	return fmt.Sprintf("%d", user.ID), nil
}

func (s *vaultService) Login(ctx context.Context, username, password string) (string, error) {
	tracer := otel.Tracer("vault-service")
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		slog.Error("failed to login", "username", username, "error", err)
		return "", pkgerrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Error("invalid password", "username", username)
		return "", pkgerrors.ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		slog.Error("failed to generate JWT", "error", err)
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	if err := s.redisClient.Set(ctx, fmt.Sprintf("user:%d:token", user.ID), tokenString, time.Hour); err != nil {
		slog.Error("failed to cache JWT", "user_id", user.ID, "error", err)
	}

	slog.Info("user logged in", "username", username, "user_id", user.ID)
	return tokenString, nil
}

// CreateDepositOrder registers a deposit with the gateway and persists it
// PENDING. The ledger is untouched until VerifyPayment settles the order.
func (s *vaultService) CreateDepositOrder(ctx context.Context, userID int32, amount int64) (*models.Order, error) {
	tracer := otel.Tracer("vault-service")
	ctx, span := tracer.Start(ctx, "CreateDepositOrder")
	defer span.End()

	if amount < 1 {
		span.SetStatus(codes.Error, "invalid amount")
		return nil, pkgerrors.ErrInvalidAmount
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user lookup failed")
		slog.Error("failed to get user", "user_id", userID, "error", err)
		return nil, err
	}

	orderID := fmt.Sprintf("order_%s", uuid.NewString())
	gwOrder, err := s.gatewayClient.CreateOrder(ctx, gateway.CreateOrderParams{
		OrderID:       orderID,
		Amount:        amount,
		CustomerID:    fmt.Sprintf("%d", userID),
		CustomerName:  user.Username,
		CustomerEmail: user.Email,
		CustomerPhone: "9999999999",
		ReturnURL:     fmt.Sprintf("%s?order_id=%s", s.returnURL, orderID),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway order creation failed")
		slog.Error("failed to create gateway order", "user_id", userID, "order_id", orderID, "error", err)
		return nil, err
	}

	order := &models.Order{
		OrderID:          orderID,
		UserID:           userID,
		Amount:           amount,
		PaymentSessionID: gwOrder.PaymentSessionID,
		CfOrderID:        gwOrder.CfOrderID,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order persistence failed")
		return nil, err
	}

	slog.Info("deposit order created", "user_id", userID, "order_id", orderID, "amount", amount)
	return order, nil
}

// VerifyPayment settles a deposit order. A SUCCESS order short-circuits
// without re-querying the gateway, so the ledger is credited at most once
// per order no matter how many times the client retries the verify call.
func (s *vaultService) VerifyPayment(ctx context.Context, userID int32, orderID string) (*SettlementResult, error) {
	tracer := otel.Tracer("vault-service")
	ctx, span := tracer.Start(ctx, "VerifyPayment")
	defer span.End()

	order, err := s.orderRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order lookup failed")
		slog.Error("failed to get order", "order_id", orderID, "error", err)
		return nil, err
	}
	if order.UserID != userID {
		span.SetStatus(codes.Error, "order owned by another user")
		slog.Error("order ownership mismatch", "order_id", orderID, "owner_id", order.UserID, "caller_id", userID)
		return nil, pkgerrors.ErrForbidden
	}

	if order.Status == models.OrderSuccess {
		return &SettlementResult{Status: models.OrderSuccess, Message: "Payment already verified"}, nil
	}

	gwStatus, err := s.gatewayClient.GetOrderStatus(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway status check failed")
		slog.Error("failed to get gateway order status", "order_id", orderID, "error", err)
		return nil, err
	}

	switch gwStatus.OrderStatus {
	case gateway.StatusPaid:
		credited, err := s.orderRepo.MarkSuccessAndCredit(ctx, orderID, gwStatus.PaymentMethodName())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "settlement write failed")
			return nil, err
		}
		if credited {
			s.invalidateBalance(ctx, userID)
			s.publishEvent(ctx, topicPayments, int64(order.ID), map[string]interface{}{
				"event_type": "order_settled",
				"user_id":    userID,
				"order_id":   orderID,
				"amount":     order.Amount,
				"created_at": time.Now().UTC().Format(time.RFC3339),
			})
		}
		slog.Info("payment verified", "order_id", orderID, "user_id", userID, "credited", credited)
		return &SettlementResult{Status: models.OrderSuccess, Message: "Payment verified and balance updated"}, nil

	case gateway.StatusExpired, gateway.StatusTerminated:
		if err := s.orderRepo.MarkFailed(ctx, orderID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to mark order failed")
			return nil, err
		}
		slog.Info("payment failed or expired", "order_id", orderID, "gateway_status", gwStatus.OrderStatus)
		return &SettlementResult{Status: models.OrderFailed, Message: "Payment failed or expired"}, nil

	default:
		// Still pending at the gateway; leave the order PENDING so the
		// caller can retry.
		slog.Info("payment still pending", "order_id", orderID, "gateway_status", gwStatus.OrderStatus)
		return &SettlementResult{Status: models.OrderPending, Message: "Payment is pending"}, nil
	}
}

// PurchasePack is the pack-buy transaction: resolve the pack, check funds,
// draw cards from the catalog, upsert templates, then debit and grant
// atomically. All catalog I/O happens before the database transaction opens.
func (s *vaultService) PurchasePack(ctx context.Context, userID int32, catalogName, tier, requestID string) ([]models.CardTemplate, error) {
	tracer := otel.Tracer("vault-service")
	ctx, span := tracer.Start(ctx, "PurchasePack")
	defer span.End()

	pack, err := models.ResolvePack(catalogName, tier)
	if err != nil {
		span.SetStatus(codes.Error, "invalid pack")
		slog.Error("invalid pack requested", "catalog", catalogName, "tier", tier, "user_id", userID)
		return nil, err
	}

	requestKey := fmt.Sprintf("request:%s", requestID)
	if _, err := s.redisClient.Get(ctx, requestKey); err == nil {
		span.SetStatus(codes.Error, "request already processed")
		slog.Error("request already processed", "request_id", requestID, "user_id", userID)
		return nil, pkgerrors.ErrRequestAlreadyProcessed
	}
	if err := s.redisClient.Set(ctx, requestKey, "pending", 24*time.Hour); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to set request key")
		slog.Error("failed to set request key", "request_id", requestID, "error", err)
		return nil, err
	}

	completed := false
	defer func() {
		// A failed purchase releases the request key so the client can
		// retry with the same id.
		if !completed {
			if err := s.redisClient.Del(context.WithoutCancel(ctx), requestKey); err != nil {
				slog.Error("failed to release request key", "request_id", requestID, "error", err)
			}
		}
	}()

	// Per-user lock keeps concurrent purchases from burning catalog calls
	// they will lose anyway; the conditional debit in GrantCards is the
	// actual overdraft guard.
	lockKey := fmt.Sprintf("user:%d:lock", userID)
	ok, err := s.redisClient.SetNX(ctx, lockKey, "locked", 30*time.Second)
	if err != nil || !ok {
		span.SetStatus(codes.Error, "balance is locked")
		slog.Error("balance is locked", "user_id", userID, "error", err)
		return nil, pkgerrors.ErrBalanceLocked
	}
	defer func() {
		if err := s.redisClient.Del(context.WithoutCancel(ctx), lockKey); err != nil {
			slog.Error("failed to release lock", "user_id", userID, "error", err)
		}
	}()

	balance, err := s.userRepo.GetBalance(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get balance")
		slog.Error("failed to get balance", "user_id", userID, "error", err)
		return nil, err
	}
	if balance < pack.Price {
		span.SetStatus(codes.Error, "insufficient funds")
		slog.Error("insufficient funds", "user_id", userID, "balance", balance, "price", pack.Price)
		return nil, pkgerrors.ErrInsufficientFunds
	}

	fetcher, ok := s.fetchers[pack.Catalog]
	if !ok {
		span.SetStatus(codes.Error, "no fetcher for catalog")
		return nil, pkgerrors.ErrInvalidPack
	}

	cards, err := fetcher.FetchCards(ctx, pack.CardCount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog fetch failed")
		slog.Error("failed to fetch cards", "catalog", pack.Catalog, "user_id", userID, "error", err)
		return nil, err
	}

	templates, err := s.cardRepo.UpsertTemplates(ctx, pack.Catalog, cards)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "template upsert failed")
		return nil, err
	}

	templateIDs := make([]int32, len(templates))
	for i, tmpl := range templates {
		templateIDs[i] = tmpl.ID
	}

	purchase := &models.PackPurchase{
		UserID:    userID,
		Catalog:   pack.Catalog,
		Tier:      pack.Tier,
		CardCount: len(templates),
		Price:     pack.Price,
	}
	if err := s.cardRepo.GrantCards(ctx, purchase, templateIDs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grant failed")
		slog.Error("failed to grant cards", "user_id", userID, "error", err)
		return nil, err
	}
	completed = true

	s.invalidateBalance(ctx, userID)
	s.publishEvent(ctx, topicPurchases, int64(purchase.ID), map[string]interface{}{
		"event_type": "pack_purchased",
		"user_id":    userID,
		"catalog":    pack.Catalog,
		"tier":       pack.Tier,
		"card_count": len(templates),
		"price":      pack.Price,
		"request_id": requestID,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})

	slog.Info("pack purchased", "user_id", userID, "catalog", pack.Catalog, "tier", pack.Tier, "cards", len(templates), "price", pack.Price)
	return templates, nil
}

func (s *vaultService) GetBalance(ctx context.Context, userID int32) (int64, error) {
	tracer := otel.Tracer("vault-service")
	ctx, span := tracer.Start(ctx, "GetBalance")
	defer span.End()

	balanceKey := fmt.Sprintf("user:%d:balance", userID)
	balanceStr, err := s.redisClient.Get(ctx, balanceKey)
	if err == nil {
		var balance int64
		if err := json.Unmarshal([]byte(balanceStr), &balance); err != nil {
			slog.Error("failed to unmarshal cached balance", "user_id", userID, "error", err)
		} else {
			return balance, nil
		}
	}

	balance, err := s.userRepo.GetBalance(ctx, userID)
	if err != nil {
		slog.Error("failed to get balance from Postgres", "user_id", userID, "error", err)
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	if err := s.redisClient.Set(ctx, balanceKey, balance, 5*time.Minute); err != nil {
		slog.Error("failed to cache balance", "user_id", userID, "error", err)
	}
	return balance, nil
}

func (s *vaultService) GetCollection(ctx context.Context, userID int32) ([]models.OwnedCard, error) {
	tracer := otel.Tracer("vault-service")
	ctx, span := tracer.Start(ctx, "GetCollection")
	defer span.End()

	owned, err := s.cardRepo.ListOwned(ctx, userID)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to list owned cards", "user_id", userID, "error", err)
		return nil, err
	}

	slog.Info("collection retrieved", "user_id", userID, "count", len(owned))
	return owned, nil
}

func (s *vaultService) GetHistory(ctx context.Context, userID int32) (*History, error) {
	tracer := otel.Tracer("vault-service")
	ctx, span := tracer.Start(ctx, "GetHistory")
	defer span.End()

	deposits, err := s.orderRepo.ListByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to list orders", "user_id", userID, "error", err)
		return nil, err
	}
	purchases, err := s.cardRepo.ListPurchases(ctx, userID)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to list purchases", "user_id", userID, "error", err)
		return nil, err
	}

	return &History{Deposits: deposits, Purchases: purchases}, nil
}

// BrowseCatalog proxies an upstream listing page, cached for an hour.
func (s *vaultService) BrowseCatalog(ctx context.Context, catalogName string, page, pageSize int) (*catalog.Listing, error) {
	tracer := otel.Tracer("vault-service")
	ctx, span := tracer.Start(ctx, "BrowseCatalog")
	defer span.End()

	c, err := models.ParseCatalog(catalogName)
	if err != nil {
		span.SetStatus(codes.Error, "unknown catalog")
		return nil, err
	}
	fetcher, ok := s.fetchers[c]
	if !ok {
		span.SetStatus(codes.Error, "no fetcher for catalog")
		return nil, pkgerrors.ErrInvalidPack
	}

	cacheKey := fmt.Sprintf("catalog:%s:page:%d:size:%d", c, page, pageSize)
	if cached, err := s.redisClient.Get(ctx, cacheKey); err == nil {
		var listing catalog.Listing
		if err := json.Unmarshal([]byte(cached), &listing); err == nil {
			return &listing, nil
		}
		slog.Error("failed to unmarshal cached listing", "key", cacheKey)
	}

	listing, err := fetcher.ListCards(ctx, page, pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog listing failed")
		slog.Error("failed to list cards", "catalog", c, "page", page, "error", err)
		return nil, err
	}

	if encoded, err := json.Marshal(listing); err == nil {
		if err := s.redisClient.Set(ctx, cacheKey, string(encoded), catalogCacheTTL); err != nil {
			slog.Error("failed to cache listing", "key", cacheKey, "error", err)
		}
	}
	return listing, nil
}

func (s *vaultService) invalidateBalance(ctx context.Context, userID int32) {
	balanceKey := fmt.Sprintf("user:%d:balance", userID)
	if err := s.redisClient.Del(ctx, balanceKey); err != nil {
		slog.Error("failed to invalidate cached balance", "user_id", userID, "error", err)
	}
}

// publishEvent sends an audit event; delivery failures are logged, never
// surfaced, because the database is the source of truth.
func (s *vaultService) publishEvent(ctx context.Context, topic string, key int64, event map[string]interface{}) {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal event", "topic", topic, "error", err)
		return
	}
	if err := s.kafkaProducer.Send(ctx, topic, key, eventBytes); err != nil {
		slog.Error("failed to send event", "topic", topic, "key", key, "error", err)
	}
}
