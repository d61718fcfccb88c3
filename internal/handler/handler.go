package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/ripvault/backend/internal/models"
	service "github.com/ripvault/backend/internal/services"
	pkgerrors "github.com/ripvault/backend/pkg/errors"
)

type Handler struct {
	service service.VaultService
}

func NewHandler(s service.VaultService) *Handler {
	return &Handler{service: s}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/payment/orders", h.CreateDepositOrder).Methods("POST")
	r.HandleFunc("/payment/orders/{orderId}/verify", h.VerifyPayment).Methods("POST")
	r.HandleFunc("/packs", h.ListPacks).Methods("GET")
	r.HandleFunc("/packs/purchase", h.PurchasePack).Methods("POST")
	r.HandleFunc("/collection", h.GetCollection).Methods("GET")
	r.HandleFunc("/balance", h.GetBalance).Methods("GET")
	r.HandleFunc("/history", h.GetHistory).Methods("GET")
	r.HandleFunc("/catalog/{catalog}/cards", h.BrowseCatalog).Methods("GET")
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	userID, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrUsernameExists):
			h.writeError(w, http.StatusConflict, err)
		case errors.Is(err, pkgerrors.ErrInvalidInput):
			h.writeError(w, http.StatusBadRequest, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{"user_id": userID})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	token, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, err)
		} else {
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) CreateDepositOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int32)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	order, err := h.service.CreateDepositOrder(r.Context(), userID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, pkgerrors.ErrGatewayError):
			h.writeError(w, http.StatusBadGateway, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{
		"order_id":           order.OrderID,
		"payment_session_id": order.PaymentSessionID,
		"cf_order_id":        order.CfOrderID,
	})
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int32)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	orderID := mux.Vars(r)["orderId"]
	result, err := h.service.VerifyPayment(r.Context(), userID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, err)
		case errors.Is(err, pkgerrors.ErrForbidden):
			h.writeError(w, http.StatusForbidden, err)
		case errors.Is(err, pkgerrors.ErrGatewayError):
			h.writeError(w, http.StatusBadGateway, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ListPacks(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string][]models.Pack{"packs": models.GeneratePacks()})
}

func (h *Handler) PurchasePack(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int32)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	var req struct {
		Catalog   string `json:"catalog"`
		Tier      string `json:"tier"`
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.RequestID == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("request_id is required"))
		return
	}

	templates, err := h.service.PurchasePack(r.Context(), userID, req.Catalog, req.Tier, req.RequestID)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrInvalidPack), errors.Is(err, pkgerrors.ErrInsufficientFunds):
			h.writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, pkgerrors.ErrRequestAlreadyProcessed), errors.Is(err, pkgerrors.ErrBalanceLocked):
			h.writeError(w, http.StatusConflict, err)
		case errors.Is(err, pkgerrors.ErrCatalogUnavailable):
			h.writeError(w, http.StatusServiceUnavailable, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	type revealedCard struct {
		Name     string `json:"name"`
		ImageURL string `json:"image_url"`
		Rarity   string `json:"rarity,omitempty"`
	}
	cards := make([]revealedCard, len(templates))
	for i, tmpl := range templates {
		cards[i] = revealedCard{Name: tmpl.Name, ImageURL: tmpl.ImageURL, Rarity: tmpl.Rarity}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
}

func (h *Handler) GetCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int32)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	owned, err := h.service.GetCollection(r.Context(), userID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	type collectionCard struct {
		ID         int32          `json:"id"`
		CardID     string         `json:"card_id"`
		Name       string         `json:"name"`
		ImageURL   string         `json:"image_url"`
		Rarity     string         `json:"rarity,omitempty"`
		CardType   string         `json:"type,omitempty"`
		Catalog    models.Catalog `json:"catalog"`
		Price      float64        `json:"price,omitempty"`
		AcquiredAt string         `json:"acquired_at"`
	}
	cards := make([]collectionCard, len(owned))
	for i, oc := range owned {
		cards[i] = collectionCard{
			ID:         oc.ID,
			CardID:     oc.Template.CardID,
			Name:       oc.Template.Name,
			ImageURL:   oc.Template.ImageURL,
			Rarity:     oc.Template.Rarity,
			CardType:   oc.Template.CardType,
			Catalog:    oc.Template.Catalog,
			Price:      oc.Template.Price,
			AcquiredAt: oc.AcquiredAt.UTC().Format(time.RFC3339),
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int32)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int32)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	history, err := h.service.GetHistory(r.Context(), userID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.writeJSON(w, http.StatusOK, history)
}

func (h *Handler) BrowseCatalog(w http.ResponseWriter, r *http.Request) {
	if _, ok := r.Context().Value("user_id").(int32); !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 30
	}

	listing, err := h.service.BrowseCatalog(r.Context(), mux.Vars(r)["catalog"], page, pageSize)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrInvalidPack):
			h.writeError(w, http.StatusNotFound, errors.New("unknown catalog"))
		case errors.Is(err, pkgerrors.ErrCatalogUnavailable):
			h.writeError(w, http.StatusServiceUnavailable, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, listing)
}
