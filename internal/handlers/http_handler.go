package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yinnstore/otpmarket/internal/engine"
	"github.com/yinnstore/otpmarket/internal/history"
	"github.com/yinnstore/otpmarket/internal/middleware"
	"github.com/yinnstore/otpmarket/internal/models"
	"github.com/yinnstore/otpmarket/internal/provider"
	"github.com/yinnstore/otpmarket/internal/store"
	"github.com/yinnstore/otpmarket/internal/wallet"
)

type HTTPHandler struct {
	engine   *engine.Engine
	provider *provider.Client
	wallet   *wallet.Client
	store    store.Store
	history  *history.Repository
	logger   *logrus.Logger
}

func NewHTTPHandler(
	eng *engine.Engine,
	providerClient *provider.Client,
	walletClient *wallet.Client,
	st store.Store,
	historyRepo *history.Repository,
	logger *logrus.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		engine:   eng,
		provider: providerClient,
		wallet:   walletClient,
		store:    st,
		history:  historyRepo,
		logger:   logger,
	}
}

func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// Catalog endpoints pass the provider response through untouched; the
// frontend owns interpreting its shapes.

func (h *HTTPHandler) ListServices(c *gin.Context) {
	env, err := h.provider.Services(c.Request.Context())
	h.passthrough(c, env, err)
}

func (h *HTTPHandler) ListCountries(c *gin.Context) {
	env, err := h.provider.Countries(c.Request.Context(), c.Query("service_id"))
	h.passthrough(c, env, err)
}

func (h *HTTPHandler) ListOperators(c *gin.Context) {
	env, err := h.provider.Operators(c.Request.Context(), c.Query("country"), c.Query("provider_id"))
	h.passthrough(c, env, err)
}

func (h *HTTPHandler) passthrough(c *gin.Context, env provider.Envelope, err error) {
	if err != nil {
		h.logger.Errorf("Provider catalog call failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider unavailable"})
		return
	}
	c.Data(env.Status, "application/json", []byte(env.Raw))
}

func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	var req struct {
		NumberID   string `json:"number_id" binding:"required"`
		ProviderID string `json:"provider_id" binding:"required"`
		OperatorID string `json:"operator_id" binding:"required"`
		Service    string `json:"service"`
		Country    string `json:"country"`
		Operator   string `json:"operator"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.CreateOrder(c.Request.Context(), middleware.UserID(c), engine.CreateOrderRequest{
		NumberID:   req.NumberID,
		ProviderID: req.ProviderID,
		OperatorID: req.OperatorID,
		Service:    req.Service,
		Country:    req.Country,
		Operator:   req.Operator,
	})

	switch {
	case errors.Is(err, models.ErrActiveOrderExists), errors.Is(err, models.ErrOrderInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, models.ErrNoOrderID):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Errorf("Failed to create order: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"order_id":     result.Order.OrderID,
		"phone_number": result.Order.PhoneNumber,
		"price":        result.Order.Price,
		"status":       result.Order.Status,
		"created_at":   result.Order.CreatedAt,
		"expires_at":   result.Order.ExpiresAt(),
	}
	if result.DebitError != "" {
		resp["debit_error"] = result.DebitError
	} else {
		resp["balance"] = result.Balance
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *HTTPHandler) ActiveOrder(c *gin.Context) {
	order, err := h.store.ActiveOrder(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active order"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":             order,
		"expires_at":        order.ExpiresAt(),
		"cancel_allowed_at": h.engine.CancelAllowedAt(order),
	})
}

func (h *HTTPHandler) CancelOrder(c *gin.Context) {
	result, err := h.engine.Cancel(c.Request.Context(), middleware.UserID(c))

	switch {
	case errors.Is(err, models.ErrNoActiveOrder):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, models.ErrCooldownActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Errorf("Failed to cancel order: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"success":  true,
		"refunded": result.Refunded,
	}
	if result.RefundError != "" {
		resp["refund_error"] = result.RefundError
	}

	c.JSON(http.StatusOK, resp)
}

// Balance serves the cached figure by default; ?refresh=1 is the loud mode
// that hits the wallet backend and surfaces its error.
func (h *HTTPHandler) Balance(c *gin.Context) {
	userID := middleware.UserID(c)
	loud := c.Query("refresh") == "1"

	balance, err := h.wallet.LoadBalance(c.Request.Context(), userID)
	if err != nil {
		resp := gin.H{"balance": balance, "stale": true}
		if loud {
			resp["error"] = err.Error()
			var walletErr *wallet.Error
			if errors.As(err, &walletErr) && walletErr.Kind != "" {
				resp["kind"] = walletErr.Kind
			}
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (h *HTTPHandler) Activity(c *gin.Context) {
	limit := int64(store.ActivityLimit)
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			limit = n
		}
	}

	records, err := h.store.Activity(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"activity": records})
}

func (h *HTTPHandler) History(c *gin.Context) {
	limit := int64(50)
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}

	orders, err := h.history.ListByUser(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *HTTPHandler) GetNotifyPref(c *gin.Context) {
	enabled, err := h.store.NotifyEnabled(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}

func (h *HTTPHandler) SetNotifyPref(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.SetNotifyEnabled(c.Request.Context(), middleware.UserID(c), req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"enabled": req.Enabled})
}
