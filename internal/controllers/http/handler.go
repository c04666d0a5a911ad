package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"bindery-orders/internal/domain"
	"bindery-orders/internal/services"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	orders        *services.OrderService
	checkout      *services.CheckoutService
	jwtSecret     []byte
	webhookSecret []byte
}

func NewHandler(orders *services.OrderService, checkout *services.CheckoutService, jwtSecret, webhookSecret string) *Handler {
	return &Handler{
		orders:        orders,
		checkout:      checkout,
		jwtSecret:     []byte(jwtSecret),
		webhookSecret: []byte(webhookSecret),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.POST("/payments/webhook", h.PaymentWebhook)

	authed := r.Group("/", Authenticate(h.jwtSecret))
	authed.POST("/checkout/intents", h.CreateIntent)
	authed.POST("/orders", h.CreateOrder)
	authed.GET("/orders", h.ListOrders)
	authed.GET("/orders/:id", h.GetOrder)
	authed.POST("/orders/:id/cancel", h.CancelOrder)

	admin := authed.Group("/admin", RequireAdmin())
	admin.GET("/orders", h.ListAllOrders)
	admin.PATCH("/orders/:id/status", h.UpdateStatus)
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	actor := actorFrom(c)
	order, err := h.checkout.CreateOrder(c.Request.Context(), services.CreateOrderRequest{
		UserID:           actor.ID,
		Shipping:         req.Shipping.toDomain(),
		PaymentReference: req.ImpUID,
		MerchantUID:      req.MerchantUID,
		PaymentMethod:    req.PaymentMethod,
		PricingHint:      req.Pricing,
		Actor:            actor,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) CreateIntent(c *gin.Context) {
	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	intent, err := h.checkout.RegisterIntent(c.Request.Context(), actorFrom(c).ID, domain.CheckoutIntent{
		MerchantUID:   req.MerchantUID,
		Shipping:      req.Shipping.toDomain(),
		PaymentMethod: req.PaymentMethod,
		PricingHint:   req.Pricing,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"merchantUid": intent.MerchantUID})
}

func (h *Handler) ListOrders(c *gin.Context) {
	orders, err := h.orders.ListForUser(c.Request.Context(), actorFrom(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *Handler) CancelOrder(c *gin.Context) {
	var req CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}

	if _, err := h.orders.Cancel(c.Request.Context(), c.Param("id"), actorFrom(c), req.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListAllOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))

	res, err := h.orders.ListAll(c.Request.Context(), actorFrom(c), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, OrderPageResponse{
		Orders:   toOrderResponses(res.Orders),
		Total:    res.Total,
		Page:     res.Page,
		PageSize: res.PageSize,
	})
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), actorFrom(c),
		domain.OrderStatus(req.Status), req.patch(), req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}
