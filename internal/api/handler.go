package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront-service/internal/gateway"
	"storefront-service/internal/service"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	carts     *service.CartService
	orders    *service.OrderService
	payments  *service.PaymentService
	jwtSecret string
}

// NewHandler creates a new HTTP handler
func NewHandler(carts *service.CartService, orders *service.OrderService, payments *service.PaymentService, jwtSecret string) *Handler {
	return &Handler{
		carts:     carts,
		orders:    orders,
		payments:  payments,
		jwtSecret: jwtSecret,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	cart := v1.Group("/cart", RequireAuth(h.jwtSecret))
	{
		cart.GET("", h.getCart)
		cart.POST("/items", h.addCartItem)
		cart.PUT("/items/:product_id", h.updateCartItem)
		cart.DELETE("/items/:product_id", h.removeCartItem)
		cart.DELETE("", h.clearCart)
		cart.POST("/merge", h.mergeCart)
	}

	guest := v1.Group("/guest/cart")
	{
		guest.GET("", h.getGuestCart)
		guest.POST("/items", h.addGuestCartItem)
		guest.PUT("/items/:product_id", h.updateGuestCartItem)
		guest.DELETE("/items/:product_id", h.removeGuestCartItem)
		guest.DELETE("", h.clearGuestCart)
	}

	orders := v1.Group("/orders")
	{
		orders.POST("", OptionalAuth(h.jwtSecret), h.createOrder)
		orders.GET("/mine", RequireAuth(h.jwtSecret), h.listMyOrders)
		orders.GET("/:id", h.getOrder)
	}

	payments := v1.Group("/payments")
	{
		payments.POST("/initiate", OptionalAuth(h.jwtSecret), h.initiatePayment)
		payments.POST("/callback", h.paymentCallback)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type cartItemInput struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required"`
}

func (h *Handler) getCart(c *gin.Context) {
	view, err := h.carts.GetUserCart(c.Request.Context(), sessionUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var input cartItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	item, err := h.carts.AddUserItem(c.Request.Context(), sessionUserID(c), input.ProductID, input.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	var input struct {
		Quantity int `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.carts.UpdateUserQuantity(c.Request.Context(), sessionUserID(c), productID, input.Quantity); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart updated"})
}

func (h *Handler) removeCartItem(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	if err := h.carts.RemoveUserItem(c.Request.Context(), sessionUserID(c), productID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart item removed"})
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.carts.ClearUserCart(c.Request.Context(), sessionUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}

func (h *Handler) mergeCart(c *gin.Context) {
	var input struct {
		GuestID string `json:"guest_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	report, err := h.carts.MergeGuestIntoUser(c.Request.Context(), input.GuestID, sessionUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func guestID(c *gin.Context) (string, bool) {
	id := c.Query("guest_id")
	if id == "" {
		id = c.GetHeader("X-Guest-ID")
	}
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guest_id is required"})
		return "", false
	}
	return id, true
}

func (h *Handler) getGuestCart(c *gin.Context) {
	id, ok := guestID(c)
	if !ok {
		return
	}

	view, err := h.carts.GetGuestCartView(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) addGuestCartItem(c *gin.Context) {
	id, ok := guestID(c)
	if !ok {
		return
	}

	var input cartItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	item, err := h.carts.AddGuestItem(c.Request.Context(), id, input.ProductID, input.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) updateGuestCartItem(c *gin.Context) {
	id, ok := guestID(c)
	if !ok {
		return
	}
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	var input struct {
		Quantity int `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.carts.UpdateGuestQuantity(c.Request.Context(), id, productID, input.Quantity); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart updated"})
}

func (h *Handler) removeGuestCartItem(c *gin.Context) {
	id, ok := guestID(c)
	if !ok {
		return
	}
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	if err := h.carts.RemoveGuestItem(c.Request.Context(), id, productID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart item removed"})
}

func (h *Handler) clearGuestCart(c *gin.Context) {
	id, ok := guestID(c)
	if !ok {
		return
	}

	if err := h.carts.ClearGuestCart(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}

// createOrder handles checkout submissions
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	req.SessionUserID = sessionUserID(c)

	order, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// listMyOrders returns the authenticated user's order history
func (h *Handler) listMyOrders(c *gin.Context) {
	orders, err := h.orders.ListOrdersForUser(c.Request.Context(), sessionUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) initiatePayment(c *gin.Context) {
	var req service.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if uid := sessionUserID(c); uid != "" {
		req.UserID = uid
	}

	resp, err := h.payments.InitiatePayment(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// paymentCallback is invoked by the gateway, not by end users. Its
// response is consumed by the gateway's retry machinery.
func (h *Handler) paymentCallback(c *gin.Context) {
	var req service.CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.payments.HandleCallback(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func productIDParam(c *gin.Context) (int64, bool) {
	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product_id"})
		return 0, false
	}
	return productID, true
}

// respondError maps service errors onto HTTP responses. Data Store
// details are logged server-side, never echoed to the client.
func respondError(c *gin.Context, err error) {
	var vErr *service.ValidationError
	var gErr *gateway.Error

	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error(), "field": vErr.Field})
	case errors.Is(err, service.ErrAmountMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount does not match order total"})
	case errors.Is(err, service.ErrOrderNotPayable):
		c.JSON(http.StatusBadRequest, gin.H{"error": "order payment is already settled"})
	case errors.Is(err, service.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient stock"})
	case errors.Is(err, service.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
	case errors.Is(err, service.ErrCartItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "cart item not found"})
	case errors.Is(err, service.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.As(err, &gErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": gErr.Message, "code": gErr.Code})
	default:
		util.GetLogger().Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
