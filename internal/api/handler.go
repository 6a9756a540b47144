package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/alenorgue/E-Comerce-API/internal/apperrors"
	"github.com/alenorgue/E-Comerce-API/internal/auth"
	"github.com/alenorgue/E-Comerce-API/internal/service"
	"github.com/alenorgue/E-Comerce-API/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	authService     *service.AuthService
	catalogService  *service.CatalogService
	cartService     *service.CartService
	checkoutService *service.CheckoutService
	orderService    *service.OrderService
	tokens          *auth.TokenService
	logger          *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	authService *service.AuthService,
	catalogService *service.CatalogService,
	cartService *service.CartService,
	checkoutService *service.CheckoutService,
	orderService *service.OrderService,
	tokens *auth.TokenService,
) *Handler {
	return &Handler{
		authService:     authService,
		catalogService:  catalogService,
		cartService:     cartService,
		checkoutService: checkoutService,
		orderService:    orderService,
		tokens:          tokens,
		logger:          util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	v1.POST("/register", h.register)
	v1.POST("/login", h.login)
	v1.GET("/products", h.listProducts)
	v1.GET("/products/:id", h.getProduct)

	authed := v1.Group("", RequireAuth(h.tokens))
	{
		authed.GET("/profile/:id", h.getProfile)
		authed.PUT("/profile/:id", h.updateProfile)
		authed.DELETE("/profile/:id", h.deleteProfile)

		authed.POST("/cart", h.addToCart)
		authed.GET("/cart", h.getCart)
		authed.PUT("/cart/:productId", h.updateCartItem)
		authed.DELETE("/cart/clear", h.clearCart)
		authed.DELETE("/cart/:productId", h.removeCartItem)

		authed.POST("/checkout", h.checkout)
		authed.GET("/orders", h.listOrders)
		authed.GET("/orders/:id", h.getOrder)
		authed.DELETE("/orders/:id/cancel", h.cancelOrder)
	}

	admin := v1.Group("", RequireAuth(h.tokens), RequireAdmin())
	{
		admin.POST("/products", h.createProduct)
		admin.PUT("/products/:id", h.updateProduct)
		admin.DELETE("/products/:id", h.deleteProduct)
		admin.PUT("/orders/:id/status", h.updateOrderStatus)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "token": resp.Token, "user": resp.User})
}

func (h *Handler) login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Login successful", "token": resp.Token, "user": resp.User})
}

func (h *Handler) getProfile(c *gin.Context) {
	identity, _ := identityFrom(c)
	userID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	user, err := h.authService.GetProfile(c.Request.Context(), identity, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) updateProfile(c *gin.Context) {
	identity, _ := identityFrom(c)
	userID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	user, err := h.authService.UpdateProfile(c.Request.Context(), identity, userID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully", "user": user})
}

func (h *Handler) deleteProfile(c *gin.Context) {
	identity, _ := identityFrom(c)
	userID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if err := h.authService.DeleteProfile(c.Request.Context(), identity, userID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile deleted successfully"})
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalogService.ListProducts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	productID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	product, err := h.catalogService.GetProduct(c.Request.Context(), productID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	product, err := h.catalogService.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Product created successfully", "product": product})
}

func (h *Handler) updateProduct(c *gin.Context) {
	productID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	product, err := h.catalogService.UpdateProduct(c.Request.Context(), productID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product updated successfully", "product": product})
}

func (h *Handler) deleteProduct(c *gin.Context) {
	productID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if err := h.catalogService.DeleteProduct(c.Request.Context(), productID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
}

func (h *Handler) addToCart(c *gin.Context) {
	identity, _ := identityFrom(c)

	var req service.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	cart, err := h.cartService.AddItem(c.Request.Context(), identity.UserID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Product added to cart successfully", "cart": cart})
}

func (h *Handler) getCart(c *gin.Context) {
	identity, _ := identityFrom(c)

	cart, err := h.cartService.GetCart(c.Request.Context(), identity.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	identity, _ := identityFrom(c)
	productID, ok := h.pathID(c, "productId")
	if !ok {
		return
	}

	var req service.UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	cart, err := h.cartService.UpdateItemQuantity(c.Request.Context(), identity.UserID, productID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product quantity updated successfully", "cart": cart})
}

func (h *Handler) removeCartItem(c *gin.Context) {
	identity, _ := identityFrom(c)
	productID, ok := h.pathID(c, "productId")
	if !ok {
		return
	}

	cart, err := h.cartService.RemoveItem(c.Request.Context(), identity.UserID, productID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product removed from cart successfully", "cart": cart})
}

func (h *Handler) clearCart(c *gin.Context) {
	identity, _ := identityFrom(c)

	if err := h.cartService.Clear(c.Request.Context(), identity.UserID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared successfully"})
}

func (h *Handler) checkout(c *gin.Context) {
	identity, _ := identityFrom(c)

	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	result, err := h.checkoutService.Checkout(c.Request.Context(), identity.UserID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Order and payment created successfully",
		"order":   result.Order,
		"items":   result.Items,
		"payment": result.Payment,
	})
}

func (h *Handler) listOrders(c *gin.Context) {
	identity, _ := identityFrom(c)

	orders, err := h.orderService.ListOrders(c.Request.Context(), identity.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) getOrder(c *gin.Context) {
	identity, _ := identityFrom(c)
	orderID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	detail, err := h.orderService.GetOrder(c.Request.Context(), identity, orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	identity, _ := identityFrom(c)
	orderID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.CancelOrder(c.Request.Context(), identity, orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order cancelled successfully", "order": order})
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), orderID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order status updated successfully", "order": order})
}

func (h *Handler) pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// respondError maps a service error onto the taxonomy's status code. Internal
// detail is logged, never returned.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": apperrors.MessageOf(err)})
}
