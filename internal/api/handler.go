package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"canteen-service/internal/models"
	"canteen-service/internal/service"
	"canteen-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadyCheck reports whether a dependency can serve requests
type ReadyCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	orderService   *service.OrderService
	accountService *service.AccountService
	catalogService *service.CatalogService
	statsService   *service.StatsService
	auth           *Authenticator
	readyChecks    map[string]ReadyCheck
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orderService *service.OrderService,
	accountService *service.AccountService,
	catalogService *service.CatalogService,
	statsService *service.StatsService,
	auth *Authenticator,
) *Handler {
	return &Handler{
		orderService:   orderService,
		accountService: accountService,
		catalogService: catalogService,
		statsService:   statsService,
		auth:           auth,
		readyChecks:    make(map[string]ReadyCheck),
	}
}

// AddReadyCheck registers a dependency probed by /ready
func (h *Handler) AddReadyCheck(name string, check ReadyCheck) {
	h.readyChecks[name] = check
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
	v1.Use(h.auth.Middleware())
	{
		v1.POST("/orders", h.makeOrder)
		v1.GET("/orders", h.listOrders)
		v1.PATCH("/orders/:id/state", h.updateOrderState)
		v1.POST("/orders/:id/cash-in", h.cashIn)
		v1.GET("/transactions/:id", h.getTransaction)

		v1.POST("/accounts", h.createAccount)
		v1.GET("/accounts/:id", h.getAccount)
		v1.GET("/accounts/:id/transactions", h.listAccountTransactions)
		v1.PATCH("/accounts/:id/roles", h.updateRoles)
		v1.POST("/accounts/:id/recharge", h.recharge)

		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.POST("/products", h.createProduct)
		v1.PATCH("/products/:id/availability", h.setAvailability)
		v1.PATCH("/products/:id/stock", h.setStock)
		v1.PATCH("/products/:id/prices", h.setPrices)

		v1.GET("/ingredients", h.listIngredients)
		v1.POST("/ingredients", h.createIngredient)

		v1.GET("/stats", h.getStats)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck probes every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.readyChecks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// makeOrder handles order placement
func (h *Handler) makeOrder(c *gin.Context) {
	var req service.MakeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	res := h.orderService.MakeOrder(c.Request.Context(), actorID(c), &req)
	if !res.Success {
		// the cause is logged by the service
		res.Cause = ""
		c.JSON(statusOf(res.ErrorKind), res)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

// listOrders handles the kitchen queue; state defaults to preparing
func (h *Handler) listOrders(c *gin.Context) {
	state, err := models.ParseOrderState(c.DefaultQuery("state", string(models.OrderStatePreparing)))
	if err != nil {
		badRequest(c, "Invalid state", err)
		return
	}

	orders, err := h.orderService.ListOrders(c.Request.Context(), actorID(c), state)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

type stateRequest struct {
	State models.OrderState `json:"state" binding:"required"`
}

// updateOrderState handles lifecycle transitions
func (h *Handler) updateOrderState(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	order, err := h.orderService.UpdateOrderState(c.Request.Context(), actorID(c), c.Param("id"), req.State)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// cashIn handles payment collection
func (h *Handler) cashIn(c *gin.Context) {
	order, err := h.orderService.CashIn(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// getTransaction handles get transaction by ID
func (h *Handler) getTransaction(c *gin.Context) {
	t, err := h.orderService.GetTransaction(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, transactionView(t))
}

func transactionView(t models.Transaction) gin.H {
	return gin.H{
		"kind":        t.Kind(),
		"transaction": t,
	}
}

// createAccount handles account registration
func (h *Handler) createAccount(c *gin.Context) {
	var req service.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	account, err := h.accountService.CreateAccount(c.Request.Context(), actorID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

// getAccount handles get account by ID
func (h *Handler) getAccount(c *gin.Context) {
	account, err := h.accountService.GetAccount(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// listAccountTransactions handles the ledger of one account
func (h *Handler) listAccountTransactions(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "Invalid limit", err)
			return
		}
		limit = n
	}

	txs, err := h.accountService.ListTransactions(c.Request.Context(), actorID(c), c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]gin.H, 0, len(txs))
	for _, t := range txs {
		views = append(views, transactionView(t))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": views})
}

// updateRoles handles role and availability changes
func (h *Handler) updateRoles(c *gin.Context) {
	var req service.RolesUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	account, err := h.accountService.UpdateRoles(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

type rechargeRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// recharge handles balance top-ups
func (h *Handler) recharge(c *gin.Context) {
	var req rechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	r, err := h.accountService.Recharge(c.Request.Context(), actorID(c), c.Param("id"), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// listProducts handles the catalog listing
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalogService.ListProducts(c.Request.Context(), actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// getProduct handles get product by ID
func (h *Handler) getProduct(c *gin.Context) {
	p, err := h.catalogService.GetProduct(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// createProduct handles product creation
func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	p, err := h.catalogService.CreateProduct(c.Request.Context(), actorID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

type availabilityRequest struct {
	IsAvailable *bool `json:"is_available" binding:"required"`
}

// setAvailability handles availability toggles
func (h *Handler) setAvailability(c *gin.Context) {
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	p, err := h.catalogService.SetAvailability(c.Request.Context(), actorID(c), c.Param("id"), *req.IsAvailable)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type stockRequest struct {
	Stock *int64 `json:"stock"`
}

// setStock handles stock updates; a null stock makes the product unlimited
func (h *Handler) setStock(c *gin.Context) {
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	p, err := h.catalogService.SetStock(c.Request.Context(), actorID(c), c.Param("id"), req.Stock)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type pricesRequest struct {
	SizeWithPrices map[string]int64 `json:"size_with_prices" binding:"required"`
}

// setPrices handles size price updates
func (h *Handler) setPrices(c *gin.Context) {
	var req pricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	p, err := h.catalogService.SetPrices(c.Request.Context(), actorID(c), c.Param("id"), req.SizeWithPrices)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// listIngredients handles the ingredient catalog
func (h *Handler) listIngredients(c *gin.Context) {
	ings, err := h.catalogService.ListIngredients(c.Request.Context(), actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ingredients": ings})
}

// createIngredient handles ingredient creation
func (h *Handler) createIngredient(c *gin.Context) {
	var req service.CreateIngredientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	ing, err := h.catalogService.CreateIngredient(c.Request.Context(), actorID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ing)
}

// getStats handles the global aggregate
func (h *Handler) getStats(c *gin.Context) {
	stat, err := h.statsService.GetStats(c.Request.Context(), actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stat)
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
