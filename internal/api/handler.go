package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	catalog *service.CatalogService
	till    *service.Till
	reports *service.ReportService
	stock   *service.StockMirror
	db      Pinger
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	catalog *service.CatalogService,
	till *service.Till,
	reports *service.ReportService,
	stock *service.StockMirror,
	db Pinger,
) *Handler {
	return &Handler{
		catalog: catalog,
		till:    till,
		reports: reports,
		stock:   stock,
		db:      db,
		logger:  util.GetLogger(),
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
	{
		v1.GET("/products", h.listProducts)
		v1.POST("/products", h.createProduct)
		v1.GET("/products/:code", h.getProduct)
		v1.GET("/products/:code/stock", h.getStock)
		v1.PATCH("/products/:code", h.updateProduct)
		v1.DELETE("/products/:code", h.deleteProduct)

		v1.GET("/cart", h.getCart)
		v1.DELETE("/cart", h.cancelCart)
		v1.POST("/cart/items", h.addCartItem)
		v1.PATCH("/cart/items/:code", h.changeCartItem)
		v1.DELETE("/cart/items/:code", h.removeCartItem)
		v1.POST("/cart/discount", h.applyDiscount)
		v1.POST("/cart/checkout", h.checkout)

		v1.GET("/reports/daily", h.dailyReport)
		v1.GET("/reports/daily/export", h.exportDailyReport)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once the database answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// CreateProductRequest represents a request to add a product
type CreateProductRequest struct {
	Code      string           `json:"code" binding:"required"`
	Name      string           `json:"name" binding:"required"`
	UnitPrice *decimal.Decimal `json:"unit_price" binding:"required"`
	Stock     int              `json:"stock"`
}

// AddItemRequest represents a request to add a product to the cart
type AddItemRequest struct {
	Code string `json:"code" binding:"required"`
	Qty  *int   `json:"qty"`
}

// ChangeQtyRequest represents a request to change a cart line quantity
type ChangeQtyRequest struct {
	Qty *int `json:"qty" binding:"required"`
}

// DiscountRequest represents a request to apply a discount
type DiscountRequest struct {
	Type  string           `json:"type" binding:"required,oneof=percent amount"`
	Value *decimal.Decimal `json:"value" binding:"required"`
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req CreateProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.catalog.AddProduct(c.Request.Context(), strings.TrimSpace(req.Code), req.Name, *req.UnitPrice, req.Stock)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) getProduct(c *gin.Context) {
	code := codeParam(c)

	product, err := h.catalog.FindProductByCode(c.Request.Context(), code)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if product == nil {
		h.writeError(c, fmt.Errorf("code %q: %w", code, models.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) getStock(c *gin.Context) {
	code := codeParam(c)

	stock, err := h.stock.GetStock(c.Request.Context(), code)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "stock": stock})
}

func (h *Handler) updateProduct(c *gin.Context) {
	var req models.ProductUpdate
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), codeParam(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), codeParam(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getCart(c *gin.Context) {
	c.JSON(http.StatusOK, h.till.Snapshot())
}

func (h *Handler) cancelCart(c *gin.Context) {
	c.JSON(http.StatusOK, h.till.Cancel())
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req AddItemRequest
	if !bindJSON(c, &req) {
		return
	}

	qty := 1
	if req.Qty != nil {
		qty = *req.Qty
	}

	snapshot, err := h.till.AddItem(c.Request.Context(), strings.TrimSpace(req.Code), qty)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *Handler) changeCartItem(c *gin.Context) {
	var req ChangeQtyRequest
	if !bindJSON(c, &req) {
		return
	}

	snapshot, err := h.till.ChangeQty(c.Request.Context(), codeParam(c), *req.Qty)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	snapshot, err := h.till.RemoveItem(codeParam(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *Handler) applyDiscount(c *gin.Context) {
	var req DiscountRequest
	if !bindJSON(c, &req) {
		return
	}

	snapshot, err := h.till.ApplyDiscount(req.Type, *req.Value)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// checkout commits the cart. A sale whose receipt could not be written is
// still reported as created, with the receipt error alongside.
func (h *Handler) checkout(c *gin.Context) {
	result, err := h.till.Checkout(c.Request.Context())
	if result == nil {
		h.writeError(c, err)
		return
	}

	if err != nil {
		c.JSON(http.StatusCreated, gin.H{
			"sale":          result,
			"receipt_error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sale": result})
}

func (h *Handler) dailyReport(c *gin.Context) {
	day, ok := h.parseDay(c)
	if !ok {
		return
	}

	report, err := h.reports.DailyReport(c.Request.Context(), day)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) exportDailyReport(c *gin.Context) {
	day, ok := h.parseDay(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if _, err := h.reports.ExportCSV(c.Request.Context(), day, &buf); err != nil {
		h.writeError(c, err)
		return
	}

	filename := fmt.Sprintf("sales_%s.csv", day.Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// parseDay reads the date query parameter, defaulting to today
func (h *Handler) parseDay(c *gin.Context) (time.Time, bool) {
	value := c.Query("date")
	if value == "" {
		return time.Now().In(h.reports.Location()), true
	}

	day, err := h.reports.ParseDay(value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid date, expected YYYY-MM-DD",
			"details": err.Error(),
		})
		return time.Time{}, false
	}
	return day, true
}

// codeParam trims the product code path parameter the same way request bodies are trimmed
func codeParam(c *gin.Context) string {
	return strings.TrimSpace(c.Param("code"))
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

// writeError maps domain errors to HTTP status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrProductNotFound),
		errors.Is(err, models.ErrItemNotInCart):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateCode),
		errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrCommitInProgress):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidProduct),
		errors.Is(err, models.ErrInvalidQuantity),
		errors.Is(err, models.ErrInvalidDiscount),
		errors.Is(err, models.ErrEmptyCart):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
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
