package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"inventory-saga/internal/interfaces"
	"inventory-saga/internal/models"
)

// Handler serves the HTTP read and admin surface of the service.
type Handler struct {
	reader interfaces.ReaderService
}

// NewHandler creates a new API handler
func NewHandler(reader interfaces.ReaderService) *Handler {
	return &Handler{reader: reader}
}

// SetupRoutes sets up the HTTP routes
func (h *Handler) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// Middleware
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(ErrorHandlerMiddleware())
	r.Use(h.corsMiddleware())

	// Health check
	r.GET("/health", h.healthCheck)

	api := r.Group("/api/v1")
	{
		api.GET("/inventory/:product_id/availability", h.getAvailability)
		api.PUT("/inventory/:product_id", h.upsertInventory)
		api.GET("/orders/:order_id/reservations", h.getOrderReservations)
	}

	return r
}

// getAvailability handles inventory availability requests
func (h *Handler) getAvailability(c *gin.Context) {
	productID := c.Param("product_id")
	if productID == "" {
		Response.ValidationError(c, "product_id", "Product ID is required")
		return
	}

	availability, err := h.reader.GetAvailability(c.Request.Context(), productID)
	if err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to get availability")
		Response.InternalError(c, err.Error())
		return
	}
	if availability == nil {
		Response.NotFound(c, "Inventory for product "+productID)
		return
	}

	Response.Success(c, availability)
}

// upsertInventory creates or replaces the stock level of a product
func (h *Handler) upsertInventory(c *gin.Context) {
	productID := c.Param("product_id")
	if productID == "" {
		Response.ValidationError(c, "product_id", "Product ID is required")
		return
	}

	var req models.UpsertInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	item := &models.InventoryItem{
		ProductID:    productID,
		AvailableQty: req.AvailableQty,
		ReservedQty:  req.ReservedQty,
		UpdatedAt:    time.Now().UTC(),
	}

	if err := h.reader.UpsertItem(c.Request.Context(), item); err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to upsert inventory")
		Response.InternalError(c, err.Error())
		return
	}

	Response.Success(c, item)
}

// getOrderReservations lists the reservations held for an order
func (h *Handler) getOrderReservations(c *gin.Context) {
	orderID := c.Param("order_id")
	if orderID == "" {
		Response.ValidationError(c, "order_id", "Order ID is required")
		return
	}

	reservations, err := h.reader.GetOrderReservations(c.Request.Context(), orderID)
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("Failed to get reservations")
		Response.InternalError(c, err.Error())
		return
	}

	response := make([]models.ReservationResponse, 0, len(reservations))
	for _, reservation := range reservations {
		response = append(response, models.ReservationResponse{
			ReservationID: reservation.ReservationID.String(),
			OrderID:       reservation.OrderID,
			ProductID:     reservation.ProductID,
			Qty:           reservation.Qty,
			CreatedAt:     reservation.CreatedAt,
		})
	}

	Response.Success(c, response)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "inventory-saga-api",
	})
}

// corsMiddleware handles CORS headers
func (h *Handler) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
