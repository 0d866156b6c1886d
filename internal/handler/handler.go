// Package handler exposes the trading API over HTTP. Mutations go
// through the gateway so every accepted command is journaled; queries go
// to the sequencer and the market data tape.
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/gateway"
	"github.com/nathanyu/matching-engine/internal/marketdata"
	"github.com/nathanyu/matching-engine/internal/sequencer"
)

// Handler holds the HTTP handler dependencies.
type Handler struct {
	gw   *gateway.Gateway
	svc  *sequencer.Service
	tape *marketdata.Publisher
}

// New creates a Handler.
func New(gw *gateway.Gateway, svc *sequencer.Service, tape *marketdata.Publisher) *Handler {
	return &Handler{
		gw:   gw,
		svc:  svc,
		tape: tape,
	}
}

// RegisterRoutes sets up the Gin routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Health)

	v1 := r.Group("/v1")
	{
		v1.POST("/orders", h.PlaceOrder)
		v1.DELETE("/orders/:id", h.CancelOrder)
		v1.PUT("/orders/:id", h.ModifyOrder)
		v1.GET("/orders/:id", h.GetOrder)
		v1.GET("/book", h.GetBook)
		v1.GET("/book/best", h.GetBookTop)
		v1.GET("/trades", h.GetTrades)
		v1.GET("/candles", h.GetCandles)
		v1.GET("/stats", h.GetStats)
	}
}

// Health returns a health check response.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "matching-engine",
	})
}

// PlaceOrder handles POST /v1/orders.
func (h *Handler) PlaceOrder(c *gin.Context) {
	var req gateway.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_order"})
		return
	}

	id, trades, err := h.gw.Submit(req)
	if err != nil {
		writeError(c, id, err)
		return
	}

	c.JSON(http.StatusOK, h.orderResult(id, trades))
}

// CancelOrder handles DELETE /v1/orders/:id.
func (h *Handler) CancelOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_order"})
		return
	}

	ok, err := h.gw.Cancel(gateway.CancelRequest{OrderID: id})
	if err != nil {
		writeError(c, id, err)
		return
	}
	if !ok {
		// Cancel is false both for unknown ids and for orders already
		// terminal; only the former is a 404.
		if _, known, qerr := h.svc.GetOrder(id); qerr == nil && !known {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown order id", "code": "unknown_order_id", "order_id": id})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"order_id": id, "cancelled": ok})
}

// ModifyOrder handles PUT /v1/orders/:id.
func (h *Handler) ModifyOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_order"})
		return
	}

	var req gateway.ModifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_order"})
		return
	}
	req.OrderID = id

	trades, err := h.gw.Modify(req)
	if err != nil {
		writeError(c, id, err)
		return
	}

	c.JSON(http.StatusOK, h.orderResult(id, trades))
}

// GetOrder handles GET /v1/orders/:id.
func (h *Handler) GetOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_order"})
		return
	}

	o, ok, err := h.svc.GetOrder(id)
	if err != nil {
		writeError(c, id, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown order id", "code": "unknown_order_id", "order_id": id})
		return
	}

	c.JSON(http.StatusOK, o)
}

// GetBook handles GET /v1/book.
func (h *Handler) GetBook(c *gin.Context) {
	depthStr := c.DefaultQuery("depth", "10")
	depth, err := strconv.Atoi(depthStr)
	if err != nil || depth <= 0 {
		depth = 10
	}

	snapshot, err := h.svc.Depth(depth)
	if err != nil {
		writeError(c, 0, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// GetBookTop handles GET /v1/book/best.
func (h *Handler) GetBookTop(c *gin.Context) {
	top, err := h.svc.Top()
	if err != nil {
		writeError(c, 0, err)
		return
	}

	c.JSON(http.StatusOK, top)
}

// GetTrades handles GET /v1/trades.
func (h *Handler) GetTrades(c *gin.Context) {
	var orderID domain.OrderID
	if raw := c.Query("order_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order_id", "code": "invalid_order"})
			return
		}
		orderID = id
	}

	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since format, use RFC3339", "code": "invalid_order"})
			return
		}
		since = parsed
	}

	limitStr := c.DefaultQuery("limit", "100")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 100
	}

	trades := h.tape.Trades(orderID, since, limit)
	if trades == nil {
		trades = []domain.Trade{}
	}

	c.JSON(http.StatusOK, trades)
}

// GetCandles handles GET /v1/candles.
func (h *Handler) GetCandles(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "100")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 100
	}

	candles := h.tape.Candles(limit)
	if candles == nil {
		candles = []domain.Candle{}
	}

	c.JSON(http.StatusOK, candles)
}

// GetStats handles GET /v1/stats.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.svc.Stats()
	if err != nil {
		writeError(c, 0, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// orderResult is the mutation response body: the resolved id, the final
// order status and the trades the command produced.
func (h *Handler) orderResult(id domain.OrderID, trades []domain.Trade) gin.H {
	if trades == nil {
		trades = []domain.Trade{}
	}
	result := gin.H{"order_id": id, "trades": trades}
	if o, ok, err := h.svc.GetOrder(id); err == nil && ok {
		result["status"] = o.Status
	}
	return result
}

func parseID(raw string) (domain.OrderID, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid order id %q", raw)
	}
	return id, nil
}

// writeError maps an engine error to an HTTP status plus the stable
// error code. Ids are burned even on rejection, so the payload carries
// the id whenever one was resolved.
func writeError(c *gin.Context, id domain.OrderID, err error) {
	payload := gin.H{"error": err.Error(), "code": domain.ErrorCode(err)}
	if id != 0 {
		payload["order_id"] = id
	}
	c.JSON(httpStatus(err), payload)
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownOrderID):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIllegalModify):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidOrder),
		errors.Is(err, domain.ErrDuplicateOrderID),
		errors.Is(err, domain.ErrUnfillableFAK):
		return http.StatusBadRequest
	default:
		// Engine stopped and journal failures: the write path is down.
		return http.StatusServiceUnavailable
	}
}
