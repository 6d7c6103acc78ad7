package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesim/internal/models"
	"tradesim/internal/repository"
	"tradesim/internal/service"
)

type TradeHandler struct {
	Service *service.TradeService
	Logger  *zap.Logger
}

func (h *TradeHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/trades")
	g.POST("", h.submit)
	g.POST("/schedule", h.schedule)
	g.GET("", h.list)
	g.GET("/:id", h.get)
}

type submitTradeRequest struct {
	UserID          string          `json:"user_id" binding:"required"`
	Direction       string          `json:"direction" binding:"required"`
	Symbol          string          `json:"symbol" binding:"required"`
	Stake           decimal.Decimal `json:"stake"`
	DurationSeconds int             `json:"duration_seconds" binding:"required"`
	IsDemo          bool            `json:"is_demo"`
}

type scheduleTradeRequest struct {
	submitTradeRequest
	ScheduledFor *time.Time `json:"scheduled_for"`
}

func (r submitTradeRequest) toService() service.SubmitTradeRequest {
	return service.SubmitTradeRequest{
		UserID:          r.UserID,
		Direction:       models.Direction(strings.ToLower(r.Direction)),
		Symbol:          r.Symbol,
		Stake:           r.Stake,
		DurationSeconds: r.DurationSeconds,
		IsDemo:          r.IsDemo,
	}
}

func (h *TradeHandler) submit(c *gin.Context) {
	var req submitTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	res, err := h.Service.SubmitImmediate(c.Request.Context(), req.toService())
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, res, nil)
}

func (h *TradeHandler) schedule(c *gin.Context) {
	var req scheduleTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	sreq := service.ScheduleTradeRequest{
		UserID:          req.UserID,
		Direction:       models.Direction(strings.ToLower(req.Direction)),
		Symbol:          req.Symbol,
		Stake:           req.Stake,
		DurationSeconds: req.DurationSeconds,
		IsDemo:          req.IsDemo,
	}
	if req.ScheduledFor != nil {
		sreq.ScheduledFor = req.ScheduledFor.UTC()
	}
	trade, err := h.Service.Schedule(c.Request.Context(), sreq)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, trade, nil)
}

func (h *TradeHandler) list(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListTradesParams{
		Limit:   limit,
		Offset:  offset,
		OrderBy: "created_at",
		Asc:     boolPtr(false),
	}
	if v := strings.TrimSpace(c.Query("user_id")); v != "" {
		params.UserID = &v
	}
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		status := models.TradeStatus(v)
		params.Status = &status
	}
	if v := strings.TrimSpace(c.Query("symbol")); v != "" {
		symbol := strings.ToUpper(v)
		params.Symbol = &symbol
	}
	items, total, err := h.Service.List(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

func (h *TradeHandler) get(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		Error(c, http.StatusBadRequest, "invalid trade id", nil)
		return
	}
	trade, err := h.Service.Get(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, trade, nil)
}
