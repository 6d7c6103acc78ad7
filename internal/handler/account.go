package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tradesim/internal/apperr"
	"tradesim/internal/models"
	"tradesim/internal/repository"
)

type AccountHandler struct {
	Repo repository.Repository
}

func (h *AccountHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/accounts")
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.GET("/:id/balance", h.balance)
}

type createAccountRequest struct {
	UserID      string          `json:"user_id" binding:"required"`
	Balance     decimal.Decimal `json:"balance"`
	DemoBalance decimal.Decimal `json:"demo_balance"`
}

func (h *AccountHandler) create(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if req.Balance.IsNegative() || req.DemoBalance.IsNegative() {
		Error(c, http.StatusBadRequest, "balance must not be negative", nil)
		return
	}
	item := &models.Account{
		ID:          strings.TrimSpace(req.UserID),
		Balance:     req.Balance,
		DemoBalance: req.DemoBalance,
	}
	if err := h.Repo.CreateAccount(c.Request.Context(), item); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, item, nil)
}

func (h *AccountHandler) get(c *gin.Context) {
	item, err := h.Repo.GetAccountByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		Fail(c, err)
		return
	}
	if item == nil {
		Fail(c, apperr.NotFound("account not found"))
		return
	}
	Ok(c, item, nil)
}

func (h *AccountHandler) balance(c *gin.Context) {
	item, err := h.Repo.GetAccountByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		Fail(c, err)
		return
	}
	if item == nil {
		Fail(c, apperr.NotFound("account not found"))
		return
	}
	field := models.FieldBalance
	amount := item.Balance
	if c.Query("demo") == "true" {
		field = models.FieldDemoBalance
		amount = item.DemoBalance
	}
	Ok(c, gin.H{"user_id": item.ID, "field": string(field), "amount": amount}, nil)
}
