package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tradesim/internal/models"
	"tradesim/internal/payout"
	"tradesim/internal/policy"
	"tradesim/internal/service"
)

// AdminHandler exposes the operator surface: outcome policy, per-user
// overrides, payout tiers, trade intervention and feature switches.
type AdminHandler struct {
	Policy   *policy.Store
	Payout   *payout.Table
	Trades   *service.TradeService
	Settings *service.SystemSettingsService
}

func (h *AdminHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/admin")

	g.GET("/policy", h.getPolicy)
	g.PUT("/policy/mode", h.setMode)
	g.PUT("/policy/win-probability", h.setWinProbability)
	g.POST("/policy/reset", h.resetPolicy)

	g.GET("/overrides", h.listOverrides)
	g.PUT("/overrides/:user_id", h.setOverride)
	g.DELETE("/overrides/:user_id", h.deleteOverride)

	g.GET("/payout-tiers", h.listPayoutTiers)
	g.PUT("/payout-tiers", h.updatePayoutTier)

	g.POST("/trades/:id/cancel", h.cancelTrade)
	g.POST("/trades/:id/execute", h.forceExecute)

	g.GET("/switches/:key", h.getSwitch)
	g.PUT("/switches/:key", h.setSwitch)
}

func (h *AdminHandler) getPolicy(c *gin.Context) {
	Ok(c, h.Policy.Snapshot(), nil)
}

type setModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (h *AdminHandler) setMode(c *gin.Context) {
	var req setModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Policy.SetGlobalMode(c.Request.Context(), models.Mode(strings.ToLower(req.Mode))); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, h.Policy.Snapshot(), nil)
}

type setWinProbabilityRequest struct {
	Percent int `json:"percent"`
}

func (h *AdminHandler) setWinProbability(c *gin.Context) {
	var req setWinProbabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Policy.SetWinProbability(c.Request.Context(), req.Percent); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, h.Policy.Snapshot(), nil)
}

func (h *AdminHandler) resetPolicy(c *gin.Context) {
	if err := h.Policy.Reset(c.Request.Context()); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, h.Policy.Snapshot(), nil)
}

func (h *AdminHandler) listOverrides(c *gin.Context) {
	Ok(c, h.Policy.Snapshot().Overrides, nil)
}

type setOverrideRequest struct {
	Outcome        *string    `json:"outcome"`
	ExpiresAt      *time.Time `json:"expires_at"`
	DurationSecond *int       `json:"duration_seconds"`
}

func (h *AdminHandler) setOverride(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		Error(c, http.StatusBadRequest, "invalid user id", nil)
		return
	}
	var req setOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	var outcome *models.Outcome
	if req.Outcome != nil {
		o := models.Outcome(strings.ToLower(*req.Outcome))
		outcome = &o
	}
	expiresAt := req.ExpiresAt
	if expiresAt == nil && req.DurationSecond != nil {
		t := time.Now().UTC().Add(time.Duration(*req.DurationSecond) * time.Second)
		expiresAt = &t
	}
	if err := h.Policy.SetUserOverride(c.Request.Context(), userID, outcome, expiresAt); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, h.Policy.Snapshot(), nil)
}

func (h *AdminHandler) deleteOverride(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if err := h.Policy.SetUserOverride(c.Request.Context(), userID, nil, nil); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"user_id": userID}, nil)
}

func (h *AdminHandler) listPayoutTiers(c *gin.Context) {
	Ok(c, h.Payout.Tiers(), nil)
}

type updatePayoutTierRequest struct {
	DurationSeconds int             `json:"duration_seconds" binding:"required"`
	WinPercent      decimal.Decimal `json:"win_percent"`
	LossPercent     decimal.Decimal `json:"loss_percent"`
}

func (h *AdminHandler) updatePayoutTier(c *gin.Context) {
	var req updatePayoutTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	tier := models.PayoutTier{
		DurationSeconds: req.DurationSeconds,
		WinPercent:      req.WinPercent,
		LossPercent:     req.LossPercent,
	}
	if err := h.Payout.Update(c.Request.Context(), tier); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, h.Payout.Tiers(), nil)
}

func (h *AdminHandler) cancelTrade(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := h.Trades.Cancel(c.Request.Context(), id, actor(c)); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"id": id, "status": models.TradeCancelled}, nil)
}

type forceExecuteRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

func (h *AdminHandler) forceExecute(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var req forceExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	res, err := h.Trades.ForceExecute(c.Request.Context(), id, models.Outcome(strings.ToLower(req.Outcome)), actor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, res, nil)
}

func (h *AdminHandler) getSwitch(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	enabled := h.Settings.IsEnabled(c.Request.Context(), key, false)
	Ok(c, gin.H{"key": key, "enabled": enabled}, nil)
}

type setSwitchRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *AdminHandler) setSwitch(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	var req setSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Settings.SetEnabled(c.Request.Context(), key, req.Enabled); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"key": key, "enabled": req.Enabled}, nil)
}

// actor resolves the operator identity recorded in the audit trail.
func actor(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader("X-Actor")); v != "" {
		return v
	}
	return "admin"
}
