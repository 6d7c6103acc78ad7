package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthHandler struct {
	DB *gorm.DB
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.healthz)
	r.GET("/readyz", h.readyz)
}

func (h *HealthHandler) healthz(c *gin.Context) {
	Ok(c, map[string]any{"status": "up"}, nil)
}

func (h *HealthHandler) readyz(c *gin.Context) {
	if h.DB != nil {
		sqldb, err := h.DB.DB()
		if err == nil {
			err = sqldb.PingContext(c.Request.Context())
		}
		if err != nil {
			Error(c, http.StatusServiceUnavailable, "db not ready", nil)
			return
		}
	}
	Ok(c, map[string]any{"status": "ready"}, nil)
}
