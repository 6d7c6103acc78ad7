package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func boolPtr(v bool) *bool { return &v }

func paginationMeta(limit, offset int, total int64) map[string]any {
	return map[string]any{
		"limit":  limit,
		"offset": offset,
		"total":  total,
	}
}
