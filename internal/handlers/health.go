package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	apperrors "github.com/splithaus/splithaus/pkg/errors"
	"github.com/splithaus/splithaus/pkg/response"
)

// HealthHandler reports process and dependency health.
type HealthHandler struct {
	db      *gorm.DB
	started time.Time
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db, started: time.Now()}
}

// Live always succeeds while the process is up.
func (h *HealthHandler) Live(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// Ready verifies database connectivity.
func (h *HealthHandler) Ready(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		response.Error(c, apperrors.New("NOT_READY", "database unavailable", http.StatusServiceUnavailable))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ready"})
}
