package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/copilot-metrics/internal/services"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the process and its optional database.
type HealthHandler struct {
	db    *gorm.DB
	store *services.CredentialStore
}

func NewHealthHandler(db *gorm.DB, store *services.CredentialStore) *HealthHandler {
	return &HealthHandler{db: db, store: store}
}

// CheckHealth returns the health status of all subsystems. A missing
// credential is reported but does not make the service unhealthy.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "disabled"
	if h.db != nil {
		dbStatus = "ok"
		sqlDB, err := h.db.DB()
		if err != nil {
			dbStatus = "error: " + err.Error()
		} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			dbStatus = "error: " + err.Error()
		}
		if dbStatus != "ok" {
			overall = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	credential := h.store.Status()

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "copilot-metrics",
		"components": gin.H{
			"database":              dbStatus,
			"credential_configured": credential.HasToken,
			"org":                   credential.Org,
		},
	})
}
