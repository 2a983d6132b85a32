package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/copilot-metrics/internal/services"
	"github.com/huangang/copilot-metrics/pkg/logger"
	"github.com/huangang/copilot-metrics/pkg/response"
)

type ConfigHandler struct {
	store *services.CredentialStore
}

func NewConfigHandler(store *services.CredentialStore) *ConfigHandler {
	return &ConfigHandler{store: store}
}

type UpdateConfigRequest struct {
	Token string `json:"token"`
	Org   string `json:"org"`
}

// GetConfig reports whether a token is stored and for which org.
func (h *ConfigHandler) GetConfig(c *gin.Context) {
	response.JSON(c, h.store.Status())
}

// UpdateConfig replaces the stored credential.
func (h *ConfigHandler) UpdateConfig(c *gin.Context) {
	var req UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Result(c, http.StatusBadRequest, false, "Token and org are required")
		return
	}

	if err := h.store.Set(req.Token, req.Org); err != nil {
		response.Result(c, http.StatusBadRequest, false, "Token and org are required")
		return
	}

	logger.Info().
		Str("request_id", c.GetString(logger.RequestIDKey)).
		Str("org", h.store.Status().Org).
		Msg("GitHub credential updated")
	response.Result(c, http.StatusOK, true, "Configuration saved")
}
