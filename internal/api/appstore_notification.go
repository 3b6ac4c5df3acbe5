package api

import (
	"net/http"

	"hound-api/internal/models"
	"hound-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// AppStoreNotification handles App Store Server Notifications V2.
// POST /api/v1/appstore/notifications
// Apple retries until it sees a 200, so every outcome is acknowledged and only logged here.
func (h *Handlers) AppStoreNotification(c *gin.Context) {
	var wrapper models.AppStoreNotificationWrapper
	if err := c.ShouldBindJSON(&wrapper); err != nil || wrapper.SignedPayload == "" {
		logging.Warnf("App Store notification without a usable signedPayload: %v", err)
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	outcome := h.Notifications.Process(c.Request.Context(), wrapper.SignedPayload)
	logging.Debugf("App Store notification processed - outcome: %s", outcome)
	c.JSON(http.StatusOK, gin.H{})
}
