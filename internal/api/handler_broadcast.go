package api

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"webpush-demo-backend/internal/store"
)

// Broadcast handles GET /api/push. Deliveries run on the worker pool; the
// response reports how many subscriptions were targeted, not how many
// deliveries succeeded.
func (h *Handler) Broadcast(c *gin.Context) {
	subs, err := store.Collect(c.Request.Context(), h.registry)
	if err != nil {
		log.Printf("Failed to list subscriptions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list subscriptions"})
		return
	}

	if len(subs) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "no subscription yet!", "sentCount": 0})
		return
	}

	batch, err := h.dispatcher.Broadcast(subs, h.payload)
	if err != nil {
		log.Printf("Failed to start broadcast: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start broadcast"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     fmt.Sprintf("%d messages sent!", batch.Targeted()),
		"sentCount":   batch.Targeted(),
		"broadcastId": batch.ID().String(),
	})
}
