package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"webpush-demo-backend/internal/model"
)

const errMissingSubscription = "missing subscription"

// ReceiveSubscription handles POST /api/push: it stores the subscription a
// client agent obtained from its push manager.
func (h *Handler) ReceiveSubscription(c *gin.Context) {
	var sub model.PushSubscription
	if err := c.ShouldBindJSON(&sub); err != nil {
		log.Printf("No usable subscription was provided: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": errMissingSubscription, "detail": err.Error()})
		return
	}
	sub.CreatedAt = time.Time{}

	snapshot, err := h.registry.Add(c.Request.Context(), sub)
	if err != nil {
		log.Printf("Failed to store subscription %s: %v", sub.Endpoint, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store subscription"})
		return
	}

	// Concurrent registrations may land after this one; report our own row.
	c.JSON(http.StatusOK, gin.H{
		"message":        "success",
		"storedEndpoint": sub.Endpoint,
		"storedCount":    snapshot.Len(),
	})
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles DELETE /api/push, sent when a client
// unsubscribes.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}

	removed, err := h.registry.Remove(c.Request.Context(), req.Endpoint)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}

	c.Status(http.StatusNoContent)
}

// GetDB handles GET /api/db and dumps the registry. It is a debug surface.
func (h *Handler) GetDB(c *gin.Context) {
	snapshot, err := h.registry.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subscriptions": snapshot.Subscriptions,
		"count":         snapshot.Len(),
	})
}
