package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cartsync/cartsync-backend/internal/liststore"
)

type HealthHandler struct {
	store *liststore.Store
}

func NewHealthHandler(store *liststore.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// HealthCheck stays 200 while the process serves live state; durability
// flips to "degraded" when the last persistence write failed.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	durability := "ok"
	if h.store.DurabilityDegraded() {
		durability = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "durability": durability})
}
