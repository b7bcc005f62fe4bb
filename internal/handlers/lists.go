package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cartsync/cartsync-backend/internal/liststore"
	"github.com/cartsync/cartsync-backend/internal/pkg/apperr"
	"github.com/cartsync/cartsync-backend/internal/pkg/logger"
)

// ListHandler is the read-only REST surface; all mutations go through the
// WebSocket command channel.
type ListHandler struct {
	log   *logger.Logger
	store *liststore.Store
}

func NewListHandler(log *logger.Logger, store *liststore.Store) *ListHandler {
	return &ListHandler{
		log:   log.With("handler", "ListHandler"),
		store: store,
	}
}

func (h *ListHandler) GetLists(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"lists": h.store.Lists()})
}

func (h *ListHandler) GetList(c *gin.Context) {
	list, err := h.store.GetSnapshot(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{"code": apperr.CodeOf(err), "message": apperr.MessageOf(err)},
		})
		return
	}
	c.JSON(http.StatusOK, list)
}
