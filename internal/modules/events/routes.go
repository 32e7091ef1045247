package events

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the websocket endpoint under the protected group.
func RegisterRoutes(rg *gin.RouterGroup, h *Handler) {
	rg.GET("/ws/events", h.Serve)
}
