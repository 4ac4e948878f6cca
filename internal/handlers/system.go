package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SocketHandler serves the websocket endpoint configuration.
type SocketHandler struct {
	webSocketURL string
}

// NewSocketHandler creates a new SocketHandler.
func NewSocketHandler(webSocketURL string) *SocketHandler {
	return &SocketHandler{webSocketURL: webSocketURL}
}

// Config returns the websocket URL clients should connect to.
func (h *SocketHandler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"webSocketUrl": h.webSocketURL})
}

// Health reports that the process is serving.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
