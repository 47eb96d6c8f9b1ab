package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paylinkd/walletlink_service/chain"
)

type ProviderHandler struct {
	relay *chain.RelayProvider
}

func NewProviderHandler(relay *chain.RelayProvider) *ProviderHandler {
	return &ProviderHandler{relay: relay}
}

// ReportAccount, the browser wallet's change notification. An empty address
// acknowledges a disconnect.
func (h *ProviderHandler) ReportAccount(c *gin.Context) {
	var req struct {
		Address string `json:"address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.relay.ReportAccount(req.Address)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
