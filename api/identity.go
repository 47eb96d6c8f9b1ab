package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	wrapErrors "github.com/paylinkd/walletlink_service/errors"
	"github.com/paylinkd/walletlink_service/request"
	"github.com/paylinkd/walletlink_service/service"
	"github.com/paylinkd/walletlink_service/utils"
)

type IdentityHandler struct {
	identity *service.IdentityService
	switcher *service.Switcher
}

func NewIdentityHandler(identity *service.IdentityService, switcher *service.Switcher) *IdentityHandler {
	return &IdentityHandler{identity: identity, switcher: switcher}
}

// Connect, resolve a connected address into a session identity
func (h *IdentityHandler) Connect(c *gin.Context) {
	var req request.ConnectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot, err := h.identity.Connect(c.Request.Context(), req.Address)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": wrapErrors.CodeOf(err)})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *IdentityHandler) Disconnect(c *gin.Context) {
	h.identity.Disconnect()
	c.JSON(http.StatusOK, h.identity.Session.Snapshot())
}

func (h *IdentityHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.identity.Session.Snapshot())
}

func (h *IdentityHandler) ListLinks(c *gin.Context) {
	primary := h.identity.Session.PrimaryAddress()
	if primary == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "no active identity", "code": wrapErrors.CodeNoSession})
		return
	}
	links, err := h.identity.ListLinks(c.Request.Context(), primary)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": wrapErrors.CodeOf(err)})
		return
	}
	c.JSON(http.StatusOK, links)
}

// AddLink, attach a signature-verified sub-wallet to the active primary
func (h *IdentityHandler) AddLink(c *gin.Context) {
	var req request.AddLinkReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	signature, err := hexutil.Decode(req.Signature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature must be 0x-prefixed hex", "code": wrapErrors.CodeInvalidSignature})
		return
	}

	primary := h.identity.Session.PrimaryAddress()
	if primary == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "no active identity", "code": wrapErrors.CodeNoSession})
		return
	}

	link, err := h.identity.AddLink(c.Request.Context(), primary, req.SubAddress, req.Label, req.Message, signature)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": wrapErrors.CodeOf(err)})
		return
	}
	c.JSON(http.StatusOK, link)
}

func (h *IdentityHandler) RemoveLink(c *gin.Context) {
	if err := h.identity.RemoveLink(c.Request.Context(), c.Param("address")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": wrapErrors.CodeOf(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": utils.CanonicalAddress(c.Param("address"))})
}

// LinkMessage, hand the client the exact text the sub-wallet must sign
func (h *IdentityHandler) LinkMessage(c *gin.Context) {
	primary := h.identity.Session.PrimaryAddress()
	if primary == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "no active identity", "code": wrapErrors.CodeNoSession})
		return
	}
	sub := c.Query("sub_address")
	if sub == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sub_address is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": utils.LinkMessage(primary, sub)})
}

func (h *IdentityHandler) Switch(c *gin.Context) {
	var req request.SwitchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.switcher.SwitchTo(c.Request.Context(), req.Target)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": wrapErrors.CodeOf(err), "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *IdentityHandler) RetrySwitch(c *gin.Context) {
	result, err := h.switcher.RetrySwitch(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": wrapErrors.CodeOf(err), "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *IdentityHandler) CancelSwitch(c *gin.Context) {
	result, err := h.switcher.CancelSwitch()
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": wrapErrors.CodeOf(err), "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}
