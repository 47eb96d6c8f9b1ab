package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	wrapErrors "github.com/paylinkd/walletlink_service/errors"
	"github.com/paylinkd/walletlink_service/request"
	"github.com/paylinkd/walletlink_service/service"
)

type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

func (h *PaymentHandler) Create(c *gin.Context) {
	var req request.CreatePaymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.payments.Create(c.Request.Context(), service.CreateRequestSpec{
		RequesterAddress: req.RequesterAddress,
		ChainID:          req.ChainID,
		TokenAddress:     req.TokenAddress,
		Amount:           req.Amount,
		ExpiresAt:        req.ExpiresAt,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": wrapErrors.CodeOf(err)})
		return
	}
	c.JSON(http.StatusOK, created)
}

func (h *PaymentHandler) List(c *gin.Context) {
	requests, err := h.payments.List(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": wrapErrors.CodeOf(err)})
		return
	}
	c.JSON(http.StatusOK, requests)
}

func (h *PaymentHandler) Get(c *gin.Context) {
	req, err := h.payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": wrapErrors.CodeOf(err)})
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *PaymentHandler) Cancel(c *gin.Context) {
	if err := h.payments.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": wrapErrors.CodeOf(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": c.Param("id")})
}

// ShareLink, resolve the opaque /pay/{id} path to a request detail.
// No secrets in the link; access control is a presentation concern.
func (h *PaymentHandler) ShareLink(c *gin.Context) {
	req, err := h.payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": wrapErrors.CodeOf(err)})
		return
	}
	c.JSON(http.StatusOK, req)
}
