package request

import "time"

type ConnectReq struct {
	Address string `json:"address" binding:"required"`
}

type AddLinkReq struct {
	SubAddress string `json:"sub_address" binding:"required"`
	Label      string `json:"label"`
	Message    string `json:"message" binding:"required"`
	Signature  string `json:"signature" binding:"required"` // hex, 65 bytes
}

type SwitchReq struct {
	Target string `json:"target" binding:"required"`
}

type CreatePaymentReq struct {
	RequesterAddress string    `json:"requester_address" binding:"required"`
	ChainID          int64     `json:"chain_id"`
	TokenAddress     string    `json:"token_address" binding:"required"`
	Amount           string    `json:"amount" binding:"required"`
	ExpiresAt        time.Time `json:"expires_at" binding:"required"`
}
