package entity

import "time"

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusPaid      PaymentStatus = "paid"
	StatusCancelled PaymentStatus = "cancelled"
	StatusExpired   PaymentStatus = "expired"
)

// Terminal reports whether a status admits no further transitions.
func (s PaymentStatus) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled || s == StatusExpired
}

// PaymentRequest is an append-only ledger record. Amount is always the
// human-entered decimal string; scaling to raw token units happens at the
// chain boundary only. Status moves pending->paid / pending->expired /
// pending->cancelled and never re-opens.
type PaymentRequest struct {
	ID               string        `bson:"_id" json:"id"`
	RequesterAddress string        `bson:"requester_address" json:"requester_address"`
	ChainID          int64         `bson:"chain_id" json:"chain_id"`
	TokenAddress     string        `bson:"token_address" json:"token_address"`
	Amount           string        `bson:"amount" json:"amount"`
	Status           PaymentStatus `bson:"status" json:"status"`
	ShareLink        string        `bson:"share_link" json:"share_link"`
	CreatedAt        time.Time     `bson:"created_at" json:"created_at"`
	ExpiresAt        time.Time     `bson:"expires_at" json:"expires_at"`
	PayerAddress     string        `bson:"payer_address,omitempty" json:"payer_address,omitempty"`
	SettlementTxHash string        `bson:"settlement_tx_hash,omitempty" json:"settlement_tx_hash,omitempty"`
	PaidAt           *time.Time    `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
}

// SettlementPatch carries the fields written alongside a pending->paid
// transition.
type SettlementPatch struct {
	PayerAddress     string
	SettlementTxHash string
	PaidAt           time.Time
}
