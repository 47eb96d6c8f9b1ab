package entity

import "math/big"

// TransferEvent is one observed token (or native coin) transfer.
// Value is in raw on-chain units.
type TransferEvent struct {
	From    string
	To      string
	Value   *big.Int
	TxHash  string
	ChainID int64
}

type TxState string

const (
	TxPending TxState = "pending"
	TxSuccess TxState = "success"
	TxFailed  TxState = "failed"
)

type TxStatus struct {
	BlockNumber uint64
	State       TxState
}
