package chain

import (
	"context"
	"errors"

	"github.com/paylinkd/walletlink_service/entity"
)

// ErrUserRejected is returned by a WalletProvider when the person declines a
// connect, disconnect or signing prompt. A rejection is an expected outcome,
// not a defect.
var ErrUserRejected = errors.New("user rejected the wallet prompt")

// WalletProvider is the external wallet capability (browser wallet relay in
// production). None of the calls may be assumed synchronous; every one takes
// a context.
type WalletProvider interface {
	Connect(ctx context.Context) (string, error)
	Disconnect(ctx context.Context) error
	Sign(ctx context.Context, message string) ([]byte, error)
	// AccountChanges delivers the externally connected address every time it
	// changes. An empty string means the provider disconnected.
	AccountChanges() <-chan string
}

// ChainData is the read-only chain capability: token metadata, transfer
// observation and receipt lookups. The system never broadcasts transactions.
type ChainData interface {
	TokenDecimals(ctx context.Context, tokenAddress string) (uint8, error)
	// SubscribeTransfers streams transfers of tokenAddress received by
	// recipient until ctx is cancelled, at which point the channel closes.
	// Transient RPC failures are retried internally with backoff.
	SubscribeTransfers(ctx context.Context, tokenAddress, recipient string) (<-chan entity.TransferEvent, error)
	TransactionStatus(ctx context.Context, txHash string) (*entity.TxStatus, error)
}
