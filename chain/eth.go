package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/paylinkd/walletlink_service/config"
	"github.com/paylinkd/walletlink_service/entity"
	wrapErrors "github.com/paylinkd/walletlink_service/errors"
	"github.com/paylinkd/walletlink_service/utils"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":false,"name":"value","type":"uint256"}],
	 "name":"Transfer","type":"event"}
]`

var (
	erc20ABI      abi.ABI
	transferTopic common.Hash
	abiOnce       sync.Once
)

func loadERC20ABI() {
	abiOnce.Do(func() {
		parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
		if err != nil {
			panic(err)
		}
		erc20ABI = parsed
		transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	})
}

// ETHChain implements ChainData over an EVM JSON-RPC endpoint. Transfer
// observation is a log-polling loop (works over plain HTTP RPC); native-coin
// transfers emit no logs, so those are found by scanning block transactions.
type ETHChain struct {
	Rpc     string
	ChainID *big.Int
	MainNet bool

	poll       time.Duration
	maxBackoff time.Duration
	log        *logrus.Entry

	mu     sync.Mutex
	client *ethclient.Client
}

func NewETHChain(cfg config.EthConfig, wcfg config.WatcherConfig, log *logrus.Logger) *ETHChain {
	loadERC20ABI()
	return &ETHChain{
		Rpc:        cfg.RPC,
		ChainID:    big.NewInt(cfg.ChainID),
		MainNet:    cfg.MainNet,
		poll:       wcfg.PollInterval,
		maxBackoff: wcfg.MaxBackoff,
		log:        log.WithField("component", "eth_chain"),
	}
}

func (e *ETHChain) dial(ctx context.Context) (*ethclient.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return e.client, nil
	}
	client, err := ethclient.DialContext(ctx, e.Rpc)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeDialChain, "eth dial", err)
	}
	e.client = client
	return client, nil
}

// TokenDecimals reads decimals() from the token contract. Never assumed:
// a hard-coded precision here is a known defect class.
func (e *ETHChain) TokenDecimals(ctx context.Context, tokenAddress string) (uint8, error) {
	if utils.SameAddress(tokenAddress, utils.NativeToken) {
		return utils.NativeDecimals, nil
	}
	client, err := e.dial(ctx)
	if err != nil {
		return 0, err
	}

	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, wrapErrors.WrapWithCode(wrapErrors.CodeTokenDecimals, "pack decimals", err)
	}
	token := common.HexToAddress(tokenAddress)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return 0, wrapErrors.WrapWithCode(wrapErrors.CodeTokenDecimals, "call decimals", err)
	}

	results, err := erc20ABI.Unpack("decimals", out)
	if err != nil || len(results) != 1 {
		return 0, wrapErrors.WrapWithCode(wrapErrors.CodeTokenDecimals, "unpack decimals", err)
	}
	decimals, ok := results[0].(uint8)
	if !ok {
		return 0, wrapErrors.Newf(wrapErrors.CodeTokenDecimals, "unpack decimals",
			"unexpected type %T", results[0])
	}
	return decimals, nil
}

func (e *ETHChain) SubscribeTransfers(ctx context.Context, tokenAddress, recipient string) (<-chan entity.TransferEvent, error) {
	client, err := e.dial(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan entity.TransferEvent, 8)
	go e.pollTransfers(ctx, client, tokenAddress, recipient, out)
	return out, nil
}

func (e *ETHChain) pollTransfers(ctx context.Context, client *ethclient.Client, tokenAddress, recipient string, out chan<- entity.TransferEvent) {
	defer close(out)

	var lastBlock uint64
	backoff := e.poll

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		head, err := client.BlockNumber(ctx)
		if err != nil {
			backoff = e.nextBackoff(backoff, "block number", err)
			continue
		}
		if lastBlock == 0 {
			// First poll only establishes the starting point.
			lastBlock = head
			backoff = e.poll
			continue
		}
		if head <= lastBlock {
			backoff = e.poll
			continue
		}

		from, to := lastBlock+1, head
		if utils.SameAddress(tokenAddress, utils.NativeToken) {
			err = e.scanNativeTransfers(ctx, client, from, to, recipient, out)
		} else {
			err = e.scanTokenTransfers(ctx, client, from, to, tokenAddress, recipient, out)
		}
		if err != nil {
			backoff = e.nextBackoff(backoff, "scan transfers", err)
			continue
		}

		lastBlock = head
		backoff = e.poll
	}
}

func (e *ETHChain) nextBackoff(current time.Duration, op string, err error) time.Duration {
	e.log.WithError(err).WithField("op", op).Warn("chain rpc error, backing off")
	next := current * 2
	if next > e.maxBackoff {
		next = e.maxBackoff
	}
	return next
}

// recipientTopic renders an address as an indexed log topic: the 20 address
// bytes left-padded to the 32-byte topic width.
func recipientTopic(recipient string) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(common.HexToAddress(recipient).Bytes(), 32))
}

func (e *ETHChain) scanTokenTransfers(ctx context.Context, client *ethclient.Client, from, to uint64, tokenAddress, recipient string, out chan<- entity.TransferEvent) error {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{common.HexToAddress(tokenAddress)},
		Topics: [][]common.Hash{
			{transferTopic},
			nil,
			{recipientTopic(recipient)},
		},
	}
	logs, err := client.FilterLogs(ctx, query)
	if err != nil {
		return wrapErrors.WrapWithCode(wrapErrors.CodeChainRPC, "filter logs", err)
	}

	for _, lg := range logs {
		if lg.Removed || len(lg.Topics) != 3 {
			continue
		}
		evt := entity.TransferEvent{
			From:    utils.CanonicalAddress(common.HexToAddress(lg.Topics[1].Hex()).Hex()),
			To:      utils.CanonicalAddress(common.HexToAddress(lg.Topics[2].Hex()).Hex()),
			Value:   new(big.Int).SetBytes(lg.Data),
			TxHash:  lg.TxHash.Hex(),
			ChainID: e.ChainID.Int64(),
		}
		select {
		case out <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (e *ETHChain) scanNativeTransfers(ctx context.Context, client *ethclient.Client, from, to uint64, recipient string, out chan<- entity.TransferEvent) error {
	signer := types.LatestSignerForChainID(e.ChainID)
	want := common.HexToAddress(recipient)

	for n := from; n <= to; n++ {
		block, err := client.BlockByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return wrapErrors.WrapWithCode(wrapErrors.CodeChainRPC, "block by number", err)
		}
		for _, tx := range block.Transactions() {
			if tx.To() == nil || *tx.To() != want || tx.Value().Sign() <= 0 {
				continue
			}
			sender, err := types.Sender(signer, tx)
			if err != nil {
				continue
			}
			evt := entity.TransferEvent{
				From:    utils.CanonicalAddress(sender.Hex()),
				To:      utils.CanonicalAddress(want.Hex()),
				Value:   new(big.Int).Set(tx.Value()),
				TxHash:  tx.Hash().Hex(),
				ChainID: e.ChainID.Int64(),
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (e *ETHChain) TransactionStatus(ctx context.Context, txHash string) (*entity.TxStatus, error) {
	client, err := e.dial(ctx)
	if err != nil {
		return nil, err
	}

	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return &entity.TxStatus{State: entity.TxPending}, nil
	}
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeChainRPC, "transaction receipt", err)
	}

	status := &entity.TxStatus{BlockNumber: receipt.BlockNumber.Uint64()}
	if receipt.Status == types.ReceiptStatusSuccessful {
		status.State = entity.TxSuccess
	} else {
		status.State = entity.TxFailed
	}
	return status, nil
}
