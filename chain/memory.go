package chain

import (
	"context"
	"sync"

	"github.com/paylinkd/walletlink_service/entity"
	"github.com/paylinkd/walletlink_service/utils"
)

// MemoryProvider is an in-memory WalletProvider used to unit-test the switch
// coordinator without a real wallet relay. Tests script its behaviour with
// QueueConnect / FailNextDisconnect / EmitAccount.
type MemoryProvider struct {
	mu            sync.Mutex
	connected     string
	accountCh     chan string
	connectQueue  []connectOutcome
	disconnectErr error
	signFunc      func(message string) ([]byte, error)
	disconnects   int
	connects      int
}

type connectOutcome struct {
	address string
	err     error
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{accountCh: make(chan string, 8)}
}

// QueueConnect scripts the result of the next Connect call.
func (p *MemoryProvider) QueueConnect(address string) *MemoryProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectQueue = append(p.connectQueue, connectOutcome{address: address})
	return p
}

// QueueConnectErr scripts a failing Connect call.
func (p *MemoryProvider) QueueConnectErr(err error) *MemoryProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectQueue = append(p.connectQueue, connectOutcome{err: err})
	return p
}

// FailNextDisconnect makes the next Disconnect return err.
func (p *MemoryProvider) FailNextDisconnect(err error) *MemoryProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnectErr = err
	return p
}

// WithSignFunc installs the signing behaviour for Sign.
func (p *MemoryProvider) WithSignFunc(fn func(message string) ([]byte, error)) *MemoryProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signFunc = fn
	return p
}

// EmitAccount simulates the externally connected address changing.
func (p *MemoryProvider) EmitAccount(address string) {
	p.mu.Lock()
	p.connected = utils.CanonicalAddress(address)
	p.mu.Unlock()
	p.accountCh <- address
}

func (p *MemoryProvider) Connect(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++
	if len(p.connectQueue) > 0 {
		next := p.connectQueue[0]
		p.connectQueue = p.connectQueue[1:]
		if next.err != nil {
			return "", next.err
		}
		p.connected = utils.CanonicalAddress(next.address)
		return p.connected, nil
	}
	return p.connected, nil
}

func (p *MemoryProvider) Disconnect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnects++
	if p.disconnectErr != nil {
		err := p.disconnectErr
		p.disconnectErr = nil
		return err
	}
	p.connected = ""
	return nil
}

func (p *MemoryProvider) Sign(_ context.Context, message string) ([]byte, error) {
	p.mu.Lock()
	fn := p.signFunc
	p.mu.Unlock()
	if fn == nil {
		return nil, ErrUserRejected
	}
	return fn(message)
}

func (p *MemoryProvider) AccountChanges() <-chan string {
	return p.accountCh
}

func (p *MemoryProvider) Disconnects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnects
}

func (p *MemoryProvider) Connects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

// MemoryChain is an in-memory ChainData for watcher tests. Transfers are
// injected with EmitTransfer and delivered to whichever subscription matches
// the token/recipient pair.
type MemoryChain struct {
	mu          sync.Mutex
	decimals    map[string]uint8
	decimalsErr error
	statuses    map[string]entity.TxStatus
	subs        map[string][]chan entity.TransferEvent
	backlog     map[string][]entity.TransferEvent
}

func NewMemoryChain() *MemoryChain {
	return &MemoryChain{
		decimals: make(map[string]uint8),
		statuses: make(map[string]entity.TxStatus),
		subs:     make(map[string][]chan entity.TransferEvent),
		backlog:  make(map[string][]entity.TransferEvent),
	}
}

func subKey(token, recipient string) string {
	return utils.CanonicalAddress(token) + "|" + utils.CanonicalAddress(recipient)
}

func (c *MemoryChain) SetDecimals(token string, d uint8) *MemoryChain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decimals[utils.CanonicalAddress(token)] = d
	return c
}

func (c *MemoryChain) WithDecimalsError(err error) *MemoryChain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decimalsErr = err
	return c
}

func (c *MemoryChain) SetStatus(txHash string, status entity.TxStatus) *MemoryChain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[txHash] = status
	return c
}

// EmitTransfer delivers an event to all matching subscriptions. Events
// emitted before anyone subscribed are replayed to the first subscriber, so
// tests need not race the watcher's subscribe.
func (c *MemoryChain) EmitTransfer(token string, evt entity.TransferEvent) {
	key := subKey(token, evt.To)
	c.mu.Lock()
	targets := append([]chan entity.TransferEvent(nil), c.subs[key]...)
	if len(targets) == 0 {
		c.backlog[key] = append(c.backlog[key], evt)
	}
	c.mu.Unlock()
	for _, ch := range targets {
		ch <- evt
	}
}

func (c *MemoryChain) TokenDecimals(_ context.Context, tokenAddress string) (uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decimalsErr != nil {
		return 0, c.decimalsErr
	}
	if d, ok := c.decimals[utils.CanonicalAddress(tokenAddress)]; ok {
		return d, nil
	}
	if utils.SameAddress(tokenAddress, utils.NativeToken) {
		return utils.NativeDecimals, nil
	}
	return 18, nil
}

func (c *MemoryChain) SubscribeTransfers(ctx context.Context, tokenAddress, recipient string) (<-chan entity.TransferEvent, error) {
	ch := make(chan entity.TransferEvent, 8)
	key := subKey(tokenAddress, recipient)
	c.mu.Lock()
	c.subs[key] = append(c.subs[key], ch)
	for _, evt := range c.backlog[key] {
		ch <- evt
	}
	delete(c.backlog, key)
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		live := c.subs[key][:0]
		for _, sub := range c.subs[key] {
			if sub != ch {
				live = append(live, sub)
			}
		}
		c.subs[key] = live
	}()

	return ch, nil
}

func (c *MemoryChain) TransactionStatus(_ context.Context, txHash string) (*entity.TxStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.statuses[txHash]; ok {
		return &s, nil
	}
	// Unknown hashes are treated as mined and successful.
	return &entity.TxStatus{BlockNumber: 1, State: entity.TxSuccess}, nil
}
