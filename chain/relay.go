package chain

import (
	"context"
	"errors"
	"sync"

	"github.com/paylinkd/walletlink_service/utils"
)

// RelayProvider is the server-side mirror of the browser wallet. The client
// reports connection state changes over the API (ReportAccount); Connect and
// Disconnect block until the provider actually acknowledges with a matching
// report, never on a fixed timer.
type RelayProvider struct {
	mu        sync.Mutex
	current   string
	accountCh chan string
	waiters   []chan string
}

func NewRelayProvider() *RelayProvider {
	return &RelayProvider{accountCh: make(chan string, 8)}
}

// ReportAccount is called by the API when the externally connected address
// changes. An empty address is the disconnect acknowledgment.
func (p *RelayProvider) ReportAccount(address string) {
	addr := utils.CanonicalAddress(address)

	p.mu.Lock()
	p.current = addr
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	select {
	case p.accountCh <- addr:
	default:
	}
	for _, w := range waiters {
		w <- addr
	}
}

// Connect resolves once the provider reports a connected address.
func (p *RelayProvider) Connect(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.current != "" {
		addr := p.current
		p.mu.Unlock()
		return addr, nil
	}
	wait := p.addWaiterLocked()
	p.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case addr := <-wait:
			if addr != "" {
				return addr, nil
			}
			// A report may land between the receive above and re-registering,
			// so the current state must be re-checked under the lock.
			p.mu.Lock()
			if p.current != "" {
				addr := p.current
				p.mu.Unlock()
				return addr, nil
			}
			wait = p.addWaiterLocked()
			p.mu.Unlock()
		}
	}
}

// Disconnect resolves once the provider acknowledges with an empty report.
func (p *RelayProvider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	if p.current == "" {
		p.mu.Unlock()
		return nil
	}
	wait := p.addWaiterLocked()
	p.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case addr := <-wait:
			if addr == "" {
				return nil
			}
			p.mu.Lock()
			if p.current == "" {
				p.mu.Unlock()
				return nil
			}
			wait = p.addWaiterLocked()
			p.mu.Unlock()
		}
	}
}

// Sign is not relayed: link and invoice signatures are produced in the
// client's wallet and arrive inside the API request payload.
func (p *RelayProvider) Sign(context.Context, string) ([]byte, error) {
	return nil, errors.New("signing is performed client-side")
}

func (p *RelayProvider) AccountChanges() <-chan string {
	return p.accountCh
}

func (p *RelayProvider) addWaiterLocked() chan string {
	w := make(chan string, 1)
	p.waiters = append(p.waiters, w)
	return w
}
