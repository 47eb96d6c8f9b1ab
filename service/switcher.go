package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paylinkd/walletlink_service/chain"
	"github.com/paylinkd/walletlink_service/domain"
	"github.com/paylinkd/walletlink_service/entity"
	wrapErrors "github.com/paylinkd/walletlink_service/errors"
	"github.com/paylinkd/walletlink_service/utils"
)

type SwitchState string

const (
	SwitchIdle            SwitchState = "idle"
	SwitchDisconnecting   SwitchState = "disconnecting"
	SwitchAwaitingConnect SwitchState = "awaiting_provider_connect"
	SwitchVerifying       SwitchState = "verifying_address"
	SwitchCommitted       SwitchState = "committed"
	SwitchMismatched      SwitchState = "mismatched"
	SwitchRejected        SwitchState = "rejected"
)

// recoveryTimeout bounds the reconnect attempt after a rejected switch. The
// recovery outcome is reported on its own error code, never as the switch
// outcome.
const recoveryTimeout = 15 * time.Second

type SwitchResult struct {
	State            SwitchState `json:"state"`
	ActiveAddress    string      `json:"active_address,omitempty"`
	ConnectedAddress string      `json:"connected_address,omitempty"`
}

// Switcher drives the disconnect -> connect -> verify -> commit sequence
// against the external wallet provider. At most one switch is in flight per
// session; "currently switching" is a first-class state, not a side effect
// of racing event handlers.
type Switcher struct {
	provider chain.WalletProvider
	session  *domain.Session
	bus      *domain.Bus
	log      *logrus.Entry

	mu         sync.Mutex
	state      SwitchState
	target     string
	prior      string
	cancelWait context.CancelFunc
}

func NewSwitcher(provider chain.WalletProvider, session *domain.Session, bus *domain.Bus, log *logrus.Logger) *Switcher {
	return &Switcher{
		provider: provider,
		session:  session,
		bus:      bus,
		log:      log.WithField("component", "switcher"),
		state:    SwitchIdle,
	}
}

func (s *Switcher) State() SwitchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SwitchTo moves the active session to target. Blocks until the provider
// reports the newly connected account or ctx is cancelled (cancellation is a
// user rejection, not a defect). A mismatched account parks the coordinator
// in a retryable state; see RetrySwitch.
func (s *Switcher) SwitchTo(ctx context.Context, target string) (*SwitchResult, error) {
	target = utils.CanonicalAddress(target)

	s.mu.Lock()
	if s.state != SwitchIdle {
		s.mu.Unlock()
		return nil, wrapErrors.Newf(wrapErrors.CodeAlreadySwitching, "switch to",
			"switch already in state %s", s.state)
	}
	if !s.session.Connected() {
		s.mu.Unlock()
		return nil, wrapErrors.New(wrapErrors.CodeNoSession, "switch to")
	}
	if !s.session.Owns(target) {
		s.mu.Unlock()
		return nil, wrapErrors.Newf(wrapErrors.CodeUnknownIdentity, "switch to",
			"%s is not part of the active identity", target)
	}
	if err := s.session.BeginSwitch(target); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	waitCtx, cancel := context.WithCancel(ctx)
	s.state = SwitchDisconnecting
	s.target = target
	s.prior = s.session.ActiveAddress()
	s.cancelWait = cancel
	s.mu.Unlock()

	// Reports buffered before this attempt describe the old connection, not
	// the switch; verification must only ever see reports newer than this
	// point.
	s.drainAccountChanges()

	// The provider owes us an acknowledgment; disconnect is never assumed
	// instantaneous.
	if err := s.provider.Disconnect(waitCtx); err != nil {
		if errors.Is(err, chain.ErrUserRejected) || waitCtx.Err() != nil {
			return s.rejected("disconnect rejected")
		}
		return s.failed("provider disconnect", err)
	}

	s.setState(SwitchAwaitingConnect)
	return s.awaitConnect(waitCtx)
}

// RetrySwitch re-enters the verification wait after a mismatch, without
// another disconnect round-trip.
func (s *Switcher) RetrySwitch(ctx context.Context) (*SwitchResult, error) {
	s.mu.Lock()
	if s.state != SwitchMismatched {
		s.mu.Unlock()
		return nil, wrapErrors.Newf(wrapErrors.CodeNotAwaitingConnection, "retry switch",
			"coordinator is %s, not mismatched", s.state)
	}
	waitCtx, cancel := context.WithCancel(ctx)
	s.state = SwitchAwaitingConnect
	s.cancelWait = cancel
	s.mu.Unlock()

	return s.awaitConnect(waitCtx)
}

// CancelSwitch is the explicit user cancellation, treated as Rejected.
func (s *Switcher) CancelSwitch() (*SwitchResult, error) {
	s.mu.Lock()
	switch s.state {
	case SwitchIdle:
		s.mu.Unlock()
		return &SwitchResult{State: SwitchIdle, ActiveAddress: s.session.ActiveAddress()}, nil
	case SwitchMismatched:
		// No wait in flight; resolve the rejection directly.
		s.mu.Unlock()
		return s.rejected("cancelled")
	default:
		cancel := s.cancelWait
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		// The in-flight SwitchTo/RetrySwitch observes the cancellation and
		// runs the rejection path itself.
		return &SwitchResult{State: SwitchRejected}, nil
	}
}

func (s *Switcher) drainAccountChanges() {
	changes := s.provider.AccountChanges()
	for {
		select {
		case <-changes:
		default:
			return
		}
	}
}

func (s *Switcher) awaitConnect(waitCtx context.Context) (*SwitchResult, error) {
	for {
		select {
		case <-waitCtx.Done():
			return s.rejected("cancelled while awaiting provider")
		case addr, ok := <-s.provider.AccountChanges():
			if !ok {
				return s.failed("provider account stream", errors.New("account change stream closed"))
			}
			if addr == "" {
				// Provider reporting its own disconnect; keep waiting.
				continue
			}
			return s.verify(addr)
		}
	}
}

func (s *Switcher) verify(connected string) (*SwitchResult, error) {
	s.setState(SwitchVerifying)
	connected = utils.CanonicalAddress(connected)

	s.mu.Lock()
	target := s.target
	s.mu.Unlock()

	if !utils.SameAddress(connected, target) {
		s.setState(SwitchMismatched)
		return &SwitchResult{State: SwitchMismatched, ConnectedAddress: connected},
			wrapErrors.Newf(wrapErrors.CodeSwitchMismatch, "verify address",
				"provider connected %s, expected %s", connected, target)
	}

	// Session commit is atomic with this transition: no observer sees a
	// half-updated address.
	s.session.CommitSwitch(target)
	s.setState(SwitchCommitted)
	s.bus.Publish(entity.EventSwitchCommitted, map[string]any{"active": target})
	s.log.WithField("active", target).Info("switch committed")

	s.reset()
	return &SwitchResult{State: SwitchCommitted, ActiveAddress: target}, nil
}

// rejected handles provider cancellation: attempt recovery back to the prior
// address, then report. Recovery failure is its own error domain, since the
// session may be left disconnected, and is never folded into the switch
// error.
func (s *Switcher) rejected(reason string) (*SwitchResult, error) {
	s.setState(SwitchRejected)

	s.mu.Lock()
	prior := s.prior
	s.mu.Unlock()

	defer func() {
		s.session.AbortSwitch()
		s.reset()
	}()

	recCtx, cancel := context.WithTimeout(context.Background(), recoveryTimeout)
	defer cancel()

	recovered, err := s.provider.Connect(recCtx)
	if err != nil || !utils.SameAddress(recovered, prior) {
		s.log.WithError(err).WithFields(logrus.Fields{
			"prior":     prior,
			"recovered": recovered,
		}).Error("recovery after rejected switch failed")
		s.bus.Publish(entity.EventSwitchFailed, map[string]any{"reason": "recovery_failed"})
		return &SwitchResult{State: SwitchRejected},
			wrapErrors.WrapWithCode(wrapErrors.CodeSwitchRecoveryFailed, "recover prior session",
				errors.New(reason))
	}

	s.bus.Publish(entity.EventSwitchFailed, map[string]any{"reason": reason})
	return &SwitchResult{State: SwitchRejected, ActiveAddress: prior},
		wrapErrors.Newf(wrapErrors.CodeSwitchRejected, "switch to", "%s", reason)
}

// failed handles fatal provider errors: no recovery attempt is useful, but
// the session must not be left stuck in switching.
func (s *Switcher) failed(op string, err error) (*SwitchResult, error) {
	s.log.WithError(err).Error("switch failed on provider error")
	s.bus.Publish(entity.EventSwitchFailed, map[string]any{"reason": "provider_error"})
	s.session.AbortSwitch()
	s.reset()
	return &SwitchResult{State: SwitchIdle},
		wrapErrors.WrapWithCode(wrapErrors.CodeProviderUnavailable, op, err)
}

func (s *Switcher) setState(state SwitchState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Switcher) reset() {
	s.mu.Lock()
	s.state = SwitchIdle
	s.target = ""
	s.prior = ""
	s.cancelWait = nil
	s.mu.Unlock()
}
