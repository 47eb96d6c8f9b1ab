package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paylinkd/walletlink_service/chain"
	"github.com/paylinkd/walletlink_service/config"
	"github.com/paylinkd/walletlink_service/domain"
	"github.com/paylinkd/walletlink_service/entity"
	wrapErrors "github.com/paylinkd/walletlink_service/errors"
	"github.com/paylinkd/walletlink_service/repository"
	"github.com/paylinkd/walletlink_service/utils"
)

// SettlementWatcher detects the on-chain transfer that satisfies each open
// payment request. One watch goroutine per request, decoupled from any UI
// lifecycle; a watch dies the instant its request leaves pending. All status
// writes go through the store's conditional transition, so a conflict means
// someone else already resolved the request and is not an error.
type SettlementWatcher struct {
	store     repository.PaymentStore
	chainData chain.ChainData
	bus       *domain.Bus
	log       *logrus.Entry

	poll       time.Duration
	maxBackoff time.Duration

	mu      sync.Mutex
	root    context.Context
	watches map[string]context.CancelFunc
	queued  []*entity.PaymentRequest
	wg      sync.WaitGroup
}

func NewSettlementWatcher(store repository.PaymentStore, chainData chain.ChainData, bus *domain.Bus, cfg config.WatcherConfig, log *logrus.Logger) *SettlementWatcher {
	return &SettlementWatcher{
		store:      store,
		chainData:  chainData,
		bus:        bus,
		log:        log.WithField("component", "settlement_watcher"),
		poll:       cfg.PollInterval,
		maxBackoff: cfg.MaxBackoff,
		watches:    make(map[string]context.CancelFunc),
	}
}

// Run re-arms watches for every pending request already in the store (so
// settlement detection survives restarts), then serves new watches until ctx
// is cancelled.
func (w *SettlementWatcher) Run(ctx context.Context) error {
	w.mu.Lock()
	w.root = ctx
	queued := w.queued
	w.queued = nil
	w.mu.Unlock()

	pending, err := w.store.ListPending(ctx)
	if err != nil {
		w.log.WithError(err).Error("could not list pending requests at boot")
	}
	for _, req := range pending {
		w.Watch(req)
	}
	for _, req := range queued {
		w.Watch(req)
	}

	<-ctx.Done()
	w.wg.Wait()
	return ctx.Err()
}

// Watch arms settlement detection for one request. Idempotent per id.
func (w *SettlementWatcher) Watch(req *entity.PaymentRequest) {
	if req == nil || req.Status != entity.StatusPending {
		return
	}

	w.mu.Lock()
	if w.root == nil {
		w.queued = append(w.queued, req)
		w.mu.Unlock()
		return
	}
	if _, exists := w.watches[req.ID]; exists {
		w.mu.Unlock()
		return
	}
	watchCtx, cancel := context.WithCancel(w.root)
	w.watches[req.ID] = cancel
	w.wg.Add(1)
	w.mu.Unlock()

	go w.watchOne(watchCtx, *req)
}

// Watching reports whether a watch is currently armed for id.
func (w *SettlementWatcher) Watching(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.watches[id]
	return ok
}

func (w *SettlementWatcher) unwatch(id string) {
	w.mu.Lock()
	cancel, ok := w.watches[id]
	delete(w.watches, id)
	w.mu.Unlock()
	if ok {
		cancel()
	}
	w.wg.Done()
}

func (w *SettlementWatcher) watchOne(ctx context.Context, req entity.PaymentRequest) {
	defer w.unwatch(req.ID)
	log := w.log.WithField("request", req.ID)

	// Decimals come from the token contract, never assumed.
	decimals, ok := w.tokenDecimals(ctx, log, req.TokenAddress)
	if !ok {
		return
	}
	expected, err := utils.ScaleAmount(req.Amount, decimals)
	if err != nil {
		log.WithError(err).Error("stored amount does not scale to token precision")
		return
	}

	events, err := w.subscribe(ctx, req)
	if err != nil {
		return
	}

	expiry := time.NewTimer(time.Until(req.ExpiresAt))
	defer expiry.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-expiry.C:
			cur, err := w.store.GetByID(ctx, req.ID)
			if err == nil && (cur == nil || cur.Status != entity.StatusPending) {
				return
			}
			// Overdue but the sweeper has not won yet; keep watching until
			// the record actually leaves pending.
			expiry.Reset(w.poll)

		case evt, open := <-events:
			if !open {
				events, err = w.subscribe(ctx, req)
				if err != nil {
					return
				}
				continue
			}
			if !utils.SameAddress(evt.To, req.RequesterAddress) {
				// The subscription filter should guarantee this already.
				continue
			}
			if evt.Value == nil || evt.Value.Cmp(expected) != 0 {
				continue
			}
			if !w.confirmed(ctx, log, evt.TxHash) {
				continue
			}
			if done := w.settle(ctx, log, req.ID, evt); done {
				return
			}
		}
	}
}

func (w *SettlementWatcher) tokenDecimals(ctx context.Context, log *logrus.Entry, token string) (uint8, bool) {
	backoff := w.poll
	for {
		decimals, err := w.chainData.TokenDecimals(ctx, token)
		if err == nil {
			return decimals, true
		}
		log.WithError(err).Warn("token decimals lookup failed, retrying")
		select {
		case <-ctx.Done():
			return 0, false
		case <-time.After(backoff):
		}
		backoff = w.nextBackoff(backoff)
	}
}

func (w *SettlementWatcher) subscribe(ctx context.Context, req entity.PaymentRequest) (<-chan entity.TransferEvent, error) {
	backoff := w.poll
	for {
		events, err := w.chainData.SubscribeTransfers(ctx, req.TokenAddress, req.RequesterAddress)
		if err == nil {
			return events, nil
		}
		w.log.WithError(err).WithField("request", req.ID).Warn("transfer subscription failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = w.nextBackoff(backoff)
	}
}

// confirmed checks the transfer's receipt. Absence of confirmation is not
// evidence either way, so an unverifiable event is skipped, never settled.
func (w *SettlementWatcher) confirmed(ctx context.Context, log *logrus.Entry, txHash string) bool {
	for attempt := 0; attempt < 3; attempt++ {
		status, err := w.chainData.TransactionStatus(ctx, txHash)
		if err == nil {
			return status.State == entity.TxSuccess
		}
		log.WithError(err).WithField("tx", txHash).Warn("receipt lookup failed")
		select {
		case <-ctx.Done():
			return false
		case <-time.After(w.poll):
		}
	}
	return false
}

// settle attempts the guarded pending->paid transition. Returns true when
// the watch should stop: settled here, or already resolved by someone else.
func (w *SettlementWatcher) settle(ctx context.Context, log *logrus.Entry, id string, evt entity.TransferEvent) bool {
	patch := &entity.SettlementPatch{
		PayerAddress:     evt.From,
		SettlementTxHash: evt.TxHash,
		PaidAt:           time.Now().UTC(),
	}

	backoff := w.poll
	for {
		err := w.store.Transition(ctx, id, entity.StatusPending, entity.StatusPaid, patch)
		switch {
		case err == nil:
			w.bus.Publish(entity.EventRequestPaid, map[string]any{
				"id":    id,
				"payer": evt.From,
				"tx":    evt.TxHash,
			})
			log.WithField("tx", evt.TxHash).Info("payment request settled")
			return true
		case wrapErrors.Is(err, wrapErrors.CodeTransitionConflict):
			// Someone else won the race (e.g. the sweeper expired it).
			// Normal, not an error.
			return true
		case wrapErrors.Is(err, wrapErrors.CodeNotFound):
			return true
		default:
			log.WithError(err).Warn("settlement transition failed, retrying")
			select {
			case <-ctx.Done():
				return true
			case <-time.After(backoff):
			}
			backoff = w.nextBackoff(backoff)
		}
	}
}

func (w *SettlementWatcher) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > w.maxBackoff {
		next = w.maxBackoff
	}
	return next
}
