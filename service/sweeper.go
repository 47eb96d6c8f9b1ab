package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paylinkd/walletlink_service/domain"
	"github.com/paylinkd/walletlink_service/entity"
	wrapErrors "github.com/paylinkd/walletlink_service/errors"
	"github.com/paylinkd/walletlink_service/repository"
)

// ExpirationSweeper marks overdue pending requests expired on a fixed
// interval. Each record gets its own guarded transition; one bad record
// never halts the sweep of the others.
type ExpirationSweeper struct {
	store    repository.PaymentStore
	bus      *domain.Bus
	log      *logrus.Entry
	interval time.Duration
}

func NewExpirationSweeper(store repository.PaymentStore, bus *domain.Bus, interval time.Duration, log *logrus.Logger) *ExpirationSweeper {
	return &ExpirationSweeper{
		store:    store,
		bus:      bus,
		log:      log.WithField("component", "expiration_sweeper"),
		interval: interval,
	}
}

func (s *ExpirationSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce expires every due pending request it can. Conflicts mean the
// watcher (or a cancel) won first; those are skipped silently.
func (s *ExpirationSweeper) SweepOnce(ctx context.Context) {
	due, err := s.store.ListDue(ctx, time.Now().UTC())
	if err != nil {
		s.log.WithError(err).Error("could not list due requests")
		return
	}

	for _, req := range due {
		err := s.store.Transition(ctx, req.ID, entity.StatusPending, entity.StatusExpired, nil)
		switch {
		case err == nil:
			s.bus.Publish(entity.EventRequestExpired, map[string]any{"id": req.ID})
			s.log.WithField("request", req.ID).Info("payment request expired")
		case wrapErrors.Is(err, wrapErrors.CodeTransitionConflict),
			wrapErrors.Is(err, wrapErrors.CodeNotFound):
			// Already resolved by another actor.
		default:
			s.log.WithError(err).WithField("request", req.ID).Warn("expire transition failed, skipping")
		}
	}
}
