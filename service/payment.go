package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/paylinkd/walletlink_service/chain"
	"github.com/paylinkd/walletlink_service/domain"
	"github.com/paylinkd/walletlink_service/entity"
	wrapErrors "github.com/paylinkd/walletlink_service/errors"
	"github.com/paylinkd/walletlink_service/repository"
	"github.com/paylinkd/walletlink_service/utils"
)

// CreateRequestSpec is the validated input for a new payment request.
type CreateRequestSpec struct {
	RequesterAddress string
	ChainID          int64
	TokenAddress     string
	Amount           string
	ExpiresAt        time.Time
}

type PaymentService struct {
	Store     repository.PaymentStore
	session   *domain.Session
	bus       *domain.Bus
	watcher   *SettlementWatcher
	chainData chain.ChainData
	log       *logrus.Entry
}

func NewPaymentService(store repository.PaymentStore, session *domain.Session, bus *domain.Bus, watcher *SettlementWatcher, chainData chain.ChainData, log *logrus.Logger) *PaymentService {
	return &PaymentService{
		Store:     store,
		session:   session,
		bus:       bus,
		watcher:   watcher,
		chainData: chainData,
		log:       log.WithField("component", "payment"),
	}
}

// Create validates and persists a new pending request, assigns its id and
// shareable link, and arms settlement watching for it.
func (s *PaymentService) Create(ctx context.Context, spec CreateRequestSpec) (*entity.PaymentRequest, error) {
	if !utils.IsPositiveAmount(spec.Amount) {
		return nil, wrapErrors.Newf(wrapErrors.CodeInvalidAmount, "create payment request",
			"amount %q is not a positive decimal", spec.Amount)
	}
	now := time.Now().UTC()
	if !spec.ExpiresAt.After(now) {
		return nil, wrapErrors.New(wrapErrors.CodeInvalidExpiry, "create payment request")
	}
	requester := utils.CanonicalAddress(spec.RequesterAddress)
	if !s.session.Owns(requester) {
		return nil, wrapErrors.Newf(wrapErrors.CodeUnknownIdentity, "create payment request",
			"%s is not part of the active identity", requester)
	}

	// An amount finer than the token's precision can never equal a transfer,
	// so the request would sit unpayable until it expires. A failed decimals
	// lookup skips the check; the watcher re-reads decimals with retries.
	if decimals, err := s.chainData.TokenDecimals(ctx, spec.TokenAddress); err == nil {
		if _, err := utils.ScaleAmount(spec.Amount, decimals); err != nil {
			return nil, wrapErrors.WrapWithCode(wrapErrors.CodeInvalidAmount, "create payment request", err)
		}
	}

	id := uuid.NewString()
	req := &entity.PaymentRequest{
		ID:               id,
		RequesterAddress: requester,
		ChainID:          spec.ChainID,
		TokenAddress:     utils.CanonicalAddress(spec.TokenAddress),
		Amount:           spec.Amount,
		Status:           entity.StatusPending,
		ShareLink:        utils.ShareLinkPrefix + id,
		CreatedAt:        now,
		ExpiresAt:        spec.ExpiresAt.UTC(),
	}
	if err := s.Store.Insert(ctx, req); err != nil {
		return nil, err
	}

	if s.watcher != nil {
		s.watcher.Watch(req)
	}
	s.log.WithFields(logrus.Fields{
		"id":        req.ID,
		"requester": requester,
		"amount":    req.Amount,
	}).Info("payment request created")
	return req, nil
}

// Cancel is the explicit user transition. Anything but pending is an
// InvalidTransition: paid, expired and cancelled are terminal.
func (s *PaymentService) Cancel(ctx context.Context, id string) error {
	err := s.Store.Transition(ctx, id, entity.StatusPending, entity.StatusCancelled, nil)
	if wrapErrors.Is(err, wrapErrors.CodeTransitionConflict) {
		return wrapErrors.WrapWithCode(wrapErrors.CodeInvalidTransition, "cancel payment request", err)
	}
	return err
}

func (s *PaymentService) Get(ctx context.Context, id string) (*entity.PaymentRequest, error) {
	req, err := s.Store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, wrapErrors.Newf(wrapErrors.CodeNotFound, "get payment request", "request %s not found", id)
	}
	return req, nil
}

// List returns the active identity's requests.
func (s *PaymentService) List(ctx context.Context) ([]*entity.PaymentRequest, error) {
	active := s.session.ActiveAddress()
	if active == "" {
		return nil, wrapErrors.New(wrapErrors.CodeNoSession, "list payment requests")
	}
	return s.Store.ListByRequester(ctx, active)
}
