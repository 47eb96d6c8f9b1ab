package repository

import (
	"context"
	"sync"
	"time"

	"github.com/paylinkd/walletlink_service/entity"
	wrapErrors "github.com/paylinkd/walletlink_service/errors"
	"github.com/paylinkd/walletlink_service/utils"
)

// MemoryLinkStore is an in-memory LinkStore used to unit-test identity logic
// without a running Mongo instance.
type MemoryLinkStore struct {
	mu    sync.Mutex
	links map[string]entity.WalletLink
	err   error
}

func NewMemoryLinkStore() *MemoryLinkStore {
	return &MemoryLinkStore{links: make(map[string]entity.WalletLink)}
}

// WithError makes every subsequent call fail with err.
func (s *MemoryLinkStore) WithError(err error) *MemoryLinkStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

func (s *MemoryLinkStore) Get(_ context.Context, address string) (*entity.WalletLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	link, ok := s.links[utils.CanonicalAddress(address)]
	if !ok {
		return nil, nil
	}
	out := link
	return &out, nil
}

func (s *MemoryLinkStore) ListByParent(_ context.Context, parent string) ([]*entity.WalletLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	parent = utils.CanonicalAddress(parent)
	var out []*entity.WalletLink
	for _, link := range s.links {
		if link.ParentAddress == parent {
			l := link
			out = append(out, &l)
		}
	}
	return out, nil
}

func (s *MemoryLinkStore) Insert(_ context.Context, link *entity.WalletLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	addr := utils.CanonicalAddress(link.Address)
	if _, exists := s.links[addr]; exists {
		return wrapErrors.Newf(wrapErrors.CodeAlreadyLinked, "insert wallet link", "duplicate address %s", addr)
	}
	stored := *link
	stored.Address = addr
	s.links[addr] = stored
	return nil
}

func (s *MemoryLinkStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.links, utils.CanonicalAddress(address))
	return nil
}

// MemoryPaymentStore is an in-memory PaymentStore with the same conditional
// transition semantics as the Mongo implementation, so the watcher/sweeper
// race tests exercise the real guard behaviour.
type MemoryPaymentStore struct {
	mu       sync.Mutex
	requests map[string]entity.PaymentRequest
	err      error
}

func NewMemoryPaymentStore() *MemoryPaymentStore {
	return &MemoryPaymentStore{requests: make(map[string]entity.PaymentRequest)}
}

func (s *MemoryPaymentStore) WithError(err error) *MemoryPaymentStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

func (s *MemoryPaymentStore) Insert(_ context.Context, req *entity.PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.requests[req.ID] = *req
	return nil
}

func (s *MemoryPaymentStore) GetByID(_ context.Context, id string) (*entity.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	req, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	out := req
	return &out, nil
}

func (s *MemoryPaymentStore) ListByRequester(_ context.Context, requester string) ([]*entity.PaymentRequest, error) {
	requester = utils.CanonicalAddress(requester)
	return s.filter(func(req entity.PaymentRequest) bool {
		return req.RequesterAddress == requester
	})
}

func (s *MemoryPaymentStore) ListPending(_ context.Context) ([]*entity.PaymentRequest, error) {
	return s.filter(func(req entity.PaymentRequest) bool {
		return req.Status == entity.StatusPending
	})
}

func (s *MemoryPaymentStore) ListDue(_ context.Context, now time.Time) ([]*entity.PaymentRequest, error) {
	return s.filter(func(req entity.PaymentRequest) bool {
		return req.Status == entity.StatusPending && !req.ExpiresAt.After(now)
	})
}

func (s *MemoryPaymentStore) filter(keep func(entity.PaymentRequest) bool) ([]*entity.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []*entity.PaymentRequest
	for _, req := range s.requests {
		if keep(req) {
			r := req
			out = append(out, &r)
		}
	}
	return out, nil
}

func (s *MemoryPaymentStore) Transition(_ context.Context, id string, from, to entity.PaymentStatus, patch *entity.SettlementPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	req, ok := s.requests[id]
	if !ok {
		return wrapErrors.Newf(wrapErrors.CodeNotFound, "transition payment request", "request %s not found", id)
	}
	if req.Status != from {
		return wrapErrors.Newf(wrapErrors.CodeTransitionConflict, "transition payment request",
			"request %s is %s, expected %s", id, req.Status, from)
	}
	req.Status = to
	if patch != nil {
		req.PayerAddress = utils.CanonicalAddress(patch.PayerAddress)
		req.SettlementTxHash = patch.SettlementTxHash
		paidAt := patch.PaidAt
		req.PaidAt = &paidAt
	}
	s.requests[id] = req
	return nil
}
