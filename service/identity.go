package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paylinkd/walletlink_service/domain"
	"github.com/paylinkd/walletlink_service/entity"
	wrapErrors "github.com/paylinkd/walletlink_service/errors"
	"github.com/paylinkd/walletlink_service/repository"
	"github.com/paylinkd/walletlink_service/utils"
)

// IdentityService owns the wallet identity graph rules and the session
// resolution flow. The registry itself (repository.LinkStore) only persists;
// the cap, self-link, duplicate and ownership checks all live here.
type IdentityService struct {
	Links   repository.LinkStore
	Session *domain.Session
	Bus     *domain.Bus
	log     *logrus.Entry

	// linkMu serializes AddLink: the duplicate and cap checks must observe a
	// quiescent graph, and the store guards uniqueness per address only.
	linkMu sync.Mutex
}

func NewIdentityService(links repository.LinkStore, session *domain.Session, bus *domain.Bus, log *logrus.Logger) *IdentityService {
	return &IdentityService{
		Links:   links,
		Session: session,
		Bus:     bus,
		log:     log.WithField("component", "identity"),
	}
}

// Connect resolves a freshly connected address into a session identity.
// Idempotent: safe to re-run on every reconnect. A record whose shape would
// flip a primary into a sub-wallet (or vice versa) fails loudly with
// AmbiguousIdentity instead of guessing.
func (s *IdentityService) Connect(ctx context.Context, address string) (domain.SessionSnapshot, error) {
	addr := utils.CanonicalAddress(address)
	if addr == "" {
		return domain.SessionSnapshot{}, wrapErrors.New(wrapErrors.CodeInvalidAddress, "connect")
	}

	link, err := s.Links.Get(ctx, addr)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}

	switch {
	case link == nil:
		// Truly new: auto-becomes primary with an empty sub-wallet set.
		if err := s.PromoteToPrimary(ctx, addr); err != nil {
			return domain.SessionSnapshot{}, err
		}
		s.Session.Initialize(addr, addr, nil)

	case link.IsPrimary:
		if link.ParentAddress != "" {
			return domain.SessionSnapshot{}, wrapErrors.Newf(wrapErrors.CodeAmbiguousIdentity, "connect",
				"primary %s has parent %s", addr, link.ParentAddress)
		}
		linked, err := s.linkedAddresses(ctx, addr)
		if err != nil {
			return domain.SessionSnapshot{}, err
		}
		s.Session.Initialize(addr, addr, linked)

	default:
		if link.ParentAddress == "" {
			return domain.SessionSnapshot{}, wrapErrors.Newf(wrapErrors.CodeAmbiguousIdentity, "connect",
				"sub-wallet %s has no parent", addr)
		}
		parent, err := s.Links.Get(ctx, link.ParentAddress)
		if err != nil {
			return domain.SessionSnapshot{}, err
		}
		if parent == nil || !parent.IsPrimary {
			return domain.SessionSnapshot{}, wrapErrors.Newf(wrapErrors.CodeAmbiguousIdentity, "connect",
				"sub-wallet %s points at %s which is not a primary", addr, link.ParentAddress)
		}
		linked, err := s.linkedAddresses(ctx, parent.Address)
		if err != nil {
			return domain.SessionSnapshot{}, err
		}
		s.Session.Initialize(parent.Address, addr, linked)
	}

	s.log.WithFields(logrus.Fields{
		"address": addr,
		"primary": s.Session.PrimaryAddress(),
	}).Info("identity resolved")
	return s.Session.Snapshot(), nil
}

// Disconnect degrades to "no active identity". Never an error.
func (s *IdentityService) Disconnect() {
	s.Session.Teardown()
}

// ResolvePrimary answers whether address is itself a primary, climbing one
// level via the parent when it is a sub-wallet. (nil, nil) for unknown
// addresses.
func (s *IdentityService) ResolvePrimary(ctx context.Context, address string) (*entity.WalletLink, error) {
	link, err := s.Links.Get(ctx, address)
	if err != nil || link == nil {
		return nil, err
	}
	if link.IsPrimary {
		return link, nil
	}
	return s.Links.Get(ctx, link.ParentAddress)
}

// ListLinks returns the sub-wallets of a primary, at most entity.MaxSubWallets.
func (s *IdentityService) ListLinks(ctx context.Context, primaryAddress string) ([]*entity.WalletLink, error) {
	return s.Links.ListByParent(ctx, primaryAddress)
}

// AddLink attaches subAddress to primaryAddress after proving ownership: the
// signature must recover to subAddress itself. The verified attestation is
// persisted immutably on the link record.
func (s *IdentityService) AddLink(ctx context.Context, primaryAddress, subAddress, label, message string, signature []byte) (*entity.WalletLink, error) {
	primary := utils.CanonicalAddress(primaryAddress)
	sub := utils.CanonicalAddress(subAddress)

	if sub == primary {
		return nil, wrapErrors.Newf(wrapErrors.CodeSelfLink, "add link", "%s cannot link to itself", sub)
	}

	signer, err := domain.RecoverSigner(message, signature)
	if err != nil {
		return nil, err
	}
	if !utils.SameAddress(signer, sub) {
		return nil, wrapErrors.Newf(wrapErrors.CodeUnverifiedOwnership, "add link",
			"signature recovered %s, expected %s", signer, sub)
	}

	primaryLink, err := s.Links.Get(ctx, primary)
	if err != nil {
		return nil, err
	}
	if primaryLink == nil || !primaryLink.IsPrimary {
		return nil, wrapErrors.Newf(wrapErrors.CodeUnknownIdentity, "add link",
			"%s is not a known primary wallet", primary)
	}

	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	existing, err := s.Links.Get(ctx, sub)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, wrapErrors.Newf(wrapErrors.CodeAlreadyLinked, "add link",
			"%s already has a link record", sub)
	}

	siblings, err := s.Links.ListByParent(ctx, primary)
	if err != nil {
		return nil, err
	}
	if len(siblings) >= entity.MaxSubWallets {
		return nil, wrapErrors.Newf(wrapErrors.CodeLimitExceeded, "add link",
			"%s already has %d sub-wallets", primary, len(siblings))
	}

	link := &entity.WalletLink{
		Address:       sub,
		Label:         label,
		ParentAddress: primary,
		IsPrimary:     false,
		Attestation: &entity.SignedAttestation{
			Message:        message,
			Signature:      signature,
			SignerAddress:  signer,
			SubjectAddress: sub,
			Timestamp:      time.Now().UTC(),
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Links.Insert(ctx, link); err != nil {
		return nil, err
	}

	if s.Session.Owns(primary) {
		s.Session.AddLinked(sub)
	}
	s.Bus.Publish(entity.EventLinkAdded, map[string]any{
		"address": sub,
		"primary": primary,
	})
	return link, nil
}

// RemoveLink detaches a sub-wallet. Removing an absent link is a no-op so a
// double-click race never surfaces a spurious failure. Primaries cannot be
// removed this way.
func (s *IdentityService) RemoveLink(ctx context.Context, address string) error {
	addr := utils.CanonicalAddress(address)
	link, err := s.Links.Get(ctx, addr)
	if err != nil {
		return err
	}
	if link == nil {
		return nil
	}
	if link.IsPrimary {
		return wrapErrors.Newf(wrapErrors.CodeInvalidAddress, "remove link",
			"%s is a primary wallet", addr)
	}

	if err := s.Links.Delete(ctx, addr); err != nil {
		return err
	}
	s.Session.RemoveLinked(addr)
	s.Bus.Publish(entity.EventLinkRemoved, map[string]any{
		"address": addr,
		"primary": link.ParentAddress,
	})
	return nil
}

// PromoteToPrimary records a never-seen address as a fresh primary. Only
// reachable when the address has no existing record; it never reassigns an
// existing primary's children.
func (s *IdentityService) PromoteToPrimary(ctx context.Context, address string) error {
	addr := utils.CanonicalAddress(address)
	existing, err := s.Links.Get(ctx, addr)
	if err != nil {
		return err
	}
	if existing != nil {
		return wrapErrors.Newf(wrapErrors.CodeAmbiguousIdentity, "promote to primary",
			"%s already has a link record", addr)
	}
	return s.Links.Insert(ctx, &entity.WalletLink{
		Address:   addr,
		IsPrimary: true,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *IdentityService) linkedAddresses(ctx context.Context, primary string) ([]string, error) {
	links, err := s.Links.ListByParent(ctx, primary)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.Address)
	}
	return out, nil
}
