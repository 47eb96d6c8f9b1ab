package repository

import (
	"context"
	"time"

	"github.com/paylinkd/walletlink_service/entity"
)

// LinkStore is the durable capability behind the wallet identity graph.
// Lookups return (nil, nil) for absent records; Delete is idempotent.
type LinkStore interface {
	Get(ctx context.Context, address string) (*entity.WalletLink, error)
	ListByParent(ctx context.Context, parent string) ([]*entity.WalletLink, error)
	Insert(ctx context.Context, link *entity.WalletLink) error
	Delete(ctx context.Context, address string) error
}

// PaymentStore is the durable capability behind payment requests. Records
// are append-only; the only mutation is the guarded Transition.
type PaymentStore interface {
	Insert(ctx context.Context, req *entity.PaymentRequest) error
	GetByID(ctx context.Context, id string) (*entity.PaymentRequest, error)
	ListByRequester(ctx context.Context, requester string) ([]*entity.PaymentRequest, error)
	ListPending(ctx context.Context) ([]*entity.PaymentRequest, error)
	ListDue(ctx context.Context, now time.Time) ([]*entity.PaymentRequest, error)
	// Transition applies a conditional status update: it succeeds only when
	// the record's current status equals from. A miss on an existing record
	// is a TransitionConflict, meaning another actor already resolved it.
	Transition(ctx context.Context, id string, from, to entity.PaymentStatus, patch *entity.SettlementPatch) error
}
