package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/paylinkd/walletlink_service/db"
	"github.com/paylinkd/walletlink_service/entity"
	wrapErrors "github.com/paylinkd/walletlink_service/errors"
	"github.com/paylinkd/walletlink_service/utils"
)

type PaymentRepo struct {
	col *mongo.Collection
}

func NewPaymentRepo() *PaymentRepo {
	return &PaymentRepo{col: db.MongoDB.RequestColl}
}

func (r *PaymentRepo) Insert(ctx context.Context, req *entity.PaymentRequest) error {
	_, err := r.col.InsertOne(ctx, req)
	return wrapErrors.WrapWithCode(wrapErrors.CodeStoreUnavailable, "insert payment request", err)
}

func (r *PaymentRepo) GetByID(ctx context.Context, id string) (*entity.PaymentRequest, error) {
	var req entity.PaymentRequest
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeStoreUnavailable, "get payment request", err)
	}
	return &req, nil
}

func (r *PaymentRepo) ListByRequester(ctx context.Context, requester string) ([]*entity.PaymentRequest, error) {
	return r.list(ctx, bson.M{"requester_address": utils.CanonicalAddress(requester)})
}

func (r *PaymentRepo) ListPending(ctx context.Context) ([]*entity.PaymentRequest, error) {
	return r.list(ctx, bson.M{"status": entity.StatusPending})
}

func (r *PaymentRepo) ListDue(ctx context.Context, now time.Time) ([]*entity.PaymentRequest, error) {
	return r.list(ctx, bson.M{
		"status":     entity.StatusPending,
		"expires_at": bson.M{"$lte": now},
	})
}

func (r *PaymentRepo) list(ctx context.Context, filter bson.M) ([]*entity.PaymentRequest, error) {
	cur, err := r.col.Find(ctx, filter)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeStoreUnavailable, "list payment requests", err)
	}
	defer cur.Close(ctx)

	var out []*entity.PaymentRequest
	for cur.Next(ctx) {
		var req entity.PaymentRequest
		if err := cur.Decode(&req); err == nil {
			out = append(out, &req)
		}
	}
	return out, nil
}

// Transition is the optimistic concurrency guard: one conditional update,
// atomic at the store. The filter carries the expected prior status, so only
// one of watcher/sweeper/cancel can win a given transition.
func (r *PaymentRepo) Transition(ctx context.Context, id string, from, to entity.PaymentStatus, patch *entity.SettlementPatch) error {
	set := bson.M{"status": to}
	if patch != nil {
		set["payer_address"] = utils.CanonicalAddress(patch.PayerAddress)
		set["settlement_tx_hash"] = patch.SettlementTxHash
		set["paid_at"] = patch.PaidAt
	}

	res := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": set},
	)
	err := res.Err()
	if err == nil {
		return nil
	}
	if err != mongo.ErrNoDocuments {
		return wrapErrors.WrapWithCode(wrapErrors.CodeStoreUnavailable, "transition payment request", err)
	}

	// Distinguish "someone else won" from "no such record".
	existing, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return getErr
	}
	if existing == nil {
		return wrapErrors.Newf(wrapErrors.CodeNotFound, "transition payment request", "request %s not found", id)
	}
	return wrapErrors.Newf(wrapErrors.CodeTransitionConflict, "transition payment request",
		"request %s is %s, expected %s", id, existing.Status, from)
}
