/*
address → unique index
parent_address → secondary index for sub-wallet listing
*/
package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/paylinkd/walletlink_service/db"
	"github.com/paylinkd/walletlink_service/entity"
	wrapErrors "github.com/paylinkd/walletlink_service/errors"
	"github.com/paylinkd/walletlink_service/utils"
)

type LinkRepo struct {
	col *mongo.Collection
}

func NewLinkRepo() *LinkRepo {
	return &LinkRepo{col: db.MongoDB.LinkColl}
}

func (r *LinkRepo) Get(ctx context.Context, address string) (*entity.WalletLink, error) {
	var link entity.WalletLink
	err := r.col.FindOne(ctx, bson.M{"address": utils.CanonicalAddress(address)}).Decode(&link)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeStoreUnavailable, "get wallet link", err)
	}
	return &link, nil
}

func (r *LinkRepo) ListByParent(ctx context.Context, parent string) ([]*entity.WalletLink, error) {
	cur, err := r.col.Find(ctx, bson.M{"parent_address": utils.CanonicalAddress(parent)})
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeStoreUnavailable, "list wallet links", err)
	}
	defer cur.Close(ctx)

	var out []*entity.WalletLink
	for cur.Next(ctx) {
		var link entity.WalletLink
		if err := cur.Decode(&link); err == nil {
			out = append(out, &link)
		}
	}
	return out, nil
}

func (r *LinkRepo) Insert(ctx context.Context, link *entity.WalletLink) error {
	_, err := r.col.InsertOne(ctx, link)
	if mongo.IsDuplicateKeyError(err) {
		return wrapErrors.WrapWithCode(wrapErrors.CodeAlreadyLinked, "insert wallet link", err)
	}
	return wrapErrors.WrapWithCode(wrapErrors.CodeStoreUnavailable, "insert wallet link", err)
}

// Delete is a no-op for absent records: a double-click race at the UI must
// not surface a spurious failure.
func (r *LinkRepo) Delete(ctx context.Context, address string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"address": utils.CanonicalAddress(address)})
	return wrapErrors.WrapWithCode(wrapErrors.CodeStoreUnavailable, "delete wallet link", err)
}
