package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var MongoDB *MongoRepo

// InitMongo dials the store and installs the shared MongoRepo. Called once
// from main; tests never touch this.
func InitMongo(ctx context.Context, uri, dbName string) error {
	repo, err := NewMongoRepo(ctx, uri, dbName)
	if err != nil {
		return err
	}
	MongoDB = repo
	return nil
}

type MongoRepo struct {
	Client      *mongo.Client
	DB          *mongo.Database
	LinkColl    *mongo.Collection
	RequestColl *mongo.Collection
}

func NewMongoRepo(ctx context.Context, uri, dbName string) (*MongoRepo, error) {
	clientOpts := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, err
	}
	// ping
	ctx2, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx2, nil); err != nil {
		return nil, err
	}
	db := client.Database(dbName)
	return &MongoRepo{
		Client:      client,
		DB:          db,
		LinkColl:    db.Collection("wallet_links"),
		RequestColl: db.Collection("payment_requests"),
	}, nil
}

func (r *MongoRepo) Close(ctx context.Context) error {
	return r.Client.Disconnect(ctx)
}
