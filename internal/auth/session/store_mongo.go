// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/taibuivan/idgate/internal/platform/apperr"
)

// sessionCollection is the MongoDB collection holding sessions.
const sessionCollection = "sessions"

// sessionDocument is the BSON shape of a [Session].
type sessionDocument struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"user_id"`
	DeviceID     string    `bson:"device_id"`
	ProviderName string    `bson:"provider_name"`
	TokenHash    string    `bson:"token_hash"`
	IsActive     bool      `bson:"is_active"`
	ExpiresAt    time.Time `bson:"expires_at"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (document sessionDocument) toSession() *Session {
	return &Session{
		ID:           document.ID,
		UserID:       document.UserID,
		DeviceID:     document.DeviceID,
		ProviderName: document.ProviderName,
		TokenHash:    document.TokenHash,
		IsActive:     document.IsActive,
		ExpiresAt:    document.ExpiresAt,
		CreatedAt:    document.CreatedAt,
		UpdatedAt:    document.UpdatedAt,
	}
}

// MongoStore implements [Store] on a MongoDB collection.
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore creates a new MongoDB implementation of [Store].
func NewMongoStore(database *mongo.Database) *MongoStore {
	return &MongoStore{collection: database.Collection(sessionCollection)}
}

/*
EnsureIndexes creates the indexes the store relies on.

Description: (user_id, device_id) is unique; (user_id, provider_name) serves
provider purges; expires_at and updated_at serve the sweep.

Parameters:
  - context: context.Context

Returns:
  - error: Index creation failures
*/
func (store *MongoStore) EnsureIndexes(context context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "device_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("session_user_device_uq"),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "provider_name", Value: 1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		{Keys: bson.D{{Key: "updated_at", Value: 1}}},
	}

	if _, err := store.collection.Indexes().CreateMany(context, models); err != nil {
		return fmt.Errorf("mongo_session_store_indexes_failed: %w", err)
	}
	return nil
}

// Create implements [Store].
func (store *MongoStore) Create(context context.Context, session *Session) error {
	document := sessionDocument{
		ID:           session.ID,
		UserID:       session.UserID,
		DeviceID:     session.DeviceID,
		ProviderName: session.ProviderName,
		TokenHash:    session.TokenHash,
		IsActive:     session.IsActive,
		ExpiresAt:    session.ExpiresAt,
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
	}

	if _, err := store.collection.InsertOne(context, document); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			conflict := apperr.Conflict("Session already exists")
			conflict.Cause = err
			return conflict
		}
		return fmt.Errorf("mongo_session_store_create_failed: %w", err)
	}
	return nil
}

// Find implements [Store].
func (store *MongoStore) Find(context context.Context, userID, deviceID string) (*Session, error) {
	filter := bson.D{{Key: "user_id", Value: userID}, {Key: "device_id", Value: deviceID}}

	var document sessionDocument
	if err := store.collection.FindOne(context, filter).Decode(&document); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("mongo_session_store_find_failed: %w", err)
	}

	return document.toSession(), nil
}

// SwapToken implements [Store] with a filtered single-document update.
func (store *MongoStore) SwapToken(context context.Context, id, currentHash, nextHash string, expiresAt time.Time) (bool, error) {
	filter := bson.D{
		{Key: "_id", Value: id},
		{Key: "token_hash", Value: currentHash},
		{Key: "is_active", Value: true},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "token_hash", Value: nextHash},
		{Key: "expires_at", Value: expiresAt},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}

	result, err := store.collection.UpdateOne(context, filter, update)
	if err != nil {
		return false, fmt.Errorf("mongo_session_store_swap_failed: %w", err)
	}

	return result.MatchedCount == 1, nil
}

// Delete implements [Store].
func (store *MongoStore) Delete(context context.Context, userID, deviceID string) (bool, error) {
	filter := bson.D{{Key: "user_id", Value: userID}, {Key: "device_id", Value: deviceID}}

	result, err := store.collection.DeleteOne(context, filter)
	if err != nil {
		return false, fmt.Errorf("mongo_session_store_delete_failed: %w", err)
	}

	return result.DeletedCount > 0, nil
}

// DeleteByProvider implements [Store].
func (store *MongoStore) DeleteByProvider(context context.Context, userID, providerName string) (int64, error) {
	filter := bson.D{{Key: "user_id", Value: userID}, {Key: "provider_name", Value: providerName}}
	return store.deleteMany(context, filter, "delete_provider")
}

// DeleteExpired implements [Store].
func (store *MongoStore) DeleteExpired(context context.Context, now time.Time) (int64, error) {
	filter := bson.D{{Key: "expires_at", Value: bson.D{{Key: "$lte", Value: now}}}}
	return store.deleteMany(context, filter, "delete_expired")
}

// DeleteIdle implements [Store].
func (store *MongoStore) DeleteIdle(context context.Context, before time.Time) (int64, error) {
	filter := bson.D{{Key: "updated_at", Value: bson.D{{Key: "$lt", Value: before}}}}
	return store.deleteMany(context, filter, "delete_idle")
}

func (store *MongoStore) deleteMany(context context.Context, filter bson.D, operation string) (int64, error) {
	result, err := store.collection.DeleteMany(context, filter)
	if err != nil {
		return 0, fmt.Errorf("mongo_session_store_%s_failed: %w", operation, err)
	}
	return result.DeletedCount, nil
}
