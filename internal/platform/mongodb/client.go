// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package mongodb provides the MongoDB client used by the document-backed
// session store.
package mongodb

import (
	stdctx "context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	connectTimeout = 5 * time.Second
	pingTimeout    = 2 * time.Second
	maxPoolSize    = 20
)

// NewClient connects to uri and verifies the primary is reachable.
//
// # Parameters
//   - context: Context for the initial ping.
//   - uri: A mongodb:// or mongodb+srv:// connection string.
//   - logger: Structured logger for connection events.
func NewClient(context stdctx.Context, uri string, logger *slog.Logger) (*mongo.Client, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(connectTimeout).
		SetMaxPoolSize(maxPoolSize)

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect failed: %w", err)
	}

	if err := Ping(context, client); err != nil {
		_ = client.Disconnect(context)
		return nil, err
	}

	logger.Info("mongodb_client_connected", slog.Int("max_pool_size", maxPoolSize))

	return client, nil
}

// Ping verifies that the primary node answers.
func Ping(context stdctx.Context, client *mongo.Client) error {
	pingCtx, cancel := stdctx.WithTimeout(context, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		return fmt.Errorf("mongodb: ping failed: %w", err)
	}

	return nil
}
