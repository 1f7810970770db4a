package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ravikumarmistry/quix/internal/config"
	"github.com/ravikumarmistry/quix/internal/driver"
	"github.com/ravikumarmistry/quix/internal/driver/cosmos"
	"github.com/ravikumarmistry/quix/internal/driver/memory"
	"github.com/ravikumarmistry/quix/internal/driver/mongodb"
	"github.com/ravikumarmistry/quix/pkg/logger"
)

// Backend is an opened storage driver.
type Backend struct {
	DB driver.Database
	// Ping reports whether the backend is reachable.
	Ping func(ctx context.Context) error
	// Close releases connections. It is safe to call on every driver.
	Close func(ctx context.Context) error
}

const (
	mongoAttempts = 5
	mongoBackoff  = time.Second
)

// Open connects the driver selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.Store.Driver {
	case config.DriverMemory, "":
		logger.Warnf("using in-memory store; documents are lost on restart")
		return &Backend{DB: memory.NewDatabase(), Ping: noop, Close: noop}, nil

	case config.DriverCosmos:
		db, err := ConnectCosmos(cfg.Cosmos.Endpoint, cfg.Cosmos.Key, cfg.Cosmos.Database)
		if err != nil {
			return nil, err
		}
		logger.Infof("using cosmos database %s at %s", cfg.Cosmos.Database, cfg.Cosmos.Endpoint)
		ping := func(ctx context.Context) error {
			_, err := db.Read(ctx, nil)
			return err
		}
		return &Backend{DB: cosmos.NewDatabase(db), Ping: ping, Close: noop}, nil

	case config.DriverMongoDB:
		client, err := connectMongoWithRetry(ctx, cfg.MongoDB, mongoAttempts, mongoBackoff)
		if err != nil {
			return nil, err
		}
		logger.Infof("using mongodb database %s", cfg.MongoDB.Database)
		return &Backend{
			DB:    mongodb.NewDatabase(client.Database(cfg.MongoDB.Database)),
			Ping:  func(ctx context.Context) error { return client.Ping(ctx, nil) },
			Close: client.Disconnect,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// connectMongoWithRetry tolerates the database starting after the service.
func connectMongoWithRetry(ctx context.Context, cfg config.MongoDBConfig, attempts int, backoff time.Duration) (*mongo.Client, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		client, err := ConnectMongo(ctx, cfg.URI, cfg.Timeout)
		if err == nil {
			return client, nil
		}
		lastErr = err
		logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, attempts, err)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("could not connect to MongoDB after %d attempts: %w", attempts, lastErr)
}
