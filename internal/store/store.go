// Package store implements generic document CRUD and queries on top of a
// partitioned document database.
package store

import (
	"context"

	"github.com/ravikumarmistry/quix/internal/driver"
	"github.com/ravikumarmistry/quix/internal/entity"
	"github.com/ravikumarmistry/quix/internal/filter"
)

// PartitionKey is an optional partition key hint. The zero value means none.
type PartitionKey = driver.PartitionKey

// Key returns a partition key hint for v.
func Key(v any) PartitionKey { return driver.NewPartitionKey(v) }

// QueryResult is one page of a query.
type QueryResult struct {
	Items             []entity.Document `json:"items"`
	ContinuationToken string            `json:"continuationToken,omitempty"`
}

// Store defines the document operations used by the handler layer.
type Store interface {
	Create(ctx context.Context, entityType, id string, doc entity.Document) (entity.Document, error)
	// Read returns nil and no error when the document does not exist.
	Read(ctx context.Context, entityType, id string, pk PartitionKey) (entity.Document, error)
	Replace(ctx context.Context, entityType, id string, doc entity.Document) (entity.Document, error)
	Delete(ctx context.Context, entityType, id string, pk PartitionKey) error
	ReadMap(ctx context.Context, entityType string, pk PartitionKey, ids []string) (map[string]entity.Document, error)
	Query(ctx context.Context, entityType string, q filter.Query) (*QueryResult, error)
}
