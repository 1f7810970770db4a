// Package driver defines the boundary between the storage engine and a
// partitioned document database. Adapters live in the subpackages.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ravikumarmistry/quix/internal/filter"
)

var (
	ErrNotFound = errors.New("item not found")
	ErrConflict = errors.New("item already exists")
)

// PartitionKey is the value that routes an item inside a container. The zero
// value is undefined and, for queries, means all partitions.
type PartitionKey struct {
	value   any
	defined bool
}

// NewPartitionKey returns a defined key. A nil value is a defined null key.
func NewPartitionKey(v any) PartitionKey {
	return PartitionKey{value: v, defined: true}
}

// Value returns the key value and whether it is defined.
func (pk PartitionKey) Value() (any, bool) { return pk.value, pk.defined }

func (pk PartitionKey) Defined() bool { return pk.defined }

func (pk PartitionKey) String() string {
	if !pk.defined {
		return "<undefined>"
	}
	return fmt.Sprint(pk.value)
}

// ContainerProperties describes a container to provision.
// PartitionKeyPath is a JSON path such as "/tenantId".
type ContainerProperties struct {
	ID               string
	PartitionKeyPath string
}

// Database provisions containers.
type Database interface {
	// CreateContainerIfNotExists is idempotent: an existing container is
	// returned as is.
	CreateContainerIfNotExists(ctx context.Context, props ContainerProperties) (Container, error)
}

// QueryRequest asks for one page of a query. Statement is the compiled SQL;
// Filter and Sort carry the same query for adapters without a SQL dialect.
type QueryRequest struct {
	Statement         filter.Statement
	Filter            filter.Node
	Sort              []filter.SortKey
	PartitionKey      PartitionKey
	PageSize          int
	ContinuationToken string
}

// Page is one page of query results. An empty ContinuationToken means there
// are no more pages.
type Page struct {
	Items             []map[string]any
	ContinuationToken string
}

// Container reads and writes items of a single container. Point operations
// address an item by id and partition key. Errors for missing items wrap
// ErrNotFound.
type Container interface {
	ID() string
	CreateItem(ctx context.Context, pk PartitionKey, item map[string]any) (map[string]any, error)
	ReadItem(ctx context.Context, pk PartitionKey, id string) (map[string]any, error)
	ReplaceItem(ctx context.Context, pk PartitionKey, id string, item map[string]any) (map[string]any, error)
	DeleteItem(ctx context.Context, pk PartitionKey, id string) error
	QueryItems(ctx context.Context, req QueryRequest) (*Page, error)
}

// IsNotFound reports whether err means the addressed item does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// PartitionKeyPath turns a dotted field name into a partition key path,
// e.g. "owner.id" becomes "/owner/id".
func PartitionKeyPath(field string) string {
	return "/" + strings.ReplaceAll(field, ".", "/")
}

// PartitionKeyField is the inverse of PartitionKeyPath.
func PartitionKeyField(path string) string {
	return strings.ReplaceAll(strings.TrimPrefix(path, "/"), "/", ".")
}
