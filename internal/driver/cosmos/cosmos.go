// Package cosmos stores containers in Azure Cosmos DB for NoSQL.
package cosmos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/ravikumarmistry/quix/internal/driver"
	"github.com/ravikumarmistry/quix/pkg/logger"
)

// Database provisions containers in one Cosmos database.
type Database struct {
	db *azcosmos.DatabaseClient
}

func NewDatabase(db *azcosmos.DatabaseClient) *Database {
	return &Database{db: db}
}

func (d *Database) CreateContainerIfNotExists(ctx context.Context, props driver.ContainerProperties) (driver.Container, error) {
	if props.ID == "" {
		return nil, errors.New("cosmos: container id is required")
	}
	_, err := d.db.CreateContainer(ctx, azcosmos.ContainerProperties{
		ID: props.ID,
		PartitionKeyDefinition: azcosmos.PartitionKeyDefinition{
			Paths: []string{props.PartitionKeyPath},
		},
	}, nil)
	switch {
	case err == nil:
		logger.Infof("cosmos: created container %s (partition key %s)", props.ID, props.PartitionKeyPath)
	case hasStatus(err, http.StatusConflict):
		logger.Debugf("cosmos: container %s already exists", props.ID)
	default:
		return nil, fmt.Errorf("cosmos: create container %s: %w", props.ID, err)
	}

	c, err := d.db.NewContainer(props.ID)
	if err != nil {
		return nil, fmt.Errorf("cosmos: open container %s: %w", props.ID, err)
	}
	return &Container{id: props.ID, c: c}, nil
}

// Container adapts an azcosmos container client.
type Container struct {
	id string
	c  *azcosmos.ContainerClient
}

func (c *Container) ID() string { return c.id }

func (c *Container) CreateItem(ctx context.Context, pk driver.PartitionKey, item map[string]any) (map[string]any, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("cosmos: encode item: %w", err)
	}
	key, err := partitionKey(pk)
	if err != nil {
		return nil, err
	}
	resp, err := c.c.CreateItem(ctx, key, body, &azcosmos.ItemOptions{EnableContentResponseOnWrite: true})
	if err != nil {
		return nil, c.wrap("create", idOf(item), err)
	}
	return decode(resp.Value)
}

func (c *Container) ReadItem(ctx context.Context, pk driver.PartitionKey, id string) (map[string]any, error) {
	key, err := partitionKey(pk)
	if err != nil {
		return nil, err
	}
	resp, err := c.c.ReadItem(ctx, key, id, nil)
	if err != nil {
		return nil, c.wrap("read", id, err)
	}
	return decode(resp.Value)
}

func (c *Container) ReplaceItem(ctx context.Context, pk driver.PartitionKey, id string, item map[string]any) (map[string]any, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("cosmos: encode item: %w", err)
	}
	key, err := partitionKey(pk)
	if err != nil {
		return nil, err
	}
	resp, err := c.c.ReplaceItem(ctx, key, id, body, &azcosmos.ItemOptions{EnableContentResponseOnWrite: true})
	if err != nil {
		return nil, c.wrap("replace", id, err)
	}
	return decode(resp.Value)
}

func (c *Container) DeleteItem(ctx context.Context, pk driver.PartitionKey, id string) error {
	key, err := partitionKey(pk)
	if err != nil {
		return err
	}
	if _, err := c.c.DeleteItem(ctx, key, id, nil); err != nil {
		return c.wrap("delete", id, err)
	}
	return nil
}

// QueryItems executes the compiled statement and returns the first page the
// service produces. An undefined partition key queries across partitions.
func (c *Container) QueryItems(ctx context.Context, req driver.QueryRequest) (*driver.Page, error) {
	key := azcosmos.NewPartitionKey()
	if req.PartitionKey.Defined() {
		var err error
		if key, err = partitionKey(req.PartitionKey); err != nil {
			return nil, err
		}
	}

	opts := &azcosmos.QueryOptions{QueryParameters: parameters(req)}
	if req.PageSize > 0 {
		opts.PageSizeHint = int32(req.PageSize)
	}
	if req.ContinuationToken != "" {
		token := req.ContinuationToken
		opts.ContinuationToken = &token
	}

	pager := c.c.NewQueryItemsPager(queryText(req.Statement.Text), key, opts)
	if !pager.More() {
		return &driver.Page{Items: []map[string]any{}}, nil
	}
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("cosmos: query %s: %w", c.id, err)
	}

	page := &driver.Page{Items: make([]map[string]any, 0, len(resp.Items))}
	for _, raw := range resp.Items {
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, doc)
	}
	if resp.ContinuationToken != nil {
		page.ContinuationToken = *resp.ContinuationToken
	}
	return page, nil
}

func (c *Container) wrap(op, id string, err error) error {
	switch {
	case hasStatus(err, http.StatusNotFound):
		return fmt.Errorf("cosmos: %s %s/%s: %w", op, c.id, id, driver.ErrNotFound)
	case hasStatus(err, http.StatusConflict):
		return fmt.Errorf("cosmos: %s %s/%s: %w", op, c.id, id, driver.ErrConflict)
	}
	return fmt.Errorf("cosmos: %s %s/%s: %w", op, c.id, id, err)
}

var (
	quotedName  = regexp.MustCompile(`"(?:[^"\\]|\\.)*"`)
	placeholder = regexp.MustCompile(`"#([0-9]+)"`)
	inArray     = regexp.MustCompile(`\b(c(?:\.[A-Za-z_][A-Za-z0-9_]*|\["#[0-9]+"\])*) (NOT )?IN (@p[0-9]+)`)
)

// queryText rewrites membership tests against an array parameter, which
// Cosmos SQL does not accept after IN, into ARRAY_CONTAINS calls. Quoted
// field names are masked first so their contents are never rewritten.
// A negated test also requires the field, so a missing field is never
// reported as "not in" the array.
func queryText(text string) string {
	var names []string
	masked := quotedName.ReplaceAllStringFunc(text, func(s string) string {
		names = append(names, s)
		return `"#` + strconv.Itoa(len(names)-1) + `"`
	})

	masked = inArray.ReplaceAllStringFunc(masked, func(m string) string {
		sub := inArray.FindStringSubmatch(m)
		field, negated, param := sub[1], sub[2] != "", sub[3]
		if negated {
			return "(IS_DEFINED(" + field + ") AND NOT ARRAY_CONTAINS(" + param + ", " + field + "))"
		}
		return "ARRAY_CONTAINS(" + param + ", " + field + ")"
	})

	return placeholder.ReplaceAllStringFunc(masked, func(m string) string {
		i, _ := strconv.Atoi(placeholder.FindStringSubmatch(m)[1])
		return names[i]
	})
}

func parameters(req driver.QueryRequest) []azcosmos.QueryParameter {
	if len(req.Statement.Parameters) == 0 {
		return nil
	}
	out := make([]azcosmos.QueryParameter, 0, len(req.Statement.Parameters))
	for _, p := range req.Statement.Parameters {
		out = append(out, azcosmos.QueryParameter{Name: p.Name, Value: p.Value.Interface()})
	}
	return out
}

// partitionKey converts a defined key to its azcosmos form. Only scalar
// partition key values are supported by the service.
func partitionKey(pk driver.PartitionKey) (azcosmos.PartitionKey, error) {
	v, ok := pk.Value()
	if !ok {
		return azcosmos.PartitionKey{}, errors.New("cosmos: partition key required for point operations")
	}
	switch v := v.(type) {
	case nil:
		return azcosmos.NullPartitionKey, nil
	case string:
		return azcosmos.NewPartitionKeyString(v), nil
	case bool:
		return azcosmos.NewPartitionKeyBool(v), nil
	case float64:
		return azcosmos.NewPartitionKeyNumber(v), nil
	case float32:
		return azcosmos.NewPartitionKeyNumber(float64(v)), nil
	case int:
		return azcosmos.NewPartitionKeyNumber(float64(v)), nil
	case int32:
		return azcosmos.NewPartitionKeyNumber(float64(v)), nil
	case int64:
		return azcosmos.NewPartitionKeyNumber(float64(v)), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return azcosmos.PartitionKey{}, fmt.Errorf("cosmos: partition key %q: %w", v, err)
		}
		return azcosmos.NewPartitionKeyNumber(f), nil
	}
	return azcosmos.PartitionKey{}, fmt.Errorf("cosmos: unsupported partition key type %T", v)
}

func hasStatus(err error, status int) bool {
	var re *azcore.ResponseError
	return errors.As(err, &re) && re.StatusCode == status
}

func idOf(item map[string]any) string {
	s, _ := item["id"].(string)
	return s
}

// systemProperties are added to every item by the service.
var systemProperties = []string{"_rid", "_self", "_etag", "_attachments", "_ts"}

func decode(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("cosmos: decode item: %w", err)
	}
	for _, k := range systemProperties {
		delete(doc, k)
	}
	return doc, nil
}
