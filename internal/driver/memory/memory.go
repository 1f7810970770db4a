package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/ravikumarmistry/quix/internal/driver"
	"github.com/ravikumarmistry/quix/internal/entity"
	"github.com/ravikumarmistry/quix/internal/filter"
)

var ErrPartitionKeyRequired = errors.New("memory: partition key required for point operations")

// Database is an in-process document database used for development and
// tests. Items are stored as JSON so callers never share memory with it.
type Database struct {
	mu         sync.Mutex
	containers map[string]*Container
}

func NewDatabase() *Database {
	return &Database{containers: make(map[string]*Container)}
}

func (d *Database) CreateContainerIfNotExists(ctx context.Context, props driver.ContainerProperties) (driver.Container, error) {
	if props.ID == "" {
		return nil, errors.New("memory: container id is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.containers[props.ID]; ok {
		return c, nil
	}
	c := &Container{
		id:      props.ID,
		pkField: driver.PartitionKeyField(props.PartitionKeyPath),
		items:   make(map[string]*storedItem),
	}
	d.containers[props.ID] = c
	return c, nil
}

// ContainerIDs lists provisioned containers in name order.
func (d *Database) ContainerIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.containers))
	for id := range d.containers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type storedItem struct {
	seq uint64
	pk  filter.Value
	raw []byte
}

type Container struct {
	id      string
	pkField string

	mu    sync.RWMutex
	seq   uint64
	items map[string]*storedItem
}

func (c *Container) ID() string { return c.id }

func (c *Container) CreateItem(ctx context.Context, pk driver.PartitionKey, item map[string]any) (map[string]any, error) {
	id, raw, itemPK, err := c.encode(pk, item)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[id]; exists {
		return nil, fmt.Errorf("memory: create %s/%s: %w", c.id, id, driver.ErrConflict)
	}
	c.seq++
	c.items[id] = &storedItem{seq: c.seq, pk: itemPK, raw: raw}
	return decode(raw)
}

func (c *Container) ReadItem(ctx context.Context, pk driver.PartitionKey, id string) (map[string]any, error) {
	if !pk.Defined() {
		return nil, ErrPartitionKeyRequired
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[id]
	if !ok || !samePartition(it.pk, pk) {
		return nil, fmt.Errorf("memory: read %s/%s: %w", c.id, id, driver.ErrNotFound)
	}
	return decode(it.raw)
}

func (c *Container) ReplaceItem(ctx context.Context, pk driver.PartitionKey, id string, item map[string]any) (map[string]any, error) {
	itemID, raw, itemPK, err := c.encode(pk, item)
	if err != nil {
		return nil, err
	}
	if itemID != id {
		return nil, fmt.Errorf("memory: replace %s/%s: item id %q does not match", c.id, id, itemID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[id]
	if !ok || !samePartition(it.pk, pk) {
		return nil, fmt.Errorf("memory: replace %s/%s: %w", c.id, id, driver.ErrNotFound)
	}
	c.items[id] = &storedItem{seq: it.seq, pk: itemPK, raw: raw}
	return decode(raw)
}

func (c *Container) DeleteItem(ctx context.Context, pk driver.PartitionKey, id string) error {
	if !pk.Defined() {
		return ErrPartitionKeyRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[id]
	if !ok || !samePartition(it.pk, pk) {
		return fmt.Errorf("memory: delete %s/%s: %w", c.id, id, driver.ErrNotFound)
	}
	delete(c.items, id)
	return nil
}

// QueryItems evaluates the typed filter in-process. Continuation tokens are
// offsets into the ordered result.
func (c *Container) QueryItems(ctx context.Context, req driver.QueryRequest) (*driver.Page, error) {
	offset := 0
	if req.ContinuationToken != "" {
		n, err := strconv.Atoi(req.ContinuationToken)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("memory: invalid continuation token %q", req.ContinuationToken)
		}
		offset = n
	}

	c.mu.RLock()
	stored := make([]*storedItem, 0, len(c.items))
	for _, it := range c.items {
		if req.PartitionKey.Defined() && !samePartition(it.pk, req.PartitionKey) {
			continue
		}
		stored = append(stored, it)
	}
	c.mu.RUnlock()

	sort.Slice(stored, func(i, j int) bool { return stored[i].seq < stored[j].seq })

	matched := make([]map[string]any, 0, len(stored))
	for _, it := range stored {
		doc, err := decode(it.raw)
		if err != nil {
			return nil, err
		}
		if filter.Match(req.Filter, doc) {
			matched = append(matched, doc)
		}
	}
	filter.SortItems(matched, req.Sort)

	if offset > len(matched) {
		offset = len(matched)
	}
	end := len(matched)
	if req.PageSize > 0 && offset+req.PageSize < end {
		end = offset + req.PageSize
	}

	page := &driver.Page{Items: matched[offset:end]}
	if end < len(matched) {
		page.ContinuationToken = strconv.Itoa(end)
	}
	return page, nil
}

func (c *Container) encode(pk driver.PartitionKey, item map[string]any) (string, []byte, filter.Value, error) {
	id, _ := item[entity.FieldID].(string)
	if id == "" {
		return "", nil, filter.Value{}, fmt.Errorf("memory: item in %s has no string id", c.id)
	}
	if !pk.Defined() {
		return "", nil, filter.Value{}, ErrPartitionKeyRequired
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return "", nil, filter.Value{}, fmt.Errorf("memory: encode %s/%s: %w", c.id, id, err)
	}
	doc, err := decode(raw)
	if err != nil {
		return "", nil, filter.Value{}, err
	}

	v, _ := filter.Lookup(doc, c.pkField)
	itemPK := filter.FromAny(v)
	if !samePartition(itemPK, pk) {
		return "", nil, filter.Value{}, fmt.Errorf("memory: partition key %s does not match item %s/%s", pk, c.id, id)
	}
	return id, raw, itemPK, nil
}

func samePartition(stored filter.Value, pk driver.PartitionKey) bool {
	v, _ := pk.Value()
	return stored.Equal(filter.FromAny(v))
}

func decode(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("memory: decode item: %w", err)
	}
	return doc, nil
}
