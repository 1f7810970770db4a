package store

import (
	"context"
	"time"

	"github.com/ravikumarmistry/quix/internal/container"
	"github.com/ravikumarmistry/quix/internal/driver"
	"github.com/ravikumarmistry/quix/internal/entity"
	"github.com/ravikumarmistry/quix/internal/filter"
	"github.com/ravikumarmistry/quix/pkg/logger"
	"github.com/ravikumarmistry/quix/pkg/metrics"
)

// readMapPageSize bounds each page fetched while draining a ReadMap query.
const readMapPageSize = 100

// Engine is the Store backed by containers resolved through a Router.
// It holds no locks of its own; concurrent writes to one document are
// ordered by the backing store and the last write wins.
type Engine struct {
	router  *container.Router
	stamper entity.Stamper
	newID   func() string
}

type Option func(*Engine)

// WithStamper replaces the metadata stamper, mostly to pin the clock in tests.
func WithStamper(s entity.Stamper) Option {
	return func(e *Engine) { e.stamper = s }
}

// WithIDGenerator replaces the generator used when Create gets no id.
func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

func New(router *container.Router, opts ...Option) *Engine {
	e := &Engine{
		router:  router,
		stamper: entity.NewStamper(),
		newID:   entity.NewID,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

var _ Store = (*Engine)(nil)

// Create stamps and writes a new document. An empty id is generated.
func (e *Engine) Create(ctx context.Context, entityType, id string, doc entity.Document) (out entity.Document, err error) {
	defer observe("create", time.Now(), &err)

	if entityType == "" {
		return nil, required("entityType")
	}
	if doc == nil {
		return nil, required("document")
	}
	if id == "" {
		id = e.newID()
	}

	cfg := e.router.Config(entityType)
	stamped := e.stamper.Create(entityType, id, doc)
	pk, err := partitionKeyOf(cfg, stamped)
	if err != nil {
		return nil, err
	}

	h, err := e.router.Resolve(ctx, entityType)
	if err != nil {
		return nil, err
	}
	created, err := h.Container.CreateItem(ctx, pk, stamped)
	if err != nil {
		return nil, err
	}
	logger.Debugf("store: created %s/%s in %s", entityType, id, cfg.ContainerID)
	return entity.Document(created), nil
}

// Read returns the document or nil when it does not exist. Without a
// partition key hint the id is used for containers partitioned by id, and
// other containers are searched across partitions.
func (e *Engine) Read(ctx context.Context, entityType, id string, pk PartitionKey) (out entity.Document, err error) {
	defer observe("read", time.Now(), &err)

	if entityType == "" {
		return nil, required("entityType")
	}
	if id == "" {
		return nil, required("id")
	}

	h, err := e.router.Resolve(ctx, entityType)
	if err != nil {
		return nil, err
	}

	if !pk.Defined() {
		if !partitionedByID(h.Config) {
			return e.findByID(ctx, h, id)
		}
		pk = driver.NewPartitionKey(id)
	}

	item, err := h.Container.ReadItem(ctx, pk, id)
	if driver.IsNotFound(err) {
		logger.Debugf("store: %s/%s not found", entityType, id)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entity.Document(item), nil
}

// Replace overwrites an existing document. The partition key is taken from
// the stamped document. A missing document is an error wrapping ErrNotFound.
func (e *Engine) Replace(ctx context.Context, entityType, id string, doc entity.Document) (out entity.Document, err error) {
	defer observe("replace", time.Now(), &err)

	if entityType == "" {
		return nil, required("entityType")
	}
	if id == "" {
		return nil, required("id")
	}
	if doc == nil {
		return nil, required("document")
	}

	cfg := e.router.Config(entityType)
	stamped := e.stamper.Replace(entityType, id, doc)
	pk, err := partitionKeyOf(cfg, stamped)
	if err != nil {
		return nil, err
	}

	h, err := e.router.Resolve(ctx, entityType)
	if err != nil {
		return nil, err
	}
	replaced, err := h.Container.ReplaceItem(ctx, pk, id, stamped)
	if err != nil {
		return nil, err
	}
	logger.Debugf("store: replaced %s/%s", entityType, id)
	return entity.Document(replaced), nil
}

// Delete removes a document. A missing document is an error wrapping
// ErrNotFound. The partition key may only be omitted for containers
// partitioned by id.
func (e *Engine) Delete(ctx context.Context, entityType, id string, pk PartitionKey) (err error) {
	defer observe("delete", time.Now(), &err)

	if entityType == "" {
		return required("entityType")
	}
	if id == "" {
		return required("id")
	}

	cfg := e.router.Config(entityType)
	if !pk.Defined() {
		if !partitionedByID(cfg) {
			return &ValidationError{Field: "partitionKey", Reason: "is required for container " + cfg.ContainerID}
		}
		pk = driver.NewPartitionKey(id)
	}

	h, err := e.router.Resolve(ctx, entityType)
	if err != nil {
		return err
	}
	if err := h.Container.DeleteItem(ctx, pk, id); err != nil {
		return err
	}
	logger.Debugf("store: deleted %s/%s", entityType, id)
	return nil
}

// ReadMap fetches the given ids from one partition with a single query and
// returns the documents found keyed by id. Missing ids are left out.
func (e *Engine) ReadMap(ctx context.Context, entityType string, pk PartitionKey, ids []string) (out map[string]entity.Document, err error) {
	defer observe("read_map", time.Now(), &err)

	if entityType == "" {
		return nil, required("entityType")
	}
	if len(ids) == 0 {
		return nil, required("ids")
	}

	seen := make(map[string]struct{}, len(ids))
	values := make([]filter.Value, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		values = append(values, filter.String(id))
	}
	if len(values) == 0 {
		return nil, required("ids")
	}

	h, err := e.router.Resolve(ctx, entityType)
	if err != nil {
		return nil, err
	}

	idValues := filter.Array(values...)
	req := driver.QueryRequest{
		Statement:    idsStatement(idValues),
		Filter:       filter.Comparison{Field: entity.FieldID, Op: filter.OpIn, Value: idValues},
		PartitionKey: pk,
		PageSize:     readMapPageSize,
	}

	out = make(map[string]entity.Document, len(values))
	for {
		page, err := h.Container.QueryItems(ctx, req)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			doc := entity.Document(item)
			if _, wanted := seen[doc.ID()]; wanted {
				out[doc.ID()] = doc
			}
		}
		if page.ContinuationToken == "" {
			break
		}
		req.ContinuationToken = page.ContinuationToken
	}
	logger.Debugf("store: read map %s found %d of %d", entityType, len(out), len(values))
	return out, nil
}

// Query returns one page of documents matching q. Callers page by passing
// back the returned continuation token.
func (e *Engine) Query(ctx context.Context, entityType string, q filter.Query) (out *QueryResult, err error) {
	defer observe("query", time.Now(), &err)

	if entityType == "" {
		return nil, required("entityType")
	}

	stmt := filter.CompileQuery(q)
	h, err := e.router.Resolve(ctx, entityType)
	if err != nil {
		return nil, err
	}

	page, err := h.Container.QueryItems(ctx, driver.QueryRequest{
		Statement:         stmt,
		Filter:            q.Filter,
		Sort:              q.Sort,
		PageSize:          q.Limit,
		ContinuationToken: q.ContinuationToken,
	})
	if err != nil {
		return nil, err
	}

	res := &QueryResult{
		Items:             make([]entity.Document, 0, len(page.Items)),
		ContinuationToken: page.ContinuationToken,
	}
	for _, item := range page.Items {
		res.Items = append(res.Items, entity.Document(item))
	}
	logger.Debugf("store: query %s %q returned %d items", entityType, stmt.Text, len(res.Items))
	return res, nil
}

// idsStatement selects the documents whose id is one of ids. The array is
// bound as a single parameter, so membership is tested with ARRAY_CONTAINS.
func idsStatement(ids filter.Value) filter.Statement {
	return filter.Statement{
		Text:       "SELECT * FROM " + filter.Alias + " WHERE ARRAY_CONTAINS(@p0, " + filter.FieldPath(entity.FieldID) + ")",
		Parameters: []filter.Parameter{{Name: "@p0", Value: ids}},
	}
}

// findByID looks an id up across all partitions.
func (e *Engine) findByID(ctx context.Context, h *container.Handle, id string) (entity.Document, error) {
	q := filter.Query{Filter: filter.Comparison{Field: entity.FieldID, Op: filter.OpEq, Value: filter.String(id)}}
	req := driver.QueryRequest{
		Statement: filter.CompileQuery(q),
		Filter:    q.Filter,
		PageSize:  1,
	}
	for {
		page, err := h.Container.QueryItems(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(page.Items) > 0 {
			return entity.Document(page.Items[0]), nil
		}
		if page.ContinuationToken == "" {
			return nil, nil
		}
		req.ContinuationToken = page.ContinuationToken
	}
}

func partitionedByID(cfg container.Config) bool {
	return cfg.PartitionKeyField == entity.FieldID
}

// partitionKeyOf reads the container's partition key field from doc.
func partitionKeyOf(cfg container.Config, doc entity.Document) (PartitionKey, error) {
	v, ok := filter.Lookup(doc, cfg.PartitionKeyField)
	if !ok {
		return PartitionKey{}, &ValidationError{
			Field:  cfg.PartitionKeyField,
			Reason: "partition key of container " + cfg.ContainerID + " is missing from the document",
		}
	}
	return driver.NewPartitionKey(v), nil
}

func observe(op string, start time.Time, errp *error) {
	outcome := "ok"
	if err := *errp; err != nil {
		switch {
		case IsValidation(err):
			outcome = "invalid"
		case IsNotFound(err):
			outcome = "not_found"
		default:
			outcome = "error"
		}
	}
	metrics.StoreOperations.WithLabelValues(op, outcome).Inc()
	metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
