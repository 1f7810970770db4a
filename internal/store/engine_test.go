package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ravikumarmistry/quix/internal/container"
	"github.com/ravikumarmistry/quix/internal/driver"
	"github.com/ravikumarmistry/quix/internal/driver/memory"
	"github.com/ravikumarmistry/quix/internal/entity"
	"github.com/ravikumarmistry/quix/internal/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingDB wraps the memory database and records provisioning and queries.
type recordingDB struct {
	inner *memory.Database

	mu         sync.Mutex
	provisions int
	queries    []driver.QueryRequest
	failWith   error
}

func (d *recordingDB) CreateContainerIfNotExists(ctx context.Context, props driver.ContainerProperties) (driver.Container, error) {
	d.mu.Lock()
	d.provisions++
	d.mu.Unlock()
	c, err := d.inner.CreateContainerIfNotExists(ctx, props)
	if err != nil {
		return nil, err
	}
	return &recordingContainer{Container: c, db: d}, nil
}

type recordingContainer struct {
	driver.Container
	db *recordingDB
}

func (c *recordingContainer) QueryItems(ctx context.Context, req driver.QueryRequest) (*driver.Page, error) {
	c.db.mu.Lock()
	c.db.queries = append(c.db.queries, req)
	fail := c.db.failWith
	c.db.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return c.Container.QueryItems(ctx, req)
}

type fixture struct {
	engine *Engine
	db     *recordingDB
	clock  *clock
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now advances one second per call so every stamp is distinct.
func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := container.NewRegistry(
		container.Config{EntityName: "order", ContainerID: "orders", PartitionKeyField: "tenantId"},
	)
	require.NoError(t, err)

	db := &recordingDB{inner: memory.NewDatabase()}
	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	n := 0
	e := New(container.NewRouter(db, reg),
		WithStamper(entity.Stamper{Now: clk.Now}),
		WithIDGenerator(func() string { n++; return "gen-" + string(rune('0'+n)) }),
	)
	return &fixture{engine: e, db: db, clock: clk}
}

func TestCreateThenReadReturnsStampedDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, "customer", "c1", entity.Document{"name": "Ada", "age": 36.0})
	require.NoError(t, err)
	require.Equal(t, entity.Document{
		"id":         "c1",
		"entityName": "customer",
		"name":       "Ada",
		"age":        36.0,
		"createdAt":  "2024-03-01T12:00:01.0000000Z",
		"updatedAt":  "2024-03-01T12:00:01.0000000Z",
	}, created)

	got, err := f.engine.Read(ctx, "customer", "c1", PartitionKey{})
	require.NoError(t, err)
	require.Equal(t, created, got)
}

func TestCreateGeneratesID(t *testing.T) {
	f := newFixture(t)
	created, err := f.engine.Create(context.Background(), "customer", "", entity.Document{"name": "Bo"})
	require.NoError(t, err)
	require.Equal(t, "gen-1", created.ID())
}

func TestCreateOverwritesCallerReservedFields(t *testing.T) {
	f := newFixture(t)
	created, err := f.engine.Create(context.Background(), "customer", "c1", entity.Document{"id": "other", "entityName": "x"})
	require.NoError(t, err)
	require.Equal(t, "c1", created.ID())
	require.Equal(t, "customer", created.EntityName())
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Create(ctx, "customer", "c1", entity.Document{})
	require.NoError(t, err)
	_, err = f.engine.Create(ctx, "customer", "c1", entity.Document{})
	require.ErrorIs(t, err, driver.ErrConflict)
}

func TestDeleteThenReadIsAbsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Create(ctx, "customer", "c1", entity.Document{"name": "Ada"})
	require.NoError(t, err)

	require.NoError(t, f.engine.Delete(ctx, "customer", "c1", PartitionKey{}))

	got, err := f.engine.Read(ctx, "customer", "c1", PartitionKey{})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestDeleteAndReplaceMissingAreNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.engine.Delete(ctx, "customer", "ghost", PartitionKey{})
	require.True(t, IsNotFound(err))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.Replace(ctx, "customer", "ghost", entity.Document{"name": "x"})
	require.True(t, IsNotFound(err))

	got, err := f.engine.Read(ctx, "customer", "ghost", PartitionKey{})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestReplaceRestampsAndKeepsSuppliedCreatedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.engine.Create(ctx, "customer", "c1", entity.Document{"name": "Ada"})
	require.NoError(t, err)

	next := created.Clone()
	next["name"] = "Ada L."
	replaced, err := f.engine.Replace(ctx, "customer", "c1", next)
	require.NoError(t, err)
	require.Equal(t, created["createdAt"], replaced["createdAt"])
	require.Equal(t, "2024-03-01T12:00:02.0000000Z", replaced["updatedAt"])
	require.Equal(t, "Ada L.", replaced["name"])

	dropped, err := f.engine.Replace(ctx, "customer", "c1", entity.Document{"name": "no created"})
	require.NoError(t, err)
	require.NotContains(t, dropped, "createdAt")
}

func TestReplaceLastWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Create(ctx, "customer", "c1", entity.Document{"n": 0.0})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.engine.Replace(ctx, "customer", "c1", entity.Document{"n": float64(i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := f.engine.Read(ctx, "customer", "c1", PartitionKey{})
	require.NoError(t, err)
	require.Contains(t, []any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0, 8.0}, got["n"])
}

func TestValidationHappensBeforeStoreAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	checks := []struct {
		name string
		call func() error
	}{
		{"create without type", func() error { _, err := f.engine.Create(ctx, "", "x", entity.Document{}); return err }},
		{"create without document", func() error { _, err := f.engine.Create(ctx, "customer", "x", nil); return err }},
		{"create without partition key", func() error {
			_, err := f.engine.Create(ctx, "order", "o1", entity.Document{"total": 1.0})
			return err
		}},
		{"read without id", func() error { _, err := f.engine.Read(ctx, "customer", "", PartitionKey{}); return err }},
		{"replace without document", func() error { _, err := f.engine.Replace(ctx, "customer", "x", nil); return err }},
		{"replace without id", func() error { _, err := f.engine.Replace(ctx, "customer", "", entity.Document{}); return err }},
		{"delete without id", func() error { return f.engine.Delete(ctx, "customer", "", PartitionKey{}) }},
		{"delete without required partition key", func() error { return f.engine.Delete(ctx, "order", "o1", PartitionKey{}) }},
		{"read map without ids", func() error { _, err := f.engine.ReadMap(ctx, "customer", PartitionKey{}, nil); return err }},
		{"read map with empty ids", func() error {
			_, err := f.engine.ReadMap(ctx, "customer", PartitionKey{}, []string{""})
			return err
		}},
		{"query without type", func() error { _, err := f.engine.Query(ctx, "", filter.Query{}); return err }},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			err := c.call()
			require.Error(t, err)
			require.True(t, IsValidation(err), "got %v", err)
		})
	}
	require.Zero(t, f.db.provisions)
}

func TestPartitionedContainer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Create(ctx, "order", "o1", entity.Document{"tenantId": "t1", "total": 5.0})
	require.NoError(t, err)
	_, err = f.engine.Create(ctx, "order", "o2", entity.Document{"tenantId": "t2", "total": 7.0})
	require.NoError(t, err)

	got, err := f.engine.Read(ctx, "order", "o1", Key("t1"))
	require.NoError(t, err)
	require.Equal(t, 5.0, got["total"])

	got, err = f.engine.Read(ctx, "order", "o1", Key("t2"))
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = f.engine.Read(ctx, "order", "o2", PartitionKey{})
	require.NoError(t, err)
	require.Equal(t, 7.0, got["total"])

	_, err = f.engine.Replace(ctx, "order", "o1", entity.Document{"total": 6.0})
	require.True(t, IsValidation(err))

	require.NoError(t, f.engine.Delete(ctx, "order", "o1", Key("t1")))
	got, err = f.engine.Read(ctx, "order", "o1", PartitionKey{})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestReadMapReturnsOnlyFoundIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"o1", "o2"} {
		_, err := f.engine.Create(ctx, "order", id, entity.Document{"tenantId": "t1"})
		require.NoError(t, err)
	}
	_, err := f.engine.Create(ctx, "order", "o9", entity.Document{"tenantId": "t2"})
	require.NoError(t, err)

	got, err := f.engine.ReadMap(ctx, "order", Key("t1"), []string{"o1", "o2", "o3", "o9"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Contains(t, got, "o1")
	require.Contains(t, got, "o2")

	require.Len(t, f.db.queries, 1)
	req := f.db.queries[0]
	require.Equal(t, "SELECT * FROM c WHERE ARRAY_CONTAINS(@p0, c.id)", req.Statement.Text)
	require.Equal(t, []filter.Parameter{{Name: "@p0", Value: filter.Array(
		filter.String("o1"), filter.String("o2"), filter.String("o3"), filter.String("o9"),
	)}}, req.Statement.Parameters)
	require.Equal(t, Key("t1"), req.PartitionKey)
	require.Equal(t, filter.Comparison{Field: "id", Op: filter.OpIn, Value: filter.Array(
		filter.String("o1"), filter.String("o2"), filter.String("o3"), filter.String("o9"),
	)}, req.Filter)
}

func TestQueryReturnsOnePage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, status := range []string{"active", "pending", "active", "closed", "active"} {
		_, err := f.engine.Create(ctx, "customer", "c"+string(rune('1'+i)), entity.Document{"status": status, "rank": float64(i)})
		require.NoError(t, err)
	}

	var q filter.Query
	require.NoError(t, q.UnmarshalJSON([]byte(`{"filter":{"status":"active"},"sort":["-rank"],"limit":2}`)))

	page, err := f.engine.Query(ctx, "customer", q)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, "c5", page.Items[0].ID())
	require.Equal(t, "c3", page.Items[1].ID())
	require.NotEmpty(t, page.ContinuationToken)

	last := f.db.queries[len(f.db.queries)-1]
	require.Equal(t, "SELECT * FROM c WHERE c.status = @p0 ORDER BY c.rank DESC", last.Statement.Text)
	require.Equal(t, 2, last.PageSize)

	q.ContinuationToken = page.ContinuationToken
	page, err = f.engine.Query(ctx, "customer", q)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "c1", page.Items[0].ID())
	require.Empty(t, page.ContinuationToken)
}

func TestQueryWithoutFilterSelectsAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Create(ctx, "customer", "c1", entity.Document{})
	require.NoError(t, err)

	page, err := f.engine.Query(ctx, "customer", filter.Query{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "SELECT * FROM c", f.db.queries[0].Statement.Text)
}

func TestDriverErrorsPropagate(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("throttled")
	f.db.failWith = boom

	_, err := f.engine.Query(context.Background(), "customer", filter.Query{})
	require.ErrorIs(t, err, boom)

	_, err = f.engine.ReadMap(context.Background(), "customer", PartitionKey{}, []string{"a"})
	require.ErrorIs(t, err, boom)
}

func TestRouterProvisionsOncePerType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := f.engine.Create(ctx, "customer", id, entity.Document{})
		require.NoError(t, err)
	}
	require.Equal(t, 1, f.db.provisions)
	require.Equal(t, []string{"customer"}, f.db.inner.ContainerIDs())
}
