package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravikumarmistry/quix/internal/container"
	"github.com/ravikumarmistry/quix/internal/driver/memory"
	"github.com/ravikumarmistry/quix/internal/export"
	"github.com/ravikumarmistry/quix/internal/filter"
	"github.com/ravikumarmistry/quix/internal/store"
)

type fakeExporter struct {
	entityType string
	query      filter.Query
}

func (f *fakeExporter) Export(ctx context.Context, entityType string, q filter.Query) (*export.Result, error) {
	f.entityType = entityType
	f.query = q
	if entityType == "broken" {
		return nil, errors.New("upload failed")
	}
	return &export.Result{Key: "exports/" + entityType + "/x.ndjson", Count: 3}, nil
}

func newRouter(t *testing.T, ex Exporter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg, err := container.NewRegistry(container.Config{EntityName: "order", ContainerID: "orders", PartitionKeyField: "tenantId"})
	require.NoError(t, err)
	engine := store.New(container.NewRouter(memory.NewDatabase(), reg))

	g := gin.New()
	NewEntityHandler(engine, ex).Register(g.Group("/api/v1"))
	return g
}

func do(g *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestEntityCRUD(t *testing.T) {
	g := newRouter(t, nil)

	// CREATE
	w := do(g, http.MethodPost, "/api/v1/entities/customer?id=c1", `{"name":"Ada","age":36}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode(t, w)
	assert.Equal(t, "c1", created["id"])
	assert.Equal(t, "customer", created["entityName"])
	assert.NotEmpty(t, created["createdAt"])
	assert.Equal(t, created["createdAt"], created["updatedAt"])

	// CREATE again is a conflict
	w = do(g, http.MethodPost, "/api/v1/entities/customer?id=c1", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	// GET
	w = do(g, http.MethodGet, "/api/v1/entities/customer/c1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ada", decode(t, w)["name"])

	// PUT keeps createdAt when sent back
	created["name"] = "Ada L."
	body, _ := json.Marshal(created)
	w = do(g, http.MethodPut, "/api/v1/entities/customer/c1", string(body))
	require.Equal(t, http.StatusOK, w.Code)
	replaced := decode(t, w)
	assert.Equal(t, "Ada L.", replaced["name"])
	assert.Equal(t, created["createdAt"], replaced["createdAt"])

	// DELETE
	w = do(g, http.MethodDelete, "/api/v1/entities/customer/c1", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	// GET after delete is 404, DELETE again is 404
	w = do(g, http.MethodGet, "/api/v1/entities/customer/c1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(g, http.MethodDelete, "/api/v1/entities/customer/c1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(g, http.MethodPut, "/api/v1/entities/customer/c1", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEntityCreateGeneratesID(t *testing.T) {
	g := newRouter(t, nil)
	w := do(g, http.MethodPost, "/api/v1/entities/customer", `{"name":"Bo"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, decode(t, w)["id"])
}

func TestEntityValidationErrors(t *testing.T) {
	g := newRouter(t, nil)

	w := do(g, http.MethodPost, "/api/v1/entities/customer", `null`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(g, http.MethodPost, "/api/v1/entities/customer", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(g, http.MethodPost, "/api/v1/entities/order", `{"total":1}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "tenantId", decode(t, w)["field"])

	w = do(g, http.MethodDelete, "/api/v1/entities/order/o1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(g, http.MethodGet, "/api/v1/entities/order/o1?pkJson=%7B", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(g, http.MethodPost, "/api/v1/entities/customer/batch", `{"ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(g, http.MethodPost, "/api/v1/entities/customer/query", `{"filter":[1]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEntityPartitionedReadAndBatch(t *testing.T) {
	g := newRouter(t, nil)
	for _, b := range []string{
		`{"id":"o1","tenantId":"t1","total":1}`,
		`{"id":"o2","tenantId":"t1","total":2}`,
		`{"id":"o3","tenantId":"t2","total":3}`,
	} {
		var doc map[string]any
		require.NoError(t, json.Unmarshal([]byte(b), &doc))
		w := do(g, http.MethodPost, "/api/v1/entities/order?id="+doc["id"].(string), b)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(g, http.MethodGet, "/api/v1/entities/order/o1?pk=t1", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(g, http.MethodGet, "/api/v1/entities/order/o1?pk=t2", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	w = do(g, http.MethodGet, "/api/v1/entities/order/o3", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(g, http.MethodPost, "/api/v1/entities/order/batch", `{"partitionKey":"t1","ids":["o1","o2","o3","o4"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	require.Len(t, got, 2)
	require.Contains(t, got, "o1")
	require.Contains(t, got, "o2")

	w = do(g, http.MethodDelete, "/api/v1/entities/order/o1?pk=t1", "")
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestEntityQueryPaging(t *testing.T) {
	g := newRouter(t, nil)
	for i, s := range []string{"active", "pending", "active", "active"} {
		body, _ := json.Marshal(map[string]any{"status": s, "rank": i})
		w := do(g, http.MethodPost, "/api/v1/entities/customer", string(body))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(g, http.MethodPost, "/api/v1/entities/customer/query", `{"filter":{"status":"active"},"sort":["-rank"],"limit":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items             []map[string]any `json:"items"`
		ContinuationToken string           `json:"continuationToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Items, 2)
	require.Equal(t, float64(3), page.Items[0]["rank"])
	require.NotEmpty(t, page.ContinuationToken)

	next, _ := json.Marshal(map[string]any{
		"filter":            map[string]any{"status": "active"},
		"sort":              []string{"-rank"},
		"limit":             2,
		"continuationToken": page.ContinuationToken,
	})
	w = do(g, http.MethodPost, "/api/v1/entities/customer/query", string(next))
	require.Equal(t, http.StatusOK, w.Code)
	page.ContinuationToken = ""
	page.Items = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	require.Empty(t, page.ContinuationToken)

	w = do(g, http.MethodPost, "/api/v1/entities/customer/query", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestEntityExport(t *testing.T) {
	w := do(newRouter(t, nil), http.MethodPost, "/api/v1/entities/customer/export", `{}`)
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	ex := &fakeExporter{}
	g := newRouter(t, ex)
	w = do(g, http.MethodPost, "/api/v1/entities/customer/export", `{"filter":{"status":"active"}}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "customer", ex.entityType)
	assert.NotNil(t, ex.query.Filter)
	assert.Equal(t, float64(3), decode(t, w)["count"])

	w = do(g, http.MethodPost, "/api/v1/entities/broken/export", `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
