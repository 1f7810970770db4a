package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ravikumarmistry/quix/internal/driver"
	"github.com/ravikumarmistry/quix/internal/entity"
	"github.com/ravikumarmistry/quix/internal/export"
	"github.com/ravikumarmistry/quix/internal/filter"
	"github.com/ravikumarmistry/quix/internal/store"
	"github.com/ravikumarmistry/quix/pkg/logger"
)

// Exporter uploads the full result of a query. It may be nil when no object
// store is configured.
type Exporter interface {
	Export(ctx context.Context, entityType string, q filter.Query) (*export.Result, error)
}

// EntityHandler exposes the document store over HTTP.
type EntityHandler struct {
	store    store.Store
	exporter Exporter
}

func NewEntityHandler(s store.Store, ex Exporter) *EntityHandler {
	return &EntityHandler{store: s, exporter: ex}
}

// Register mounts the entity routes on rg, e.g. the /api/v1 group.
func (h *EntityHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/entities/:type")
	g.POST("", h.create)
	g.POST("/batch", h.readMap)
	g.POST("/query", h.query)
	g.POST("/export", h.export)
	g.GET("/:id", h.read)
	g.PUT("/:id", h.replace)
	g.DELETE("/:id", h.delete)
}

func (h *EntityHandler) create(c *gin.Context) {
	var doc entity.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.store.Create(c.Request.Context(), c.Param("type"), c.Query("id"), doc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *EntityHandler) read(c *gin.Context) {
	pk, err := partitionKeyParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	doc, err := h.store.Read(c.Request.Context(), c.Param("type"), c.Param("id"), pk)
	if err != nil {
		writeError(c, err)
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *EntityHandler) replace(c *gin.Context) {
	var doc entity.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.store.Replace(c.Request.Context(), c.Param("type"), c.Param("id"), doc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *EntityHandler) delete(c *gin.Context) {
	pk, err := partitionKeyParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.Delete(c.Request.Context(), c.Param("type"), c.Param("id"), pk); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *EntityHandler) readMap(c *gin.Context) {
	var req struct {
		PartitionKey *any    `json:"partitionKey"`
		IDs          []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var pk store.PartitionKey
	if req.PartitionKey != nil {
		pk = store.Key(*req.PartitionKey)
	}
	out, err := h.store.ReadMap(c.Request.Context(), c.Param("type"), pk, req.IDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *EntityHandler) query(c *gin.Context) {
	q, ok := bindQuery(c)
	if !ok {
		return
	}
	res, err := h.store.Query(c.Request.Context(), c.Param("type"), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *EntityHandler) export(c *gin.Context) {
	if h.exporter == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "export storage not configured"})
		return
	}
	q, ok := bindQuery(c)
	if !ok {
		return
	}
	res, err := h.exporter.Export(c.Request.Context(), c.Param("type"), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

// bindQuery reads a query body. An empty body selects everything.
func bindQuery(c *gin.Context) (filter.Query, bool) {
	var q filter.Query
	if c.Request.ContentLength == 0 {
		return q, true
	}
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return q, false
	}
	return q, true
}

// partitionKeyParam reads the optional partition key hint. "pk" is taken as
// a string; "pkJson" carries any JSON scalar for non-string keys.
func partitionKeyParam(c *gin.Context) (store.PartitionKey, error) {
	if raw, ok := c.GetQuery("pkJson"); ok {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return store.PartitionKey{}, errors.New("pkJson must be a JSON value")
		}
		return store.Key(v), nil
	}
	if v, ok := c.GetQuery("pk"); ok {
		return store.Key(v), nil
	}
	return store.PartitionKey{}, nil
}

func writeError(c *gin.Context, err error) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case store.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, driver.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	default:
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
