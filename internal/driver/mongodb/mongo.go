// Package mongodb stores containers as MongoDB collections.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ravikumarmistry/quix/internal/driver"
	"github.com/ravikumarmistry/quix/internal/entity"
	"github.com/ravikumarmistry/quix/pkg/logger"
)

// Database maps each container to a collection of the same name.
type Database struct {
	db *mongo.Database
}

func NewDatabase(db *mongo.Database) *Database {
	return &Database{db: db}
}

// CreateContainerIfNotExists ensures the collection's indexes. Collections
// are created by MongoDB on first write, so repeated calls are harmless.
func (d *Database) CreateContainerIfNotExists(ctx context.Context, props driver.ContainerProperties) (driver.Container, error) {
	if props.ID == "" {
		return nil, errors.New("mongodb: container id is required")
	}
	c := &Container{
		col:     d.db.Collection(props.ID),
		pkField: driver.PartitionKeyField(props.PartitionKeyPath),
	}

	// ids are unique per collection
	models := []mongo.IndexModel{{
		Keys:    bson.D{{Key: entity.FieldID, Value: 1}},
		Options: options.Index().SetUnique(true),
	}}
	if c.pkField != entity.FieldID {
		models = append(models, mongo.IndexModel{Keys: bson.D{{Key: c.pkField, Value: 1}}})
	}
	if _, err := c.col.Indexes().CreateMany(ctx, models); err != nil {
		return nil, fmt.Errorf("mongodb: ensure indexes on %s: %w", props.ID, err)
	}
	logger.Debugf("mongodb: collection %s ready (partition key %s)", props.ID, c.pkField)
	return c, nil
}

// Container is a collection addressed by id and partition key field.
type Container struct {
	col     *mongo.Collection
	pkField string
}

func (c *Container) ID() string { return c.col.Name() }

func (c *Container) CreateItem(ctx context.Context, pk driver.PartitionKey, item map[string]any) (map[string]any, error) {
	id, _ := item[entity.FieldID].(string)
	if _, err := c.col.InsertOne(ctx, item); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("mongodb: create %s/%s: %w", c.ID(), id, driver.ErrConflict)
		}
		return nil, err
	}
	return c.ReadItem(ctx, pk, id)
}

func (c *Container) ReadItem(ctx context.Context, pk driver.PartitionKey, id string) (map[string]any, error) {
	var doc bson.M
	err := c.col.FindOne(ctx, c.address(pk, id), options.FindOne().SetProjection(bson.M{"_id": 0})).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("mongodb: read %s/%s: %w", c.ID(), id, driver.ErrNotFound)
		}
		return nil, err
	}
	return normalizeMap(doc), nil
}

func (c *Container) ReplaceItem(ctx context.Context, pk driver.PartitionKey, id string, item map[string]any) (map[string]any, error) {
	res, err := c.col.ReplaceOne(ctx, c.address(pk, id), item)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, fmt.Errorf("mongodb: replace %s/%s: %w", c.ID(), id, driver.ErrNotFound)
	}
	return c.ReadItem(ctx, pk, id)
}

func (c *Container) DeleteItem(ctx context.Context, pk driver.PartitionKey, id string) error {
	res, err := c.col.DeleteOne(ctx, c.address(pk, id))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("mongodb: delete %s/%s: %w", c.ID(), id, driver.ErrNotFound)
	}
	return nil
}

// QueryItems runs the typed filter as a find. Continuation tokens are skip
// offsets; one extra document is fetched to tell whether another page exists.
func (c *Container) QueryItems(ctx context.Context, req driver.QueryRequest) (*driver.Page, error) {
	var offset int64
	if req.ContinuationToken != "" {
		n, err := strconv.ParseInt(req.ContinuationToken, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("mongodb: invalid continuation token %q", req.ContinuationToken)
		}
		offset = n
	}

	opts := options.Find().
		SetProjection(bson.M{"_id": 0}).
		SetSkip(offset).
		SetSort(sortDoc(req.Sort))
	if req.PageSize > 0 {
		opts.SetLimit(int64(req.PageSize) + 1)
	}

	cur, err := c.col.Find(ctx, c.scope(req), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	items := []map[string]any{}
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		items = append(items, normalizeMap(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}

	page := &driver.Page{Items: items}
	if req.PageSize > 0 && len(items) > req.PageSize {
		page.Items = items[:req.PageSize]
		page.ContinuationToken = strconv.FormatInt(offset+int64(req.PageSize), 10)
	}
	return page, nil
}

// address selects one item. The partition key only narrows the match for
// containers partitioned by another field.
func (c *Container) address(pk driver.PartitionKey, id string) bson.D {
	f := bson.D{{Key: entity.FieldID, Value: id}}
	if v, ok := pk.Value(); ok && c.pkField != entity.FieldID {
		f = append(f, bson.E{Key: c.pkField, Value: v})
	}
	return f
}

func (c *Container) scope(req driver.QueryRequest) bson.D {
	f := ToBSON(req.Filter)
	v, ok := req.PartitionKey.Value()
	if !ok {
		return f
	}
	pkCond := bson.D{{Key: c.pkField, Value: v}}
	if len(f) == 0 {
		return pkCond
	}
	return bson.D{{Key: "$and", Value: bson.A{pkCond, f}}}
}
