// Package export writes query results to object storage as NDJSON.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ravikumarmistry/quix/internal/entity"
	"github.com/ravikumarmistry/quix/internal/filter"
	"github.com/ravikumarmistry/quix/internal/store"
	"github.com/ravikumarmistry/quix/pkg/logger"
	"github.com/ravikumarmistry/quix/pkg/metrics"
)

const (
	defaultPageSize = 500
	contentType     = "application/x-ndjson"
)

// Sink is the object storage an export is uploaded to.
type Sink interface {
	UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	GetPresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// Result describes an uploaded export.
type Result struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
	URL   string `json:"url,omitempty"`
}

type Exporter struct {
	store    store.Store
	sink     Sink
	PageSize int
	URLTTL   time.Duration
}

func New(s store.Store, sink Sink) *Exporter {
	return &Exporter{store: s, sink: sink, PageSize: defaultPageSize, URLTTL: time.Hour}
}

// Export runs q page by page from its continuation token until the result
// is exhausted and streams one JSON document per line to the sink. q.Limit
// is the page size, not a cap on the export.
func (e *Exporter) Export(ctx context.Context, entityType string, q filter.Query) (*Result, error) {
	if q.Limit <= 0 {
		q.Limit = e.PageSize
	}

	// Validate and read the first page before opening an upload.
	first, err := e.store.Query(ctx, entityType, q)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("exports/%s/%s.ndjson", entityType, entity.NewID())
	pr, pw := io.Pipe()
	type written struct {
		count int
		err   error
	}
	done := make(chan written, 1)
	go func() {
		n, err := e.write(ctx, pw, entityType, q, first)
		pw.CloseWithError(err)
		done <- written{n, err}
	}()

	uploadErr := e.sink.UploadFile(ctx, key, pr, -1, contentType)
	// unblocks the writer when the sink stopped reading early
	pr.CloseWithError(io.ErrClosedPipe)
	w := <-done
	if w.err != nil {
		return nil, w.err
	}
	if uploadErr != nil {
		return nil, fmt.Errorf("export: upload %s: %w", key, uploadErr)
	}
	metrics.ExportedDocuments.Add(float64(w.count))
	logger.Infof("export: wrote %d %s documents to %s", w.count, entityType, key)

	res := &Result{Key: key, Count: w.count}
	url, err := e.sink.GetPresignedURL(ctx, key, e.URLTTL)
	if err != nil {
		logger.Warnf("export: presign %s: %v", key, err)
		return res, nil
	}
	res.URL = url
	return res, nil
}

// write encodes page and every page after it to w.
func (e *Exporter) write(ctx context.Context, w io.Writer, entityType string, q filter.Query, page *store.QueryResult) (int, error) {
	enc := json.NewEncoder(w)
	count := 0
	for {
		for _, doc := range page.Items {
			if err := enc.Encode(doc); err != nil {
				if errors.Is(err, io.ErrClosedPipe) {
					// the upload failed; its error is reported instead
					return count, nil
				}
				return count, fmt.Errorf("export: encode %s: %w", doc.ID(), err)
			}
		}
		count += len(page.Items)
		if page.ContinuationToken == "" {
			return count, nil
		}
		q.ContinuationToken = page.ContinuationToken

		var err error
		if page, err = e.store.Query(ctx, entityType, q); err != nil {
			return count, err
		}
	}
}
