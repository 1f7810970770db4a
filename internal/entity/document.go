package entity

import (
	"time"

	"github.com/google/uuid"
)

// Reserved document fields maintained by the store.
const (
	FieldID         = "id"
	FieldEntityName = "entityName"
	FieldCreatedAt  = "createdAt"
	FieldUpdatedAt  = "updatedAt"
)

// TimestampLayout is the fixed-width UTC layout used for createdAt and
// updatedAt. Fixed width keeps string order equal to time order.
const TimestampLayout = "2006-01-02T15:04:05.0000000Z"

// Document is a schema-less stored record.
type Document map[string]any

// ID returns the document's id field when it is a string.
func (d Document) ID() string {
	s, _ := d[FieldID].(string)
	return s
}

func (d Document) EntityName() string {
	s, _ := d[FieldEntityName].(string)
	return s
}

// Clone returns a shallow copy of d.
func (d Document) Clone() Document {
	out := make(Document, len(d)+4)
	for k, v := range d {
		out[k] = v
	}
	return out
}

// NewID returns a new time-ordered unique identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// FormatTime renders t in TimestampLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
