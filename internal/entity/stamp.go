package entity

import "time"

// Stamper attaches system fields to documents before they are written.
// It never modifies the document it is given.
type Stamper struct {
	Now func() time.Time
}

// NewStamper returns a Stamper using the wall clock.
func NewStamper() Stamper {
	return Stamper{Now: time.Now}
}

func (s Stamper) now() string {
	if s.Now == nil {
		return FormatTime(time.Now())
	}
	return FormatTime(s.Now())
}

// Create stamps id, entityName, createdAt and updatedAt. Reserved fields
// already present in doc are overwritten.
func (s Stamper) Create(entityName, id string, doc Document) Document {
	out := doc.Clone()
	ts := s.now()
	out[FieldID] = id
	out[FieldEntityName] = entityName
	out[FieldCreatedAt] = ts
	out[FieldUpdatedAt] = ts
	return out
}

// Replace stamps id, entityName and updatedAt. createdAt is left as the
// caller supplied it, or absent.
func (s Stamper) Replace(entityName, id string, doc Document) Document {
	out := doc.Clone()
	out[FieldID] = id
	out[FieldEntityName] = entityName
	out[FieldUpdatedAt] = s.now()
	return out
}
