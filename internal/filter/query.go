package filter

import (
	"encoding/json"
	"strings"
)

// SortKey orders results by a field.
type SortKey struct {
	Field      string
	Descending bool
}

// Query selects one page of documents.
type Query struct {
	Filter            Node
	Sort              []SortKey
	Limit             int
	ContinuationToken string
}

// ParseSort reads sort keys of the form "field" (ascending) or "-field"
// (descending). Empty keys are skipped.
func ParseSort(keys []string) []SortKey {
	out := make([]SortKey, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		desc := strings.HasPrefix(k, "-")
		k = strings.TrimPrefix(k, "-")
		if k == "" {
			continue
		}
		out = append(out, SortKey{Field: k, Descending: desc})
	}
	return out
}

type wireQuery struct {
	Filter            *Value   `json:"filter,omitempty"`
	Sort              []string `json:"sort,omitempty"`
	Limit             int      `json:"limit,omitempty"`
	ContinuationToken string   `json:"continuationToken,omitempty"`
}

// UnmarshalJSON reads `{filter?, sort?, limit?, continuationToken?}`.
func (q *Query) UnmarshalJSON(b []byte) error {
	var w wireQuery
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	*q = Query{
		Sort:              ParseSort(w.Sort),
		Limit:             w.Limit,
		ContinuationToken: w.ContinuationToken,
	}
	if q.Limit < 0 {
		q.Limit = 0
	}

	if w.Filter != nil && w.Filter.Kind() != KindNull {
		n, err := ParseValue(*w.Filter)
		if err != nil {
			return err
		}
		q.Filter = n
	}
	return nil
}
