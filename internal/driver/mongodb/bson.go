package mongodb

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ravikumarmistry/quix/internal/entity"
	"github.com/ravikumarmistry/quix/internal/filter"
)

// ToBSON translates a filter into a MongoDB query document. Conditions the
// SQL compiler would drop are dropped here too, and a filter without any
// condition becomes the empty document.
//
// A document only matches when the SQL statement would evaluate to true, so
// comparisons against a missing field or a value of another type never
// match, negated or not. Negation is pushed down to the leaves for that
// reason: $nor would select documents where the field is missing.
func ToBSON(n filter.Node) bson.D {
	if d, ok := translate(n); ok {
		return d
	}
	return bson.D{}
}

func translate(n filter.Node) (bson.D, bool) {
	switch n := n.(type) {
	case filter.Comparison:
		return comparison(n)
	case filter.And:
		return logical("$and", n.Children, translate)
	case filter.Or:
		return logical("$or", n.Children, translate)
	case filter.Not:
		return negate(n.Child)
	}
	return nil, false
}

// negate selects documents where n is false, leaving out those where it is
// undefined.
func negate(n filter.Node) (bson.D, bool) {
	switch n := n.(type) {
	case filter.Comparison:
		return negatedComparison(n)
	case filter.And:
		return logical("$or", n.Children, negate)
	case filter.Or:
		return logical("$and", n.Children, negate)
	case filter.Not:
		return translate(n.Child)
	}
	return nil, false
}

func logical(op string, children []filter.Node, each func(filter.Node) (bson.D, bool)) (bson.D, bool) {
	parts := make(bson.A, 0, len(children))
	var only bson.D
	for _, c := range children {
		if d, ok := each(c); ok {
			parts = append(parts, d)
			only = d
		}
	}
	switch len(parts) {
	case 0:
		return nil, false
	case 1:
		return only, true
	}
	return bson.D{{Key: op, Value: parts}}, true
}

func comparison(n filter.Comparison) (bson.D, bool) {
	if !n.Supported() {
		return nil, false
	}

	v := n.Value.Interface()
	var cond bson.D
	switch n.Op {
	case filter.OpEq:
		cond = bson.D{{Key: "$eq", Value: v}}
	case filter.OpNe:
		cond = bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: v}}
	case filter.OpGt:
		cond = bson.D{{Key: "$gt", Value: v}}
	case filter.OpGte:
		cond = bson.D{{Key: "$gte", Value: v}}
	case filter.OpLt:
		cond = bson.D{{Key: "$lt", Value: v}}
	case filter.OpLte:
		cond = bson.D{{Key: "$lte", Value: v}}
	case filter.OpIn:
		cond = bson.D{{Key: "$in", Value: v}}
	case filter.OpNin:
		cond = bson.D{{Key: "$exists", Value: true}, {Key: "$nin", Value: v}}
	case filter.OpExists:
		cond = bson.D{{Key: "$exists", Value: v}}
	case filter.OpRegex:
		cond = bson.D{{Key: "$regex", Value: v}}
	case filter.OpStartsWith:
		cond = bson.D{{Key: "$regex", Value: prefix(n.Value)}}
	case filter.OpNotStartsWith:
		cond = bson.D{{Key: "$type", Value: "string"}, {Key: "$not", Value: primitive.Regex{Pattern: prefix(n.Value)}}}
	default:
		return nil, false
	}
	return bson.D{{Key: n.Field, Value: cond}}, true
}

// negatedComparison is the condition under which n is false. Range
// operators rely on MongoDB only comparing values of the same type.
func negatedComparison(n filter.Comparison) (bson.D, bool) {
	if !n.Supported() {
		return nil, false
	}

	v := n.Value.Interface()
	var cond bson.D
	switch n.Op {
	case filter.OpEq:
		cond = bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: v}}
	case filter.OpNe:
		cond = bson.D{{Key: "$eq", Value: v}}
	case filter.OpGt:
		cond = bson.D{{Key: "$lte", Value: v}}
	case filter.OpGte:
		cond = bson.D{{Key: "$lt", Value: v}}
	case filter.OpLt:
		cond = bson.D{{Key: "$gte", Value: v}}
	case filter.OpLte:
		cond = bson.D{{Key: "$gt", Value: v}}
	case filter.OpIn:
		cond = bson.D{{Key: "$exists", Value: true}, {Key: "$nin", Value: v}}
	case filter.OpNin:
		cond = bson.D{{Key: "$in", Value: v}}
	case filter.OpExists:
		want, _ := n.Value.AsBool()
		cond = bson.D{{Key: "$exists", Value: !want}}
	case filter.OpRegex:
		pattern, _ := n.Value.AsString()
		cond = bson.D{{Key: "$type", Value: "string"}, {Key: "$not", Value: primitive.Regex{Pattern: pattern}}}
	case filter.OpStartsWith:
		cond = bson.D{{Key: "$type", Value: "string"}, {Key: "$not", Value: primitive.Regex{Pattern: prefix(n.Value)}}}
	case filter.OpNotStartsWith:
		cond = bson.D{{Key: "$regex", Value: prefix(n.Value)}}
	default:
		return nil, false
	}
	return bson.D{{Key: n.Field, Value: cond}}, true
}

func prefix(v filter.Value) string {
	s, _ := v.AsString()
	return "^" + regexp.QuoteMeta(s)
}

// sortDoc turns sort keys into a MongoDB sort document. It always ends
// with the unique id so skip-offset pages neither repeat nor miss documents
// whose sort keys tie.
func sortDoc(keys []filter.SortKey) bson.D {
	out := make(bson.D, 0, len(keys)+1)
	hasID := false
	for _, k := range keys {
		dir := 1
		if k.Descending {
			dir = -1
		}
		out = append(out, bson.E{Key: k.Field, Value: dir})
		if k.Field == entity.FieldID {
			hasID = true
			break
		}
	}
	if !hasID {
		out = append(out, bson.E{Key: entity.FieldID, Value: 1})
	}
	return out
}

// normalize converts decoded BSON containers to plain maps and slices so
// documents look the same whichever driver produced them.
func normalize(v any) any {
	switch v := v.(type) {
	case bson.M:
		return normalizeMap(v)
	case map[string]any:
		return normalizeMap(v)
	case bson.D:
		out := make(map[string]any, len(v))
		for _, e := range v {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalize(e)
		}
		return out
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	}
	return v
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}
