package filter

import (
	"regexp"
	"sort"
	"strings"
)

// truth is the result of evaluating a condition. As in the store's query
// language, comparing against a missing field or a value of another type is
// undefined rather than false, and only true conditions select a document.
type truth int8

const (
	undefined truth = iota
	falsy
	truthy
)

func truthOf(b bool) truth {
	if b {
		return truthy
	}
	return falsy
}

func (t truth) not() truth {
	switch t {
	case truthy:
		return falsy
	case falsy:
		return truthy
	}
	return undefined
}

// Match reports whether doc satisfies n with the same semantics as the
// compiled statement. A nil Node, or one that compiles to no condition,
// matches every document.
func Match(n Node, doc map[string]any) bool {
	if n == nil {
		return true
	}
	t, ok := eval(n, doc)
	return !ok || t == truthy
}

// eval returns ok == false when n produces no condition at all.
func eval(n Node, doc map[string]any) (truth, bool) {
	switch n := n.(type) {
	case Comparison:
		if !n.Supported() || FieldPath(n.Field) == "" {
			return undefined, false
		}
		return compare(n, doc), true
	case And:
		result, emitted := truthy, false
		for _, child := range n.Children {
			t, ok := eval(child, doc)
			if !ok {
				continue
			}
			emitted = true
			if t == falsy {
				result = falsy
			} else if t == undefined && result != falsy {
				result = undefined
			}
		}
		return result, emitted
	case Or:
		result, emitted := falsy, false
		for _, child := range n.Children {
			t, ok := eval(child, doc)
			if !ok {
				continue
			}
			emitted = true
			if t == truthy {
				result = truthy
			} else if t == undefined && result != truthy {
				result = undefined
			}
		}
		return result, emitted
	case Not:
		if n.Child == nil {
			return undefined, false
		}
		t, ok := eval(n.Child, doc)
		if !ok {
			return undefined, false
		}
		return t.not(), true
	}
	return undefined, false
}

func compare(n Comparison, doc map[string]any) truth {
	raw, defined := Lookup(doc, n.Field)
	if n.Op == OpExists {
		want, _ := n.Value.AsBool()
		return truthOf(defined == want)
	}
	if !defined {
		return undefined
	}
	actual := FromAny(raw)

	switch n.Op {
	case OpEq:
		return truthOf(actual.Equal(n.Value))
	case OpNe:
		return truthOf(!actual.Equal(n.Value))
	case OpGt, OpGte, OpLt, OpLte:
		cmp, ok := order(actual, n.Value)
		if !ok {
			return undefined
		}
		switch n.Op {
		case OpGt:
			return truthOf(cmp > 0)
		case OpGte:
			return truthOf(cmp >= 0)
		case OpLt:
			return truthOf(cmp < 0)
		default:
			return truthOf(cmp <= 0)
		}
	case OpIn, OpNin:
		found := false
		for _, e := range n.Value.Elements() {
			if actual.Equal(e) {
				found = true
				break
			}
		}
		if n.Op == OpNin {
			return truthOf(!found)
		}
		return truthOf(found)
	case OpRegex:
		s, ok := actual.AsString()
		if !ok {
			return undefined
		}
		pattern, _ := n.Value.AsString()
		re, err := regexp.Compile(pattern)
		if err != nil {
			return undefined
		}
		return truthOf(re.MatchString(s))
	case OpStartsWith, OpNotStartsWith:
		s, ok := actual.AsString()
		if !ok {
			return undefined
		}
		prefix, _ := n.Value.AsString()
		t := truthOf(strings.HasPrefix(s, prefix))
		if n.Op == OpNotStartsWith {
			return t.not()
		}
		return t
	}
	return undefined
}

// order compares two strings or two numbers.
func order(a, b Value) (int, bool) {
	if a.Kind() != b.Kind() {
		return 0, false
	}
	switch a.Kind() {
	case KindNumber:
		x, _ := a.AsNumber()
		y, _ := b.AsNumber()
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case KindString:
		x, _ := a.AsString()
		y, _ := b.AsString()
		return strings.Compare(x, y), true
	}
	return 0, false
}

// Lookup resolves a dotted field path in a decoded document.
func Lookup(doc map[string]any, field string) (any, bool) {
	var cur any = doc
	for _, seg := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// rank orders values of different kinds: undefined, null, bool, number,
// string, then arrays and objects.
func rank(v any, defined bool) int {
	if !defined {
		return 0
	}
	switch FromAny(v).Kind() {
	case KindNull:
		return 1
	case KindBool:
		return 2
	case KindNumber:
		return 3
	case KindString:
		return 4
	}
	return 5
}

// SortItems orders documents in place by keys, stably.
func SortItems(items []map[string]any, keys []SortKey) {
	if len(keys) == 0 {
		return
	}

	sort.SliceStable(items, func(i, j int) bool {
		for _, k := range keys {
			c := compareField(items[i], items[j], k.Field)
			if c == 0 {
				continue
			}
			if k.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareField(a, b map[string]any, field string) int {
	av, aok := Lookup(a, field)
	bv, bok := Lookup(b, field)

	ra, rb := rank(av, aok), rank(bv, bok)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	x, y := FromAny(av), FromAny(bv)
	if x.Kind() == KindBool {
		xb, _ := x.AsBool()
		yb, _ := y.AsBool()
		switch {
		case xb == yb:
			return 0
		case !xb:
			return -1
		}
		return 1
	}
	c, _ := order(x, y)
	return c
}
