package filter

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Alias is the name the compiled statements give the queried container.
const Alias = "c"

var ErrNoFilter = errors.New("filter: no filter to compile")

// Parameter is a named value bound to a compiled statement.
type Parameter struct {
	Name  string
	Value Value
}

// Statement is compiled query text and the parameters it references.
// Filter values are only ever bound, never written into Text.
type Statement struct {
	Text       string
	Parameters []Parameter
}

// compiler numbers parameters in the order conditions are emitted. A new
// compiler is used for every statement so output is deterministic.
type compiler struct {
	params []Parameter
}

// Compile translates a filter into a boolean expression over the container
// alias, e.g. `c.age >= @p0 AND c.age < @p1`. An empty filter compiles to
// empty text.
func Compile(n Node) (Statement, error) {
	if n == nil {
		return Statement{}, ErrNoFilter
	}

	c := &compiler{}
	text := c.node(n)
	return Statement{Text: text, Parameters: c.params}, nil
}

// CompileQuery builds the full SELECT statement for q. Limit and
// continuation are execution options and do not appear in the text.
func CompileQuery(q Query) Statement {
	c := &compiler{}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(Alias)

	if q.Filter != nil {
		if where := c.node(q.Filter); where != "" {
			b.WriteString(" WHERE ")
			b.WriteString(where)
		}
	}

	if order := orderBy(q.Sort); order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(order)
	}

	return Statement{Text: b.String(), Parameters: c.params}
}

func (c *compiler) node(n Node) string {
	switch n := n.(type) {
	case Comparison:
		return c.comparison(n)
	case And:
		return c.join(n.Children, " AND ")
	case Or:
		group := c.join(n.Children, " OR ")
		if group == "" {
			return ""
		}
		return "(" + group + ")"
	case Not:
		if n.Child == nil {
			return ""
		}
		inner := c.node(n.Child)
		if inner == "" {
			return ""
		}
		return "NOT (" + inner + ")"
	}
	return ""
}

func (c *compiler) join(children []Node, sep string) string {
	parts := make([]string, 0, len(children))
	for _, child := range children {
		if s := c.node(child); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep)
}

func (c *compiler) comparison(n Comparison) string {
	if !n.Supported() {
		return ""
	}
	field := FieldPath(n.Field)
	if field == "" {
		return ""
	}

	switch n.Op {
	case OpEq:
		return field + " = " + c.bind(n.Value)
	case OpNe:
		return field + " != " + c.bind(n.Value)
	case OpGt:
		return field + " > " + c.bind(n.Value)
	case OpGte:
		return field + " >= " + c.bind(n.Value)
	case OpLt:
		return field + " < " + c.bind(n.Value)
	case OpLte:
		return field + " <= " + c.bind(n.Value)
	case OpIn:
		return field + " IN " + c.bind(n.Value)
	case OpNin:
		return field + " NOT IN " + c.bind(n.Value)
	case OpExists:
		if b, _ := n.Value.AsBool(); b {
			return "IS_DEFINED(" + field + ")"
		}
		return "NOT IS_DEFINED(" + field + ")"
	case OpRegex:
		return "REGEX_MATCH(" + field + ", " + c.bind(n.Value) + ")"
	case OpStartsWith:
		return "STARTSWITH(" + field + ", " + c.bind(n.Value) + ")"
	case OpNotStartsWith:
		return "NOT STARTSWITH(" + field + ", " + c.bind(n.Value) + ")"
	}
	return ""
}

func (c *compiler) bind(v Value) string {
	name := "@p" + strconv.Itoa(len(c.params))
	c.params = append(c.params, Parameter{Name: name, Value: v})
	return name
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var keywords = map[string]struct{}{
	"AND": {}, "ARRAY": {}, "AS": {}, "ASC": {}, "BETWEEN": {}, "BY": {}, "CASE": {},
	"CAST": {}, "CROSS": {}, "DESC": {}, "DISTINCT": {}, "ELSE": {}, "END": {},
	"ESCAPE": {}, "EXISTS": {}, "FALSE": {}, "FOR": {}, "FROM": {}, "GROUP": {},
	"HAVING": {}, "IN": {}, "INNER": {}, "INSERT": {}, "INTO": {}, "IS": {}, "JOIN": {},
	"LEFT": {}, "LIKE": {}, "LIMIT": {}, "NOT": {}, "NULL": {}, "OFFSET": {}, "ON": {},
	"OR": {}, "ORDER": {}, "OUTER": {}, "OVER": {}, "RIGHT": {}, "SELECT": {}, "SET": {},
	"THEN": {}, "TOP": {}, "TRUE": {}, "UDF": {}, "UNDEFINED": {}, "UPDATE": {},
	"VALUE": {}, "WHEN": {}, "WHERE": {}, "WITH": {},
}

// FieldPath renders a dotted field name relative to the container alias.
// Segments that are not plain identifiers are written as quoted property
// accessors, so field names cannot alter the statement. It returns "" for
// a path with an empty segment.
func FieldPath(field string) string {
	if field == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString(Alias)
	for _, seg := range strings.Split(field, ".") {
		if seg == "" {
			return ""
		}
		if _, reserved := keywords[strings.ToUpper(seg)]; identifier.MatchString(seg) && !reserved {
			b.WriteByte('.')
			b.WriteString(seg)
			continue
		}
		quoted, err := json.Marshal(seg)
		if err != nil {
			return ""
		}
		b.WriteByte('[')
		b.Write(quoted)
		b.WriteByte(']')
	}
	return b.String()
}

func orderBy(keys []SortKey) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		field := FieldPath(k.Field)
		if field == "" {
			continue
		}
		if k.Descending {
			parts = append(parts, field+" DESC")
		} else {
			parts = append(parts, field+" ASC")
		}
	}
	return strings.Join(parts, ", ")
}
