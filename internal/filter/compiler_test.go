package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileJSON(t *testing.T, src string) Statement {
	t.Helper()
	n, err := ParseJSON([]byte(src))
	require.NoError(t, err)
	stmt, err := Compile(n)
	require.NoError(t, err)
	return stmt
}

func TestCompileImplicitEquality(t *testing.T) {
	stmt := compileJSON(t, `{"status": "active"}`)
	assert.Equal(t, "c.status = @p0", stmt.Text)
	require.Len(t, stmt.Parameters, 1)
	assert.Equal(t, "@p0", stmt.Parameters[0].Name)
	assert.Equal(t, String("active"), stmt.Parameters[0].Value)
}

func TestCompileRange(t *testing.T) {
	stmt := compileJSON(t, `{"age": {"$gte": 25, "$lt": 30}}`)
	assert.Equal(t, "c.age >= @p0 AND c.age < @p1", stmt.Text)
	require.Len(t, stmt.Parameters, 2)
	assert.Equal(t, Number(25), stmt.Parameters[0].Value)
	assert.Equal(t, Number(30), stmt.Parameters[1].Value)
}

func TestCompileOrIsParenthesized(t *testing.T) {
	stmt := compileJSON(t, `{"$or": [{"status": "active"}, {"status": "pending"}]}`)
	assert.Equal(t, "(c.status = @p0 OR c.status = @p1)", stmt.Text)
	assert.Equal(t, String("pending"), stmt.Parameters[1].Value)
}

func TestCompileExplicitAnd(t *testing.T) {
	stmt := compileJSON(t, `{"$and": [{"name": {"$sw": "J"}}, {"age": {"$gte": 25}}]}`)
	assert.Equal(t, "STARTSWITH(c.name, @p0) AND c.age >= @p1", stmt.Text)
}

func TestCompileOrInsideImplicitAnd(t *testing.T) {
	stmt := compileJSON(t, `{"type": "a", "$or": [{"x": 1}, {"y": 2}]}`)
	assert.Equal(t, "c.type = @p0 AND (c.x = @p1 OR c.y = @p2)", stmt.Text)
}

func TestCompileNot(t *testing.T) {
	stmt := compileJSON(t, `{"$not": {"status": "deleted"}}`)
	assert.Equal(t, "NOT (c.status = @p0)", stmt.Text)
}

func TestCompileOperatorTable(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		text   string
		params int
	}{
		{"eq", `{"a": {"$eq": 1}}`, "c.a = @p0", 1},
		{"ne", `{"a": {"$ne": "x"}}`, "c.a != @p0", 1},
		{"gt", `{"a": {"$gt": 1}}`, "c.a > @p0", 1},
		{"gte", `{"a": {"$gte": 1}}`, "c.a >= @p0", 1},
		{"lt", `{"a": {"$lt": 1}}`, "c.a < @p0", 1},
		{"lte", `{"a": {"$lte": "m"}}`, "c.a <= @p0", 1},
		{"in", `{"a": {"$in": [1, 2]}}`, "c.a IN @p0", 1},
		{"nin", `{"a": {"$nin": ["x"]}}`, "c.a NOT IN @p0", 1},
		{"exists", `{"a": {"$exists": true}}`, "IS_DEFINED(c.a)", 0},
		{"not exists", `{"a": {"$exists": false}}`, "NOT IS_DEFINED(c.a)", 0},
		{"regex", `{"a": {"$regex": "^J.*n$"}}`, "REGEX_MATCH(c.a, @p0)", 1},
		{"sw", `{"a": {"$sw": "J"}}`, "STARTSWITH(c.a, @p0)", 1},
		{"nsw", `{"a": {"$nsw": "J"}}`, "NOT STARTSWITH(c.a, @p0)", 1},
		{"eq null", `{"a": null}`, "c.a = @p0", 1},
		{"eq array literal", `{"tags": ["x", "y"]}`, "c.tags = @p0", 1},
		{"nested path", `{"address.city": "Oslo"}`, "c.address.city = @p0", 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stmt := compileJSON(t, tc.filter)
			assert.Equal(t, tc.text, stmt.Text)
			assert.Len(t, stmt.Parameters, tc.params)
		})
	}
}

func TestCompileDropsUnsupportedConditions(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		text   string
	}{
		{"unknown operator", `{"a": {"$near": 1}, "b": 2}`, "c.b = @p0"},
		{"in with scalar", `{"a": {"$in": 1}, "b": 2}`, "c.b = @p0"},
		{"exists with string", `{"a": {"$exists": "yes"}}`, ""},
		{"regex with number", `{"a": {"$regex": 5}}`, ""},
		{"gt with bool", `{"a": {"$gt": true}}`, ""},
		{"not with array", `{"$not": [{"a": 1}], "b": 2}`, "c.b = @p0"},
		{"or with object", `{"$or": {"a": 1}}`, ""},
		{"or skips scalars", `{"$or": [1, {"a": 1}]}`, "(c.a = @p0)"},
		{"unknown logical", `{"$nor": [{"a": 1}]}`, ""},
		{"empty and", `{"$and": []}`, ""},
		{"empty or", `{"$or": []}`, ""},
		{"not of nothing", `{"$not": {"a": {"$bogus": 1}}}`, ""},
		{"empty path segment", `{"a..b": 1}`, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stmt := compileJSON(t, tc.filter)
			assert.Equal(t, tc.text, stmt.Text)
		})
	}
}

func TestCompileParametersAreNumberedContiguously(t *testing.T) {
	stmt := compileJSON(t, `{"a": {"$in": "bad"}, "b": 1, "c": {"$bogus": 2}, "d": 3}`)
	assert.Equal(t, "c.b = @p0 AND c.d = @p1", stmt.Text)
	assert.Equal(t, Number(3), stmt.Parameters[1].Value)
}

func TestCompileKeepsTypedParameters(t *testing.T) {
	stmt := compileJSON(t, `{"n": 1.5, "b": false, "s": "1.5"}`)
	require.Len(t, stmt.Parameters, 3)
	assert.Equal(t, KindNumber, stmt.Parameters[0].Value.Kind())
	assert.Equal(t, KindBool, stmt.Parameters[1].Value.Kind())
	assert.Equal(t, KindString, stmt.Parameters[2].Value.Kind())
	assert.NotContains(t, stmt.Text, "1.5")
}

func TestCompileQuotesUnsafeFieldNames(t *testing.T) {
	stmt := compileJSON(t, `{"first-name": "x", "value": 1, "a.b c": 2}`)
	assert.Equal(t, `c["first-name"] = @p0 AND c["value"] = @p1 AND c.a["b c"] = @p2`, stmt.Text)

	stmt = compileJSON(t, `{"x\"] = 1 OR c[\"y": 1}`)
	assert.Equal(t, `c["x\"] = 1 OR c[\"y"] = @p0`, stmt.Text)
}

func TestCompileIsDeterministic(t *testing.T) {
	src := `{"$or": [{"a": {"$gt": 1, "$lt": 9}}, {"b": {"$in": [1, 2]}}], "c": "x"}`
	first := compileJSON(t, src)
	second := compileJSON(t, src)
	assert.Equal(t, first, second)

	raw := map[string]any{"b": 1, "a": map[string]any{"$lte": 3, "$gte": 1}}
	s1, err := Compile(Parse(raw))
	require.NoError(t, err)
	s2, err := Compile(Parse(raw))
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
	assert.Equal(t, "c.a >= @p0 AND c.a <= @p1 AND c.b = @p2", s1.Text)
}

func TestCompileNilFilter(t *testing.T) {
	_, err := Compile(nil)
	assert.ErrorIs(t, err, ErrNoFilter)

	stmt := compileJSON(t, `{}`)
	assert.Equal(t, "", stmt.Text)
	assert.Empty(t, stmt.Parameters)
}

func TestCompileQuery(t *testing.T) {
	q := Query{Sort: ParseSort([]string{"name"})}
	assert.Equal(t, "SELECT * FROM c ORDER BY c.name ASC", CompileQuery(q).Text)

	q = Query{Sort: ParseSort([]string{"-age"})}
	assert.Equal(t, "SELECT * FROM c ORDER BY c.age DESC", CompileQuery(q).Text)

	n, err := ParseJSON([]byte(`{"status": "active"}`))
	require.NoError(t, err)
	q = Query{Filter: n, Sort: ParseSort([]string{"name", "-age", "", "-"}), Limit: 10}
	stmt := CompileQuery(q)
	assert.Equal(t, "SELECT * FROM c WHERE c.status = @p0 ORDER BY c.name ASC, c.age DESC", stmt.Text)
	assert.Len(t, stmt.Parameters, 1)

	empty, err := ParseJSON([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM c", CompileQuery(Query{Filter: empty}).Text)
}
