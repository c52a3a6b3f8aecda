package qcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOp(t *testing.T) {
	tests := []struct {
		name string
		want ExpOp
	}{
		{"", OpEquals},
		{"eq", OpEquals},
		{"equals", OpEquals},
		{"neq", OpNotEquals},
		{"notEquals", OpNotEquals},
		{"gt", OpGreaterThan},
		{"greaterThan", OpGreaterThan},
		{"gte", OpGreaterOrEquals},
		{"lt", OpLesserThan},
		{"lte", OpLesserOrEquals},
		{"like", OpLike},
		{"contains", OpContains},
		{"startsWith", OpStartsWith},
		{"endsWith", OpEndsWith},
		{"in", OpIn},
		{"_in", OpIn},
		{"between", OpNop},
	}

	for _, tt := range tests {
		if got := ParseOp(tt.name); got != tt.want {
			t.Errorf("ParseOp(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestOpMatch(t *testing.T) {
	tests := []struct {
		name     string
		op       ExpOp
		actual   interface{}
		expected interface{}
		want     bool
	}{
		{"numeric equality across types", OpEquals, 20, "20", true},
		{"float and int", OpEquals, 20.0, 20, true},
		{"string equality", OpEquals, "Alice", "Alice", true},
		{"string inequality", OpNotEquals, "Alice", "Bob", true},
		{"null never matches eq", OpEquals, nil, nil, false},
		{"null never matches ne", OpNotEquals, nil, "x", false},
		{"numeric gt", OpGreaterThan, 10, "9", true},
		{"string gt", OpGreaterThan, "b", "a", true},
		{"gte equal", OpGreaterOrEquals, 5, 5, true},
		{"lt", OpLesserThan, 4, 5, true},
		{"lte", OpLesserOrEquals, 6, 5, false},
		{"contains", OpContains, "hello world", "lo w", true},
		{"like is containment", OpLike, "hello", "ell", true},
		{"starts with", OpStartsWith, "hello", "he", true},
		{"ends with", OpEndsWith, "hello", "he", false},
		{"in slice", OpIn, 2, []interface{}{1, 2, 3}, true},
		{"in comma list", OpIn, "b", "a,b,c", true},
		{"in json list", OpIn, 3, "[1,2]", false},
		{"json equality", OpEquals, map[string]interface{}{"a": 1}, `{"a": 1}`, true},
		{"json inequality", OpEquals, map[string]interface{}{"a": 1}, `{"a": 2}`, false},
		{"nop", OpNop, 1, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.Match(tt.actual, tt.expected))
		})
	}
}

func TestOpPattern(t *testing.T) {
	assert.Equal(t, "%abc%", OpContains.Pattern("abc"))
	assert.Equal(t, "%abc%", OpLike.Pattern("abc"))
	assert.Equal(t, "abc%", OpStartsWith.Pattern("abc"))
	assert.Equal(t, "%abc", OpEndsWith.Pattern("abc"))
	assert.True(t, OpEndsWith.IsPattern())
	assert.False(t, OpIn.IsPattern())
	assert.Equal(t, "<>", OpNotEquals.SQL())
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare(nil, 1))
	assert.Equal(t, 1, Compare(1, nil))
	assert.Equal(t, 0, Compare(nil, nil))
	assert.Equal(t, -1, Compare(9, 10))
	assert.Equal(t, -1, Compare("9", "10"))
	assert.Equal(t, 1, Compare("b", "a"))
	assert.Equal(t, -1, Compare("apple", "banana"))
}
