package qcode

import (
	"encoding/json"
	"reflect"
	"strings"
)

// ExpOp is a filter operator. The table below is the only place operator
// semantics are defined; the SQL compiler and the in-memory executor both read
// from it.
type ExpOp int

const (
	OpNop ExpOp = iota
	OpEquals
	OpNotEquals
	OpGreaterThan
	OpGreaterOrEquals
	OpLesserThan
	OpLesserOrEquals
	OpLike
	OpContains
	OpStartsWith
	OpEndsWith
	OpIn
)

type opDef struct {
	name    string
	sql     string
	pattern func(string) string
	match   func(actual, expected interface{}) bool
}

var ops = map[ExpOp]opDef{
	OpEquals: {
		name:  "eq",
		sql:   "=",
		match: matchEquals,
	},
	OpNotEquals: {
		name: "ne",
		sql:  "<>",
		match: func(a, e interface{}) bool {
			return !matchEquals(a, e)
		},
	},
	OpGreaterThan: {
		name:  "gt",
		sql:   ">",
		match: func(a, e interface{}) bool { return compare(a, e) > 0 },
	},
	OpGreaterOrEquals: {
		name:  "gte",
		sql:   ">=",
		match: func(a, e interface{}) bool { return compare(a, e) >= 0 },
	},
	OpLesserThan: {
		name:  "lt",
		sql:   "<",
		match: func(a, e interface{}) bool { return compare(a, e) < 0 },
	},
	OpLesserOrEquals: {
		name:  "lte",
		sql:   "<=",
		match: func(a, e interface{}) bool { return compare(a, e) <= 0 },
	},
	OpLike: {
		name:    "like",
		sql:     "LIKE",
		pattern: func(v string) string { return "%" + v + "%" },
		match: func(a, e interface{}) bool {
			return strings.Contains(Stringify(a), Stringify(e))
		},
	},
	OpContains: {
		name:    "contains",
		sql:     "LIKE",
		pattern: func(v string) string { return "%" + v + "%" },
		match: func(a, e interface{}) bool {
			return strings.Contains(Stringify(a), Stringify(e))
		},
	},
	OpStartsWith: {
		name:    "startswith",
		sql:     "LIKE",
		pattern: func(v string) string { return v + "%" },
		match: func(a, e interface{}) bool {
			return strings.HasPrefix(Stringify(a), Stringify(e))
		},
	},
	OpEndsWith: {
		name:    "endswith",
		sql:     "LIKE",
		pattern: func(v string) string { return "%" + v },
		match: func(a, e interface{}) bool {
			return strings.HasSuffix(Stringify(a), Stringify(e))
		},
	},
	OpIn: {
		name: "in",
		sql:  "IN",
		match: func(a, e interface{}) bool {
			as := Stringify(a)
			for _, v := range ListValues(e) {
				if Stringify(v) == as {
					return true
				}
			}
			return false
		},
	},
}

// ParseOp maps an operator tag to its ExpOp. Unknown tags return OpNop.
func ParseOp(name string) ExpOp {
	switch strings.ToLower(strings.TrimPrefix(name, "_")) {
	case "", "eq", "equals":
		return OpEquals
	case "ne", "neq", "notequals", "not_equals":
		return OpNotEquals
	case "gt", "greaterthan", "greater_than":
		return OpGreaterThan
	case "gte", "gteq", "greaterorequals", "greater_or_equals":
		return OpGreaterOrEquals
	case "lt", "lesserthan", "lesser_than":
		return OpLesserThan
	case "lte", "lteq", "lesserorequals", "lesser_or_equals":
		return OpLesserOrEquals
	case "like":
		return OpLike
	case "contains":
		return OpContains
	case "startswith", "starts_with":
		return OpStartsWith
	case "endswith", "ends_with":
		return OpEndsWith
	case "in":
		return OpIn
	}
	return OpNop
}

func (op ExpOp) String() string {
	if d, ok := ops[op]; ok {
		return d.name
	}
	return "nop"
}

// SQL returns the SQL operator keyword
func (op ExpOp) SQL() string {
	return ops[op].sql
}

// IsPattern is true for operators compiled to LIKE with a wrapped value
func (op ExpOp) IsPattern() bool {
	return ops[op].pattern != nil
}

// Pattern wraps a value into the LIKE pattern for this operator
func (op ExpOp) Pattern(v interface{}) string {
	d := ops[op]
	if d.pattern == nil {
		return Stringify(v)
	}
	return d.pattern(Stringify(v))
}

// Match evaluates the operator against an in-memory value. A null actual
// value never matches, the same as SQL's three valued logic.
func (op ExpOp) Match(actual, expected interface{}) bool {
	d, ok := ops[op]
	if !ok || actual == nil {
		return false
	}
	return d.match(actual, expected)
}

func matchEquals(a, e interface{}) bool {
	if aj, ok := ParseJSONValue(a); ok {
		if ej, ok := ParseJSONValue(e); ok {
			return reflect.DeepEqual(normalizeJSON(aj), normalizeJSON(ej))
		}
	}
	af, aok := ToFloat(a)
	ef, eok := ToFloat(e)
	if aok && eok {
		return af == ef
	}
	return Stringify(a) == Stringify(e)
}

// compare orders numerically when both sides parse as numbers and falls back
// to string ordering otherwise.
func compare(a, e interface{}) int {
	af, aok := ToFloat(a)
	ef, eok := ToFloat(e)
	if aok && eok {
		switch {
		case af < ef:
			return -1
		case af > ef:
			return 1
		}
		return 0
	}
	return strings.Compare(Stringify(a), Stringify(e))
}

// Compare exposes the operator ordering for sorting
func Compare(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return compare(a, b)
}

// normalizeJSON round trips a value so Go literals and decoded JSON compare
// equal
func normalizeJSON(v interface{}) interface{} {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
