package qcode

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type FilterKind int

const (
	// FilterSimple is a bare column = value filter
	FilterSimple FilterKind = iota
	// FilterOp carries an explicit operator
	FilterOp
)

// Filter is decoded once at the edge of the system, everything downstream
// switches on Kind and Op instead of inspecting raw values.
type Filter struct {
	Kind  FilterKind
	Field string
	Op    ExpOp
	Val   interface{}
}

// Simple returns an equality filter
func Simple(field string, val interface{}) Filter {
	return Filter{Kind: FilterSimple, Field: field, Op: OpEquals, Val: val}
}

// Operator returns a filter with an explicit operator
func Operator(field string, op ExpOp, val interface{}) Filter {
	return Filter{Kind: FilterOp, Field: field, Op: op, Val: val}
}

// Operator returns the effective operator of the filter
func (f Filter) Operator() ExpOp {
	if f.Kind == FilterSimple || f.Op == OpNop {
		return OpEquals
	}
	return f.Op
}

// Split returns the table and column parts of a dotted field reference.
// A bare column returns an empty table.
func (f Filter) Split() (table, col string) {
	return SplitField(f.Field)
}

func SplitField(field string) (table, col string) {
	if i := strings.LastIndexByte(field, '.'); i != -1 {
		return field[:i], field[i+1:]
	}
	return "", field
}

// ParseFilterKey splits a `column__op` key into its column and operator.
// Keys without a known suffix are equality filters on the whole key.
func ParseFilterKey(key string) (string, ExpOp) {
	if i := strings.LastIndex(key, "__"); i > 0 {
		if op := ParseOp(key[i+2:]); op != OpNop {
			return key[:i], op
		}
	}
	return key, OpEquals
}

// NewFilter builds a filter from a `column__op` style key
func NewFilter(key string, val interface{}) Filter {
	col, op := ParseFilterKey(key)
	if col == key {
		return Simple(col, val)
	}
	return Operator(col, op, val)
}

// FiltersFromQuery converts query parameters into filters. Keys listed in
// reserved (limit, offset, ...) are skipped.
func FiltersFromQuery(params map[string][]string, reserved ...string) []Filter {
	skip := make(map[string]struct{}, len(reserved))
	for _, r := range reserved {
		skip[r] = struct{}{}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if _, ok := skip[k]; ok {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var fl []Filter
	for _, k := range keys {
		vals := params[k]
		if len(vals) == 0 {
			continue
		}
		fl = append(fl, NewFilter(k, vals[0]))
	}
	return fl
}

// FiltersFromMap decodes the loose map form used in request bodies:
//
//	{"amount": 20, "title__contains": "x", "status": {"op": "in", "val": ["a","b"]}}
//
// An object with an operator name as its only key, {"gte": 30}, is the short
// form of {"op": "gte", "val": 30}.
func FiltersFromMap(m map[string]interface{}) ([]Filter, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fl := make([]Filter, 0, len(m))
	for _, k := range keys {
		v := m[k]
		obj, ok := v.(map[string]interface{})
		if !ok {
			fl = append(fl, NewFilter(k, v))
			continue
		}
		opv, hasOp := obj["op"]
		if !hasOp {
			opv, hasOp = obj["operator"]
		}
		if !hasOp {
			if f, ok := shortOpFilter(k, obj); ok {
				fl = append(fl, f)
				continue
			}
			// a plain json object value, compared as json
			fl = append(fl, NewFilter(k, v))
			continue
		}
		name, _ := opv.(string)
		op := ParseOp(name)
		if op == OpNop {
			return nil, NewError(KindInvalidGraph, "unknown operator '%s' on '%s'", name, k)
		}
		val, ok := obj["val"]
		if !ok {
			val = obj["value"]
		}
		fl = append(fl, Operator(k, op, val))
	}
	return fl, nil
}

func shortOpFilter(field string, obj map[string]interface{}) (Filter, bool) {
	if len(obj) != 1 {
		return Filter{}, false
	}
	for name, val := range obj {
		if op := ParseOp(name); name != "" && op != OpNop {
			return Operator(field, op, val), true
		}
	}
	return Filter{}, false
}

type jsonFilter struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Op       string      `json:"op,omitempty"`
	Value    interface{} `json:"value"`
	Val      interface{} `json:"val,omitempty"`
}

func (f *Filter) UnmarshalJSON(b []byte) error {
	var jf jsonFilter
	if err := json.Unmarshal(b, &jf); err != nil {
		return err
	}
	if jf.Field == "" {
		return NewError(KindInvalidGraph, "filter is missing a field")
	}

	name := jf.Operator
	if name == "" {
		name = jf.Op
	}
	val := jf.Value
	if val == nil {
		val = jf.Val
	}

	if name == "" {
		*f = NewFilter(jf.Field, val)
		return nil
	}
	op := ParseOp(name)
	if op == OpNop {
		return NewError(KindInvalidGraph, "unknown operator '%s' on '%s'", name, jf.Field)
	}
	*f = Operator(jf.Field, op, val)
	return nil
}

func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonFilter{
		Field:    f.Field,
		Operator: f.Operator().String(),
		Value:    f.Val,
	})
}

func (f Filter) String() string {
	return fmt.Sprintf("%s %s %v", f.Field, f.Operator(), f.Val)
}
