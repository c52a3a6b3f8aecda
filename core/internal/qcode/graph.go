package qcode

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

type JoinType string

const (
	JoinLeft JoinType = "LEFT"
)

type AggFunc string

const (
	AggCount AggFunc = "COUNT"
	AggSum   AggFunc = "SUM"
	AggAvg   AggFunc = "AVG"
	AggMin   AggFunc = "MIN"
	AggMax   AggFunc = "MAX"
)

type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Graph is the query graph, the declarative query description executed by
// both the SQL compiler and the in-memory executor.
type Graph struct {
	Source       Source              `json:"source"`
	Joins        []Join              `json:"joins,omitempty" validate:"dive"`
	Filters      []Filter            `json:"filters,omitempty"`
	GroupBy      []string            `json:"groupBy,omitempty"`
	Aggregations []Aggregation       `json:"aggregations,omitempty" validate:"dive"`
	Having       []Having            `json:"having,omitempty" validate:"dive"`
	OutputFields map[string][]string `json:"outputFields,omitempty"`
	Sort         []Sort              `json:"sort,omitempty" validate:"dive"`
	Limit        *int                `json:"limit,omitempty" validate:"omitempty,min=0"`
	Offset       int                 `json:"offset,omitempty" validate:"min=0"`
}

type Source struct {
	Table string `json:"table" validate:"required"`
	Alias string `json:"alias,omitempty"`
}

type ColRef struct {
	Table  string `json:"table" validate:"required"`
	Column string `json:"column" validate:"required"`
}

type Join struct {
	Type JoinType `json:"type,omitempty" validate:"omitempty,oneof=LEFT"`
	From ColRef   `json:"from"`
	To   ColRef   `json:"to"`
}

type Aggregation struct {
	Func  AggFunc `json:"function" validate:"required,oneof=COUNT SUM AVG MIN MAX"`
	Field string  `json:"field"`
	Alias string  `json:"alias" validate:"required"`
}

type Having struct {
	Alias string      `json:"aggregateAlias" validate:"required"`
	Op    ExpOp       `json:"-"`
	OpStr string      `json:"operator"`
	Val   interface{} `json:"value"`
}

type Sort struct {
	Field string `json:"field" validate:"required"`
	Dir   Order  `json:"direction,omitempty" validate:"omitempty,oneof=asc desc"`
}

var validate = validator.New()

// ParseGraph decodes and validates a query graph from its JSON form
func ParseGraph(b []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(b, &g); err != nil {
		var e *Error
		if errors.As(err, &e) {
			return nil, e
		}
		return nil, NewError(KindInvalidGraph, "%s", err.Error())
	}
	if err := g.Normalize(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Normalize upper/lower cases the enum fields, resolves having operators and
// runs the struct validation. Graphs built in code should call it before use.
func (g *Graph) Normalize() error {
	for i := range g.Joins {
		j := &g.Joins[i]
		j.Type = JoinType(strings.ToUpper(string(j.Type)))
		if j.Type == "" {
			j.Type = JoinLeft
		}
	}
	for i := range g.Aggregations {
		a := &g.Aggregations[i]
		a.Func = AggFunc(strings.ToUpper(string(a.Func)))
		if a.Alias == "" && a.Func != "" {
			a.Alias = strings.ToLower(string(a.Func)) + "_" + colPart(a.Field)
		}
	}
	for i := range g.Having {
		h := &g.Having[i]
		if h.Op == OpNop {
			h.Op = ParseOp(h.OpStr)
		}
		if h.Op == OpNop {
			return NewError(KindInvalidGraph, "unknown having operator '%s'", h.OpStr)
		}
	}
	for i := range g.Sort {
		s := &g.Sort[i]
		s.Dir = Order(strings.ToLower(string(s.Dir)))
		if s.Dir == "" {
			s.Dir = OrderAsc
		}
	}

	if err := validate.Struct(g); err != nil {
		return NewError(KindInvalidGraph, "%s", err.Error())
	}
	return nil
}

// HasAggregation is true when the graph groups or aggregates
func (g *Graph) HasAggregation() bool {
	return len(g.GroupBy) != 0 || len(g.Aggregations) != 0
}

// PrefixedName is the namespaced column name used once several tables take
// part in a query
func PrefixedName(table, col string) string {
	return table + "_" + col
}

func colPart(field string) string {
	_, c := SplitField(field)
	if c == "" || c == "*" {
		return "all"
	}
	return c
}
