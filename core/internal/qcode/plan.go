package qcode

import (
	"fmt"
	"sort"

	"github.com/dosco/restjin/core/internal/sdata"
)

// ColumnRef is a column resolved against the schema
type ColumnRef struct {
	Table string
	Col   sdata.DBColumn
}

// Key is the always-namespaced name of the column inside a working row
func (r ColumnRef) Key() string {
	return PrefixedName(r.Table, r.Col.Name)
}

// Name is the output name of the column, namespaced only when several tables
// take part in the query
func (r ColumnRef) Name(multi bool) string {
	if multi {
		return r.Key()
	}
	return r.Col.Name
}

func (r ColumnRef) String() string {
	return r.Table + "." + r.Col.Name
}

type PlanJoin struct {
	Table *sdata.DBTable
	From  ColumnRef
	To    ColumnRef
}

type PlanFilter struct {
	Ref ColumnRef
	Op  ExpOp
	Val interface{}
	// Source filters run before the joins, others after
	Source bool
}

type PlanAgg struct {
	Func AggFunc
	// Ref is nil for COUNT(*)
	Ref   *ColumnRef
	Alias string
}

type PlanHaving struct {
	Agg PlanAgg
	Op  ExpOp
	Val interface{}
}

type PlanSort struct {
	// Name is the output key sorted on
	Name string
	// Ref is nil when sorting on an aggregate alias
	Ref *ColumnRef
	Dir Order
}

// Plan is a query graph lowered against a schema. The SQL compiler and the
// in-memory executor both run plans, never raw graphs, so reference
// resolution happens exactly once.
type Plan struct {
	Source      *sdata.DBTable
	SourceAlias string
	Joins       []PlanJoin
	Multi       bool
	Aggregate   bool
	Filters     []PlanFilter
	GroupBy     []ColumnRef
	Aggs        []PlanAgg
	Having      []PlanHaving
	Output      []ColumnRef
	Sort        []PlanSort
	Limit       *int
	Offset      int

	// Ignored lists references that did not resolve and were dropped
	Ignored []string

	tables map[string]*sdata.DBTable
	order  []string
}

// NewPlan resolves every reference in the graph. An unknown source table is
// a structural error, unresolvable joins, filters, having, group by and sort
// references are dropped and reported in Ignored. A query left with nothing
// to select is an error.
func NewPlan(schema *sdata.DBSchema, g *Graph) (*Plan, error) {
	src, ok := schema.Find(g.Source.Table)
	if !ok {
		return nil, NewError(KindUnknownTable, "unknown table: %s", g.Source.Table)
	}

	p := &Plan{
		Source:      src,
		SourceAlias: g.Source.Alias,
		Aggregate:   g.HasAggregation(),
		Limit:       g.Limit,
		Offset:      g.Offset,
		tables:      map[string]*sdata.DBTable{src.Name: src},
		order:       []string{src.Name},
	}

	if err := p.resolveJoins(schema, g); err != nil {
		return nil, err
	}

	for _, f := range g.Filters {
		ref, ok := p.Resolve(f.Field)
		if !ok {
			p.ignore("filter", f.Field)
			continue
		}
		p.Filters = append(p.Filters, PlanFilter{
			Ref:    ref,
			Op:     f.Operator(),
			Val:    f.Val,
			Source: ref.Table == src.Name,
		})
	}

	if p.Aggregate {
		p.resolveAggregates(g)
	} else {
		p.resolveOutput(g)
	}

	if len(p.Columns()) == 0 {
		return nil, NewError(KindNoValidColumns, "query selects no valid columns")
	}

	p.resolveSort(g)
	return p, nil
}

// resolveJoins keeps the joins that resolve. A join naming an unknown table or
// column matches nothing and contributes no columns, so it is dropped.
func (p *Plan) resolveJoins(schema *sdata.DBSchema, g *Graph) error {
	for _, j := range g.Joins {
		if j.Type != "" && j.Type != JoinLeft {
			return NewError(KindInvalidGraph, "unsupported join type: %s", j.Type)
		}

		from, ok := p.joinRef(j.From)
		if !ok {
			p.ignore("join", j.From.Table+"."+j.From.Column)
			continue
		}

		tt, ok := schema.Find(j.To.Table)
		if !ok {
			p.ignore("join", j.To.Table)
			continue
		}
		if _, ok := p.tables[tt.Name]; ok {
			return NewError(KindInvalidGraph, "table joined more than once: %s", tt.Name)
		}
		tc, ok := tt.GetColumn(j.To.Column)
		if !ok {
			p.ignore("join", j.To.Table+"."+j.To.Column)
			continue
		}

		p.tables[tt.Name] = tt
		p.order = append(p.order, tt.Name)
		p.Joins = append(p.Joins, PlanJoin{
			Table: tt,
			From:  from,
			To:    ColumnRef{Table: tt.Name, Col: tc},
		})
	}
	p.Multi = len(p.order) > 1
	return nil
}

func (p *Plan) joinRef(cr ColRef) (ColumnRef, bool) {
	name := cr.Table
	if name == p.SourceAlias && name != "" {
		name = p.Source.Name
	}
	t, ok := p.tables[name]
	if !ok {
		return ColumnRef{}, false
	}
	c, ok := t.GetColumn(cr.Column)
	if !ok {
		return ColumnRef{}, false
	}
	return ColumnRef{Table: t.Name, Col: c}, true
}

func (p *Plan) resolveAggregates(g *Graph) {
	for _, f := range g.GroupBy {
		ref, ok := p.Resolve(f)
		if !ok {
			p.ignore("group by", f)
			continue
		}
		p.GroupBy = append(p.GroupBy, ref)
	}

	for _, a := range g.Aggregations {
		pa := PlanAgg{Func: a.Func, Alias: a.Alias}
		if a.Func != AggCount {
			ref, ok := p.Resolve(a.Field)
			if !ok {
				p.ignore("aggregation", a.Field)
				continue
			}
			pa.Ref = &ref
		}
		p.Aggs = append(p.Aggs, pa)
	}

	for _, h := range g.Having {
		agg, ok := p.agg(h.Alias)
		if !ok {
			p.ignore("having", h.Alias)
			continue
		}
		op := h.Op
		if op == OpNop {
			op = ParseOp(h.OpStr)
		}
		p.Having = append(p.Having, PlanHaving{Agg: agg, Op: op, Val: h.Val})
	}
}

func (p *Plan) resolveOutput(g *Graph) {
	if len(g.OutputFields) == 0 {
		for _, tn := range p.order {
			t := p.tables[tn]
			for _, c := range t.Columns {
				p.Output = append(p.Output, ColumnRef{Table: t.Name, Col: c})
			}
		}
		return
	}

	for _, tn := range p.outputTables(g) {
		t := p.tables[tn]
		cols := g.OutputFields[tn]
		if tn == p.Source.Name && len(cols) == 0 && p.SourceAlias != "" {
			cols = g.OutputFields[p.SourceAlias]
		}
		if len(cols) == 0 {
			for _, c := range t.Columns {
				p.Output = append(p.Output, ColumnRef{Table: t.Name, Col: c})
			}
			continue
		}
		for _, cn := range cols {
			c, ok := t.GetColumn(cn)
			if !ok {
				p.ignore("output field", tn+"."+cn)
				continue
			}
			p.Output = append(p.Output, ColumnRef{Table: t.Name, Col: c})
		}
	}
}

// outputTables returns the participating tables named in outputFields,
// in query order
func (p *Plan) outputTables(g *Graph) []string {
	var tl []string
	for _, tn := range p.order {
		_, ok := g.OutputFields[tn]
		if !ok && tn == p.Source.Name && p.SourceAlias != "" {
			_, ok = g.OutputFields[p.SourceAlias]
		}
		if ok {
			tl = append(tl, tn)
		}
	}

	var unknown []string
	for tn := range g.OutputFields {
		if _, ok := p.tables[tn]; !ok && tn != p.SourceAlias {
			unknown = append(unknown, tn)
		}
	}
	sort.Strings(unknown)
	for _, tn := range unknown {
		p.ignore("output table", tn)
	}
	return tl
}

func (p *Plan) resolveSort(g *Graph) {
	for _, s := range g.Sort {
		if p.Aggregate {
			if a, ok := p.agg(s.Field); ok {
				p.Sort = append(p.Sort, PlanSort{Name: a.Alias, Dir: s.Dir})
				continue
			}
		}
		ref, ok := p.Resolve(s.Field)
		if !ok || !p.outputs(ref) {
			p.ignore("sort", s.Field)
			continue
		}
		r := ref
		p.Sort = append(p.Sort, PlanSort{Name: ref.Name(p.Multi), Ref: &r, Dir: s.Dir})
	}
}

// outputs is true when the column survives into the result rows,
// sorting happens after projection
func (p *Plan) outputs(ref ColumnRef) bool {
	cols := p.Output
	if p.Aggregate {
		cols = p.GroupBy
	}
	for _, c := range cols {
		if c.Table == ref.Table && c.Col.Name == ref.Col.Name {
			return true
		}
	}
	return false
}

func (p *Plan) agg(alias string) (PlanAgg, bool) {
	for _, a := range p.Aggs {
		if a.Alias == alias {
			return a, true
		}
	}
	return PlanAgg{}, false
}

// Resolve finds the column a field refers to. Accepted forms are
// table.column, alias.column, table_column and a bare column which is looked
// up on the source table first and then on the joined tables in order.
func (p *Plan) Resolve(field string) (ColumnRef, bool) {
	tn, cn := SplitField(field)
	if tn != "" {
		if tn == p.SourceAlias {
			tn = p.Source.Name
		}
		t, ok := p.tables[tn]
		if !ok {
			return ColumnRef{}, false
		}
		c, ok := t.GetColumn(cn)
		if !ok {
			return ColumnRef{}, false
		}
		return ColumnRef{Table: t.Name, Col: c}, true
	}

	for _, name := range p.order {
		if c, ok := p.tables[name].GetColumn(cn); ok {
			return ColumnRef{Table: name, Col: c}, true
		}
	}

	for _, name := range p.order {
		pfx := name + "_"
		if len(cn) > len(pfx) && cn[:len(pfx)] == pfx {
			if c, ok := p.tables[name].GetColumn(cn[len(pfx):]); ok {
				return ColumnRef{Table: name, Col: c}, true
			}
		}
	}
	return ColumnRef{}, false
}

// Columns returns the output column names in order
func (p *Plan) Columns() []string {
	var cols []string
	if p.Aggregate {
		for _, r := range p.GroupBy {
			cols = append(cols, r.Name(p.Multi))
		}
		for _, a := range p.Aggs {
			cols = append(cols, a.Alias)
		}
		return cols
	}
	for _, r := range p.Output {
		cols = append(cols, r.Name(p.Multi))
	}
	return cols
}

func (p *Plan) ignore(kind, ref string) {
	p.Ignored = append(p.Ignored, fmt.Sprintf("%s: %s", kind, ref))
}
