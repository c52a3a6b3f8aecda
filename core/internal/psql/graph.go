//nolint:errcheck
package psql

import (
	"github.com/dosco/restjin/core/internal/qcode"
	"github.com/dosco/restjin/core/internal/sdata"
)

type graphContext struct {
	*compilerContext
	p *qcode.Plan
}

// CompileGraph lowers a query graph against the schema and compiles it to a
// single SELECT with LEFT JOINs, grouping, aggregation and pagination.
func (co *Compiler) CompileGraph(schema *sdata.DBSchema, g *qcode.Graph) (Query, error) {
	if err := g.Normalize(); err != nil {
		return Query{}, err
	}
	p, err := qcode.NewPlan(schema, g)
	if err != nil {
		return Query{}, err
	}
	return co.CompilePlan(p)
}

// CompilePlan compiles an already resolved plan
func (co *Compiler) CompilePlan(p *qcode.Plan) (Query, error) {
	c := graphContext{compilerContext: co.newContext(), p: p}
	c.renderPlan(true)
	return c.query()
}

// CompileCount compiles a query counting the rows the plan yields before
// sorting and pagination
func (co *Compiler) CompileCount(p *qcode.Plan) (Query, error) {
	c := graphContext{compilerContext: co.newContext(), p: p}

	c.w.WriteString(`SELECT COUNT(*) AS `)
	c.quoted("total")
	c.w.WriteString(` FROM (`)
	c.renderPlan(false)
	c.w.WriteString(`) AS `)
	c.quoted("t")
	return c.query()
}

func (c *graphContext) renderPlan(paginate bool) {
	p := c.p
	c.ignored = append(c.ignored, p.Ignored...)

	c.w.WriteString(`SELECT `)
	if p.Aggregate {
		c.renderAggColumns()
	} else {
		c.renderColumns()
	}

	c.w.WriteString(` FROM `)
	c.table(p.Source)
	if p.SourceAlias != "" {
		c.w.WriteString(` AS `)
		c.quoted(p.SourceAlias)
	}

	for _, j := range p.Joins {
		c.w.WriteString(` LEFT JOIN `)
		c.table(j.Table)
		c.w.WriteString(` ON `)
		c.col(j.From)
		c.w.WriteString(` = `)
		c.col(j.To)
	}

	for i, f := range p.Filters {
		if i == 0 {
			c.w.WriteString(` WHERE `)
		} else {
			c.w.WriteString(` AND `)
		}
		c.renderCond(c.qualifier(f.Ref.Table), f.Ref.Col, f.Op, f.Val)
	}

	if p.Aggregate {
		c.renderGroupBy()
		c.renderHaving()
	}

	if !paginate {
		return
	}
	c.renderSort()

	var offset *int
	if p.Offset != 0 {
		offset = &p.Offset
	}
	c.dialect.RenderLimit(c, p.Limit, offset)
}

// qualifier is the name a table is referenced by, the source alias when
// one is set
func (c *graphContext) qualifier(table string) string {
	if table == c.p.Source.Name && c.p.SourceAlias != "" {
		return c.p.SourceAlias
	}
	return table
}

func (c *graphContext) col(ref qcode.ColumnRef) {
	c.colWithTable(c.qualifier(ref.Table), ref.Col.Name)
}

func (c *graphContext) renderColumns() {
	for i, ref := range c.p.Output {
		if i != 0 {
			c.w.WriteString(`, `)
		}
		c.col(ref)
		c.w.WriteString(` AS `)
		c.quoted(ref.Name(c.p.Multi))
	}
}

func (c *graphContext) renderAggColumns() {
	i := 0
	for _, ref := range c.p.GroupBy {
		if i != 0 {
			c.w.WriteString(`, `)
		}
		c.col(ref)
		c.w.WriteString(` AS `)
		c.quoted(ref.Name(c.p.Multi))
		i++
	}
	for _, a := range c.p.Aggs {
		if i != 0 {
			c.w.WriteString(`, `)
		}
		c.renderAgg(a)
		c.w.WriteString(` AS `)
		c.quoted(a.Alias)
		i++
	}
}

func (c *graphContext) renderAgg(a qcode.PlanAgg) {
	if a.Func == qcode.AggCount || a.Ref == nil {
		c.w.WriteString(`COUNT(*)`)
		return
	}
	c.w.WriteString(string(a.Func))
	c.w.WriteString(`(`)
	c.col(*a.Ref)
	c.w.WriteString(`)`)
}

func (c *graphContext) aggExpr(a qcode.PlanAgg) string {
	start := c.w.Len()
	c.renderAgg(a)
	expr := string(c.w.Bytes()[start:])
	c.w.Truncate(start)
	return expr
}

func (c *graphContext) renderGroupBy() {
	for i, ref := range c.p.GroupBy {
		if i == 0 {
			c.w.WriteString(` GROUP BY `)
		} else {
			c.w.WriteString(`, `)
		}
		c.col(ref)
	}
}

// renderHaving repeats the aggregate expression since not every database
// accepts output aliases in HAVING
func (c *graphContext) renderHaving() {
	for i, h := range c.p.Having {
		if i == 0 {
			c.w.WriteString(` HAVING `)
		} else {
			c.w.WriteString(` AND `)
		}
		expr := c.aggExpr(h.Agg)

		switch {
		case h.Op == qcode.OpIn:
			c.renderIn(expr, sdata.DBColumn{Type: "numeric"}, h.Val)

		case h.Op.IsPattern():
			c.w.WriteString(c.dialect.CastText(expr))
			c.w.WriteString(` LIKE `)
			c.w.WriteString(c.AddParam(h.Op.Pattern(h.Val)))

		default:
			val := h.Val
			if f, ok := qcode.ToFloat(val); ok {
				val = f
			}
			c.w.WriteString(expr)
			c.w.WriteString(` ` + h.Op.SQL() + ` `)
			c.w.WriteString(c.AddParam(val))
		}
	}
}

func (c *graphContext) renderSort() {
	for i, s := range c.p.Sort {
		if i == 0 {
			c.w.WriteString(` ORDER BY `)
		} else {
			c.w.WriteString(`, `)
		}
		if s.Ref != nil {
			c.col(*s.Ref)
		} else {
			c.quoted(s.Name)
		}
		c.dialect.RenderOrder(c, s.Dir == qcode.OrderDesc)
	}
}
