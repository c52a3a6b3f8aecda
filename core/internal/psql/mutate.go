//nolint:errcheck
package psql

import (
	"github.com/dosco/restjin/core/internal/dialect"
	"github.com/dosco/restjin/core/internal/qcode"
	"github.com/dosco/restjin/core/internal/sdata"
)

// BuildDelete removes the row addressed by its primary key
func (co *Compiler) BuildDelete(ti *sdata.DBTable, id interface{}) (Query, error) {
	pk, err := primaryKey(ti)
	if err != nil {
		return Query{}, err
	}
	c := co.newContext()

	c.w.WriteString(`DELETE FROM `)
	c.table(ti)
	c.w.WriteString(` WHERE `)
	c.quoted(pk.Name)
	c.w.WriteString(` = `)
	c.w.WriteString(c.AddParam(coerce(pk, id)))
	c.dialect.RenderReturning(c)
	return c.query()
}

// BuildDeleteWhere removes every row matching the filters and refuses to run
// without at least one resolvable filter
func (co *Compiler) BuildDeleteWhere(ti *sdata.DBTable, filters []qcode.Filter) (Query, error) {
	if err := dialect.ValidateIdentifier(ti.Name); err != nil {
		return Query{}, err
	}
	if countFilters(ti, filters) == 0 {
		return Query{}, qcode.NewError(qcode.KindMissingFilter,
			"bulk delete on '%s' requires at least one filter", ti.Name)
	}
	c := co.newContext()

	c.w.WriteString(`DELETE FROM `)
	c.table(ti)
	c.renderWhere(ti, filters, false)
	c.dialect.RenderReturning(c)
	return c.query()
}

// CompileDelete removes the source rows of a plan. Filters on joined tables
// become EXISTS subqueries along the join path: a source row goes only when
// one of its joined rows passes them.
func (co *Compiler) CompileDelete(p *qcode.Plan) (Query, error) {
	if len(p.Filters) == 0 {
		return Query{}, qcode.NewError(qcode.KindMissingFilter,
			"delete on '%s' has no resolvable filter", p.Source.Name)
	}
	c := co.newContext()
	c.ignored = append(c.ignored, p.Ignored...)

	c.w.WriteString(`DELETE FROM `)
	c.table(p.Source)

	n := 0
	next := func() {
		if n == 0 {
			c.w.WriteString(` WHERE `)
		} else {
			c.w.WriteString(` AND `)
		}
		n++
	}
	for _, f := range p.Filters {
		if f.Source {
			next()
			c.renderCond("", f.Ref.Col, f.Op, f.Val)
		}
	}
	for _, j := range p.Joins {
		if j.From.Table == p.Source.Name && semiFiltered(p, j.Table.Name) {
			next()
			c.renderExists(p, j)
		}
	}

	c.dialect.RenderReturning(c)
	return c.query()
}

func (c *compilerContext) renderExists(p *qcode.Plan, j qcode.PlanJoin) {
	c.w.WriteString(`EXISTS (SELECT 1 FROM `)
	c.table(j.Table)
	c.w.WriteString(` WHERE `)
	c.colWithTable(j.To.Table, j.To.Col.Name)
	c.w.WriteString(` = `)
	c.colWithTable(j.From.Table, j.From.Col.Name)

	for _, f := range p.Filters {
		if f.Ref.Table == j.Table.Name {
			c.w.WriteString(` AND `)
			c.renderCond(j.Table.Name, f.Ref.Col, f.Op, f.Val)
		}
	}
	for _, k := range p.Joins {
		if k.From.Table == j.Table.Name && semiFiltered(p, k.Table.Name) {
			c.w.WriteString(` AND `)
			c.renderExists(p, k)
		}
	}
	c.w.WriteString(`)`)
}

// semiFiltered is true when a filter names the table or a table joined
// through it
func semiFiltered(p *qcode.Plan, table string) bool {
	for _, f := range p.Filters {
		if f.Ref.Table == table {
			return true
		}
	}
	for _, j := range p.Joins {
		if j.From.Table == table && semiFiltered(p, j.Table.Name) {
			return true
		}
	}
	return false
}

// BuildRelated lists the rows of a related table that belong to the parent
// row with the given primary key. When the relationship goes through the
// parent's primary key the id is matched directly, otherwise a subquery
// reads the linking column off the parent row.
func (co *Compiler) BuildRelated(
	schema *sdata.DBSchema,
	ti *sdata.DBTable,
	related string,
	id interface{},
	fkCol string,
	args SelectArgs,
) (Query, error) {
	pk, err := primaryKey(ti)
	if err != nil {
		return Query{}, err
	}
	rt, ok := schema.Find(related)
	if !ok {
		return Query{}, qcode.NewError(qcode.KindUnknownTable, "unknown table: %s", related)
	}
	if err := dialect.ValidateIdentifier(rt.Name); err != nil {
		return Query{}, err
	}
	rel, ok := schema.FindRelationship(ti, rt.Name, fkCol)
	if !ok {
		return Query{}, qcode.NewError(qcode.KindNoRelationship,
			"no relationship between '%s' and '%s'", ti.Name, rt.Name)
	}
	relCol, _ := rt.GetColumn(rel.RelatedCol)

	c := co.newContext()

	c.w.WriteString(`SELECT `)
	c.quoted(rt.Name)
	c.w.WriteString(`.* FROM `)
	c.table(rt)
	c.w.WriteString(` WHERE `)
	c.colWithTable(rt.Name, rel.RelatedCol)

	if rel.ParentCol == pk.Name {
		c.w.WriteString(` = `)
		c.w.WriteString(c.AddParam(coerce(relCol, id)))
	} else {
		c.w.WriteString(` IN (SELECT `)
		c.colWithTable(ti.Name, rel.ParentCol)
		c.w.WriteString(` FROM `)
		c.table(ti)
		c.w.WriteString(` WHERE `)
		c.colWithTable(ti.Name, pk.Name)
		c.w.WriteString(` = `)
		c.w.WriteString(c.AddParam(coerce(pk, id)))
		c.w.WriteString(`)`)
	}

	for _, f := range args.Filters {
		col, ok := resolveFilter(rt, f)
		if !ok {
			c.ignored = append(c.ignored, "filter: "+f.Field)
			continue
		}
		c.w.WriteString(` AND `)
		c.renderCond(rt.Name, col, f.Operator(), f.Val)
	}

	c.renderOrderBy(rt, rt.Name, args.OrderBy, args.OrderDir)
	c.dialect.RenderLimit(c, args.Limit, args.Offset)
	return c.query()
}
