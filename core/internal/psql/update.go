//nolint:errcheck
package psql

import (
	"github.com/dosco/restjin/core/internal/dialect"
	"github.com/dosco/restjin/core/internal/qcode"
	"github.com/dosco/restjin/core/internal/sdata"
)

// BuildUpdate updates the row addressed by its primary key
func (co *Compiler) BuildUpdate(ti *sdata.DBTable, id interface{}, data map[string]interface{}) (Query, error) {
	pk, err := primaryKey(ti)
	if err != nil {
		return Query{}, err
	}
	cols, ignored := dataColumns(ti, data)
	if len(cols) == 0 {
		return Query{}, qcode.NewError(qcode.KindNoValidColumns,
			"no valid columns for table '%s'", ti.Name)
	}
	c := co.newContext()
	c.ignored = ignored

	c.w.WriteString(`UPDATE `)
	c.table(ti)
	c.renderSet(cols, data)
	c.w.WriteString(` WHERE `)
	c.quoted(pk.Name)
	c.w.WriteString(` = `)
	c.w.WriteString(c.AddParam(coerce(pk, id)))
	c.dialect.RenderReturning(c)
	return c.query()
}

// BuildUpdateWhere updates every row matching the filters. At least one
// filter has to resolve to a column, a bulk update without one is refused.
func (co *Compiler) BuildUpdateWhere(ti *sdata.DBTable, filters []qcode.Filter, data map[string]interface{}) (Query, error) {
	if err := dialect.ValidateIdentifier(ti.Name); err != nil {
		return Query{}, err
	}
	if countFilters(ti, filters) == 0 {
		return Query{}, qcode.NewError(qcode.KindMissingFilter,
			"bulk update on '%s' requires at least one filter", ti.Name)
	}
	cols, ignored := dataColumns(ti, data)
	if len(cols) == 0 {
		return Query{}, qcode.NewError(qcode.KindNoValidColumns,
			"no valid columns for table '%s'", ti.Name)
	}
	c := co.newContext()
	c.ignored = ignored

	c.w.WriteString(`UPDATE `)
	c.table(ti)
	c.renderSet(cols, data)
	c.renderWhere(ti, filters, false)
	c.dialect.RenderReturning(c)
	return c.query()
}

// renderSet binds the SET values first so their placeholders precede the
// ones in the WHERE clause
func (c *compilerContext) renderSet(cols []sdata.DBColumn, data map[string]interface{}) {
	c.w.WriteString(` SET `)
	for i, col := range cols {
		if i != 0 {
			c.w.WriteString(`, `)
		}
		c.quoted(col.Name)
		c.w.WriteString(` = `)
		c.w.WriteString(c.AddParam(coerce(col, data[col.Name])))
	}
}
