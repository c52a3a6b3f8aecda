//nolint:errcheck
package psql

import (
	"sort"

	"github.com/dosco/restjin/core/internal/dialect"
	"github.com/dosco/restjin/core/internal/qcode"
	"github.com/dosco/restjin/core/internal/sdata"
)

// BuildInsert inserts one row. Keys that are not columns of the table are
// dropped, if nothing is left the insert is refused.
func (co *Compiler) BuildInsert(ti *sdata.DBTable, data map[string]interface{}) (Query, error) {
	if err := dialect.ValidateIdentifier(ti.Name); err != nil {
		return Query{}, err
	}
	cols, ignored := dataColumns(ti, data)
	if len(cols) == 0 {
		return Query{}, qcode.NewError(qcode.KindNoValidColumns,
			"no valid columns for table '%s'", ti.Name)
	}
	c := co.newContext()
	c.ignored = ignored

	c.w.WriteString(`INSERT INTO `)
	c.table(ti)
	c.w.WriteString(` (`)
	for i, col := range cols {
		if i != 0 {
			c.w.WriteString(`, `)
		}
		c.quoted(col.Name)
	}
	c.w.WriteString(`) VALUES (`)
	for i, col := range cols {
		if i != 0 {
			c.w.WriteString(`, `)
		}
		c.w.WriteString(c.AddParam(coerce(col, data[col.Name])))
	}
	c.w.WriteString(`)`)
	c.dialect.RenderReturning(c)
	return c.query()
}

// dataColumns returns the columns present in data in table order, plus the
// keys that matched nothing
func dataColumns(ti *sdata.DBTable, data map[string]interface{}) ([]sdata.DBColumn, []string) {
	var cols []sdata.DBColumn
	for _, col := range ti.Columns {
		if _, ok := data[col.Name]; ok {
			cols = append(cols, col)
		}
	}

	var ignored []string
	for k := range data {
		if !ti.IsValidColumn(k) {
			ignored = append(ignored, "column: "+k)
		}
	}
	sort.Strings(ignored)
	return cols, ignored
}
