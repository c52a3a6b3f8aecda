//nolint:errcheck
package psql

import (
	"encoding/json"

	"github.com/dosco/restjin/core/internal/qcode"
	"github.com/dosco/restjin/core/internal/sdata"
)

// renderWhere writes the WHERE clause for filters against a single table and
// returns the number of predicates rendered. Filters naming another table or
// an unknown column are dropped.
func (c *compilerContext) renderWhere(ti *sdata.DBTable, filters []qcode.Filter, qualify bool) int {
	n := 0
	for _, f := range filters {
		col, ok := resolveFilter(ti, f)
		if !ok {
			c.ignored = append(c.ignored, "filter: "+f.Field)
			continue
		}
		if n == 0 {
			c.w.WriteString(` WHERE `)
		} else {
			c.w.WriteString(` AND `)
		}
		table := ""
		if qualify {
			table = ti.Name
		}
		c.renderCond(table, col, f.Operator(), f.Val)
		n++
	}
	return n
}

func resolveFilter(ti *sdata.DBTable, f qcode.Filter) (sdata.DBColumn, bool) {
	tn, cn := f.Split()
	if tn != "" && tn != ti.Name {
		return sdata.DBColumn{}, false
	}
	return ti.GetColumn(cn)
}

// countFilters is the number of filters renderWhere would keep
func countFilters(ti *sdata.DBTable, filters []qcode.Filter) int {
	n := 0
	for _, f := range filters {
		if _, ok := resolveFilter(ti, f); ok {
			n++
		}
	}
	return n
}

// renderCond writes one predicate. Every value becomes a bound parameter.
func (c *compilerContext) renderCond(table string, col sdata.DBColumn, op qcode.ExpOp, val interface{}) {
	expr := c.columnExpr(table, col.Name)

	switch {
	case op == qcode.OpIn:
		c.renderIn(expr, col, val)
		return

	case op.IsPattern():
		if !col.IsText() {
			expr = c.dialect.CastText(expr)
		}
		c.w.WriteString(expr)
		c.w.WriteString(` LIKE `)
		c.w.WriteString(c.AddParam(op.Pattern(val)))
		return

	case col.IsJSON():
		if jv, ok := qcode.ParseJSONValue(val); ok && (op == qcode.OpEquals || op == qcode.OpNotEquals) {
			b, err := json.Marshal(jv)
			if err == nil {
				c.w.WriteString(c.dialect.CastJSON(expr))
				c.w.WriteString(` ` + op.SQL() + ` `)
				c.w.WriteString(c.dialect.CastJSON(c.AddParam(string(b))))
				return
			}
		}
		expr = c.dialect.CastText(expr)
		val = qcode.Stringify(val)

	default:
		val = coerce(col, val)
	}

	c.w.WriteString(expr)
	c.w.WriteString(` ` + op.SQL() + ` `)
	c.w.WriteString(c.AddParam(val))
}

func (c *compilerContext) renderIn(expr string, col sdata.DBColumn, val interface{}) {
	vals := qcode.ListValues(val)
	if len(vals) == 0 {
		c.w.WriteString(`1 = 0`)
		return
	}
	c.w.WriteString(expr)
	c.w.WriteString(` IN (`)
	for i, v := range vals {
		if i != 0 {
			c.w.WriteString(`, `)
		}
		c.w.WriteString(c.AddParam(coerce(col, v)))
	}
	c.w.WriteString(`)`)
}
