//nolint:errcheck
package psql

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/dosco/restjin/core/internal/dialect"
	"github.com/dosco/restjin/core/internal/qcode"
	"github.com/dosco/restjin/core/internal/sdata"
)

func (c *compilerContext) WriteString(s string) (int, error) {
	return c.w.WriteString(s)
}

func (c *compilerContext) Quote(s string) {
	c.quoted(s)
}

// AddParam binds a value and returns its placeholder
func (c *compilerContext) AddParam(v interface{}) string {
	c.values = append(c.values, v)
	return c.dialect.BindVar(len(c.values))
}

// quoted writes a validated identifier, the first invalid one poisons the
// whole statement
func (c *compilerContext) quoted(identifier string) {
	if err := dialect.ValidateIdentifier(identifier); err != nil {
		if c.err == nil {
			c.err = err
		}
		return
	}
	c.w.WriteString(c.dialect.QuoteIdentifier(identifier))
}

func (c *compilerContext) table(ti *sdata.DBTable) {
	if ti.Schema != "" {
		c.quoted(ti.Schema)
		c.w.WriteString(`.`)
	}
	c.quoted(ti.Name)
}

func (c *compilerContext) colWithTable(table, col string) {
	c.quoted(table)
	c.w.WriteString(`.`)
	c.quoted(col)
}

// columnExpr renders a column, optionally table qualified, into a string so
// dialect casts can wrap it
func (c *compilerContext) columnExpr(table, col string) string {
	start := c.w.Len()
	if table != "" {
		c.colWithTable(table, col)
	} else {
		c.quoted(col)
	}
	expr := string(c.w.Bytes()[start:])
	c.w.Truncate(start)
	return expr
}

// coerce converts request values, which usually arrive as strings, to the
// column's type so the database compares like with like
func coerce(col sdata.DBColumn, v interface{}) interface{} {
	switch {
	case v == nil:
		return nil

	case col.IsInteger():
		switch n := v.(type) {
		case int:
			return int64(n)
		case int32:
			return int64(n)
		case int64:
			return n
		}
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				return n
			}
		}
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				return i
			}
		}
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			return int64(f)
		}

	case col.IsNumeric():
		if f, ok := qcode.ToFloat(v); ok {
			return f
		}

	case col.IsBool():
		if s, ok := v.(string); ok {
			if b, err := strconv.ParseBool(s); err == nil {
				return b
			}
		}

	case col.IsJSON():
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			if b, err := json.Marshal(v); err == nil {
				return string(b)
			}
		}
	}
	return v
}
