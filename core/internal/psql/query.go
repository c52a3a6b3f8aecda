//nolint:errcheck
package psql

import (
	"bytes"
	"strings"

	"github.com/dosco/restjin/core/internal/dialect"
	"github.com/dosco/restjin/core/internal/qcode"
	"github.com/dosco/restjin/core/internal/sdata"
)

type Config struct {
	DBType    string
	DBVersion int
}

// Compiler turns table operations and query graphs into parameterized SQL
// for one dialect. It holds no per-query state and is safe for concurrent use.
type Compiler struct {
	dialect dialect.Dialect
}

// Query is a compiled statement. Values line up one to one, in order, with
// the placeholders in Text.
type Query struct {
	Text   string
	Values []interface{}
	// Ignored lists filter, sort and field references that matched no column
	Ignored []string
}

// SelectArgs narrows a table listing
type SelectArgs struct {
	Filters  []qcode.Filter
	Limit    *int
	Offset   *int
	OrderBy  string
	OrderDir string
}

type compilerContext struct {
	w       *bytes.Buffer
	values  []interface{}
	ignored []string
	err     error
	*Compiler
}

func NewCompiler(conf Config) *Compiler {
	return &Compiler{dialect: dialect.New(conf.DBType, conf.DBVersion)}
}

func (co *Compiler) GetDialect() dialect.Dialect {
	return co.dialect
}

func (co *Compiler) newContext() *compilerContext {
	return &compilerContext{w: &bytes.Buffer{}, Compiler: co}
}

// query returns the finished statement or the first error hit while
// rendering, in which case no text is returned at all
func (c *compilerContext) query() (Query, error) {
	if c.err != nil {
		return Query{}, c.err
	}
	return Query{Text: c.w.String(), Values: c.values, Ignored: c.ignored}, nil
}

// BuildSelect lists rows of a table. Filters on unknown columns are dropped.
func (co *Compiler) BuildSelect(ti *sdata.DBTable, args SelectArgs) (Query, error) {
	if err := dialect.ValidateIdentifier(ti.Name); err != nil {
		return Query{}, err
	}
	c := co.newContext()

	c.w.WriteString(`SELECT * FROM `)
	c.table(ti)
	c.renderWhere(ti, args.Filters, false)
	c.renderOrderBy(ti, "", args.OrderBy, args.OrderDir)
	c.dialect.RenderLimit(c, args.Limit, args.Offset)
	return c.query()
}

// BuildSelectByID fetches a single row by its primary key
func (co *Compiler) BuildSelectByID(ti *sdata.DBTable, id interface{}) (Query, error) {
	pk, err := primaryKey(ti)
	if err != nil {
		return Query{}, err
	}
	c := co.newContext()

	c.w.WriteString(`SELECT * FROM `)
	c.table(ti)
	c.w.WriteString(` WHERE `)
	c.quoted(pk.Name)
	c.w.WriteString(` = `)
	c.w.WriteString(c.AddParam(coerce(pk, id)))
	return c.query()
}

// BuildSelectByInsertID re-reads a row just inserted on a database that
// cannot return it from the insert itself
func (co *Compiler) BuildSelectByInsertID(ti *sdata.DBTable, id interface{}) (Query, error) {
	return co.BuildSelectByID(ti, id)
}

func (c *compilerContext) renderOrderBy(ti *sdata.DBTable, table, col, dir string) {
	if col == "" {
		return
	}
	if !ti.IsValidColumn(col) {
		c.ignored = append(c.ignored, "sort: "+col)
		return
	}
	c.w.WriteString(` ORDER BY `)
	c.w.WriteString(c.columnExpr(table, col))
	c.dialect.RenderOrder(c, strings.EqualFold(dir, "desc"))
}

func primaryKey(ti *sdata.DBTable) (sdata.DBColumn, error) {
	if err := dialect.ValidateIdentifier(ti.Name); err != nil {
		return sdata.DBColumn{}, err
	}
	pk, ok := ti.PrimaryKey()
	if !ok {
		return pk, qcode.NewError(qcode.KindNoPrimaryKey, "table '%s' has no primary key", ti.Name)
	}
	return pk, nil
}
