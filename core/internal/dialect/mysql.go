package dialect

type MySQLDialect struct{}

// MySQL has no OFFSET without LIMIT, this is the documented way to ask for
// all remaining rows
const mysqlNoLimit = `18446744073709551615`

func (d *MySQLDialect) Name() string {
	return "mysql"
}

func (d *MySQLDialect) QuoteIdentifier(s string) string {
	return "`" + s + "`"
}

func (d *MySQLDialect) BindVar(i int) string {
	return `?`
}

func (d *MySQLDialect) CastJSON(expr string) string {
	return `CAST(` + expr + ` AS JSON)`
}

func (d *MySQLDialect) CastText(expr string) string {
	return `CAST(` + expr + ` AS CHAR)`
}

// SupportsReturning is false, the caller selects the row back by its
// last insert id
func (d *MySQLDialect) SupportsReturning() bool {
	return false
}

func (d *MySQLDialect) RenderReturning(ctx Context) {}

func (d *MySQLDialect) RenderOrder(ctx Context, desc bool) {
	renderOrder(ctx, desc)
}

func (d *MySQLDialect) RenderLimit(ctx Context, limit, offset *int) {
	if limit == nil && offset != nil && *offset != 0 {
		ctx.WriteString(` LIMIT ` + mysqlNoLimit)
		ctx.WriteString(` OFFSET `)
		ctx.WriteString(ctx.AddParam(*offset))
		return
	}
	renderLimit(ctx, limit, offset)
}
