package dialect

type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string {
	return "sqlite"
}

func (d *SQLiteDialect) QuoteIdentifier(s string) string {
	return `"` + s + `"`
}

func (d *SQLiteDialect) BindVar(i int) string {
	return `?`
}

func (d *SQLiteDialect) CastJSON(expr string) string {
	return `json(` + expr + `)`
}

func (d *SQLiteDialect) CastText(expr string) string {
	return `CAST(` + expr + ` AS TEXT)`
}

func (d *SQLiteDialect) SupportsReturning() bool {
	return true
}

func (d *SQLiteDialect) RenderReturning(ctx Context) {
	ctx.WriteString(` RETURNING *`)
}

func (d *SQLiteDialect) RenderOrder(ctx Context, desc bool) {
	renderOrder(ctx, desc)
}

func (d *SQLiteDialect) RenderLimit(ctx Context, limit, offset *int) {
	if limit == nil && offset != nil && *offset != 0 {
		ctx.WriteString(` LIMIT -1 OFFSET `)
		ctx.WriteString(ctx.AddParam(*offset))
		return
	}
	renderLimit(ctx, limit, offset)
}
