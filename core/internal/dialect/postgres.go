package dialect

import (
	"fmt"
)

type PostgresDialect struct {
	DBVersion int
}

func (d *PostgresDialect) Name() string {
	return "postgres"
}

func (d *PostgresDialect) QuoteIdentifier(s string) string {
	return `"` + s + `"`
}

func (d *PostgresDialect) BindVar(i int) string {
	return fmt.Sprintf("$%d", i)
}

func (d *PostgresDialect) CastJSON(expr string) string {
	return expr + `::jsonb`
}

func (d *PostgresDialect) CastText(expr string) string {
	return expr + `::text`
}

func (d *PostgresDialect) SupportsReturning() bool {
	return true
}

func (d *PostgresDialect) RenderReturning(ctx Context) {
	ctx.WriteString(` RETURNING *`)
}

// RenderOrder overrides postgres' default of sorting nulls as the highest
// value
func (d *PostgresDialect) RenderOrder(ctx Context, desc bool) {
	renderOrder(ctx, desc)
	if desc {
		ctx.WriteString(` NULLS LAST`)
	} else {
		ctx.WriteString(` NULLS FIRST`)
	}
}

func (d *PostgresDialect) RenderLimit(ctx Context, limit, offset *int) {
	renderLimit(ctx, limit, offset)
}
