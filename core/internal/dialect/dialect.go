package dialect

import (
	"strings"

	"github.com/dosco/restjin/core/internal/qcode"
)

// Context is the write side of a compilation pass handed to the dialect
type Context interface {
	WriteString(s string) (int, error)
	Quote(s string)
	AddParam(v interface{}) string
}

type Dialect interface {
	Name() string

	// Identifier quoting, "x" or `x`
	QuoteIdentifier(s string) string

	// Placeholder for the i'th (1-indexed) bound parameter
	BindVar(i int) string

	// CastJSON wraps an expression so it compares as a json value
	CastJSON(expr string) string

	// CastText wraps an expression so it compares as text
	CastText(expr string) string

	SupportsReturning() bool
	RenderReturning(ctx Context)
	RenderLimit(ctx Context, limit, offset *int)

	// RenderOrder writes the sort direction. Nulls sort as the lowest value.
	RenderOrder(ctx Context, desc bool)
}

func New(dbType string, dbVersion int) Dialect {
	switch strings.ToLower(dbType) {
	case "mysql":
		return &MySQLDialect{}
	case "mariadb":
		return &MariaDBDialect{}
	case "sqlite", "sqlite3":
		return &SQLiteDialect{}
	default:
		return &PostgresDialect{DBVersion: dbVersion}
	}
}

var systemPrefixes = []string{"pg_", "information_schema"}

// ValidateIdentifier rejects identifiers that could break out of quoting or
// that name a system catalog. Rejection is the only safety mechanism, nothing
// is escaped.
func ValidateIdentifier(name string) error {
	if name == "" {
		return qcode.NewError(qcode.KindInvalidIdentifier, "empty identifier")
	}
	if strings.ContainsAny(name, ";\"'`") {
		return qcode.NewError(qcode.KindInvalidIdentifier, "identifier contains a forbidden character: %s", name)
	}
	ln := strings.ToLower(name)
	for _, p := range systemPrefixes {
		if strings.HasPrefix(ln, p) {
			return qcode.NewError(qcode.KindInvalidIdentifier, "system identifier not allowed: %s", name)
		}
	}
	return nil
}

// SanitizeIdentifier validates and quotes an identifier for the dialect
func SanitizeIdentifier(d Dialect, name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", err
	}
	return d.QuoteIdentifier(name), nil
}

func renderOrder(ctx Context, desc bool) {
	if desc {
		ctx.WriteString(` DESC`)
	} else {
		ctx.WriteString(` ASC`)
	}
}

// renderLimit is shared by every dialect that uses LIMIT n OFFSET m
func renderLimit(ctx Context, limit, offset *int) {
	if limit != nil {
		ctx.WriteString(` LIMIT `)
		ctx.WriteString(ctx.AddParam(*limit))
	}
	if offset != nil && *offset != 0 {
		ctx.WriteString(` OFFSET `)
		ctx.WriteString(ctx.AddParam(*offset))
	}
}
