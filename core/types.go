package core

import (
	"context"
	"database/sql"

	"github.com/dosco/restjin/core/internal/memdb"
	"github.com/dosco/restjin/core/internal/psql"
	"github.com/dosco/restjin/core/internal/qcode"
	"github.com/dosco/restjin/core/internal/sdata"
)

type (
	Graph       = qcode.Graph
	Filter      = qcode.Filter
	DBTable     = sdata.DBTable
	DBColumn    = sdata.DBColumn
	DBSchema    = sdata.DBSchema
	SchemaFile  = sdata.SchemaFile
	WriteOp     = memdb.WriteOp
	WriteResult = memdb.WriteResult
	TableWrite  = memdb.TableWrite
)

const (
	OpInsert = memdb.OpInsert
	OpUpdate = memdb.OpUpdate
	OpDelete = memdb.OpDelete
)

// Row is a single record keyed by column name
type Row = map[string]interface{}

// Statement is a compiled SQL statement. Values line up one to one, in
// order, with the placeholders in Text.
type Statement struct {
	Text    string        `json:"text"`
	Values  []interface{} `json:"values"`
	Ignored []string      `json:"ignored,omitempty"`
}

func newStatement(q psql.Query) Statement {
	return Statement{Text: q.Text, Values: q.Values, Ignored: q.Ignored}
}

// Result is the output of a graph query
type Result struct {
	Rows    []Row    `json:"rows"`
	Total   int      `json:"total"`
	Columns []string `json:"columns"`
}

// ParseGraph decodes and validates a query graph from its JSON form
func ParseGraph(b []byte) (*Graph, error) {
	return qcode.ParseGraph(b)
}

// FiltersFromQuery turns `column__op=value` query parameters into filters,
// skipping the reserved keys
func FiltersFromQuery(params map[string][]string, reserved ...string) []Filter {
	return qcode.FiltersFromQuery(params, reserved...)
}

// FiltersFromMap turns a `column__op: value` map into filters
func FiltersFromMap(m map[string]interface{}) ([]Filter, error) {
	return qcode.FiltersFromMap(m)
}

func ParseWriteOp(s string) (WriteOp, error) {
	return memdb.ParseWriteOp(s)
}

// ParseSchema decodes a YAML schema file
func ParseSchema(b []byte) (*SchemaFile, error) {
	return sdata.ParseSchema(b)
}

// DiscoverTables introspects the tables of a live database
func DiscoverTables(ctx context.Context, db *sql.DB, dbType string) ([]DBTable, error) {
	return sdata.DiscoverTables(ctx, db, dbType)
}

func toRows(rows []memdb.Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row(r)
	}
	return out
}
