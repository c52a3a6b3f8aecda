package core

import (
	"context"
	"strings"

	"github.com/dosco/restjin/core/internal/memdb"
	"github.com/dosco/restjin/core/internal/psql"
	"github.com/dosco/restjin/core/internal/qcode"
	"github.com/dosco/restjin/core/internal/sdata"
)

// Table is a handle on one table of a connection. The same calls run against
// the database pool or the local store depending on the connection.
type Table struct {
	e  *Engine
	c  *connection
	ti *sdata.DBTable
}

// ListArgs narrows a table listing. Filters on unknown columns and an unknown
// OrderBy are ignored.
type ListArgs struct {
	Filters  []Filter
	Limit    *int
	Offset   *int
	OrderBy  string
	OrderDir string
}

// Table returns a handle on the named table of a connection
func (e *Engine) Table(conn, name string) (*Table, error) {
	c, err := e.conn(conn)
	if err != nil {
		return nil, err
	}
	ti, ok := c.schema.Find(name)
	if !ok {
		return nil, unknownTable(name)
	}
	return &Table{e: e, c: c, ti: ti}, nil
}

func (t *Table) Name() string {
	return t.ti.Name
}

// List returns the rows of the table matching the filters
func (t *Table) List(ctx context.Context, args ListArgs) ([]Row, error) {
	args.Limit = t.e.conf.limit(args.Limit)

	if t.c.local() {
		g := t.graph(args.Filters)
		g.Limit = args.Limit
		if args.Offset != nil {
			g.Offset = *args.Offset
		}
		if args.OrderBy != "" {
			g.Sort = []qcode.Sort{{Field: args.OrderBy, Dir: orderDir(args.OrderDir)}}
		}
		res, err := t.c.store.Execute(g)
		if err != nil {
			return nil, err
		}
		return toRows(res.Rows), nil
	}

	q, err := t.selectStmt(args)
	if err != nil {
		return nil, err
	}
	res, err := t.query(ctx, q)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// selectStmt compiles a listing through the statement cache
func (t *Table) selectStmt(args ListArgs) (psql.Query, error) {
	key, ok := cacheKey(t.c.name, "list", t.ti.Name, args)
	if ok {
		if cs, ok := t.e.cache.Get(key); ok {
			return cs.q, nil
		}
	}

	q, err := t.c.compiler.BuildSelect(t.ti, psql.SelectArgs{
		Filters:  args.Filters,
		Limit:    args.Limit,
		Offset:   args.Offset,
		OrderBy:  args.OrderBy,
		OrderDir: args.OrderDir,
	})
	if err != nil {
		return q, err
	}
	if ok {
		t.e.cache.Set(key, &cachedStmt{q: q})
	}
	return q, nil
}

// Get returns the row with the given primary key
func (t *Table) Get(ctx context.Context, id interface{}) (Row, error) {
	if t.c.local() {
		pk, err := t.primaryKey()
		if err != nil {
			return nil, err
		}
		res, err := t.c.store.Execute(t.graph([]Filter{qcode.Simple(pk.Name, id)}))
		if err != nil {
			return nil, err
		}
		if len(res.Rows) == 0 {
			return nil, errNotFound(t.ti.Name, id)
		}
		return Row(res.Rows[0]), nil
	}

	q, err := t.c.compiler.BuildSelectByID(t.ti, id)
	if err != nil {
		return nil, err
	}
	return t.queryOne(ctx, q, id)
}

// Create inserts a row and returns it as stored. On databases without
// RETURNING support the row is read back by its primary key, taken from the
// data when given and from the generated insert id otherwise.
func (t *Table) Create(ctx context.Context, data map[string]interface{}) (Row, error) {
	if t.c.local() {
		res, err := t.c.store.ExecuteWrite(memdb.OpInsert, t.graph(nil), t.bare(data), memdb.WriteOptions{})
		if err != nil {
			return nil, err
		}
		return Row(res.Tables[t.ti.Name].Data), nil
	}

	q, err := t.c.compiler.BuildInsert(t.ti, data)
	if err != nil {
		return nil, err
	}
	res, err := t.query(ctx, q)
	if err != nil {
		return nil, err
	}
	if t.c.compiler.GetDialect().SupportsReturning() {
		if len(res.Rows) == 0 {
			return Row(data), nil
		}
		return res.Rows[0], nil
	}

	pk, ok := t.ti.PrimaryKey()
	if !ok {
		return Row(data), nil
	}
	var id interface{} = res.InsertID
	if v, ok := data[pk.Name]; ok && !qcode.IsNull(v) {
		id = v
	}
	sq, err := t.c.compiler.BuildSelectByInsertID(t.ti, id)
	if err != nil {
		return nil, err
	}
	return t.queryOne(ctx, sq, id)
}

// Update merges data into the row with the given primary key and returns
// the updated row
func (t *Table) Update(ctx context.Context, id interface{}, data map[string]interface{}) (Row, error) {
	if t.c.local() {
		pk, err := t.primaryKey()
		if err != nil {
			return nil, err
		}
		res, err := t.c.store.ExecuteWrite(memdb.OpUpdate,
			t.graph([]Filter{qcode.Simple(pk.Name, id)}), t.bare(data), memdb.WriteOptions{})
		if err != nil {
			return nil, err
		}
		if n := res.Tables[t.ti.Name].UpdatedCount; n == nil || *n == 0 {
			return nil, errNotFound(t.ti.Name, id)
		}
		return t.Get(ctx, id)
	}

	q, err := t.c.compiler.BuildUpdate(t.ti, id, data)
	if err != nil {
		return nil, err
	}
	if t.c.compiler.GetDialect().SupportsReturning() {
		return t.queryOne(ctx, q, id)
	}
	if _, err := t.query(ctx, q); err != nil {
		return nil, err
	}
	// affected rows is zero on mysql when nothing changed, so existence is
	// decided by reading the row back
	return t.Get(ctx, id)
}

// Delete removes the row with the given primary key and returns it
func (t *Table) Delete(ctx context.Context, id interface{}) (Row, error) {
	if t.c.local() {
		row, err := t.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		pk, _ := t.ti.PrimaryKey()
		_, err = t.c.store.ExecuteWrite(memdb.OpDelete,
			t.graph([]Filter{qcode.Simple(pk.Name, id)}), nil, memdb.WriteOptions{})
		if err != nil {
			return nil, err
		}
		return row, nil
	}

	q, err := t.c.compiler.BuildDelete(t.ti, id)
	if err != nil {
		return nil, err
	}
	if t.c.compiler.GetDialect().SupportsReturning() {
		return t.queryOne(ctx, q, id)
	}

	row, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := t.query(ctx, q); err != nil {
		return nil, err
	}
	return row, nil
}

// UpdateWhere merges data into every row matching the filters and returns
// the number of rows changed. At least one filter must name a column.
func (t *Table) UpdateWhere(ctx context.Context, filters []Filter, data map[string]interface{}) (int, error) {
	if t.c.local() {
		res, err := t.c.store.ExecuteWrite(memdb.OpUpdate, t.graph(filters), t.bare(data), memdb.WriteOptions{})
		if err != nil {
			return 0, err
		}
		return count(res.Tables[t.ti.Name].UpdatedCount), nil
	}

	q, err := t.c.compiler.BuildUpdateWhere(t.ti, filters, data)
	if err != nil {
		return 0, err
	}
	return t.exec(ctx, q)
}

// DeleteWhere removes every row matching the filters and returns the number
// of rows removed. At least one filter must name a column.
func (t *Table) DeleteWhere(ctx context.Context, filters []Filter) (int, error) {
	if t.c.local() {
		res, err := t.c.store.ExecuteWrite(memdb.OpDelete, t.graph(filters), nil, memdb.WriteOptions{})
		if err != nil {
			return 0, err
		}
		return count(res.Tables[t.ti.Name].DeletedCount), nil
	}

	q, err := t.c.compiler.BuildDeleteWhere(t.ti, filters)
	if err != nil {
		return 0, err
	}
	return t.exec(ctx, q)
}

// Related lists the rows of a related table that belong to the row with the
// given primary key. fkCol optionally pins the foreign key column when more
// than one links the tables.
func (t *Table) Related(ctx context.Context, id interface{}, related, fkCol string, args ListArgs) ([]Row, error) {
	args.Limit = t.e.conf.limit(args.Limit)

	if !t.c.local() {
		q, err := t.c.compiler.BuildRelated(t.c.schema, t.ti, related, id, fkCol, psql.SelectArgs{
			Filters:  args.Filters,
			Limit:    args.Limit,
			Offset:   args.Offset,
			OrderBy:  args.OrderBy,
			OrderDir: args.OrderDir,
		})
		if err != nil {
			return nil, err
		}
		res, err := t.query(ctx, q)
		if err != nil {
			return nil, err
		}
		return res.Rows, nil
	}

	pk, err := t.primaryKey()
	if err != nil {
		return nil, err
	}
	rt, err := t.e.Table(t.c.name, related)
	if err != nil {
		return nil, err
	}
	rel, ok := t.c.schema.FindRelationship(t.ti, rt.ti.Name, fkCol)
	if !ok {
		return nil, qcode.NewError(qcode.KindNoRelationship,
			"no relationship between '%s' and '%s'", t.ti.Name, rt.ti.Name)
	}

	key := id
	if rel.ParentCol != pk.Name {
		parent, err := t.Get(ctx, id)
		if qcode.IsKind(err, qcode.KindNotFound) {
			return []Row{}, nil
		}
		if err != nil {
			return nil, err
		}
		if key = parent[rel.ParentCol]; key == nil {
			return []Row{}, nil
		}
	}

	filters := append([]Filter{qcode.Simple(rel.RelatedCol, key)}, args.Filters...)
	return rt.List(ctx, ListArgs{
		Filters:  filters,
		Limit:    args.Limit,
		Offset:   args.Offset,
		OrderBy:  args.OrderBy,
		OrderDir: args.OrderDir,
	})
}

// graph is a single table graph over this table
func (t *Table) graph(filters []Filter) *qcode.Graph {
	return &qcode.Graph{
		Source:  qcode.Source{Table: t.ti.Name},
		Filters: filters,
	}
}

// bare drops table prefixes naming this table so the write stays on it
func (t *Table) bare(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		tn, cn := qcode.SplitField(k)
		if tn != "" && tn != t.ti.Name {
			continue
		}
		out[cn] = v
	}
	return out
}

func (t *Table) primaryKey() (sdata.DBColumn, error) {
	pk, ok := t.ti.PrimaryKey()
	if !ok {
		return pk, qcode.NewError(qcode.KindNoPrimaryKey, "table '%s' has no primary key", t.ti.Name)
	}
	return pk, nil
}

func (t *Table) query(ctx context.Context, q psql.Query) (PoolResult, error) {
	t.e.logIgnored(t.c.name, q.Ignored)
	t.e.log.Debugw("query", "connection", t.c.name, "sql", q.Text)
	return t.c.pool.Query(ctx, q.Text, q.Values)
}

func (t *Table) queryOne(ctx context.Context, q psql.Query, id interface{}) (Row, error) {
	res, err := t.query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, errNotFound(t.ti.Name, id)
	}
	return res.Rows[0], nil
}

// exec runs a collection write and returns the rows it touched
func (t *Table) exec(ctx context.Context, q psql.Query) (int, error) {
	res, err := t.query(ctx, q)
	if err != nil {
		return 0, err
	}
	if t.c.compiler.GetDialect().SupportsReturning() {
		return len(res.Rows), nil
	}
	return int(res.AffectedRows), nil
}

func orderDir(dir string) qcode.Order {
	if strings.EqualFold(dir, "desc") {
		return qcode.OrderDesc
	}
	return qcode.OrderAsc
}

func count(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}
