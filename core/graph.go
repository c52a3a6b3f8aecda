package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/dosco/restjin/core/internal/memdb"
	"github.com/dosco/restjin/core/internal/qcode"
)

type WriteOptions = memdb.WriteOptions

// QueryGraph runs a query graph against a connection. Local connections run
// it in memory, the others compile it to a single SELECT. Total is the row
// count before pagination.
func (e *Engine) QueryGraph(ctx context.Context, conn string, g *Graph) (*Result, error) {
	c, err := e.conn(conn)
	if err != nil {
		return nil, err
	}
	g = e.withLimit(g)

	if c.local() {
		res, err := c.store.Execute(g)
		if err != nil {
			return nil, err
		}
		return &Result{Rows: toRows(res.Rows), Total: res.Total, Columns: res.Columns}, nil
	}

	cs, err := e.compileGraph(c, g)
	if err != nil {
		return nil, err
	}
	e.logIgnored(conn, cs.q.Ignored)
	e.log.Debugw("query", "connection", conn, "sql", cs.q.Text)

	res, err := c.pool.Query(ctx, cs.q.Text, cs.q.Values)
	if err != nil {
		return nil, err
	}
	rows := res.Rows
	if rows == nil {
		rows = []Row{}
	}
	total := len(rows)

	if cs.count != nil {
		cr, err := c.pool.Query(ctx, cs.count.Text, cs.count.Values)
		if err != nil {
			return nil, err
		}
		if len(cr.Rows) != 0 {
			if n, ok := qcode.ToFloat(cr.Rows[0]["total"]); ok {
				total = int(n)
			}
		}
	}
	return &Result{Rows: rows, Total: total, Columns: cs.columns}, nil
}

// CompileGraph compiles a query graph to SQL in the dialect of the
// connection without running it
func (e *Engine) CompileGraph(conn string, g *Graph) (Statement, error) {
	c, err := e.conn(conn)
	if err != nil {
		return Statement{}, err
	}
	cs, err := e.compileGraph(c, e.withLimit(g))
	if err != nil {
		return Statement{}, err
	}
	return newStatement(cs.q), nil
}

// compileGraph lowers and compiles a graph through the statement cache
func (e *Engine) compileGraph(c *connection, g *Graph) (*cachedStmt, error) {
	if err := g.Normalize(); err != nil {
		return nil, err
	}

	key, ok := cacheKey(c.name, "graph", g)
	if ok {
		if cs, ok := e.cache.Get(key); ok {
			return cs, nil
		}
	}

	p, err := qcode.NewPlan(c.schema, g)
	if err != nil {
		return nil, err
	}
	q, err := c.compiler.CompilePlan(p)
	if err != nil {
		return nil, err
	}
	cs := &cachedStmt{q: q, columns: p.Columns()}

	if p.Limit != nil || p.Offset != 0 {
		cq, err := c.compiler.CompileCount(p)
		if err != nil {
			return nil, err
		}
		cs.count = &cq
	}

	if ok {
		e.cache.Set(key, cs)
	}
	return cs, nil
}

// withLimit returns the graph with the configured default and maximum limit
// applied, leaving the caller's graph untouched
func (e *Engine) withLimit(g *Graph) *Graph {
	l := e.conf.limit(g.Limit)
	if l == g.Limit {
		return g
	}
	gc := *g
	gc.Limit = l
	return &gc
}

// WriteGraph inserts, updates or deletes through a graph. Data keys are bare
// columns of the source or table.column for other tables. Each table is
// written on its own, there is no transaction across tables. With
// PreviewOnly nothing is written: local connections report the rows that
// would be affected, SQL connections the statements that would run.
func (e *Engine) WriteGraph(ctx context.Context, conn string, op WriteOp, g *Graph,
	data map[string]interface{}, opts WriteOptions,
) (*WriteResult, error) {
	c, err := e.conn(conn)
	if err != nil {
		return nil, err
	}
	if c.local() {
		return c.store.ExecuteWrite(op, g, data, opts)
	}

	if err := g.Normalize(); err != nil {
		return nil, err
	}
	src, err := e.Table(conn, g.Source.Table)
	if err != nil {
		return nil, err
	}
	w := graphWriter{e: e, conn: conn, g: g, src: src, opts: opts}
	res := &WriteResult{Operation: op, Tables: make(map[string]*TableWrite)}

	switch op {
	case OpInsert:
		err = w.insert(ctx, res, data)
	case OpUpdate:
		err = w.update(ctx, res, data)
	case OpDelete:
		err = w.delete(ctx, res)
	default:
		err = qcode.NewError(qcode.KindInvalidGraph, "unknown write operation: %s", op)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

type graphWriter struct {
	e    *Engine
	conn string
	g    *Graph
	src  *Table
	opts WriteOptions
}

func (w *graphWriter) insert(ctx context.Context, res *WriteResult, data map[string]interface{}) error {
	per, order, err := w.split(data)
	if err != nil {
		return err
	}
	for _, t := range order {
		d := per[t.Name()]
		if w.opts.PreviewOnly {
			q, err := t.c.compiler.BuildInsert(t.ti, d)
			if err != nil {
				return err
			}
			res.Tables[t.Name()] = preview(OpInsert, q.Text, d)
			continue
		}
		row, err := t.Create(ctx, d)
		if err != nil {
			return err
		}
		res.Tables[t.Name()] = &TableWrite{Operation: OpInsert, Data: memdb.Row(row)}
	}
	return nil
}

func (w *graphWriter) update(ctx context.Context, res *WriteResult, data map[string]interface{}) error {
	per, order, err := w.split(data)
	if err != nil {
		return err
	}
	filters := append(append([]Filter(nil), w.g.Filters...), w.opts.AdditionalFilters...)

	written := make(map[string]bool, len(order))
	for _, t := range order {
		written[t.Name()] = true
	}
	for _, f := range filters {
		if tn := w.filterTable(f); !written[tn] {
			w.e.log.Warnw("update filter has no effect", "connection", w.conn, "ref", f.Field)
		}
	}

	// compile everything first so a missing filter fails before any write
	stmts := make(map[string]Statement, len(order))
	for _, t := range order {
		q, err := t.c.compiler.BuildUpdateWhere(t.ti, w.scoped(t.Name(), filters), per[t.Name()])
		if err != nil {
			return err
		}
		stmts[t.Name()] = newStatement(q)
	}

	for _, t := range order {
		if w.opts.PreviewOnly {
			res.Tables[t.Name()] = preview(OpUpdate, stmts[t.Name()].Text, nil)
			continue
		}
		n, err := t.UpdateWhere(ctx, w.scoped(t.Name(), filters), per[t.Name()])
		if err != nil {
			return err
		}
		res.Tables[t.Name()] = &TableWrite{Operation: OpUpdate, UpdatedCount: &n}
	}
	return nil
}

// delete removes source rows. Filters on joined tables act as a semi join,
// the same as on local connections.
func (w *graphWriter) delete(ctx context.Context, res *WriteResult) error {
	filters := append(append([]Filter(nil), w.g.Filters...), w.opts.AdditionalFilters...)
	src := w.src.Name()
	if len(filters) == 0 {
		return qcode.NewError(qcode.KindMissingFilter, "delete on '%s' requires at least one filter", src)
	}

	p, err := qcode.NewPlan(w.src.c.schema, &qcode.Graph{
		Source:  w.g.Source,
		Joins:   w.g.Joins,
		Filters: filters,
	})
	if err != nil {
		return err
	}
	q, err := w.src.c.compiler.CompileDelete(p)
	if err != nil {
		return err
	}

	if w.opts.PreviewOnly {
		res.Tables[src] = preview(OpDelete, q.Text, nil)
		return nil
	}

	n, err := w.src.exec(ctx, q)
	if err != nil {
		return err
	}
	res.Tables[src] = &TableWrite{Operation: OpDelete, DeletedCount: &n}
	return nil
}

// split groups the write data by table, the source first and the others in
// name order
func (w *graphWriter) split(data map[string]interface{}) (map[string]map[string]interface{}, []*Table, error) {
	per := make(map[string]map[string]interface{})
	tables := make(map[string]*Table)

	for k, v := range data {
		tn, cn := qcode.SplitField(k)
		if tn == "" || tn == w.g.Source.Alias {
			tn = w.src.Name()
		}
		if _, ok := tables[tn]; !ok {
			t, err := w.e.Table(w.conn, tn)
			if err != nil {
				return nil, nil, err
			}
			tables[tn] = t
			per[tn] = make(map[string]interface{})
		}
		per[tn][cn] = v
	}
	if len(tables) == 0 {
		return nil, nil, qcode.NewError(qcode.KindNoValidColumns, "no data for table '%s'", w.src.Name())
	}

	names := sortedKeys(tables)
	sort.SliceStable(names, func(i, j int) bool {
		return names[i] == w.src.Name() && names[j] != w.src.Name()
	})
	order := make([]*Table, len(names))
	for i, n := range names {
		order[i] = tables[n]
	}
	return per, order, nil
}

func (w *graphWriter) filterTable(f Filter) string {
	tn, _ := f.Split()
	if tn == "" || tn == w.g.Source.Alias {
		return w.src.Name()
	}
	return tn
}

// scoped returns the filters on one table with the table prefix removed
func (w *graphWriter) scoped(table string, filters []Filter) []Filter {
	var out []Filter
	for _, f := range filters {
		if w.filterTable(f) != table {
			continue
		}
		_, cn := f.Split()
		f.Field = cn
		out = append(out, f)
	}
	return out
}

func preview(op WriteOp, text string, data map[string]interface{}) *TableWrite {
	tw := &TableWrite{
		Operation: op,
		Preview:   true,
		Message:   fmt.Sprintf("would run: %s", text),
	}
	if data != nil {
		tw.Data = memdb.Row(data)
	}
	return tw
}
