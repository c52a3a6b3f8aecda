package memdb

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dosco/restjin/core/internal/qcode"
	"go.uber.org/zap"
)

type WriteOp string

const (
	OpInsert WriteOp = "INSERT"
	OpUpdate WriteOp = "UPDATE"
	OpDelete WriteOp = "DELETE"
)

// ParseWriteOp accepts the operation name in any case
func ParseWriteOp(s string) (WriteOp, error) {
	switch op := WriteOp(strings.ToUpper(s)); op {
	case OpInsert, OpUpdate, OpDelete:
		return op, nil
	}
	return "", qcode.NewError(qcode.KindInvalidGraph, "unknown write operation: %s", s)
}

type WriteOptions struct {
	// PreviewOnly computes the effect of the write without applying it
	PreviewOnly bool
	// AdditionalFilters are combined with the graph filters
	AdditionalFilters []qcode.Filter
}

// TableWrite is the effect of a write on one table
type TableWrite struct {
	Operation    WriteOp `json:"operation"`
	Data         Row     `json:"data,omitempty"`
	UpdatedCount *int    `json:"updatedCount,omitempty"`
	DeletedCount *int    `json:"deletedCount,omitempty"`
	Preview      bool    `json:"preview"`
	Message      string  `json:"message,omitempty"`
}

type WriteResult struct {
	Operation WriteOp                `json:"operation"`
	Tables    map[string]*TableWrite `json:"tables"`
}

// ExecuteWrite inserts, updates or deletes rows. Data keys are either bare
// columns of the graph source or table.column. Every table is written
// independently, a failure part way through a multi table write leaves the
// earlier tables written.
func (s *Store) ExecuteWrite(op WriteOp, g *qcode.Graph, data map[string]interface{}, opts WriteOptions) (*WriteResult, error) {
	if err := g.Normalize(); err != nil {
		return nil, err
	}
	if _, err := s.table(g.Source.Table); err != nil {
		return nil, err
	}

	res := &WriteResult{Operation: op, Tables: make(map[string]*TableWrite)}

	var err error
	switch op {
	case OpInsert:
		err = s.insert(res, g, data, opts)
	case OpUpdate:
		err = s.update(res, g, data, opts)
	case OpDelete:
		err = s.delete(res, g, opts)
	default:
		err = qcode.NewError(qcode.KindInvalidGraph, "unknown write operation: %s", op)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) insert(res *WriteResult, g *qcode.Graph, data map[string]interface{}, opts WriteOptions) error {
	per, order, err := s.splitData(g, data)
	if err != nil {
		return err
	}

	for _, tn := range order {
		t := s.tables[tn]

		t.Lock()
		row := t.prepareInsert(per[tn].Clone())
		if !opts.PreviewOnly {
			t.rows = append(t.rows, row)
		}
		t.Unlock()

		res.Tables[tn] = &TableWrite{
			Operation: OpInsert,
			Data:      row.Clone(),
			Preview:   opts.PreviewOnly,
		}
	}
	return nil
}

func (s *Store) update(res *WriteResult, g *qcode.Graph, data map[string]interface{}, opts WriteOptions) error {
	per, order, err := s.splitData(g, data)
	if err != nil {
		return err
	}
	filters := combine(g.Filters, opts.AdditionalFilters)

	// resolve everything up front so a missing filter fails before any
	// table is touched
	scoped := make(map[string][]qcode.PlanFilter, len(order))
	for _, tn := range order {
		fl := s.scopedFilters(g, tn, filters, order)
		if len(fl) == 0 {
			return qcode.NewError(qcode.KindMissingFilter,
				"update on '%s' requires at least one filter", tn)
		}
		scoped[tn] = fl
	}

	for _, tn := range order {
		t := s.tables[tn]
		fl := scoped[tn]
		n := 0

		t.Lock()
		for i, r := range t.rows {
			if !matchAll(addressable(tn, r), fl) {
				continue
			}
			n++
			if opts.PreviewOnly {
				continue
			}
			nr := r.Clone()
			for k, v := range per[tn] {
				nr[k] = v
			}
			t.rows[i] = nr
		}
		t.Unlock()

		tw := &TableWrite{Operation: OpUpdate, UpdatedCount: &n, Preview: opts.PreviewOnly}
		if opts.PreviewOnly {
			tw.Message = fmt.Sprintf("would update %d rows", n)
		}
		res.Tables[tn] = tw
	}
	return nil
}

// delete removes source rows. Filters on joined tables act as a semi join:
// a source row goes only if one of its joined rows passes them.
func (s *Store) delete(res *WriteResult, g *qcode.Graph, opts WriteOptions) error {
	filters := combine(g.Filters, opts.AdditionalFilters)
	if len(filters) == 0 {
		return qcode.NewError(qcode.KindMissingFilter,
			"delete on '%s' requires at least one filter", g.Source.Table)
	}

	p, err := qcode.NewPlan(s.schema, &qcode.Graph{
		Source:  g.Source,
		Joins:   g.Joins,
		Filters: filters,
	})
	if err != nil {
		return err
	}
	for _, ref := range p.Ignored {
		s.log.Warn("delete filter has no effect", zap.String("ref", ref))
	}
	if len(p.Filters) == 0 {
		return qcode.NewError(qcode.KindMissingFilter,
			"delete on '%s' has no resolvable filter", g.Source.Table)
	}

	semi := false
	for _, f := range p.Filters {
		if !f.Source {
			semi = true
		}
	}

	// joined tables are read before the source is locked
	snap := make(map[string][]Row, len(p.Joins))
	for _, j := range p.Joins {
		if t, ok := s.tables[j.Table.Name]; ok {
			snap[j.Table.Name] = t.snapshot()
		}
	}

	src := p.Source.Name
	t := s.tables[src]
	n := 0

	t.Lock()
	keep := make([]Row, 0, len(t.rows))
	for _, r := range t.rows {
		rows := filterRows([]Row{addressable(src, r)}, p.Filters, true)
		if len(rows) != 0 && semi {
			rows = filterRows(joinRows(rows, p.Joins, snap), p.Filters, false)
		}
		if len(rows) != 0 {
			n++
			if !opts.PreviewOnly {
				continue
			}
		}
		keep = append(keep, r)
	}
	if !opts.PreviewOnly {
		t.rows = keep
	}
	t.Unlock()

	tw := &TableWrite{Operation: OpDelete, DeletedCount: &n, Preview: opts.PreviewOnly}
	if opts.PreviewOnly {
		tw.Message = fmt.Sprintf("would delete %d rows", n)
	}
	res.Tables[src] = tw
	return nil
}

// splitData groups the write data by table, bare keys belong to the source.
// Returns the tables in write order, the source first.
func (s *Store) splitData(g *qcode.Graph, data map[string]interface{}) (map[string]Row, []string, error) {
	src := g.Source.Table
	per := make(map[string]Row)
	seen := make(map[string]bool)

	for k, v := range data {
		tn, cn := qcode.SplitField(k)
		if tn == "" || tn == g.Source.Alias {
			tn = src
		}
		t, err := s.table(tn)
		if err != nil {
			return nil, nil, err
		}
		seen[tn] = true
		if !t.info.IsValidColumn(cn) {
			s.log.Debug("ignoring unknown column", zap.String("table", tn), zap.String("column", cn))
			continue
		}
		if per[tn] == nil {
			per[tn] = make(Row)
		}
		per[tn][cn] = v
	}

	if len(seen) == 0 {
		return nil, nil, qcode.NewError(qcode.KindNoValidColumns, "no data for table '%s'", src)
	}

	var order []string
	for tn := range seen {
		if len(per[tn]) == 0 {
			return nil, nil, qcode.NewError(qcode.KindNoValidColumns,
				"no valid columns for table '%s'", tn)
		}
		if tn != src {
			order = append(order, tn)
		}
	}
	sort.Strings(order)
	if seen[src] {
		order = append([]string{src}, order...)
	}
	return per, order, nil
}

// scopedFilters resolves the filters that apply to one written table
func (s *Store) scopedFilters(g *qcode.Graph, tn string, filters []qcode.Filter, written []string) []qcode.PlanFilter {
	t := s.tables[tn]
	var fl []qcode.PlanFilter

	for _, f := range filters {
		ftn, cn := f.Split()
		if ftn == "" || ftn == g.Source.Alias {
			ftn = g.Source.Table
		}
		if ftn != tn {
			if !contains(written, ftn) {
				s.log.Warn("update filter has no effect", zap.String("ref", f.Field))
			}
			continue
		}
		col, ok := t.info.GetColumn(cn)
		if !ok {
			s.log.Debug("ignoring unresolved reference", zap.String("ref", f.Field))
			continue
		}
		fl = append(fl, qcode.PlanFilter{
			Ref:    qcode.ColumnRef{Table: tn, Col: col},
			Op:     f.Operator(),
			Val:    f.Val,
			Source: tn == g.Source.Table,
		})
	}
	return fl
}

func addressable(table string, r Row) Row {
	return normalize(table, []Row{r})[0]
}

func combine(a, b []qcode.Filter) []qcode.Filter {
	fl := make([]qcode.Filter, 0, len(a)+len(b))
	fl = append(fl, a...)
	return append(fl, b...)
}

func contains(l []string, s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}
