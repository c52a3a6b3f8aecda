package memdb

import (
	"sort"

	"github.com/dosco/restjin/core/internal/qcode"
	"go.uber.org/zap"
)

// Result is the output of a query graph run against the store
type Result struct {
	Rows    []Row    `json:"rows"`
	Total   int      `json:"total"`
	Columns []string `json:"columns"`
}

// Execute runs a query graph. References that resolve to nothing are logged
// and skipped, only an unknown source table fails the query.
func (s *Store) Execute(g *qcode.Graph) (*Result, error) {
	if err := g.Normalize(); err != nil {
		return nil, err
	}
	p, err := qcode.NewPlan(s.schema, g)
	if err != nil {
		return nil, err
	}
	return s.ExecutePlan(p)
}

// ExecutePlan runs an already resolved plan
func (s *Store) ExecutePlan(p *qcode.Plan) (*Result, error) {
	s.logIgnored(p.Ignored)

	snap, err := s.snapshots(p)
	if err != nil {
		return nil, err
	}

	rows := normalize(p.Source.Name, snap[p.Source.Name])
	rows = filterRows(rows, p.Filters, true)
	rows = joinRows(rows, p.Joins, snap)
	rows = filterRows(rows, p.Filters, false)

	if p.Aggregate {
		rows = aggregate(rows, p)
		rows = having(rows, p.Having)
	} else {
		rows = project(rows, p)
	}

	sortRows(rows, p.Sort)

	total := len(rows)
	rows = paginate(rows, p.Limit, p.Offset)

	if rows == nil {
		rows = []Row{}
	}
	return &Result{Rows: rows, Total: total, Columns: p.Columns()}, nil
}

// snapshots takes one snapshot per participating table so a pipeline pass
// never sees a write applied halfway through
func (s *Store) snapshots(p *qcode.Plan) (map[string][]Row, error) {
	snap := make(map[string][]Row, len(p.Joins)+1)

	t, err := s.table(p.Source.Name)
	if err != nil {
		return nil, err
	}
	snap[p.Source.Name] = t.snapshot()

	for _, j := range p.Joins {
		// a joined table missing from the store simply matches nothing
		if t, ok := s.tables[j.Table.Name]; ok {
			snap[j.Table.Name] = t.snapshot()
		}
	}
	return snap, nil
}

func (s *Store) logIgnored(ignored []string) {
	for _, ref := range ignored {
		s.log.Debug("ignoring unresolved reference", zap.String("ref", ref))
	}
}

// normalize makes every source row addressable by both its bare column names
// and table_column names
func normalize(table string, rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		nr := make(Row, len(r)*2)
		for k, v := range r {
			nr[k] = v
			nr[qcode.PrefixedName(table, k)] = v
		}
		out[i] = nr
	}
	return out
}

// filterRows applies either the source filters (run before joins) or the
// filters on joined tables (run after)
func filterRows(rows []Row, filters []qcode.PlanFilter, source bool) []Row {
	var fl []qcode.PlanFilter
	for _, f := range filters {
		if f.Source == source {
			fl = append(fl, f)
		}
	}
	if len(fl) == 0 {
		return rows
	}

	out := rows[:0:0]
	for _, r := range rows {
		if matchAll(r, fl) {
			out = append(out, r)
		}
	}
	return out
}

func matchAll(r Row, filters []qcode.PlanFilter) bool {
	for _, f := range filters {
		if !f.Op.Match(r[f.Ref.Key()], f.Val) {
			return false
		}
	}
	return true
}

// joinRows is a LEFT join: a row without matches is kept once with the joined
// columns set to null, a row with matches fans out to one row per match
func joinRows(rows []Row, joins []qcode.PlanJoin, snap map[string][]Row) []Row {
	for _, j := range joins {
		target := snap[j.Table.Name]
		fromKey := j.From.Key()
		out := make([]Row, 0, len(rows))

		for _, r := range rows {
			matched := false
			if v := r[fromKey]; v != nil {
				key := qcode.Stringify(v)
				for _, tr := range target {
					tv := tr[j.To.Col.Name]
					if tv == nil || qcode.Stringify(tv) != key {
						continue
					}
					nr := r.Clone()
					for _, c := range j.Table.Columns {
						nr[qcode.PrefixedName(j.Table.Name, c.Name)] = tr[c.Name]
					}
					out = append(out, nr)
					matched = true
				}
			}
			if !matched {
				nr := r.Clone()
				for _, c := range j.Table.Columns {
					nr[qcode.PrefixedName(j.Table.Name, c.Name)] = nil
				}
				out = append(out, nr)
			}
		}
		rows = out
	}
	return rows
}

// project keeps the planned output columns under their output names, which
// also drops the bare keys of namespaced columns
func project(rows []Row, p *qcode.Plan) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		nr := make(Row, len(p.Output))
		for _, ref := range p.Output {
			nr[ref.Name(p.Multi)] = r[ref.Key()]
		}
		out[i] = nr
	}
	return out
}

// sortRows applies the sort keys last to first with a stable sort, so the
// first key ends up as the primary order
func sortRows(rows []Row, sl []qcode.PlanSort) {
	for i := len(sl) - 1; i >= 0; i-- {
		s := sl[i]
		sort.SliceStable(rows, func(a, b int) bool {
			c := qcode.Compare(rows[a][s.Name], rows[b][s.Name])
			if s.Dir == qcode.OrderDesc {
				return c > 0
			}
			return c < 0
		})
	}
}

func paginate(rows []Row, limit *int, offset int) []Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit != nil && *limit < len(rows) {
		rows = rows[:*limit]
	}
	return rows
}
