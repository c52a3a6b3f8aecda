package memdb

import (
	"strings"

	"github.com/dosco/restjin/core/internal/qcode"
)

const (
	groupDelim = "|"
	nullKey    = "\x00"
)

// aggregate partitions rows on the group by values and emits one row per
// partition. Without group by columns every row falls into a single
// partition, which is emitted even when empty, like SQL does.
func aggregate(rows []Row, p *qcode.Plan) []Row {
	var keys []string
	parts := make(map[string][]Row)

	if len(p.GroupBy) == 0 {
		keys = []string{""}
		parts[""] = rows
	} else {
		for _, r := range rows {
			k := groupKey(r, p.GroupBy)
			if _, ok := parts[k]; !ok {
				keys = append(keys, k)
			}
			parts[k] = append(parts[k], r)
		}
	}

	out := make([]Row, 0, len(keys))
	for _, k := range keys {
		part := parts[k]
		nr := make(Row, len(p.GroupBy)+len(p.Aggs))

		if len(part) != 0 {
			for _, ref := range p.GroupBy {
				nr[ref.Name(p.Multi)] = part[0][ref.Key()]
			}
		}
		for _, a := range p.Aggs {
			nr[a.Alias] = aggValue(a, part)
		}
		out = append(out, nr)
	}
	return out
}

func groupKey(r Row, refs []qcode.ColumnRef) string {
	var sb strings.Builder
	for i, ref := range refs {
		if i != 0 {
			sb.WriteString(groupDelim)
		}
		v := r[ref.Key()]
		if v == nil {
			sb.WriteString(nullKey)
		} else {
			sb.WriteString(qcode.Stringify(v))
		}
	}
	return sb.String()
}

func aggValue(a qcode.PlanAgg, part []Row) interface{} {
	if a.Func == qcode.AggCount || a.Ref == nil {
		return int64(len(part))
	}

	key := a.Ref.Key()
	var vals []interface{}
	for _, r := range part {
		if v := r[key]; v != nil {
			vals = append(vals, v)
		}
	}

	switch a.Func {
	case qcode.AggSum, qcode.AggAvg:
		var sum float64
		n := 0
		for _, v := range vals {
			if f, ok := qcode.ToFloat(v); ok {
				sum += f
				n++
			}
		}
		if n == 0 {
			return nil
		}
		if a.Func == qcode.AggAvg {
			return sum / float64(n)
		}
		return sum

	case qcode.AggMin, qcode.AggMax:
		return extreme(vals, a.Func == qcode.AggMax)
	}
	return nil
}

// extreme compares numerically when every value is numeric and falls back to
// the shared value ordering otherwise
func extreme(vals []interface{}, max bool) interface{} {
	if len(vals) == 0 {
		return nil
	}

	numeric := true
	nums := make([]float64, len(vals))
	for i, v := range vals {
		f, ok := qcode.ToFloat(v)
		if !ok {
			numeric = false
			break
		}
		nums[i] = f
	}

	if numeric {
		best := nums[0]
		for _, f := range nums[1:] {
			if (max && f > best) || (!max && f < best) {
				best = f
			}
		}
		return best
	}

	best := vals[0]
	for _, v := range vals[1:] {
		c := qcode.Compare(v, best)
		if (max && c > 0) || (!max && c < 0) {
			best = v
		}
	}
	return best
}

func having(rows []Row, hl []qcode.PlanHaving) []Row {
	if len(hl) == 0 {
		return rows
	}
	out := rows[:0:0]
	for _, r := range rows {
		ok := true
		for _, h := range hl {
			if !h.Op.Match(r[h.Agg.Alias], h.Val) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r)
		}
	}
	return out
}
