package core

import (
	"context"
	"database/sql"
	"strings"
)

// SQLPool runs statements on a database/sql connection pool
type SQLPool struct {
	db *sql.DB
}

func NewSQLPool(db *sql.DB) *SQLPool {
	return &SQLPool{db: db}
}

// Query runs a statement. Selects and statements with a RETURNING clause are
// read as rows, everything else is executed for its insert id and row count.
func (p *SQLPool) Query(ctx context.Context, text string, values []interface{}) (PoolResult, error) {
	if !returnsRows(text) {
		res, err := p.db.ExecContext(ctx, text, values...)
		if err != nil {
			return PoolResult{}, err
		}
		var pr PoolResult
		// not every driver reports both, a missing value stays zero
		pr.InsertID, _ = res.LastInsertId()
		pr.AffectedRows, _ = res.RowsAffected()
		return pr, nil
	}

	rows, err := p.db.QueryContext(ctx, text, values...)
	if err != nil {
		return PoolResult{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return PoolResult{}, err
	}

	pr := PoolResult{Rows: []Row{}}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return PoolResult{}, err
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				r[c] = string(b)
			} else {
				r[c] = vals[i]
			}
		}
		pr.Rows = append(pr.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return PoolResult{}, err
	}
	pr.RowCount = len(pr.Rows)
	pr.AffectedRows = int64(pr.RowCount)
	return pr, nil
}

func returnsRows(text string) bool {
	return strings.HasPrefix(text, "SELECT ") || strings.Contains(text, " RETURNING ")
}
