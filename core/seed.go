package core

import (
	"context"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/dosco/restjin/core/internal/memdb"
	"github.com/dosco/restjin/core/internal/sdata"
	"golang.org/x/sync/errgroup"
)

// Seed fills every table of a local connection with n generated rows.
// Tables are filled in parallel. Foreign key columns point at primary keys
// the referenced table has or is about to get, which assumes those keys are
// generated as a dense sequence.
func (e *Engine) Seed(ctx context.Context, conn string, n int) error {
	c, err := e.conn(conn)
	if err != nil {
		return err
	}
	if !c.local() {
		return errUnknownConnection(conn)
	}
	if n <= 0 {
		return nil
	}

	tables := c.schema.Tables()
	sizes := make(map[string]int, len(tables))
	for _, ti := range tables {
		sizes[ti.Name] = c.store.Len(ti.Name) + n
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, ti := range tables {
		i, ti := i, ti
		g.Go(func() error {
			f := gofakeit.New(int64(i + 1))
			rows := make([]memdb.Row, 0, n)

			for j := 0; j < n; j++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				rows = append(rows, fakeRow(f, ti, sizes))
			}
			return c.store.Load(ti.Name, rows)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	e.log.Infow("seeded", "connection", conn, "tables", len(tables), "rows", n)
	return nil
}

func fakeRow(f *gofakeit.Faker, ti *sdata.DBTable, sizes map[string]int) memdb.Row {
	fks := make(map[string]string, len(ti.ForeignKeys))
	for _, fk := range ti.ForeignKeys {
		fks[fk.Column] = fk.RefTable
	}
	pk, hasPK := ti.PrimaryKey()

	r := make(memdb.Row, len(ti.Columns))
	for _, col := range ti.Columns {
		if hasPK && col.Name == pk.Name && len(ti.PrimaryCols) == 1 {
			// numeric keys are generated on load
			if !col.IsNumeric() && col.Type != "" {
				r[col.Name] = f.UUID()
			}
			continue
		}
		if rt, ok := fks[col.Name]; ok && sizes[rt] != 0 {
			r[col.Name] = int64(f.Number(1, sizes[rt]))
			continue
		}
		r[col.Name] = fakeValue(f, col)
	}
	return r
}

func fakeValue(f *gofakeit.Faker, col sdata.DBColumn) interface{} {
	name := strings.ToLower(col.Name)

	switch {
	case strings.Contains(name, "email"):
		return f.Email()
	case name == "first_name":
		return f.FirstName()
	case name == "last_name":
		return f.LastName()
	case name == "username":
		return f.Username()
	case strings.Contains(name, "phone"):
		return f.Phone()
	case strings.Contains(name, "url"), strings.Contains(name, "website"):
		return f.URL()
	case name == "city":
		return f.City()
	case name == "country":
		return f.Country()
	case strings.Contains(name, "company"):
		return f.Company()
	case name == "title":
		return f.Sentence(3)
	case name == "body", name == "content", name == "description":
		return f.Paragraph(1, 3, 12, " ")
	}

	switch {
	case col.IsBool():
		return f.Bool()
	case col.IsInteger():
		return int64(f.Number(1, 1000))
	case col.IsNumeric():
		return f.Price(1, 1000)
	case col.IsJSON():
		return map[string]interface{}{"tag": f.Word(), "score": f.Number(1, 10)}
	case strings.Contains(strings.ToLower(col.Type), "date"),
		strings.Contains(strings.ToLower(col.Type), "time"):
		return f.Date().UTC().Format(time.RFC3339)
	case strings.Contains(name, "name"):
		return f.Name()
	}
	return f.Word()
}
