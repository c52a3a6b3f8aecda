// Package memdb is the in-memory relational store used by local connections.
// It runs the same resolved query plans as the SQL compiler, over rows held
// in process.
package memdb

import (
	"sync"

	"github.com/dosco/restjin/core/internal/qcode"
	"github.com/dosco/restjin/core/internal/sdata"
	"go.uber.org/zap"
)

// Row is a single record keyed by column name
type Row map[string]interface{}

// Clone returns a shallow copy of the row
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Store holds the tables of one local connection. Rows are copy on write:
// a stored Row is never modified after insertion, writers replace it. This is
// what lets readers work from a cheap slice snapshot.
type Store struct {
	schema *sdata.DBSchema
	tables map[string]*table
	log    *zap.Logger
}

type table struct {
	sync.RWMutex
	info *sdata.DBTable
	rows []Row
}

type Option func(*Store)

// WithLogger sets the logger used to report ignored references and no-op
// filters
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// NewStore creates an empty table for every table in the schema
func NewStore(schema *sdata.DBSchema, opts ...Option) *Store {
	s := &Store{
		schema: schema,
		tables: make(map[string]*table),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, ti := range schema.Tables() {
		s.tables[ti.Name] = &table{info: ti}
	}
	return s
}

func (s *Store) Schema() *sdata.DBSchema {
	return s.schema
}

func (s *Store) table(name string) (*table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, qcode.NewError(qcode.KindUnknownTable, "unknown table: %s", name)
	}
	return t, nil
}

// Snapshot returns the rows of a table as of now. The returned rows must not
// be modified.
func (s *Store) Snapshot(name string) ([]Row, error) {
	t, err := s.table(name)
	if err != nil {
		return nil, err
	}
	return t.snapshot(), nil
}

// Len is the number of rows in a table
func (s *Store) Len(name string) int {
	t, ok := s.tables[name]
	if !ok {
		return 0
	}
	t.RLock()
	defer t.RUnlock()
	return len(t.rows)
}

// Load appends rows to a table as given, generating primary keys where they
// are missing. Used to seed local connections.
func (s *Store) Load(name string, rows []Row) error {
	t, err := s.table(name)
	if err != nil {
		return err
	}
	t.Lock()
	defer t.Unlock()

	for _, r := range rows {
		t.rows = append(t.rows, t.prepareInsert(t.validColumns(r)))
	}
	return nil
}

func (t *table) snapshot() []Row {
	t.RLock()
	defer t.RUnlock()
	return append([]Row(nil), t.rows...)
}

// validColumns drops keys that are not columns of the table
func (t *table) validColumns(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		if t.info.IsValidColumn(k) {
			out[k] = v
		}
	}
	return out
}

// prepareInsert fills in a generated primary key when the table has a single
// numeric primary key column and the row leaves it empty. Must be called with
// the write lock held.
func (t *table) prepareInsert(r Row) Row {
	if len(t.info.PrimaryCols) != 1 {
		return r
	}
	pk, ok := t.info.PrimaryKey()
	if !ok || !(pk.IsNumeric() || pk.Type == "") {
		return r
	}
	if !qcode.IsNull(r[pk.Name]) {
		return r
	}

	var max int64
	for _, row := range t.rows {
		if f, ok := qcode.ToFloat(row[pk.Name]); ok && int64(f) > max {
			max = int64(f)
		}
	}
	r[pk.Name] = max + 1
	return r
}
