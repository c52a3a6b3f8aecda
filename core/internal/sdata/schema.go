package sdata

import (
	"fmt"
	"sort"
	"strings"
)

type DBColumn struct {
	Name       string `yaml:"name" json:"name"`
	Type       string `yaml:"type" json:"type"`
	NotNull    bool   `yaml:"not_null,omitempty" json:"notNull,omitempty"`
	Default    string `yaml:"default,omitempty" json:"default,omitempty"`
	PrimaryKey bool   `yaml:"primary_key,omitempty" json:"primaryKey,omitempty"`
}

type DBForeignKey struct {
	Column    string `yaml:"column" json:"column"`
	RefTable  string `yaml:"ref_table" json:"refTable"`
	RefColumn string `yaml:"ref_column" json:"refColumn"`
}

// DBReverseKey is the back reference a table gains for every foreign key
// pointing at it
type DBReverseKey struct {
	Table     string `json:"table"`
	Column    string `json:"column"`
	RefColumn string `json:"refColumn"`
}

type DBIndex struct {
	Name    string   `yaml:"name" json:"name"`
	Columns []string `yaml:"columns" json:"columns"`
	Unique  bool     `yaml:"unique,omitempty" json:"unique,omitempty"`
}

type DBTable struct {
	Schema      string         `yaml:"schema,omitempty" json:"schema,omitempty"`
	Name        string         `yaml:"name" json:"name"`
	Columns     []DBColumn     `yaml:"columns" json:"columns"`
	PrimaryCols []string       `yaml:"primary_key,omitempty" json:"primaryKey"`
	ForeignKeys []DBForeignKey `yaml:"foreign_keys,omitempty" json:"foreignKeys,omitempty"`
	ReverseKeys []DBReverseKey `yaml:"-" json:"reverseKeys,omitempty"`
	Indexes     []DBIndex      `yaml:"indexes,omitempty" json:"indexes,omitempty"`

	colMap map[string]int
}

// DBSchema is the read-only schema of one connection
type DBSchema struct {
	dbType string
	tables map[string]*DBTable
	names  []string
}

// NewDBSchema indexes the tables, merges column level primary key flags into
// the primary key list and computes the reverse foreign keys.
func NewDBSchema(dbType string, tables []DBTable) (*DBSchema, error) {
	s := &DBSchema{
		dbType: dbType,
		tables: make(map[string]*DBTable, len(tables)),
	}

	for i := range tables {
		t := tables[i]
		if t.Name == "" {
			return nil, fmt.Errorf("table %d has no name", i)
		}
		if _, ok := s.tables[t.Name]; ok {
			return nil, fmt.Errorf("duplicate table: %s", t.Name)
		}

		t.Columns = append([]DBColumn(nil), t.Columns...)
		t.PrimaryCols = append([]string(nil), t.PrimaryCols...)
		t.ReverseKeys = nil
		t.colMap = make(map[string]int, len(t.Columns))

		for j, c := range t.Columns {
			t.colMap[c.Name] = j
		}
		for _, pk := range t.PrimaryCols {
			if j, ok := t.colMap[pk]; ok {
				t.Columns[j].PrimaryKey = true
			}
		}
		for _, c := range t.Columns {
			if c.PrimaryKey && !contains(t.PrimaryCols, c.Name) {
				t.PrimaryCols = append(t.PrimaryCols, c.Name)
			}
		}
		s.tables[t.Name] = &t
		s.names = append(s.names, t.Name)
	}

	for _, name := range s.names {
		t := s.tables[name]
		for _, fk := range t.ForeignKeys {
			rt, ok := s.tables[fk.RefTable]
			if !ok {
				continue
			}
			rt.ReverseKeys = append(rt.ReverseKeys, DBReverseKey{
				Table:     t.Name,
				Column:    fk.Column,
				RefColumn: fk.RefColumn,
			})
		}
	}

	sort.Strings(s.names)
	return s, nil
}

func (s *DBSchema) DBType() string {
	return s.dbType
}

// Find returns the named table
func (s *DBSchema) Find(name string) (*DBTable, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Tables returns all tables sorted by name
func (s *DBSchema) Tables() []*DBTable {
	tl := make([]*DBTable, 0, len(s.names))
	for _, n := range s.names {
		tl = append(tl, s.tables[n])
	}
	return tl
}

// Relationship describes how a related table joins back to a table
type Relationship struct {
	// Column on the related table
	RelatedCol string
	// Column on the parent table matched against
	ParentCol string
	// Reverse is true when the related table holds the foreign key
	Reverse bool
}

// FindRelationship resolves a forward foreign key (t references related) or a
// reverse one (related references t). fkCol optionally pins the foreign key
// column.
func (s *DBSchema) FindRelationship(t *DBTable, related, fkCol string) (Relationship, bool) {
	rt, ok := s.tables[related]
	if !ok {
		return Relationship{}, false
	}

	for _, fk := range rt.ForeignKeys {
		if fk.RefTable == t.Name && (fkCol == "" || fk.Column == fkCol) {
			return Relationship{RelatedCol: fk.Column, ParentCol: fk.RefColumn, Reverse: true}, true
		}
	}

	for _, fk := range t.ForeignKeys {
		if fk.RefTable == rt.Name && (fkCol == "" || fk.Column == fkCol) {
			return Relationship{RelatedCol: fk.RefColumn, ParentCol: fk.Column}, true
		}
	}
	return Relationship{}, false
}

// GetColumn returns the named column
func (t *DBTable) GetColumn(name string) (DBColumn, bool) {
	if t.colMap == nil {
		for _, c := range t.Columns {
			if c.Name == name {
				return c, true
			}
		}
		return DBColumn{}, false
	}
	i, ok := t.colMap[name]
	if !ok {
		return DBColumn{}, false
	}
	return t.Columns[i], true
}

func (t *DBTable) IsValidColumn(name string) bool {
	_, ok := t.GetColumn(name)
	return ok
}

// PrimaryKey returns the single addressable primary key column, the first
// declared one.
func (t *DBTable) PrimaryKey() (DBColumn, bool) {
	if len(t.PrimaryCols) == 0 {
		return DBColumn{}, false
	}
	return t.GetColumn(t.PrimaryCols[0])
}

func (c DBColumn) IsJSON() bool {
	switch strings.ToLower(c.Type) {
	case "json", "jsonb":
		return true
	}
	return false
}

func (c DBColumn) IsNumeric() bool {
	if c.IsInteger() {
		return true
	}
	switch baseType(c.Type) {
	case "numeric", "decimal", "real", "double", "float", "float4", "float8", "money":
		return true
	}
	return false
}

func (c DBColumn) IsInteger() bool {
	switch baseType(c.Type) {
	case "int", "int2", "int4", "int8", "integer", "smallint", "bigint", "tinyint",
		"mediumint", "serial", "bigserial", "smallserial":
		return true
	}
	return false
}

func (c DBColumn) IsBool() bool {
	switch baseType(c.Type) {
	case "bool", "boolean":
		return true
	}
	return false
}

func (c DBColumn) IsText() bool {
	switch baseType(c.Type) {
	case "text", "varchar", "char", "character", "citext", "string", "nvarchar",
		"nchar", "tinytext", "mediumtext", "longtext", "clob":
		return true
	}
	return false
}

// baseType strips modifiers, "int(11) unsigned" -> "int"
func baseType(typ string) string {
	typ = strings.ToLower(strings.TrimSpace(typ))
	if i := strings.IndexAny(typ, "( "); i != -1 {
		typ = typ[:i]
	}
	return typ
}

func contains(l []string, s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}
