package sdata

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed sql/postgres_columns.sql
var postgresColumnsStmt string

//go:embed sql/postgres_fkeys.sql
var postgresFKeysStmt string

//go:embed sql/mysql_columns.sql
var mysqlColumnsStmt string

//go:embed sql/mysql_fkeys.sql
var mysqlFKeysStmt string

//go:embed sql/sqlite_columns.sql
var sqliteColumnsStmt string

//go:embed sql/sqlite_fkeys.sql
var sqliteFKeysStmt string

func discoveryStmts(dbType string) (cols, fkeys string) {
	switch dbType {
	case "mysql", "mariadb":
		return mysqlColumnsStmt, mysqlFKeysStmt
	case "sqlite", "sqlite3":
		return sqliteColumnsStmt, sqliteFKeysStmt
	default:
		return postgresColumnsStmt, postgresFKeysStmt
	}
}

// DiscoverTables reads the tables, columns, primary keys and foreign keys
// of the current database or schema
func DiscoverTables(ctx context.Context, db *sql.DB, dbType string) ([]DBTable, error) {
	colStmt, fkStmt := discoveryStmts(dbType)

	rows, err := db.QueryContext(ctx, colStmt)
	if err != nil {
		return nil, fmt.Errorf("error fetching columns: %w", err)
	}
	defer rows.Close()

	var tables []DBTable
	tmap := make(map[string]int)

	for rows.Next() {
		var tn string
		var c DBColumn

		err = rows.Scan(&tn, &c.Name, &c.Type, &c.NotNull, &c.Default, &c.PrimaryKey)
		if err != nil {
			return nil, err
		}

		i, ok := tmap[tn]
		if !ok {
			i = len(tables)
			tmap[tn] = i
			tables = append(tables, DBTable{Name: tn})
		}
		t := &tables[i]
		t.Columns = append(t.Columns, c)
		if c.PrimaryKey {
			t.PrimaryCols = append(t.PrimaryCols, c.Name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fkRows, err := db.QueryContext(ctx, fkStmt)
	if err != nil {
		return nil, fmt.Errorf("error fetching foreign keys: %w", err)
	}
	defer fkRows.Close()

	for fkRows.Next() {
		var tn string
		var fk DBForeignKey

		if err := fkRows.Scan(&tn, &fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return nil, err
		}
		i, ok := tmap[tn]
		if !ok {
			continue
		}
		tables[i].ForeignKeys = append(tables[i].ForeignKeys, fk)
	}
	if err := fkRows.Err(); err != nil {
		return nil, err
	}

	// sqlite leaves the referenced column empty when it is the primary key
	for i := range tables {
		for j, fk := range tables[i].ForeignKeys {
			if fk.RefColumn != "" {
				continue
			}
			if ri, ok := tmap[fk.RefTable]; ok && len(tables[ri].PrimaryCols) != 0 {
				tables[i].ForeignKeys[j].RefColumn = tables[ri].PrimaryCols[0]
			}
		}
	}

	return tables, nil
}
