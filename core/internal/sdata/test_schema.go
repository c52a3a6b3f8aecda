package sdata

// GetTestSchema returns the schema used across the package tests
func GetTestSchema(dbType string) (*DBSchema, error) {
	return NewDBSchema(dbType, GetTestTables())
}

func GetTestTables() []DBTable {
	return []DBTable{
		{
			Name:        "users",
			PrimaryCols: []string{"id"},
			Columns: []DBColumn{
				{Name: "id", Type: "integer", NotNull: true},
				{Name: "name", Type: "text"},
				{Name: "email", Type: "text"},
				{Name: "meta", Type: "jsonb"},
			},
		},
		{
			Name:        "posts",
			PrimaryCols: []string{"id"},
			Columns: []DBColumn{
				{Name: "id", Type: "integer", NotNull: true},
				{Name: "user_id", Type: "integer"},
				{Name: "title", Type: "text"},
			},
			ForeignKeys: []DBForeignKey{
				{Column: "user_id", RefTable: "users", RefColumn: "id"},
			},
		},
		{
			Name:        "orders",
			PrimaryCols: []string{"id"},
			Columns: []DBColumn{
				{Name: "id", Type: "integer", NotNull: true},
				{Name: "user_id", Type: "integer"},
				{Name: "amt", Type: "numeric"},
				{Name: "status", Type: "text"},
			},
			ForeignKeys: []DBForeignKey{
				{Column: "user_id", RefTable: "users", RefColumn: "id"},
			},
		},
		{
			Name: "audit_log",
			Columns: []DBColumn{
				{Name: "event", Type: "text"},
				{Name: "at", Type: "timestamp"},
			},
		},
	}
}
