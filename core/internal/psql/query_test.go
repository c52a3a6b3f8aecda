package psql

import (
	"testing"

	"github.com/dosco/restjin/core/internal/qcode"
	"github.com/dosco/restjin/core/internal/sdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *sdata.DBSchema {
	t.Helper()
	s, err := sdata.GetTestSchema("postgres")
	require.NoError(t, err)
	return s
}

func testTable(t *testing.T, name string) *sdata.DBTable {
	t.Helper()
	ti, ok := testSchema(t).Find(name)
	require.True(t, ok, name)
	return ti
}

func intPtr(n int) *int {
	return &n
}

func TestBuildSelect(t *testing.T) {
	args := SelectArgs{
		Filters: []qcode.Filter{
			qcode.Simple("name", "Alice"),
			qcode.Operator("id", qcode.OpGreaterThan, "1"),
			qcode.Simple("bogus", 1),
			qcode.Simple("posts.title", "x"),
		},
		Limit:    intPtr(10),
		Offset:   intPtr(5),
		OrderBy:  "name",
		OrderDir: "desc",
	}

	tests := []struct {
		dbType string
		sql    string
	}{
		{"postgres", `SELECT * FROM "users" WHERE "name" = $1 AND "id" > $2 ORDER BY "name" DESC NULLS LAST LIMIT $3 OFFSET $4`},
		{"mysql", "SELECT * FROM `users` WHERE `name` = ? AND `id` > ? ORDER BY `name` DESC LIMIT ? OFFSET ?"},
		{"sqlite", `SELECT * FROM "users" WHERE "name" = ? AND "id" > ? ORDER BY "name" DESC LIMIT ? OFFSET ?`},
	}

	for _, tt := range tests {
		t.Run(tt.dbType, func(t *testing.T) {
			co := NewCompiler(Config{DBType: tt.dbType})
			q, err := co.BuildSelect(testTable(t, "users"), args)
			require.NoError(t, err)

			assert.Equal(t, tt.sql, q.Text)
			assert.Equal(t, []interface{}{"Alice", int64(1), 10, 5}, q.Values)
			assert.Equal(t, []string{"filter: bogus", "filter: posts.title"}, q.Ignored)
		})
	}
}

func TestBuildSelectNoArgs(t *testing.T) {
	co := NewCompiler(Config{DBType: "postgres"})
	q, err := co.BuildSelect(testTable(t, "posts"), SelectArgs{OrderBy: "nope"})
	require.NoError(t, err)

	assert.Equal(t, `SELECT * FROM "posts"`, q.Text)
	assert.Empty(t, q.Values)
	assert.Equal(t, []string{"sort: nope"}, q.Ignored)
}

func TestBuildSelectByID(t *testing.T) {
	co := NewCompiler(Config{DBType: "postgres"})

	q, err := co.BuildSelectByID(testTable(t, "users"), "7")
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE "id" = $1`, q.Text)
	assert.Equal(t, []interface{}{int64(7)}, q.Values)

	q, err = co.BuildSelectByInsertID(testTable(t, "users"), int64(8))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(8)}, q.Values)

	_, err = co.BuildSelectByID(testTable(t, "audit_log"), 1)
	assert.True(t, qcode.IsKind(err, qcode.KindNoPrimaryKey))
}

func TestBuildInsert(t *testing.T) {
	data := map[string]interface{}{
		"name":  "Bob",
		"email": "bob@example.com",
		"meta":  map[string]interface{}{"a": 1},
		"junk":  1,
	}

	co := NewCompiler(Config{DBType: "postgres"})
	q, err := co.BuildInsert(testTable(t, "users"), data)
	require.NoError(t, err)

	assert.Equal(t, `INSERT INTO "users" ("name", "email", "meta") VALUES ($1, $2, $3) RETURNING *`, q.Text)
	assert.Equal(t, []interface{}{"Bob", "bob@example.com", `{"a":1}`}, q.Values)
	assert.Equal(t, []string{"column: junk"}, q.Ignored)

	co = NewCompiler(Config{DBType: "mysql"})
	q, err = co.BuildInsert(testTable(t, "users"), data)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `users` (`name`, `email`, `meta`) VALUES (?, ?, ?)", q.Text)

	_, err = co.BuildInsert(testTable(t, "users"), map[string]interface{}{"junk": 1})
	assert.True(t, qcode.IsKind(err, qcode.KindNoValidColumns))
}

func TestBuildUpdate(t *testing.T) {
	co := NewCompiler(Config{DBType: "postgres"})

	q, err := co.BuildUpdate(testTable(t, "users"), "1", map[string]interface{}{"name": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "users" SET "name" = $1 WHERE "id" = $2 RETURNING *`, q.Text)
	assert.Equal(t, []interface{}{"Bob", int64(1)}, q.Values)

	// string, float and native int ids bind the same way
	for _, id := range []interface{}{"2", 2.0, 2, int32(2), int64(2)} {
		q, err = co.BuildUpdate(testTable(t, "users"), id, map[string]interface{}{"name": "Bob"})
		require.NoError(t, err)
		assert.Equal(t, []interface{}{"Bob", int64(2)}, q.Values, "%T", id)
	}

	q, err = NewCompiler(Config{DBType: "mariadb", DBVersion: 100500}).
		BuildUpdate(testTable(t, "users"), 1, map[string]interface{}{"name": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE `users` SET `name` = ? WHERE `id` = ?", q.Text)

	_, err = co.BuildUpdate(testTable(t, "users"), 1, map[string]interface{}{})
	assert.True(t, qcode.IsKind(err, qcode.KindNoValidColumns))

	_, err = co.BuildUpdate(testTable(t, "audit_log"), 1, map[string]interface{}{"event": "x"})
	assert.True(t, qcode.IsKind(err, qcode.KindNoPrimaryKey))
}

func TestBuildUpdateWhere(t *testing.T) {
	co := NewCompiler(Config{DBType: "postgres"})
	orders := testTable(t, "orders")

	q, err := co.BuildUpdateWhere(orders,
		[]qcode.Filter{qcode.Simple("status", "new"), qcode.Operator("amt", qcode.OpLesserThan, "5.5")},
		map[string]interface{}{"status": "paid"})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "orders" SET "status" = $1 WHERE "status" = $2 AND "amt" < $3 RETURNING *`, q.Text)
	assert.Equal(t, []interface{}{"paid", "new", 5.5}, q.Values)

	tests := []struct {
		name    string
		filters []qcode.Filter
	}{
		{"no filters", nil},
		{"unknown column", []qcode.Filter{qcode.Simple("bogus", 1)}},
		{"other table", []qcode.Filter{qcode.Simple("users.name", "x")}},
	}

	for _, tt := range tests {
		_, err := co.BuildUpdateWhere(orders, tt.filters, map[string]interface{}{"status": "paid"})
		assert.True(t, qcode.IsKind(err, qcode.KindMissingFilter), tt.name)
	}
}

func TestBuildDelete(t *testing.T) {
	co := NewCompiler(Config{DBType: "postgres"})

	q, err := co.BuildDelete(testTable(t, "posts"), 3)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "posts" WHERE "id" = $1 RETURNING *`, q.Text)
	assert.Equal(t, []interface{}{int64(3)}, q.Values)

	co = NewCompiler(Config{DBType: "sqlite"})
	q, err = co.BuildDeleteWhere(testTable(t, "posts"),
		[]qcode.Filter{qcode.Operator("user_id", qcode.OpIn, "1,2")})
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "posts" WHERE "user_id" IN (?, ?) RETURNING *`, q.Text)
	assert.Equal(t, []interface{}{int64(1), int64(2)}, q.Values)

	q, err = co.BuildDeleteWhere(testTable(t, "posts"),
		[]qcode.Filter{qcode.Operator("user_id", qcode.OpIn, []interface{}{})})
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "posts" WHERE 1 = 0 RETURNING *`, q.Text)

	_, err = co.BuildDeleteWhere(testTable(t, "posts"), nil)
	assert.True(t, qcode.IsKind(err, qcode.KindMissingFilter))
}

func TestBuildRelated(t *testing.T) {
	s := testSchema(t)
	users, _ := s.Find("users")
	posts, _ := s.Find("posts")
	co := NewCompiler(Config{DBType: "postgres"})

	q, err := co.BuildRelated(s, users, "posts", "1", "", SelectArgs{})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "posts".* FROM "posts" WHERE "posts"."user_id" = $1`, q.Text)
	assert.Equal(t, []interface{}{int64(1)}, q.Values)

	q, err = co.BuildRelated(s, posts, "users", 5, "", SelectArgs{})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "users".* FROM "users" WHERE "users"."id" IN `+
		`(SELECT "posts"."user_id" FROM "posts" WHERE "posts"."id" = $1)`, q.Text)
	assert.Equal(t, []interface{}{int64(5)}, q.Values)

	q, err = co.BuildRelated(s, users, "posts", 1, "user_id", SelectArgs{
		Filters:  []qcode.Filter{qcode.Operator("title", qcode.OpContains, "Go")},
		OrderBy:  "id",
		OrderDir: "DESC",
		Limit:    intPtr(10),
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "posts".* FROM "posts" WHERE "posts"."user_id" = $1 `+
		`AND "posts"."title" LIKE $2 ORDER BY "posts"."id" DESC NULLS LAST LIMIT $3`, q.Text)
	assert.Equal(t, []interface{}{int64(1), "%Go%", 10}, q.Values)

	_, err = co.BuildRelated(s, users, "audit_log", 1, "", SelectArgs{})
	assert.True(t, qcode.IsKind(err, qcode.KindNoRelationship))

	_, err = co.BuildRelated(s, users, "ghosts", 1, "", SelectArgs{})
	assert.True(t, qcode.IsKind(err, qcode.KindUnknownTable))
}

func TestJSONAndPatternFilters(t *testing.T) {
	tests := []struct {
		name   string
		dbType string
		filter qcode.Filter
		sql    string
		value  interface{}
	}{
		{"json eq", "postgres", qcode.Simple("meta", `{"a": 1}`),
			`SELECT * FROM "users" WHERE "meta"::jsonb = $1::jsonb`, `{"a":1}`},
		{"json eq mysql", "mysql", qcode.Simple("meta", map[string]interface{}{"a": 1}),
			"SELECT * FROM `users` WHERE CAST(`meta` AS JSON) = CAST(? AS JSON)", `{"a":1}`},
		{"json eq sqlite", "sqlite", qcode.Simple("meta", `[1,2]`),
			`SELECT * FROM "users" WHERE json("meta") = json(?)`, `[1,2]`},
		{"json scalar", "postgres", qcode.Simple("meta", "plain"),
			`SELECT * FROM "users" WHERE "meta"::text = $1`, "plain"},
		{"json contains", "postgres", qcode.Operator("meta", qcode.OpContains, "x"),
			`SELECT * FROM "users" WHERE "meta"::text LIKE $1`, "%x%"},
		{"integer pattern", "mysql", qcode.Operator("id", qcode.OpStartsWith, 1),
			"SELECT * FROM `users` WHERE CAST(`id` AS CHAR) LIKE ?", "1%"},
		{"text pattern", "sqlite", qcode.Operator("name", qcode.OpEndsWith, "ce"),
			`SELECT * FROM "users" WHERE "name" LIKE ?`, "%ce"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			co := NewCompiler(Config{DBType: tt.dbType})
			q, err := co.BuildSelect(testTable(t, "users"), SelectArgs{Filters: []qcode.Filter{tt.filter}})
			require.NoError(t, err)
			assert.Equal(t, tt.sql, q.Text)
			assert.Equal(t, []interface{}{tt.value}, q.Values)
		})
	}
}

func TestCompileDelete(t *testing.T) {
	plan := func(js string) *qcode.Plan {
		g, err := qcode.ParseGraph([]byte(js))
		require.NoError(t, err)
		p, err := qcode.NewPlan(testSchema(t), g)
		require.NoError(t, err)
		return p
	}
	co := NewCompiler(Config{DBType: "postgres"})

	q, err := co.CompileDelete(plan(`{
		"source": {"table": "orders"},
		"joins": [
			{"from": {"table": "orders", "column": "user_id"}, "to": {"table": "users", "column": "id"}},
			{"from": {"table": "users", "column": "id"}, "to": {"table": "posts", "column": "user_id"}}
		],
		"filters": [
			{"field": "status", "value": "new"},
			{"field": "posts.title", "operator": "contains", "value": "Go"}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "orders" WHERE "status" = $1 AND `+
		`EXISTS (SELECT 1 FROM "users" WHERE "users"."id" = "orders"."user_id" AND `+
		`EXISTS (SELECT 1 FROM "posts" WHERE "posts"."user_id" = "users"."id" AND "posts"."title" LIKE $2)) `+
		`RETURNING *`, q.Text)
	assert.Equal(t, []interface{}{"new", "%Go%"}, q.Values)

	// a join nothing filters on adds no subquery
	q, err = co.CompileDelete(plan(`{
		"source": {"table": "orders"},
		"joins": [{"from": {"table": "orders", "column": "user_id"}, "to": {"table": "users", "column": "id"}}],
		"filters": [{"field": "id", "value": 4}, {"field": "nope", "value": 1}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "orders" WHERE "id" = $1 RETURNING *`, q.Text)
	assert.Equal(t, []string{"filter: nope"}, q.Ignored)

	_, err = co.CompileDelete(plan(`{
		"source": {"table": "orders"},
		"filters": [{"field": "nope", "value": 1}]
	}`))
	assert.True(t, qcode.IsKind(err, qcode.KindMissingFilter))
}
