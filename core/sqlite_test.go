package core

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dosco/restjin/core/internal/qcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const testSQLiteDDL = `
CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, email TEXT);
CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	user_id INTEGER REFERENCES users(id),
	status TEXT,
	amt INTEGER
);
CREATE TABLE audit (msg TEXT);
INSERT INTO users (id, name, email) VALUES
	(1, 'Alice', 'alice@example.com'),
	(2, 'Bob', 'bob@example.com'),
	(3, 'Carol', 'carol@example.com');
INSERT INTO orders (id, user_id, status, amt) VALUES
	(1, 1, 'paid', 10),
	(2, 1, 'new', 20),
	(3, 2, 'paid', 30),
	(4, 3, 'paid', 40),
	(5, 3, 'new', 50);
`

// newBackends returns an engine with the same data on a SQLite connection
// named "sql" and a local connection named "local"
func newBackends(t *testing.T) *Engine {
	t.Helper()
	e := newLocalEngine(t)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSQLiteDDL)
	require.NoError(t, err)

	err = e.Connect(context.Background(), "sql", "sqlite", NewSQLPool(db), func(ctx context.Context) ([]DBTable, error) {
		return DiscoverTables(ctx, db, "sqlite")
	})
	require.NoError(t, err)
	return e
}

func queryBoth(t *testing.T, e *Engine, js string) (sqlRes, localRes *Result) {
	t.Helper()
	ctx := context.Background()

	g, err := ParseGraph([]byte(js))
	require.NoError(t, err)
	sqlRes, err = e.QueryGraph(ctx, "sql", g)
	require.NoError(t, err)

	g, err = ParseGraph([]byte(js))
	require.NoError(t, err)
	localRes, err = e.QueryGraph(ctx, "local", g)
	require.NoError(t, err)
	return
}

// assertSameResult compares results column by column on their string form
func assertSameResult(t *testing.T, want, got *Result) {
	t.Helper()
	assert.Equal(t, want.Total, got.Total, "total")
	assert.Equal(t, want.Columns, got.Columns, "columns")
	require.Equal(t, len(want.Rows), len(got.Rows), "rows")
	for _, c := range want.Columns {
		assert.Equal(t, values(want.Rows, c), values(got.Rows, c), c)
	}
}

func TestBackendsAggregateWithoutGroup(t *testing.T) {
	e := newBackends(t)

	s, l := queryBoth(t, e, `{
		"source": {"table": "orders"},
		"filters": [{"field": "status", "value": "paid"}],
		"aggregations": [
			{"function": "SUM", "field": "amt", "alias": "total"},
			{"function": "COUNT", "field": "*", "alias": "n"},
			{"function": "MAX", "field": "amt", "alias": "top"}
		]
	}`)
	assertSameResult(t, s, l)
	require.Len(t, l.Rows, 1)
	assert.Equal(t, "80", qcode.Stringify(l.Rows[0]["total"]))
	assert.Equal(t, "3", qcode.Stringify(l.Rows[0]["n"]))
	assert.Equal(t, "40", qcode.Stringify(l.Rows[0]["top"]))
}

func TestBackendsGroupHavingSort(t *testing.T) {
	e := newBackends(t)

	s, l := queryBoth(t, e, `{
		"source": {"table": "orders"},
		"groupBy": ["status"],
		"aggregations": [{"function": "SUM", "field": "amt", "alias": "total"}],
		"having": [{"aggregateAlias": "total", "operator": "gt", "value": 50}],
		"sort": [{"field": "total", "direction": "desc"}]
	}`)
	assertSameResult(t, s, l)
	assert.Equal(t, []string{"paid", "new"}, values(l.Rows, "status"))
	assert.Equal(t, []string{"80", "70"}, values(l.Rows, "total"))
}

func TestBackendsPagination(t *testing.T) {
	e := newBackends(t)

	s, l := queryBoth(t, e, `{
		"source": {"table": "orders"},
		"outputFields": {"orders": ["id", "amt"]},
		"sort": [{"field": "id"}],
		"limit": 2,
		"offset": 1
	}`)
	assertSameResult(t, s, l)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, []string{"2", "3"}, values(s.Rows, "id"))
}

func TestBackendsJoinFilter(t *testing.T) {
	e := newBackends(t)

	s, l := queryBoth(t, e, `{
		"source": {"table": "users"},
		"joins": [{"from": {"table": "users", "column": "id"}, "to": {"table": "orders", "column": "user_id"}}],
		"filters": [{"field": "orders.status", "value": "new"}, {"field": "ghost", "value": 1}],
		"outputFields": {"users": ["name"], "orders": ["amt"]},
		"sort": [{"field": "name"}]
	}`)
	assertSameResult(t, s, l)
	assert.Equal(t, []string{"Alice", "Carol"}, values(s.Rows, "users_name"))
}

func TestBackendsMultiKeySort(t *testing.T) {
	e := newBackends(t)

	s, l := queryBoth(t, e, `{
		"source": {"table": "orders"},
		"outputFields": {"orders": ["id", "status", "amt"]},
		"sort": [{"field": "status"}, {"field": "amt", "direction": "desc"}]
	}`)
	assertSameResult(t, s, l)
	assert.Equal(t, []string{"5", "2", "4", "3", "1"}, values(l.Rows, "id"))
}

func TestSQLiteTableOps(t *testing.T) {
	e := newBackends(t)
	ctx := context.Background()

	users, err := e.Table("sql", "users")
	require.NoError(t, err)

	row, err := users.Create(ctx, map[string]interface{}{"name": "Dan", "email": "dan@example.com"})
	require.NoError(t, err)
	assert.EqualValues(t, 4, row["id"])

	row, err = users.Update(ctx, "4", map[string]interface{}{"name": "Daniel"})
	require.NoError(t, err)
	assert.Equal(t, "Daniel", row["name"])

	_, err = users.Get(ctx, 99)
	assert.True(t, IsKind(err, KindNotFound))

	rows, err := users.Related(ctx, 3, "orders", "", ListArgs{OrderBy: "amt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"40", "50"}, values(rows, "amt"))

	orders, err := e.Table("sql", "orders")
	require.NoError(t, err)

	n, err := orders.UpdateWhere(ctx, []Filter{qcode.Simple("status", "new")}, map[string]interface{}{"status": "void"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = orders.DeleteWhere(ctx, []Filter{qcode.Operator("amt", qcode.OpGreaterThan, 35)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	row, err = users.Delete(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "Daniel", row["name"])

	rows, err = orders.List(ctx, ListArgs{OrderBy: "id"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, values(rows, "id"))
	assert.Equal(t, []string{"paid", "void", "paid"}, values(rows, "status"))
}

func TestSQLiteWriteGraphInsert(t *testing.T) {
	e := newBackends(t)
	ctx := context.Background()

	g := &Graph{Source: qcode.Source{Table: "users"}}
	data := map[string]interface{}{
		"name":       "Erin",
		"audit.msg":  "created erin",
		"nope":       true,
		"orders.amt": 5,
	}

	for _, conn := range []string{"sql", "local"} {
		t.Run(conn, func(t *testing.T) {
			res, err := e.WriteGraph(ctx, conn, OpInsert, g, data, WriteOptions{})
			require.NoError(t, err)
			assert.Len(t, res.Tables, 3)
			assert.Equal(t, "Erin", res.Tables["users"].Data["name"])
			assert.Equal(t, "created erin", res.Tables["audit"].Data["msg"])
		})
	}
}

func TestBackendsSemiJoinDelete(t *testing.T) {
	join := []qcode.Join{{
		From: qcode.ColRef{Table: "orders", Column: "user_id"},
		To:   qcode.ColRef{Table: "users", Column: "id"},
	}}

	tests := []struct {
		name    string
		filters []Filter
		deleted int
		left    []string
	}{
		{
			name:    "joined filter only",
			filters: []Filter{qcode.Simple("users.name", "Carol")},
			deleted: 2,
			left:    []string{"1", "2", "3"},
		},
		{
			name: "source and joined filters",
			filters: []Filter{
				qcode.Simple("status", "paid"),
				qcode.Operator("users.name", qcode.OpIn, "Alice,Bob"),
			},
			deleted: 2,
			left:    []string{"2", "4", "5"},
		},
		{
			name:    "bare column on the joined table",
			filters: []Filter{qcode.Operator("email", qcode.OpStartsWith, "bob")},
			deleted: 1,
			left:    []string{"1", "2", "4", "5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newBackends(t)
			ctx := context.Background()

			for _, conn := range []string{"sql", "local"} {
				g := &Graph{Source: qcode.Source{Table: "orders"}, Joins: join, Filters: tt.filters}
				res, err := e.WriteGraph(ctx, conn, OpDelete, g, nil, WriteOptions{})
				require.NoError(t, err, conn)
				require.NotNil(t, res.Tables["orders"].DeletedCount, conn)
				assert.Equal(t, tt.deleted, *res.Tables["orders"].DeletedCount, conn)

				orders, err := e.Table(conn, "orders")
				require.NoError(t, err)
				rows, err := orders.List(ctx, ListArgs{OrderBy: "id"})
				require.NoError(t, err)
				assert.Equal(t, tt.left, values(rows, "id"), conn)
			}
		})
	}
}
