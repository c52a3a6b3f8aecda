package psql

import (
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/dosco/restjin/core/internal/qcode"
	"github.com/dosco/restjin/core/internal/sdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileGraph(t *testing.T, dbType, js string) (Query, error) {
	t.Helper()
	g, err := qcode.ParseGraph([]byte(js))
	require.NoError(t, err)
	return NewCompiler(Config{DBType: dbType}).CompileGraph(testSchema(t), g)
}

func TestCompileGraphJoin(t *testing.T) {
	q, err := compileGraph(t, "postgres", `{
		"source": {"table": "users"},
		"joins": [{"from": {"table": "users", "column": "id"}, "to": {"table": "posts", "column": "user_id"}}],
		"filters": [{"field": "title", "operator": "contains", "value": "X"}]
	}`)
	require.NoError(t, err)

	assert.Equal(t, `SELECT "users"."id" AS "users_id", "users"."name" AS "users_name", `+
		`"users"."email" AS "users_email", "users"."meta" AS "users_meta", `+
		`"posts"."id" AS "posts_id", "posts"."user_id" AS "posts_user_id", "posts"."title" AS "posts_title" `+
		`FROM "users" LEFT JOIN "posts" ON "users"."id" = "posts"."user_id" `+
		`WHERE "posts"."title" LIKE $1`, q.Text)
	assert.Equal(t, []interface{}{"%X%"}, q.Values)
}

func TestCompileGraphAggregate(t *testing.T) {
	q, err := compileGraph(t, "postgres", `{
		"source": {"table": "orders"},
		"groupBy": ["status"],
		"aggregations": [
			{"function": "SUM", "field": "amt", "alias": "total"},
			{"function": "COUNT", "field": "*", "alias": "n"}
		],
		"having": [{"aggregateAlias": "total", "operator": "gt", "value": 10}],
		"sort": [{"field": "total", "direction": "desc"}],
		"limit": 5
	}`)
	require.NoError(t, err)

	assert.Equal(t, `SELECT "orders"."status" AS "status", SUM("orders"."amt") AS "total", COUNT(*) AS "n" `+
		`FROM "orders" GROUP BY "orders"."status" HAVING SUM("orders"."amt") > $1 `+
		`ORDER BY "total" DESC NULLS LAST LIMIT $2`, q.Text)
	assert.Equal(t, []interface{}{float64(10), 5}, q.Values)
}

func TestCompileGraphAggregateNoGroup(t *testing.T) {
	q, err := compileGraph(t, "mysql", `{
		"source": {"table": "orders"},
		"filters": [{"field": "status", "value": "paid"}],
		"aggregations": [{"function": "avg", "field": "amt"}]
	}`)
	require.NoError(t, err)

	assert.Equal(t, "SELECT AVG(`orders`.`amt`) AS `avg_amt` FROM `orders` WHERE `orders`.`status` = ?", q.Text)
	assert.Equal(t, []interface{}{"paid"}, q.Values)
}

func TestCompileGraphAlias(t *testing.T) {
	q, err := compileGraph(t, "sqlite", `{
		"source": {"table": "users", "alias": "u"},
		"filters": [{"field": "u.id", "value": 1}, {"field": "nope", "value": 1}],
		"outputFields": {"u": ["name"]},
		"sort": [{"field": "name"}],
		"offset": 2
	}`)
	require.NoError(t, err)

	assert.Equal(t, `SELECT "u"."name" AS "name" FROM "users" AS "u" WHERE "u"."id" = ? `+
		`ORDER BY "u"."name" ASC LIMIT -1 OFFSET ?`, q.Text)
	assert.Equal(t, []interface{}{int64(1), 2}, q.Values)
	assert.Equal(t, []string{"filter: nope"}, q.Ignored)
}

func TestCompileGraphErrors(t *testing.T) {
	_, err := compileGraph(t, "postgres", `{"source": {"table": "ghosts"}}`)
	assert.True(t, qcode.IsKind(err, qcode.KindUnknownTable))

	_, err = NewCompiler(Config{}).CompileGraph(testSchema(t), &qcode.Graph{})
	assert.True(t, qcode.IsKind(err, qcode.KindInvalidGraph))
}

func TestIdentifierInjection(t *testing.T) {
	s, err := sdata.NewDBSchema("postgres", []sdata.DBTable{
		{Name: `users"; DROP TABLE users; --`, Columns: []sdata.DBColumn{{Name: "id", Type: "integer"}}},
		{Name: "pg_shadow", Columns: []sdata.DBColumn{{Name: "id", Type: "integer"}}},
		{Name: "notes", PrimaryCols: []string{"id"}, Columns: []sdata.DBColumn{
			{Name: "id", Type: "integer"},
			{Name: "body`; --", Type: "text"},
		}},
	})
	require.NoError(t, err)
	co := NewCompiler(Config{DBType: "postgres"})

	for _, name := range []string{`users"; DROP TABLE users; --`, "pg_shadow"} {
		ti, _ := s.Find(name)
		q, err := co.BuildSelect(ti, SelectArgs{})
		assert.True(t, qcode.IsKind(err, qcode.KindInvalidIdentifier), name)
		assert.Empty(t, q.Text)
	}

	notes, _ := s.Find("notes")
	q, err := co.BuildSelect(notes, SelectArgs{Filters: []qcode.Filter{qcode.Simple("body`; --", "x")}})
	assert.True(t, qcode.IsKind(err, qcode.KindInvalidIdentifier))
	assert.Empty(t, q.Text)

	_, err = co.BuildInsert(notes, map[string]interface{}{"body`; --": "x"})
	assert.True(t, qcode.IsKind(err, qcode.KindInvalidIdentifier))
}

func TestValuesNeverInlined(t *testing.T) {
	evil := `x'); DROP TABLE users; --`
	co := NewCompiler(Config{DBType: "mysql"})

	q, err := co.BuildSelect(testTable(t, "users"), SelectArgs{Filters: []qcode.Filter{
		qcode.Simple("name", evil),
		qcode.Operator("email", qcode.OpContains, evil),
		qcode.Operator("id", qcode.OpIn, []interface{}{evil, 2}),
	}})
	require.NoError(t, err)
	assert.NotContains(t, q.Text, "DROP")
	assert.Len(t, q.Values, 4)
}

var pgParam = regexp.MustCompile(`\$(\d+)`)

// every placeholder must have exactly one value, in order
func TestPlaceholderAlignment(t *testing.T) {
	s := testSchema(t)
	users, _ := s.Find("users")
	orders, _ := s.Find("orders")
	filters := []qcode.Filter{
		qcode.Simple("status", "new"),
		qcode.Operator("amt", qcode.OpIn, "1,2,3"),
		qcode.Operator("status", qcode.OpStartsWith, "n"),
	}
	data := map[string]interface{}{"status": "paid", "amt": 3, "user_id": 1}

	for _, dbType := range []string{"postgres", "mysql", "sqlite"} {
		co := NewCompiler(Config{DBType: dbType})

		build := []func() (Query, error){
			func() (Query, error) {
				return co.BuildSelect(orders, SelectArgs{Filters: filters, Limit: intPtr(1), Offset: intPtr(2)})
			},
			func() (Query, error) { return co.BuildInsert(orders, data) },
			func() (Query, error) { return co.BuildUpdate(orders, 1, data) },
			func() (Query, error) { return co.BuildUpdateWhere(orders, filters, data) },
			func() (Query, error) { return co.BuildDeleteWhere(orders, filters) },
			func() (Query, error) {
				return co.BuildRelated(s, users, "orders", 1, "", SelectArgs{Filters: filters, Limit: intPtr(3)})
			},
		}

		for i, fn := range build {
			q, err := fn()
			require.NoError(t, err)
			name := dbType + "_" + strconv.Itoa(i)

			if dbType == "postgres" {
				m := pgParam.FindAllStringSubmatch(q.Text, -1)
				require.Len(t, m, len(q.Values), name)
				for j, v := range m {
					assert.Equal(t, strconv.Itoa(j+1), v[1], name)
				}
			} else {
				assert.Equal(t, len(q.Values), strings.Count(q.Text, "?"), name)
			}
		}
	}
}

func TestCompileCount(t *testing.T) {
	g, err := qcode.ParseGraph([]byte(`{
		"source": {"table": "users"},
		"filters": [{"field": "name", "operator": "startswith", "value": "A"}],
		"outputFields": {"users": ["id"]},
		"sort": [{"field": "id", "direction": "desc"}],
		"limit": 2,
		"offset": 1
	}`))
	require.NoError(t, err)

	p, err := qcode.NewPlan(testSchema(t), g)
	require.NoError(t, err)

	q, err := NewCompiler(Config{DBType: "postgres"}).CompileCount(p)
	require.NoError(t, err)

	assert.Equal(t, `SELECT COUNT(*) AS "total" FROM (SELECT "users"."id" AS "id" FROM "users" `+
		`WHERE "users"."name" LIKE $1) AS "t"`, q.Text)
	assert.Equal(t, []interface{}{"A%"}, q.Values)
}
