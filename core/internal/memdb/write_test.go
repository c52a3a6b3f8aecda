package memdb

import (
	"sync"
	"testing"

	"github.com/dosco/restjin/core/internal/qcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func source(table string, filters ...qcode.Filter) *qcode.Graph {
	return &qcode.Graph{Source: qcode.Source{Table: table}, Filters: filters}
}

func TestInsert(t *testing.T) {
	s := newTestStore(t)

	res, err := s.ExecuteWrite(OpInsert, source("users"), map[string]interface{}{"name": "Dan", "junk": 1}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, OpInsert, res.Operation)
	assert.Equal(t, Row{"id": int64(4), "name": "Dan"}, res.Tables["users"].Data)
	assert.Equal(t, 4, s.Len("users"))

	res, err = s.ExecuteWrite(OpInsert, source("users"), map[string]interface{}{"id": "", "name": "Eve"}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Tables["users"].Data["id"])

	res, err = s.ExecuteWrite(OpInsert, source("users"), map[string]interface{}{"id": 42, "name": "Zed"}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 42, res.Tables["users"].Data["id"])
}

func TestInsertPreview(t *testing.T) {
	s := newTestStore(t)

	res, err := s.ExecuteWrite(OpInsert, source("users"), map[string]interface{}{"name": "Dan"}, WriteOptions{PreviewOnly: true})
	require.NoError(t, err)
	assert.True(t, res.Tables["users"].Preview)
	assert.Equal(t, int64(4), res.Tables["users"].Data["id"])
	assert.Equal(t, 3, s.Len("users"))
}

func TestInsertMultiTable(t *testing.T) {
	s := newTestStore(t)

	res, err := s.ExecuteWrite(OpInsert, source("users"), map[string]interface{}{
		"name":          "Dan",
		"posts.title":   "hello",
		"posts.user_id": 4,
	}, WriteOptions{})
	require.NoError(t, err)
	require.Len(t, res.Tables, 2)
	assert.Equal(t, int64(4), res.Tables["users"].Data["id"])
	assert.Equal(t, int64(4), res.Tables["posts"].Data["id"])

	// audit_log has no primary key, rows go in as given
	res, err = s.ExecuteWrite(OpInsert, source("audit_log"), map[string]interface{}{"event": "login"}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, Row{"event": "login"}, res.Tables["audit_log"].Data)
}

func TestInsertErrors(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ExecuteWrite(OpInsert, source("users"), map[string]interface{}{"junk": 1}, WriteOptions{})
	assert.True(t, qcode.IsKind(err, qcode.KindNoValidColumns))

	_, err = s.ExecuteWrite(OpInsert, source("users"), nil, WriteOptions{})
	assert.True(t, qcode.IsKind(err, qcode.KindNoValidColumns))

	_, err = s.ExecuteWrite(OpInsert, source("users"), map[string]interface{}{"ghosts.name": 1}, WriteOptions{})
	assert.True(t, qcode.IsKind(err, qcode.KindUnknownTable))

	_, err = s.ExecuteWrite(OpInsert, source("ghosts"), map[string]interface{}{"name": 1}, WriteOptions{})
	assert.True(t, qcode.IsKind(err, qcode.KindUnknownTable))

	_, err = s.ExecuteWrite("UPSERT", source("users"), map[string]interface{}{"name": 1}, WriteOptions{})
	assert.True(t, qcode.IsKind(err, qcode.KindInvalidGraph))
	assert.Equal(t, 3, s.Len("users"))
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	before, err := s.Snapshot("orders")
	require.NoError(t, err)

	res, err := s.ExecuteWrite(OpUpdate, source("orders", qcode.Simple("status", "paid")),
		map[string]interface{}{"status": "shipped"}, WriteOptions{PreviewOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, *res.Tables["orders"].UpdatedCount)
	assert.Equal(t, "would update 2 rows", res.Tables["orders"].Message)

	res, err = s.ExecuteWrite(OpUpdate, source("orders", qcode.Simple("status", "paid")),
		map[string]interface{}{"status": "shipped"},
		WriteOptions{AdditionalFilters: []qcode.Filter{qcode.Operator("amt", qcode.OpGreaterThan, 15)}})
	require.NoError(t, err)
	assert.Equal(t, 1, *res.Tables["orders"].UpdatedCount)

	after, err := s.Snapshot("orders")
	require.NoError(t, err)
	assert.Equal(t, "shipped", after[2]["status"])
	assert.Equal(t, "paid", after[0]["status"])
	assert.Equal(t, 30, after[2]["amt"])

	// earlier snapshots are never modified in place
	assert.Equal(t, "paid", before[2]["status"])
}

func TestUpdateMissingFilter(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name    string
		filters []qcode.Filter
	}{
		{"none", nil},
		{"unknown column", []qcode.Filter{qcode.Simple("bogus", 1)}},
		{"other table", []qcode.Filter{qcode.Simple("posts.title", "X")}},
	}

	for _, tt := range tests {
		_, err := s.ExecuteWrite(OpUpdate, source("users", tt.filters...),
			map[string]interface{}{"name": "x"}, WriteOptions{})
		assert.True(t, qcode.IsKind(err, qcode.KindMissingFilter), tt.name)
	}

	rows, _ := s.Snapshot("users")
	assert.Equal(t, "Alice", rows[0]["name"])
}

func TestDeleteMissingFilter(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"users", "posts", "orders", "audit_log"} {
		res, err := s.ExecuteWrite(OpDelete, source(table), nil, WriteOptions{})
		assert.True(t, qcode.IsKind(err, qcode.KindMissingFilter), table)
		assert.Nil(t, res, table)
	}

	_, err := s.ExecuteWrite(OpDelete, source("users", qcode.Simple("orders.status", "paid")), nil, WriteOptions{})
	assert.True(t, qcode.IsKind(err, qcode.KindMissingFilter))

	assert.Equal(t, 3, s.Len("users"))
	assert.Equal(t, 3, s.Len("orders"))
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	res, err := s.ExecuteWrite(OpDelete, source("orders"), nil, WriteOptions{
		AdditionalFilters: []qcode.Filter{qcode.Simple("status", "new")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, *res.Tables["orders"].DeletedCount)
	assert.Equal(t, 2, s.Len("orders"))

	res, err = s.ExecuteWrite(OpDelete, source("orders", qcode.Simple("status", "paid")), nil,
		WriteOptions{PreviewOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "would delete 2 rows", res.Tables["orders"].Message)
	assert.Equal(t, 2, s.Len("orders"))
}

func TestDeleteSemiJoin(t *testing.T) {
	s := newTestStore(t)
	g := source("users", qcode.Simple("posts.title", "Z"))
	g.Joins = []qcode.Join{{
		From: qcode.ColRef{Table: "users", Column: "id"},
		To:   qcode.ColRef{Table: "posts", Column: "user_id"},
	}}

	res, err := s.ExecuteWrite(OpDelete, g, nil, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, *res.Tables["users"].DeletedCount)

	rows, _ := s.Snapshot("users")
	assert.Equal(t, []interface{}{"Alice", "Carol"}, column(rows, "name"))

	// a filter on a table with no join path is a no-op
	res, err = s.ExecuteWrite(OpDelete,
		source("users", qcode.Simple("name", "Carol"), qcode.Simple("orders.status", "x")), nil, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, *res.Tables["users"].DeletedCount)
	assert.Equal(t, 1, s.Len("users"))
}

func TestParseWriteOp(t *testing.T) {
	op, err := ParseWriteOp("delete")
	require.NoError(t, err)
	assert.Equal(t, OpDelete, op)

	_, err = ParseWriteOp("merge")
	assert.True(t, qcode.IsKind(err, qcode.KindInvalidGraph))
}

func TestConcurrentWrites(t *testing.T) {
	s := newTestStore(t)
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.ExecuteWrite(OpInsert, source("posts"),
				map[string]interface{}{"user_id": 3, "title": "t"}, WriteOptions{})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := s.Execute(source("posts", qcode.Simple("user_id", 3)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rows, err := s.Snapshot("posts")
	require.NoError(t, err)
	require.Len(t, rows, n+3)

	seen := make(map[string]bool)
	for _, r := range rows {
		id := qcode.Stringify(r["id"])
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
