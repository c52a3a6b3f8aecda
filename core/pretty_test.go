package core

import (
	"testing"
)

func TestPrettify(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		dbType string
		want   string
	}{
		{
			name:   "Basic Select",
			query:  "SELECT * FROM users WHERE id = 1",
			dbType: "postgres",
			want:   "SELECT *\nFROM users\nWHERE id = 1",
		},
		{
			name:   "Postgres Quoted Identifiers",
			query:  `SELECT "where", "name" FROM "users" WHERE "name" = $1 AND "id" > $2`,
			dbType: "postgres",
			want:   "SELECT \"where\", \"name\"\nFROM \"users\"\nWHERE \"name\" = $1\nAND \"id\" > $2",
		},
		{
			name:   "MySQL Backtick Identifiers",
			query:  "SELECT `order by` FROM `users` ORDER BY `id` DESC LIMIT ?",
			dbType: "mysql",
			want:   "SELECT `order by`\nFROM `users`\nORDER BY `id` DESC\nLIMIT ?",
		},
		{
			name:   "String Literal Protection",
			query:  "SELECT 'It''s FROM here' FROM users",
			dbType: "postgres",
			want:   "SELECT 'It''s FROM here'\nFROM users",
		},
		{
			name:   "Join And Grouping",
			query:  `SELECT "u"."id" FROM "users" AS "u" LEFT JOIN "posts" ON "u"."id" = "posts"."user_id" GROUP BY "u"."id" HAVING COUNT(*) > ?`,
			dbType: "sqlite",
			want: "SELECT \"u\".\"id\"\nFROM \"users\" AS \"u\"\nLEFT JOIN \"posts\" ON \"u\".\"id\" = \"posts\".\"user_id\"" +
				"\nGROUP BY \"u\".\"id\"\nHAVING COUNT(*) > ?",
		},
		{
			name:   "Words Containing Keywords",
			query:  "SELECT brand, offsets FROM setting",
			dbType: "postgres",
			want:   "SELECT brand, offsets\nFROM setting",
		},
		{
			name:   "Insert Returning",
			query:  `INSERT INTO "users" ("name") VALUES ($1) RETURNING *`,
			dbType: "postgres",
			want:   "INSERT INTO \"users\" (\"name\")\nVALUES ($1)\nRETURNING *",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Prettify(tt.query, tt.dbType); got != tt.want {
				t.Errorf("Prettify() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}
