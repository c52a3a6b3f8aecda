package main

import (
	"context"
	"io"
	"os"

	"github.com/dosco/restjin/core"
	"github.com/dosco/restjin/serv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// dbCmd creates the db command
func dbCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "db",
		Short: "Database schema commands",
	}

	// Schema command - dump a connection as a schema file
	schemaCmd := &cobra.Command{
		Use:   "schema <connection>",
		Short: "Print the schema of a connection as a schema file",
		Long: `Introspect a configured connection and print its tables as a schema file.
The output can back a local connection for development without a database.

Use --rows to also copy up to that many rows per table into the seed section.`,
		Args: cobra.ExactArgs(1),
		Run:  cmdDBSchema,
	}
	schemaCmd.Flags().Int("rows", 0, "Rows per table to include as seed data")
	c.AddCommand(schemaCmd)

	return c
}

// cmdDBSchema dumps the schema of a connection
func cmdDBSchema(cmd *cobra.Command, args []string) {
	setup(cpath)
	rows, _ := cmd.Flags().GetInt("rows")

	s, err := serv.NewService(conf)
	if err != nil {
		log.Fatalf("%s", err)
	}
	defer s.Close()

	if err := dumpSchema(context.Background(), os.Stdout, s.Engine(), args[0], rows); err != nil {
		log.Fatalf("%s", err)
	}
}

// dumpSchema writes the tables of a connection, and optionally some of its
// rows, to w as a schema file
func dumpSchema(ctx context.Context, w io.Writer, e *core.Engine, conn string, rows int) error {
	schema, err := e.Schema(conn)
	if err != nil {
		return err
	}
	tables, err := e.Tables(conn)
	if err != nil {
		return err
	}

	sf := core.SchemaFile{Type: schema.DBType()}
	for _, t := range tables {
		sf.Tables = append(sf.Tables, *t)
	}

	if rows > 0 {
		sf.Seed = make(map[string][]map[string]interface{})
		for _, ti := range tables {
			t, err := e.Table(conn, ti.Name)
			if err != nil {
				return err
			}
			rl, err := t.List(ctx, core.ListArgs{Limit: &rows})
			if err != nil {
				return errors.Wrapf(err, "reading rows of '%s'", ti.Name)
			}
			if len(rl) == 0 {
				continue
			}
			sf.Seed[ti.Name] = rl
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sf); err != nil {
		return errors.WithStack(err)
	}
	return enc.Close()
}
