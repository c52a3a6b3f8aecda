package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dosco/restjin/core"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// compileCmd creates the compile command
func compileCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "compile <graph.json>",
		Short: "Compile a query graph to SQL",
		Long: `Compile a query graph to a SQL statement for a database type without
running it. The tables come from a schema file. Use - to read the graph from
stdin.`,
		Args: cobra.ExactArgs(1),
		Run:  cmdCompile,
	}
	c.Flags().String("schema", "schema.yml", "Schema file describing the tables")
	c.Flags().String("type", "", "Database type: postgres, mysql, mariadb or sqlite. Defaults to the schema file type")
	c.Flags().Bool("pretty", false, "Print one clause per line")
	return c
}

func cmdCompile(cmd *cobra.Command, args []string) {
	schemaFile, _ := cmd.Flags().GetString("schema")
	dbType, _ := cmd.Flags().GetString("type")
	pretty, _ := cmd.Flags().GetBool("pretty")

	if err := compileGraph(os.Stdout, os.Stdin, schemaFile, dbType, args[0], pretty); err != nil {
		log.Fatalf("%s", err)
	}
}

// compileGraph compiles the graph in graphFile against the tables of
// schemaFile and writes the statement and its values to w
func compileGraph(w io.Writer, stdin io.Reader, schemaFile, dbType, graphFile string, pretty bool) error {
	b, err := os.ReadFile(schemaFile)
	if err != nil {
		return errors.WithStack(err)
	}
	sf, err := core.ParseSchema(b)
	if err != nil {
		return err
	}
	if dbType != "" {
		sf.Type = dbType
	}

	var gb []byte
	if graphFile == "-" {
		gb, err = io.ReadAll(stdin)
	} else {
		gb, err = os.ReadFile(graphFile)
	}
	if err != nil {
		return errors.WithStack(err)
	}
	g, err := core.ParseGraph(gb)
	if err != nil {
		return err
	}

	e, err := core.New(nil)
	if err != nil {
		return err
	}
	if err := e.ConnectLocal("compile", sf.Type, sf); err != nil {
		return err
	}

	st, err := e.CompileGraph("compile", g)
	if err != nil {
		return err
	}

	text := st.Text
	if pretty {
		text = core.Prettify(text, sf.Type)
	}
	vals, err := json.Marshal(st.Values)
	if err != nil {
		return errors.WithStack(err)
	}

	fmt.Fprintln(w, text)
	fmt.Fprintf(w, "-- values: %s\n", vals)
	for _, ref := range st.Ignored {
		fmt.Fprintf(w, "-- ignored: %s\n", ref)
	}
	return nil
}
