package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/canonical/nestql"
)

// SQLOptions holds flags for the sql command.
type SQLOptions struct {
	*RootOptions
	Dialect string
	Output  string
	Schema  string
}

// NewSQLCommand creates the sql command. It compiles the built-in scenario
// suite, or the table scans of a YAML-declared schema, to SQL text.
func NewSQLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SQLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sql [scenario...]",
		Short: "Compile queries to SQL",
		Long: `Compile the built-in scenario suite to SQL for the chosen dialect.
With no arguments every scenario is compiled; otherwise only the named
ones. With --schema, the table scans of the declared schema are compiled
instead.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSQL(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Dialect, "dialect", "d", "postgres", "target dialect (postgres|trino)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "YAML schema file to compile instead of the scenario suite")

	return cmd
}

func runSQL(opts *SQLOptions, args []string, cmd *cobra.Command) error {
	logger := opts.Logger()
	defer logger.Sync()

	dialect, err := nestql.ParseDialect(opts.Dialect)
	if err != nil {
		return err
	}

	type compiled struct {
		name string
		coll nestql.Collection
	}
	var queries []compiled
	if opts.Schema != "" {
		tables, err := LoadSchema(opts.Schema)
		if err != nil {
			return err
		}
		logger.Debug("loaded schema", zap.String("path", opts.Schema), zap.Int("tables", len(tables)))
		for _, t := range tables {
			queries = append(queries, compiled{name: t.Name(), coll: t.Collection})
		}
	} else {
		scenarios, err := LookupScenarios(args)
		if err != nil {
			return err
		}
		for _, s := range scenarios {
			queries = append(queries, compiled{name: s.Name, coll: s.Coll})
		}
	}

	var buf bytes.Buffer
	for _, q := range queries {
		frag, err := q.coll.ToSQL(dialect)
		if err != nil {
			return fmt.Errorf("scenario %q: %w", q.name, err)
		}
		logger.Debug("compiled", zap.String("name", q.name), zap.String("dialect", dialect.String()))
		fmt.Fprintf(&buf, "-- %s (%s)\nSELECT * FROM %s;\n\n", q.name, dialect, frag)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("writing output file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d quer%s to %s\n", len(queries), plural(len(queries), "y", "ies"), opts.Output)
		return nil
	}
	_, err = cmd.OutOrStdout().Write(buf.Bytes())
	return err
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
