package cli

import (
	"database/sql"
	"fmt"
	"sort"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/canonical/nestql"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	DSN string
}

// NewRunCommand creates the run command. It executes scenarios against a
// Postgres database and prints the decoded rows.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run scenarios against Postgres",
		Long: `Compile the named scenarios (all of them with no arguments) for the
Postgres dialect, run them on the database at --dsn and print the decoded
rows. Use seed first to create and populate the schema.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "Postgres connection string")
	cmd.MarkFlagRequired("dsn")

	return cmd
}

func runRun(opts *RunOptions, args []string, cmd *cobra.Command) error {
	logger := opts.Logger()
	defer logger.Sync()

	scenarios, err := LookupScenarios(args)
	if err != nil {
		return err
	}

	sqldb, err := sql.Open("pgx", opts.DSN)
	if err != nil {
		return err
	}
	db := nestql.NewDB(sqldb)

	out := cmd.OutOrStdout()
	for _, s := range scenarios {
		stmt, err := s.Coll.Prepare(nestql.Postgres)
		if err != nil {
			return fmt.Errorf("scenario %q: %w", s.Name, err)
		}
		logger.Debug("running", zap.String("scenario", s.Name), zap.String("sql", stmt.SQL()))

		var rows []nestql.M
		if err := db.Query(cmd.Context(), stmt).All(&rows); err != nil {
			return fmt.Errorf("scenario %q: %w", s.Name, err)
		}

		fmt.Fprintf(out, "-- %s: %d row(s)\n", s.Name, len(rows))
		for _, row := range rows {
			fmt.Fprintln(out, formatRow(row))
		}
		fmt.Fprintln(out)
	}
	return nil
}

// formatRow renders one decoded row with its columns in a stable order.
func formatRow(row nestql.M) string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	s := ""
	for i, col := range cols {
		if i > 0 {
			s += "  "
		}
		s += fmt.Sprintf("%s=%v", col, row[col])
	}
	return s
}
