package cli

import (
	"go.uber.org/zap"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
}

// Logger returns the command logger: development-level output with
// --verbose, silent otherwise. Log lines go to stderr so stdout stays
// clean for SQL and rows.
func (o *RootOptions) Logger() *zap.Logger {
	if o.Verbose {
		return zap.Must(zap.NewDevelopment())
	}
	return zap.NewNop()
}

// NewRootCommand creates the root command for the nestql CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "nestql",
		Short: "Compile and run nested-collection queries",
		Long: `nestql compiles queries written against nested collections into flat SQL
for Postgres or Trino, and can run them against a live database.`,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewSQLCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}
