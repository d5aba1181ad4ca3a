package cli

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// psql builds statements with Postgres dollar placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	DSN string
}

// NewSeedCommand creates the seed command. It creates the demo school
// schema on a Postgres database and populates it.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create and populate the demo schema",
		Long: `Create the teachers, classes and students tables on the database at
--dsn and populate them with sample rows, so the scenario suite has data
to run against.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "Postgres connection string")
	cmd.MarkFlagRequired("dsn")

	return cmd
}

var seedDDL = []string{
	`DROP TABLE IF EXISTS students`,
	`DROP TABLE IF EXISTS classes`,
	`DROP TABLE IF EXISTS teachers`,
	`CREATE TABLE teachers (
		id text PRIMARY KEY,
		name text NOT NULL
	)`,
	`CREATE TABLE classes (
		id text PRIMARY KEY,
		teacher_id text NOT NULL REFERENCES teachers (id),
		title text NOT NULL
	)`,
	`CREATE TABLE students (
		id text PRIMARY KEY,
		name text NOT NULL,
		age numeric NOT NULL
	)`,
}

func runSeed(opts *SeedOptions, cmd *cobra.Command) error {
	logger := opts.Logger()
	defer logger.Sync()

	sqldb, err := sql.Open("pgx", opts.DSN)
	if err != nil {
		return err
	}
	defer sqldb.Close()

	ctx := cmd.Context()
	for _, ddl := range seedDDL {
		if _, err := sqldb.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	logger.Debug("schema created")

	teacherIDs := make([]string, 2)
	for i := range teacherIDs {
		teacherIDs[i] = uuid.NewString()
	}
	teachers := psql.Insert("teachers").Columns("id", "name").
		Values(teacherIDs[0], "Ms Patel").
		Values(teacherIDs[1], "Mr Stone")

	classes := psql.Insert("classes").Columns("id", "teacher_id", "title").
		Values(uuid.NewString(), teacherIDs[0], "Maths").
		Values(uuid.NewString(), teacherIDs[0], "Physics").
		Values(uuid.NewString(), teacherIDs[1], "Poetry")

	students := psql.Insert("students").Columns("id", "name", "age").
		Values(uuid.NewString(), "Alice", 17).
		Values(uuid.NewString(), "Bob", 19).
		Values(uuid.NewString(), "Cara", 23).
		Values(uuid.NewString(), "Dan", 21)

	for _, ins := range []sq.InsertBuilder{teachers, classes, students} {
		stmt, insArgs, err := ins.ToSql()
		if err != nil {
			return err
		}
		logger.Debug("seeding", zap.String("sql", stmt))
		if _, err := sqldb.ExecContext(ctx, stmt, insArgs...); err != nil {
			return fmt.Errorf("seeding data: %w", err)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "seeded 2 teachers, 3 classes, 4 students")
	return nil
}
