package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

type migrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (s migrationStatus) String() string {
	if s.Version == 0 {
		return "No migrations applied."
	}
	if s.Dirty {
		return fmt.Sprintf("Schema version %d (dirty: fix the failure, then run 'achectl migrate force %d')", s.Version, s.Version)
	}
	return fmt.Sprintf("Schema version %d", s.Version)
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres run-store schema",
	}

	withMigrator := func(fn func(cmd *cobra.Command, m Migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			m, err := cc.factories.Migrator(cc)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := m.Close(); cerr != nil {
					cc.Logger.Warn("failed to close migrator", logging.Err(cerr))
				}
			}()
			if err := fn(cmd, m, args); err != nil {
				return err
			}
			v, dirty, err := m.Status()
			if err != nil {
				return err
			}
			return PrintResult(cmd, migrationStatus{Version: v, Dirty: dirty})
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
				return m.Up()
			}),
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations (default one step)",
			Args:  cobra.MaximumNArgs(1),
			RunE: withMigrator(func(cmd *cobra.Command, m Migrator, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return errors.Newf(errors.ErrCodeValidation, "steps must be a positive integer, got %q", args[0])
					}
					steps = n
				}
				return m.Down(steps)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(*cobra.Command, Migrator, []string) error {
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(cmd *cobra.Command, m Migrator, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < -1 {
					return errors.Newf(errors.ErrCodeValidation, "version must be an integer >= -1, got %q", args[0])
				}
				return m.Force(v)
			}),
		},
	)
	return cmd
}

//Personal.AI order the ending
