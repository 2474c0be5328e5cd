package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/database/postgres"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// NewMigrateCmd creates the migrate command group for the postgres table
// store schema.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres table store schema",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMigrator(cmd)
			if err != nil {
				return err
			}
			if err := m.Down(steps); err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "migrate down")
			}
			PrintSuccess(cmd, fmt.Sprintf("rolled back %d migration(s)", steps))
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := newMigrator(cmd)
				if err != nil {
					return err
				}
				if err := m.Up(); err != nil {
					return errors.Wrap(err, errors.ErrCodeDatabaseError, "migrate up")
				}
				PrintSuccess(cmd, "schema up to date")
				return nil
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Print the applied schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := newMigrator(cmd)
				if err != nil {
					return err
				}
				version, dirty, err := m.Status()
				if err != nil {
					return errors.Wrap(err, errors.ErrCodeDatabaseError, "migrate status")
				}
				return PrintResult(cmd, migrationStatus{Version: version, Dirty: dirty})
			},
		},
	)
	return cmd
}

func newMigrator(cmd *cobra.Command) (*postgres.Migrator, error) {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return nil, err
	}
	db := cliCtx.Config.Database
	return postgres.NewMigrator(postgres.BuildDSN(db), db.MigrationPath), nil
}

type migrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (s migrationStatus) String() string {
	if s.Dirty {
		return fmt.Sprintf("version %d (dirty)", s.Version)
	}
	return fmt.Sprintf("version %d", s.Version)
}
