package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/register/internal/config"
	"github.com/zjrosen/register/internal/infrastructure/gormstore"
	"github.com/zjrosen/register/internal/infrastructure/sqlite"
)

// migrateResult is the JSON output of migrate.
type migrateResult struct {
	Driver  string `json:"driver"`
	Path    string `json:"path,omitempty"`
	Version uint   `json:"version,omitempty"`
	Dirty   bool   `json:"dirty"`
}

func newMigrateCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the configured store",
		Long: `Open the configured store, apply any pending schema migrations and print the result.

The sqlite store reports the applied migration version. The mysql store is
migrated from the entity definitions and reports no version.

Examples:
  register migrate
  REGISTER_STORAGE_DRIVER=mysql register migrate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := s.cfg.Storage
			switch st.Driver {
			case config.DriverSQLite:
				db, err := sqlite.NewDB(st.SQLite.Path)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()
				version, dirty, err := db.SchemaVersion()
				if err != nil {
					return err
				}
				return output(cmd, migrateResult{Driver: st.Driver, Path: db.Path(), Version: version, Dirty: dirty})
			case config.DriverMySQL:
				store, err := gormstore.Connect(gormstore.Config{
					Host:       st.MySQL.Host,
					Port:       st.MySQL.Port,
					Username:   st.MySQL.Username,
					Password:   st.MySQL.Password,
					Database:   st.MySQL.Database,
					LogQueries: st.MySQL.LogQueries,
				})
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				return output(cmd, migrateResult{Driver: st.Driver})
			default:
				return fmt.Errorf("driver %q has no schema to migrate", st.Driver)
			}
		},
	}
}
