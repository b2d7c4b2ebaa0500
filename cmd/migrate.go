package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/anime-catalog-crawler/internal/app"
)

// newMigrateCmd creates the 'migrate' subcommand, which applies pending
// schema migrations to the configured Postgres database.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			applied, err := appInstance.Migrate(cmd.Context())
			if err != nil {
				if errors.Is(err, app.ErrMigrationsUnsupported) {
					return fmt.Errorf("%w (database.driver=%s)", err, appInstance.Config().Database.Driver)
				}
				return err
			}
			appInstance.Logger().Info("migrate finished", zap.Int("applied", applied))
			return nil
		},
	}
}
