package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sujalbistaa/confessions/internal/db"
)

// NewMigrateCommand creates the schema without starting the server.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			database, err := db.Open(cfg.DatabaseURL, log)
			if err != nil {
				return err
			}
			defer db.Close(database)

			if err := db.Migrate(database); err != nil {
				return err
			}
			log.Info("migrations complete", zap.String("database", redactURL(cfg.DatabaseURL)))
			fmt.Fprintln(cmd.OutOrStdout(), "migrations complete")
			return nil
		},
	}
}

// redactURL hides any password in a connection URL before it is logged.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
