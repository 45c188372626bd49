package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sujalbistaa/confessions/internal/db"
	"github.com/sujalbistaa/confessions/internal/moderation"
	"github.com/sujalbistaa/confessions/internal/store"
)

type moderateOptions struct {
	Delete bool
}

// NewModerateCommand changes a confession's status, or deletes it, straight
// against the database.
func NewModerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &moderateOptions{}

	cmd := &cobra.Command{
		Use:   "moderate <id> [pending|approved|rejected]",
		Short: "Set a confession's status or delete it",
		Long: `Set a confession's moderation status, or remove it with --delete.

The live feed of a running server is not notified; connected clients pick
the change up on their next refresh.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid confession id %q", args[0])
			}
			if opts.Delete == (len(args) == 2) {
				return errors.New("give either a status or --delete")
			}

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
			s := store.New(database)
			ctx := cmd.Context()

			if opts.Delete {
				if err := s.DeleteConfession(ctx, uint(id)); err != nil {
					return err
				}
				log.Info("confession deleted", zap.Uint64("confession_id", id), zap.String("via", "cli"))
				fmt.Fprintf(cmd.OutOrStdout(), "deleted confession %d\n", id)
				return nil
			}

			status, err := moderation.ParseStatus(args[1])
			if err != nil {
				return err
			}
			change, err := s.SetStatus(ctx, uint(id), status)
			if err != nil {
				return err
			}
			log.Info("confession status updated",
				zap.Uint64("confession_id", id),
				zap.String("from", string(change.Previous)),
				zap.String("to", string(status)),
				zap.String("via", "cli"))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(change.Confession)
		},
	}

	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "delete the confession and its comments")

	return cmd
}
