package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/benvon/smart-timelog/internal/config"
	"github.com/benvon/smart-timelog/internal/database"
	"github.com/spf13/cobra"
)

// newInitCmd creates the init command
func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database tables that do not exist yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.opts.DryRun {
				return fmt.Errorf("init needs a database; drop --dry-run")
			}
			if err := a.env.InitSchema(cmd.Context(), a.cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}

func initDatabaseSchema(ctx context.Context, cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}()
	return db.EnsureSchema(ctx)
}
