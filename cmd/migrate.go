package cmd

import (
	"fmt"

	"fire/command/internal/config"
	"fire/command/internal/database"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
)

var (
	migrateDown bool
	migrateMax  int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the SQL migrations to DB_URL",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back instead of applying")
	migrateCmd.Flags().IntVar(&migrateMax, "max", 0, "limit the number of migrations (0 = all; --down defaults to 1)")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	dir, max := migrate.Up, migrateMax
	if migrateDown {
		dir = migrate.Down
		if max == 0 {
			max = 1
		}
	}

	n, err := database.Migrate(cmd.Context(), cfg.Database, dir, max, logger)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	verb := "applied"
	if migrateDown {
		verb = "rolled back"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d migration(s)\n", verb, n)
	return nil
}
