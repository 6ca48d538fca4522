package db

import (
	"fmt"
	"io"
	"strconv"
)

// RunMigrateCommand handles the "migrate" subcommand against the database at
// dbPath and writes a human-readable result to out.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return fmt.Errorf("missing migrate action")
	}

	// Open without running migrations; the subcommand manages the schema.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	migrationsFS := MigrationsFS()

	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(migrationsFS); err != nil {
			return err
		}
		fmt.Fprintln(out, "All migrations applied")

	case "down":
		if err := database.MigrateDown(migrationsFS); err != nil {
			return err
		}
		fmt.Fprintln(out, "Rolled back one migration")

	case "status":
		// Reported below.

	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: clocktrack migrate force <version>")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version number %q", args[1])
		}
		if err := database.MigrateForce(migrationsFS, v); err != nil {
			return err
		}

	case "help":
		PrintMigrateHelp(out)
		return nil

	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action %q", action)
	}

	version, dirty, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := LatestMigrationVersion(migrationsFS)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Current version: %d (latest %d, dirty: %v)\n", version, latest, dirty)
	return nil
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: clocktrack migrate <action>

Actions:
  up              Apply all pending migrations
  down            Roll back the most recent migration
  status          Show the current schema version
  force <version> Mark the schema as <version> after a failed migration
  help            Show this help
`)
}
