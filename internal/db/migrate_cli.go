package db

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrUnknownMigrateAction is returned for an unrecognised migrate subcommand.
var ErrUnknownMigrateAction = errors.New("unknown migrate action")

// RunMigrateCommand executes a migrate subcommand (up, down, status, version
// N, force N, help) against the database at dbPath, writing results to out.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return fmt.Errorf("%w: none given", ErrUnknownMigrateAction)
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(out)
		return nil
	}

	// migrations own the schema, so open without running them
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
		fmt.Fprintln(out, "✓ All migrations applied successfully")
	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
		fmt.Fprintln(out, "✓ Migration rolled back successfully")
	case "status":
		return printMigrateStatus(database, out)
	case "version", "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: mozzaic migrate %s <version_number>", action)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid version number: %s", args[1])
		}
		if action == "force" {
			err = database.MigrateForce(n)
		} else {
			err = database.MigrateTo(uint(n))
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Database now at version %d\n", n)
	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("%w: %s", ErrUnknownMigrateAction, action)
	}

	return printMigrateStatus(database, out)
}

func printMigrateStatus(database *DB, out io.Writer) error {
	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := LatestMigrationVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Current version: %d (latest %d, dirty: %v)\n", version, latest, dirty)
	if dirty {
		fmt.Fprintln(out, "WARNING: a migration failed mid-execution. Inspect the database, then run: mozzaic migrate force <version>")
	}
	return nil
}

// PrintMigrateHelp writes migrate usage to out.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: mozzaic migrate <action> [args]

Actions:
  up             Apply all pending migrations
  down           Roll back the most recent migration
  status         Show the current migration version
  version <N>    Migrate up or down to version N
  force <N>      Record version N without running migrations (dirty recovery)
  help           Show this message
`)
}
