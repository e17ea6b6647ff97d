package db

import (
	"fmt"
	"io"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand of the rover binary.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return fmt.Errorf("missing migrate action")
	}

	migFS, err := getMigrationsFS()
	if err != nil {
		return err
	}
	// Open without migrating; the action decides what to apply.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(migFS); err != nil {
			return err
		}
	case "down":
		if err := database.MigrateDown(migFS); err != nil {
			return err
		}
	case "version", "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: rover migrate %s <version_number>", action)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return fmt.Errorf("invalid version number: %s", args[1])
		}
		if action == "version" {
			err = database.MigrateTo(migFS, uint(v))
		} else {
			err = database.MigrateForce(migFS, v)
		}
		if err != nil {
			return err
		}
	case "status":
	case "help":
		PrintMigrateHelp(out)
		return nil
	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action: %s", action)
	}

	status, err := database.GetMigrationStatus(migFS)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "version %d of %d (dirty: %v)\n", status.Current, status.Latest, status.Dirty)
	if status.Dirty {
		fmt.Fprintln(out, "database is dirty: inspect it, then run: rover migrate force <version>")
	} else if n := status.Pending(); n > 0 {
		fmt.Fprintf(out, "%d migration(s) pending: run: rover migrate up\n", n)
	}
	return nil
}

// PrintMigrateHelp writes the usage of the migrate subcommand.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Database Migration Commands

Usage: rover migrate <command> [-db path]

Commands:
  up              Apply all pending migrations
  down            Roll back one migration
  status          Show current migration version
  version <N>     Migrate to version N
  force <N>       Force the recorded version to N (recovery only)
  help            Show this help message
`)
}
