package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vidbrief/internal/database"
)

var dbStatusJSON bool

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect and migrate the summary database",
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List schema migrations and whether they are applied",
	RunE:  runDBStatus,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDBMigrate,
}

var dbRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back the most recent schema migration",
	RunE:  runDBRollback,
}

func init() {
	dbStatusCmd.Flags().BoolVar(&dbStatusJSON, "json", false, "output status as JSON")
	dbCmd.AddCommand(dbStatusCmd, dbMigrateCmd, dbRollbackCmd)
	rootCmd.AddCommand(dbCmd)
}

func openDB() (*database.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return database.New(cfg.Database, newLogger(os.Stderr), nil)
}

func runDBStatus(cmd *cobra.Command, _ []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	statuses, err := db.SchemaMigrator().Status(cmd.Context())
	if err != nil {
		return err
	}
	if dbStatusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tAPPLIED\tDESCRIPTION")
	for _, s := range statuses {
		applied := "pending"
		if s.AppliedAt != nil {
			applied = s.AppliedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Version, applied, s.Description)
	}
	return tw.Flush()
}

func runDBMigrate(cmd *cobra.Command, _ []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	pending, err := db.SchemaMigrator().Pending(cmd.Context())
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
		return nil
	}
	if err := db.Migrate(cmd.Context()); err != nil {
		return err
	}
	for _, m := range pending {
		fmt.Fprintf(cmd.OutOrStdout(), "Applied %s: %s\n", m.Version, m.Description)
	}
	return nil
}

func runDBRollback(cmd *cobra.Command, _ []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.SchemaMigrator().Down(cmd.Context())
}
