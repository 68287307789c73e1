package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/warp/checkin-engine/attendance"
	"github.com/warp/checkin-engine/roster"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Roster maintenance",
}

var rosterImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Upsert employees from a CSV (employee_id,full_name,department,is_active)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRosterImport,
}

var flagActor string

func init() {
	rosterImportCmd.Flags().StringVar(&flagActor, "actor", "", "id of the person performing the import")
	rosterCmd.AddCommand(rosterImportCmd)
}

func runRosterImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DBPath == ":memory:" {
		return fmt.Errorf("roster import needs a persistent database, got %q", cfg.DBPath)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	employees, err := roster.ParseCSV(f)
	if err != nil {
		return err
	}

	st, closeStore, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer closeStore()

	importer := &attendance.RosterImporter{Store: st, Logger: logger.Named("roster")}
	imp, err := importer.Import(cmd.Context(), employees, filepath.Base(path), flagActor)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "imported %d employees from %s (import %s)\n", imp.RowCount, imp.Filename, imp.ID)
	return nil
}
