/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the attendance check-in engine. The root command
  runs the HTTP server; "roster import" loads an employee CSV.

COMMANDS:
  checkin-engine [serve]                        Run the HTTP + WebSocket server (default)
  checkin-engine roster import FILE --actor ID  Upsert employees from a CSV

STARTUP SEQUENCE (serve):
  1. Load config (.env, environment, flag overrides)
  2. Build the zap logger for APP_ENV
  3. Open the store (":memory:" uses the in-memory store, anything else SQLite)
  4. Wire the engine, handler, router and stats refresher
  5. Run the server under an errgroup until SIGINT/SIGTERM

FLAGS:
  --port   HTTP server port (overrides PORT)
  --db     Database path (overrides ATTENDANCE_DB)
           Use ":memory:" for a throwaway in-memory store

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the refresher and close live streams
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./checkin-engine --db=./data/attendance.db
  ./checkin-engine --db=":memory:" --port=3000
  ./checkin-engine roster import employees.csv --actor=hr-admin

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagPort int
	flagDB   string
)

var rootCmd = &cobra.Command{
	Use:           "checkin-engine",
	Short:         "Attendance session and check-in engine",
	Long:          `HTTP + WebSocket API for attendance sessions. Commands: serve (default), roster import.`,
	RunE:          runServe, // default: same as "checkin-engine serve"
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "HTTP server port (overrides PORT)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path, or :memory: (overrides ATTENDANCE_DB)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rosterCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
