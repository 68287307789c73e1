package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/checkin-engine/attendance/store"
	"github.com/warp/checkin-engine/store/sqlite"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		flagPort, flagDB, flagActor = 0, "", ""
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRosterImport_UpsertsCSV(t *testing.T) {
	// GIVEN: A roster CSV and an empty database path
	t.Setenv("APP_ENV", "production")
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "employees.csv")
	dbPath := filepath.Join(dir, "attendance.db")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"employee_id,full_name,department,is_active\n"+
			"EMP-001,Ayu Lestari,Dept A,true\n"+
			"EMP-002,Budi Santoso,Dept A,false\n"+
			" ,Nobody,Dept C,\n"), 0o600))

	// WHEN: The import command runs
	out, err := runCLI(t, "roster", "import", csvPath, "--db", dbPath, "--actor", "hr-admin")
	require.NoError(t, err)

	// THEN: Both rows are stored and the import is reported
	assert.Contains(t, out, "imported 2 employees from employees.csv")

	st, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	active, err := st.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Ayu Lestari", active[0].FullName)

	imports, err := st.ListRosterImports(ctx)
	require.NoError(t, err)
	require.Len(t, imports, 1)
	assert.Equal(t, "hr-admin", imports[0].ActorID)
}

func TestRosterImport_RejectsMemoryDB(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	_, err := runCLI(t, "roster", "import", "whatever.csv", "--db", ":memory:")
	assert.ErrorContains(t, err, "persistent database")
}

func TestOpenStore(t *testing.T) {
	st, closeStore, err := openStore(":memory:")
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, st)
	assert.NoError(t, closeStore())

	st, closeStore, err = openStore(filepath.Join(t.TempDir(), "attendance.db"))
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, st)
	assert.NoError(t, closeStore())
}
