package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSchema = "testdata/library.cue"
	testRows   = "testdata/library.yaml"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// importLibrary loads testdata/library.yaml into a new database and returns
// its path. Identities: Author 1 (Le Guin) and 2 (Butler), Publisher 1,
// Books 1 and 2 by Le Guin and 3 by Butler, Reviews 1 and 2 of Books 1 and 2.
func importLibrary(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "library.db")
	_, err := execute(t, "import", "--db", db, "--schema", testSchema, testRows)
	require.NoError(t, err)
	return db
}

func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func countRows(t *testing.T, db, table string) int64 {
	t.Helper()
	out, err := execute(t, "sql", "--db", db, "--schema", testSchema, "--format", "json",
		"SELECT COUNT(*) AS n FROM "+table)
	require.NoError(t, err)
	var res SQLResult
	decodeData(t, out, &res)
	require.Len(t, res.Rows, 1)
	return int64(res.Rows[0][0].(float64))
}

func TestOrder_AllTypes(t *testing.T) {
	out, err := execute(t, "order", "--schema", testSchema)
	require.NoError(t, err)
	assert.Equal(t, "1. Author\n2. Publisher\n3. Book\n4. Review\n", out)
}

func TestOrder_SelectedTypesJSON(t *testing.T) {
	out, err := execute(t, "order", "--schema", testSchema, "--format", "json", "Review", "Book", "Author")
	require.NoError(t, err)

	var res OrderResult
	decodeData(t, out, &res)
	assert.Equal(t, []string{"Author", "Book", "Review"}, res.Order)
}

func TestOrder_UnknownType(t *testing.T) {
	out, err := execute(t, "order", "--schema", testSchema, "Magazine")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, IsReported(err))
	assert.Contains(t, out, "Error [E101]")
}

func TestOrder_Cycle(t *testing.T) {
	schema := filepath.Join(t.TempDir(), "cycle.cue")
	require.NoError(t, os.WriteFile(schema, []byte(`
entity: Egg: fields: hen: {ref: "Hen"}
entity: Hen: fields: egg: {ref: "Egg"}
`), 0o644))

	out, err := execute(t, "order", "--schema", schema, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeCyclicDependency, resp.Error.Code)
}

func TestSchemaRequired(t *testing.T) {
	out, err := execute(t, "order")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")
}

func TestSchemaFromConfigFile(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "bulkstep.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("schema: "+testSchema+"\n"), 0o644))

	out, err := execute(t, "order", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "1. Author")
}

func TestInvalidConfigFile(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "bulkstep.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("step: 0\n"), 0o644))

	out, err := execute(t, "order", "--config", cfg, "--schema", testSchema)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
}

func TestImport_Text(t *testing.T) {
	db := filepath.Join(t.TempDir(), "library.db")

	out, err := execute(t, "import", "--db", db, "--schema", testSchema, "--step", "1", testRows)
	require.NoError(t, err)
	assert.Equal(t, "Review: 2 created\nBook: 3 created\nAuthor: 2 created\nPublisher: 1 created\ntotal: 8\n", out)
	assert.Equal(t, int64(3), countRows(t, db, "book"))
}

func TestImport_JSON(t *testing.T) {
	db := filepath.Join(t.TempDir(), "library.db")

	out, err := execute(t, "import", "--db", db, "--schema", testSchema, "--format", "json", "--atomic=false", testRows)
	require.NoError(t, err)

	var res ImportResult
	decodeData(t, out, &res)
	assert.Equal(t, 8, res.Total)
	assert.False(t, res.Atomic)
	require.Len(t, res.Types, 4)
	assert.Equal(t, "Author", res.Types[2].Type)
	assert.Equal(t, []any{float64(1), float64(2)}, res.Types[2].IDs)
}

func TestImport_MissingFile(t *testing.T) {
	db := filepath.Join(t.TempDir(), "library.db")

	out, err := execute(t, "import", "--db", db, "--schema", testSchema, "absent.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestImport_FailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "library.db")
	rows := filepath.Join(dir, "rows.yaml")
	// The second book points at a publisher that does not exist.
	require.NoError(t, os.WriteFile(rows, []byte(`
Author:
  - _key: a
    name: Anon
Book:
  - title: Fine
    author: {$ref: a}
    publisher: {$id: 1}
`), 0o644))

	out, err := execute(t, "import", "--db", db, "--schema", testSchema, rows)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E104]")
	assert.Zero(t, countRows(t, db, "author"))
}

func TestSimulate_ListsCascade(t *testing.T) {
	db := importLibrary(t)

	out, err := execute(t, "simulate", "--db", db, "--schema", testSchema, "--type", "Author", "--id", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Author: 1 (1)")
	assert.Contains(t, out, "Book: 2 (1, 2)")
	assert.Contains(t, out, "Review: 2 (1, 2)")
	assert.Contains(t, out, "total: 5")
	assert.Equal(t, int64(2), countRows(t, db, "author"), "simulate writes nothing")
}

func TestSimulate_RestrictedAndMissing(t *testing.T) {
	db := importLibrary(t)

	out, err := execute(t, "simulate", "--db", db, "--schema", testSchema, "--format", "json",
		"--type", "Publisher", "--id", "1", "--id", "7")
	require.NoError(t, err)

	var res SimulateResult
	decodeData(t, out, &res)
	assert.Equal(t, []any{float64(7)}, res.Missing)
	require.Len(t, res.Restricted, 1)
	assert.Equal(t, "Book", res.Restricted[0].Type)
	assert.Equal(t, 3, res.Restricted[0].Count)
}

func TestSimulate_BadIdentity(t *testing.T) {
	db := importLibrary(t)

	_, err := execute(t, "simulate", "--db", db, "--schema", testSchema, "--type", "Author", "--id", "one")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDelete_ReportsCascadedRows(t *testing.T) {
	db := importLibrary(t)

	out, err := execute(t, "delete", "--db", db, "--schema", testSchema, "--step", "1",
		"--type", "Author", "--id", "1")
	require.NoError(t, err)
	assert.Equal(t, "Author: 1 deleted\nBook: 2 deleted\nReview: 2 deleted\ntotal: 5\n", out)
	assert.Equal(t, int64(1), countRows(t, db, "book"))
	assert.Zero(t, countRows(t, db, "review"))
}

func TestDelete_JSON(t *testing.T) {
	db := importLibrary(t)

	out, err := execute(t, "delete", "--db", db, "--schema", testSchema, "--format", "json",
		"--type", "Author", "--id", "1", "--id", "2")
	require.NoError(t, err)

	var res DeleteResult
	decodeData(t, out, &res)
	assert.Equal(t, int64(7), res.Total)
	assert.Equal(t, map[string]int64{"Author": 2, "Book": 3, "Review": 2}, res.ByType)
}

func TestDelete_DryRun(t *testing.T) {
	db := importLibrary(t)

	out, err := execute(t, "delete", "--db", db, "--schema", testSchema, "--dry-run",
		"--type", "Author", "--id", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "total: 2")
	assert.Equal(t, int64(2), countRows(t, db, "author"))
}

func TestDelete_BlockedByRestrict(t *testing.T) {
	db := importLibrary(t)

	out, err := execute(t, "delete", "--db", db, "--schema", testSchema,
		"--type", "Publisher", "--id", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E104]")
	assert.Equal(t, int64(1), countRows(t, db, "publisher"))
	assert.Equal(t, int64(3), countRows(t, db, "book"))
}

func TestDelete_RequiresType(t *testing.T) {
	_, err := execute(t, "delete", "--schema", testSchema, "--id", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.False(t, IsReported(err))
}

func TestDiff(t *testing.T) {
	dir := t.TempDir()
	left := filepath.Join(dir, "left.yaml")
	right := filepath.Join(dir, "right.yaml")
	require.NoError(t, os.WriteFile(left, []byte("Author:\n  - name: Le Guin\n  - name: Butler\n"), 0o644))
	require.NoError(t, os.WriteFile(right, []byte("Author:\n  - name: Butler\n  - name: Jemisin\n"), 0o644))

	out, err := execute(t, "diff", "--schema", testSchema, "--type", "Author", "--fields", "name", left, right)
	require.NoError(t, err)
	assert.Contains(t, out, "only in "+left+": 1\n  Author(nil) name=Le Guin\n")
	assert.Contains(t, out, "only in "+right+": 1\n  Author(nil) name=Jemisin\n")
	assert.Contains(t, out, "common: 1 left, 1 right")

	out, err = execute(t, "diff", "--schema", testSchema, "--format", "json",
		"--type", "Author", "--fields", "name", left, right)
	require.NoError(t, err)
	var res struct {
		Type     string            `json:"type"`
		LeftOnly []json.RawMessage `json:"left_only"`
	}
	decodeData(t, out, &res)
	assert.Equal(t, "Author", res.Type)
	assert.Len(t, res.LeftOnly, 1)
}

func TestDiff_UnknownField(t *testing.T) {
	_, err := execute(t, "diff", "--schema", testSchema, "--type", "Author", "--fields", "age",
		testRows, testRows)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestSQL_NamedParameters(t *testing.T) {
	db := importLibrary(t)

	out, err := execute(t, "sql", "--db", db, "--schema", testSchema,
		"SELECT id, title FROM book WHERE author = :a ORDER BY id", "--param", "a=2")
	require.NoError(t, err)
	assert.Contains(t, out, "id")
	assert.Contains(t, out, "3   Kindred")
	assert.NotContains(t, out, "Dispossessed")
}

func TestSQL_InvalidQuery(t *testing.T) {
	db := importLibrary(t)

	out, err := execute(t, "sql", "--db", db, "--schema", testSchema, "SELEKT")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "query failed")
}

func TestSQL_BadParam(t *testing.T) {
	_, err := execute(t, "sql", "--schema", testSchema, "SELECT 1", "--param", "novalue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
