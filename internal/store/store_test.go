package store

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/bulkstep/internal/model"
	"github.com/roach88/bulkstep/internal/testutil"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, testutil.Registry())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path, testutil.Registry())
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path, testutil.Registry())
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"model_a", "model_b", "model_c", "author", "publisher", "book", "review"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_RequiresRegistry(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if !model.IsConfigurationError(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db", testutil.Registry())
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestStore(t, nil)

	db := s.DB()
	if db == nil {
		t.Fatal("DB() returned nil")
	}
	if err := db.Ping(); err != nil {
		t.Errorf("DB() connection not usable: %v", err)
	}
}

// Pragma tests

func TestPragma_JournalMode(t *testing.T) {
	s := createTestStore(t, nil)
	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_Synchronous(t *testing.T) {
	s := createTestStore(t, nil)
	// NORMAL = 1
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := createTestStore(t, nil)
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestPragma_ForeignKeys(t *testing.T) {
	s := createTestStore(t, nil)
	// ON = 1
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

// Schema tests

func TestSchema_BookTable(t *testing.T) {
	s := createTestStore(t, nil)

	columns := getTableColumns(t, s.db, "book")
	for _, col := range []string{"id", "title", "author", "publisher"} {
		if !slices.Contains(columns, col) {
			t.Errorf("book table missing column %q", col)
		}
	}
}

func TestSchema_ForeignKeyPolicies(t *testing.T) {
	s := createTestStore(t, nil)

	rows, err := s.db.Queryx("PRAGMA foreign_key_list(book)")
	if err != nil {
		t.Fatalf("foreign_key_list failed: %v", err)
	}
	defer rows.Close()

	policies := map[string]string{}
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		policies[asString(row["from"])] = asString(row["on_delete"])
	}

	if policies["author"] != "CASCADE" {
		t.Errorf("book.author on_delete = %q, expected CASCADE", policies["author"])
	}
	if policies["publisher"] != "RESTRICT" {
		t.Errorf("book.publisher on_delete = %q, expected RESTRICT", policies["publisher"])
	}
}

func TestSchema_CreateTableSQL(t *testing.T) {
	reg := testutil.Registry()

	ddl, err := createTableSQL(reg, reg.Get(testutil.ModelC))
	if err != nil {
		t.Fatalf("createTableSQL() failed: %v", err)
	}

	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS " + quote("model_c"),
		quote("id") + " INTEGER PRIMARY KEY AUTOINCREMENT",
		quote("model_b") + " INTEGER NOT NULL",
		quote("bool_field") + " BOOLEAN NOT NULL",
		"FOREIGN KEY (" + quote("model_b") + ") REFERENCES " + quote("model_b") + "(" + quote("id") + ") ON DELETE CASCADE",
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL missing %q:\n%s", want, ddl)
		}
	}
}

func TestSchema_UUIDKeys(t *testing.T) {
	tag := &model.EntityType{Name: "Tag", Key: model.KeyUUID, Fields: []model.Field{{Name: "label", Kind: model.KindString}}}
	post := &model.EntityType{
		Name:        "Post",
		Fields:      []model.Field{{Name: "tag", Kind: model.KindRef, Nullable: true}},
		ForeignKeys: []model.ForeignKey{{Field: "tag", Target: "Tag", OnDelete: model.OnDeleteSetNull}},
	}
	reg := model.MustRegistry(tag, post)

	ddl, err := createTableSQL(reg, post)
	if err != nil {
		t.Fatalf("createTableSQL() failed: %v", err)
	}
	if !strings.Contains(ddl, quote("tag")+" TEXT") || strings.Contains(ddl, quote("tag")+" TEXT NOT NULL") {
		t.Errorf("expected nullable TEXT reference column:\n%s", ddl)
	}
	if !strings.Contains(ddl, "ON DELETE SET NULL") {
		t.Errorf("expected SET NULL policy:\n%s", ddl)
	}

	ddl, err = createTableSQL(reg, tag)
	if err != nil {
		t.Fatalf("createTableSQL() failed: %v", err)
	}
	if !strings.Contains(ddl, quote("id")+" TEXT PRIMARY KEY") {
		t.Errorf("expected TEXT primary key:\n%s", ddl)
	}
}

func TestConstraint_ForeignKeyEnforced(t *testing.T) {
	s := createTestStore(t, nil)

	_, err := s.db.Exec(`INSERT INTO model_b (model_a) VALUES (999)`)
	if err == nil {
		t.Error("expected foreign key constraint violation, got nil")
	}
}

func getTableColumns(t *testing.T, db *sqlx.DB, table string) []string {
	t.Helper()
	rows, err := db.Queryx("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("table_info(%s) failed: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		columns = append(columns, asString(row["name"]))
	}
	return columns
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return ""
	}
}
