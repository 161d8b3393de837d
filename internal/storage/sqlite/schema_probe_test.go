package sqlite

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func memDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestProbeSchema_AllTablesPresent(t *testing.T) {
	db := memDB(t)
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	result := probeSchema(db)
	if !result.Compatible {
		t.Errorf("expected schema to be compatible, got: %s", result.ErrorMessage)
	}
	if len(result.MissingTables) > 0 || len(result.MissingColumns) > 0 {
		t.Errorf("unexpected missing schema: tables %v, columns %v", result.MissingTables, result.MissingColumns)
	}
}

func TestProbeSchema_MissingTableAndColumn(t *testing.T) {
	db := memDB(t)
	if _, err := db.Exec(schema); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`DROP TABLE links`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`DROP TABLE labels; CREATE TABLE labels (issue_id TEXT NOT NULL)`); err != nil {
		t.Fatal(err)
	}

	result := probeSchema(db)
	if result.Compatible {
		t.Fatal("expected schema to be incompatible")
	}
	if diff := cmp.Diff([]string{"links"}, result.MissingTables); diff != "" {
		t.Errorf("MissingTables mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string][]string{"labels": {"label"}}, result.MissingColumns); diff != "" {
		t.Errorf("MissingColumns mismatch (-want +got):\n%s", diff)
	}
	if err := verifySchemaCompatibility(db); !errors.Is(err, ErrSchemaIncompatible) {
		t.Errorf("verifySchemaCompatibility err = %v", err)
	}
}
