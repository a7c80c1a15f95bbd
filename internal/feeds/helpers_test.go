package feeds_test

import (
	"database/sql"
	"testing"
)

func bumpSchemaVersion(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec("UPDATE schema_version SET version = version + 100"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
}

func setSchemaVersion(t *testing.T, path string, version int) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec("DROP INDEX IF EXISTS idx_articles_unread"); err != nil {
		t.Fatalf("drop index: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = ?", version); err != nil {
		t.Fatalf("set version: %v", err)
	}
}

func indexExists(t *testing.T, path, name string) bool {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	var count int
	if err := db.QueryRow("SELECT COUNT(1) FROM sqlite_master WHERE type='index' AND name=?", name).Scan(&count); err != nil {
		t.Fatalf("query index: %v", err)
	}
	return count == 1
}

func schemaVersionOf(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	var version int
	if err := db.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	return version
}
