package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRun(t *testing.T) {
	db := openDB(t)

	if err := Run(db); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	version, err := GetCurrentVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if want := AllMigrations[len(AllMigrations)-1].Version; version != want {
		t.Errorf("version = %d, want %d", version, want)
	}

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='index' AND name='idx_calls_profile_timestamp'`).Scan(&name)
	if err != nil {
		t.Errorf("expected composite index: %v", err)
	}
}

func TestRun_Idempotent(t *testing.T) {
	db := openDB(t)

	for i := 0; i < 2; i++ {
		if err := Run(db); err != nil {
			t.Fatalf("Run() #%d error = %v", i+1, err)
		}
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != len(AllMigrations) {
		t.Errorf("recorded %d migrations, want %d", count, len(AllMigrations))
	}
}
