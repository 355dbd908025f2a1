package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	return db
}

func useMigrations(t *testing.T, files fstest.MapFS) {
	t.Helper()
	prevFS, prevDir := MigrationsFS, MigrationsDir
	MigrationsFS, MigrationsDir = files, "."
	t.Cleanup(func() { MigrationsFS, MigrationsDir = prevFS, prevDir })
}

func TestOpen(t *testing.T) {
	t.Run("creates nested directory and file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "a", "b", "bridge.db")
		db, err := Open(Config{Path: dbPath, BusyTimeout: 1})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // test cleanup

		if err := db.HealthCheck(context.Background()); err != nil {
			t.Fatalf("HealthCheck() error = %v", err)
		}
		if _, err := os.Stat(dbPath); err != nil {
			t.Errorf("database file missing: %v", err)
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
		}
	})

	t.Run("requires a path", func(t *testing.T) {
		if _, err := Open(Config{}); err == nil {
			t.Error("Open() with empty path should fail")
		}
	})
}

func TestCloseNil(t *testing.T) {
	var db *DB
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}

func TestMigrate(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260101_000000_things.up.sql":    {Data: []byte(`CREATE TABLE things (id TEXT PRIMARY KEY);`)},
		"20260101_000000_things.down.sql":  {Data: []byte(`DROP TABLE things;`)},
		"20260102_000000_widgets.up.sql":   {Data: []byte(`CREATE TABLE widgets (id TEXT PRIMARY KEY);`)},
		"20260102_000000_widgets.down.sql": {Data: []byte(`DROP TABLE widgets;`)},
		"README.md":                        {Data: []byte(`ignored`)},
	})

	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Fatalf("applied = %d, pending = %d; want 2, 0", len(applied), len(pending))
	}
	if applied[0].Version != "20260101_000000" || applied[1].Version != "20260102_000000" {
		t.Errorf("applied versions = %v", applied)
	}

	if _, err := db.ExecContext(ctx, `INSERT INTO widgets (id) VALUES ('w1')`); err != nil {
		t.Errorf("widgets table unusable: %v", err)
	}

	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO widgets (id) VALUES ('w2')`); err == nil {
		t.Error("widgets table should be gone after MigrateDown")
	}
	_, pending, _ = db.MigrationStatus(ctx)
	if len(pending) != 1 || pending[0].Name != "widgets" {
		t.Errorf("pending after rollback = %v", pending)
	}
}

func TestMigrateFailureRollsBack(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260101_000000_ok.up.sql":     {Data: []byte(`CREATE TABLE ok (id TEXT);`)},
		"20260102_000000_broken.up.sql": {Data: []byte(`CREATE TABLE broken (id TEXT); NOT SQL;`)},
	})

	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() should fail on broken SQL")
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied = %d, pending = %d; want 1, 1", len(applied), len(pending))
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		in      string
		version string
		name    string
		up      bool
		ok      bool
	}{
		{"20260301_120000_accessories.up.sql", "20260301_120000", "accessories", true, true},
		{"20260301_120000_accessories.down.sql", "20260301_120000", "accessories", false, true},
		{"20260301_120000_two_words.up.sql", "20260301_120000", "two_words", true, true},
		{"20260301.up.sql", "", "", false, false},
		{"20260301_120000_x.sql", "", "", false, false},
		{"notes.txt", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.in)
			if ok != tt.ok || version != tt.version || name != tt.name || up != tt.up {
				t.Errorf("parseMigrationFilename(%q) = %q, %q, %v, %v", tt.in, version, name, up, ok)
			}
		})
	}
}
