package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMigrationFiles_FiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"0002_templates.up.sql",
		"0001_init.up.sql",
		"0001_init.down.sql",
		"notes.txt",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "archive.up.sql"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := migrationFiles(dir)
	if err != nil {
		t.Fatalf("migration files: %v", err)
	}
	want := []string{"0001_init.up.sql", "0002_templates.up.sql"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("migration files = %v, want %v", got, want)
	}
}

func TestMigrationFiles_MissingDir(t *testing.T) {
	if _, err := migrationFiles(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Errorf("expected error for missing migrations dir")
	}
}

func TestShippedMigrationsDiscovered(t *testing.T) {
	versions, err := migrationFiles(filepath.Join("..", "..", "db", "migrations"))
	if err != nil {
		t.Fatalf("read shipped migrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("no migrations discovered")
	}
	if versions[0] != "0001_init.up.sql" {
		t.Errorf("first migration = %q, want 0001_init.up.sql", versions[0])
	}
}
