package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveSQLiteDSN(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if _, err := ResolveSQLiteDSN("  "); err == nil {
			t.Fatal("expected error for empty dsn")
		}
	})

	t.Run("memory_passthrough", func(t *testing.T) {
		got, err := ResolveSQLiteDSN(":memory:")
		if err != nil || got != ":memory:" {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("file_uri_passthrough", func(t *testing.T) {
		got, err := ResolveSQLiteDSN("file:test.db?mode=ro")
		if err != nil || got != "file:test.db?mode=ro" {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("creates_parent_dir", func(t *testing.T) {
		dir := t.TempDir()
		dsn := filepath.Join(dir, "nested", "app.db")
		got, err := ResolveSQLiteDSN(dsn)
		if err != nil {
			t.Fatalf("ResolveSQLiteDSN: %v", err)
		}
		if got != dsn {
			t.Fatalf("got %q, want %q", got, dsn)
		}
		if _, err := os.Stat(filepath.Dir(dsn)); err != nil {
			t.Fatalf("parent dir not created: %v", err)
		}
	})
}

func TestOpenAppliesPragmas(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "app.db")
	sdb, err := Open(Config{
		DSN: dsn,
		SQLite: SQLiteConfig{
			WAL:           true,
			BusyTimeoutMs: 1000,
			ForeignKeys:   true,
		},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sdb.Close()

	var mode string
	if err := sdb.QueryRow("PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}
}
