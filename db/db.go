// Package db opens the sqlite database the stores share.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/glebarez/go-sqlite"

	"github.com/marplemr/wt-contracts/internal/pathutil"
)

type Config struct {
	DSN    string
	SQLite SQLiteConfig
}

type SQLiteConfig struct {
	WAL           bool
	BusyTimeoutMs int
	ForeignKeys   bool
}

// ResolveSQLiteDSN normalizes a sqlite DSN: expands ~, creates the
// parent directory for plain file paths, and passes file: URIs and
// :memory: through untouched.
func ResolveSQLiteDSN(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", fmt.Errorf("missing db dsn")
	}
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return dsn, nil
	}
	dsn = pathutil.ExpandHomePath(dsn)
	dir := filepath.Dir(dsn)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", err
		}
	}
	return dsn, nil
}

func Open(cfg Config) (*sql.DB, error) {
	dsn, err := ResolveSQLiteDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := applySQLitePragmas(sdb, cfg.SQLite); err != nil {
		_ = sdb.Close()
		return nil, err
	}
	return sdb, nil
}

func applySQLitePragmas(sdb *sql.DB, cfg SQLiteConfig) error {
	if sdb == nil {
		return fmt.Errorf("nil sql db")
	}
	if cfg.WAL {
		if _, err := sdb.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return err
		}
	}
	if cfg.BusyTimeoutMs > 0 {
		if _, err := sdb.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeoutMs)); err != nil {
			return err
		}
	}
	if cfg.ForeignKeys {
		if _, err := sdb.Exec("PRAGMA foreign_keys=ON;"); err != nil {
			return err
		}
	}
	return nil
}
