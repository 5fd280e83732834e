package registry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/marplemr/wt-contracts/identity"
)

// SQLiteStore implements both ResourceStore and ChildStore over a
// single sqlite database.
type SQLiteStore struct {
	dsn    string
	shared bool

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("missing sqlite dsn")
	}
	s := &SQLiteStore{dsn: dsn}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreDB wraps an already opened handle. The caller keeps
// ownership and closes it.
func NewSQLiteStoreDB(sdb *sql.DB) (*SQLiteStore, error) {
	if sdb == nil {
		return nil, fmt.Errorf("nil sql db")
	}
	s := &SQLiteStore{db: sdb, shared: true}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	if s == nil {
		return fmt.Errorf("nil registry store")
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM resources WHERE address = ?`, rec.Address.Hex(),
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return ErrResourceExists
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO resources (address, owner, mediator, require_confirmation, created_at_unix)
VALUES (?, ?, ?, ?, ?)
`, rec.Address.Hex(), rec.Owner.Hex(), rec.Mediator.Hex(), boolInt(rec.RequireConfirmation), rec.CreatedAt.Unix())
	if err != nil && isUniqueViolation(err) {
		return ErrResourceExists
	}
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, addr identity.Address) (Record, error) {
	if s == nil {
		return Record{}, fmt.Errorf("nil registry store")
	}
	if err := s.ensureOpen(); err != nil {
		return Record{}, err
	}

	var (
		rec                           Record
		address, owner, mediator      string
		requireConfirm, createdAtUnix int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT address, owner, mediator, require_confirmation, created_at_unix
FROM resources WHERE address = ?
`, addr.Hex()).Scan(&address, &owner, &mediator, &requireConfirm, &createdAtUnix)
	if err == sql.ErrNoRows {
		return Record{}, ErrResourceNotFound
	}
	if err != nil {
		return Record{}, err
	}

	rec.Address, _ = identity.ParseAddress(address)
	rec.Owner, _ = identity.ParseAddress(owner)
	rec.Mediator, _ = identity.ParseAddress(mediator)
	rec.RequireConfirmation = requireConfirm != 0
	rec.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
	return rec, nil
}

func (s *SQLiteStore) Update(ctx context.Context, rec Record) error {
	if s == nil {
		return fmt.Errorf("nil registry store")
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE resources
SET owner = ?, mediator = ?, require_confirmation = ?
WHERE address = ?
`, rec.Owner.Hex(), rec.Mediator.Hex(), boolInt(rec.RequireConfirmation), rec.Address.Hex())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrResourceNotFound
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, addr identity.Address) error {
	if s == nil {
		return fmt.Errorf("nil registry store")
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM resources WHERE address = ?`, addr.Hex())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrResourceNotFound
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	if s == nil {
		return nil, fmt.Errorf("nil registry store")
	}
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT address, owner, mediator, require_confirmation, created_at_unix
FROM resources ORDER BY address
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec                           Record
			address, owner, mediator      string
			requireConfirm, createdAtUnix int64
		)
		if err := rows.Scan(&address, &owner, &mediator, &requireConfirm, &createdAtUnix); err != nil {
			return nil, err
		}
		rec.Address, _ = identity.ParseAddress(address)
		rec.Owner, _ = identity.ParseAddress(owner)
		rec.Mediator, _ = identity.ParseAddress(mediator)
		rec.RequireConfirmation = requireConfirm != 0
		rec.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Add(ctx context.Context, parent, child identity.Address) error {
	if s == nil {
		return fmt.Errorf("nil registry store")
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO children (parent, child, added_at_unix) VALUES (?, ?, ?)
`, parent.Hex(), child.Hex(), time.Now().UTC().Unix())
	if err != nil && isUniqueViolation(err) {
		return ErrChildRegistered
	}
	return err
}

func (s *SQLiteStore) Remove(ctx context.Context, parent, child identity.Address) error {
	if s == nil {
		return fmt.Errorf("nil registry store")
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM children WHERE parent = ? AND child = ?`, parent.Hex(), child.Hex())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrChildNotFound
	}
	return nil
}

func (s *SQLiteStore) IsChild(ctx context.Context, parent, child identity.Address) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("nil registry store")
	}
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM children WHERE parent = ? AND child = ?`, parent.Hex(), child.Hex(),
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) Children(ctx context.Context, parent identity.Address) ([]identity.Address, error) {
	if s == nil {
		return nil, fmt.Errorf("nil registry store")
	}
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT child FROM children WHERE parent = ? ORDER BY child`, parent.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []identity.Address
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, err
		}
		addr, err := identity.ParseAddress(child)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if s.shared {
		s.db = nil
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	if s.dsn == "" {
		return fmt.Errorf("registry store is closed")
	}
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return err
	}
	s.db = db
	return s.migrate()
}

func (s *SQLiteStore) ensureOpen() error {
	if s.db != nil {
		return nil
	}
	return s.open()
}

func (s *SQLiteStore) migrate() error {
	if s.db == nil {
		return fmt.Errorf("sqlite db is not open")
	}
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS resources (
  address TEXT PRIMARY KEY,
  owner TEXT NOT NULL,
  mediator TEXT,
  require_confirmation INTEGER NOT NULL DEFAULT 0,
  created_at_unix INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS children (
  parent TEXT NOT NULL,
  child TEXT NOT NULL,
  added_at_unix INTEGER NOT NULL,
  PRIMARY KEY (parent, child)
);
`)
	return err
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
