package gate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/glebarez/go-sqlite"

	"github.com/marplemr/wt-contracts/identity"
)

// SQLiteCallStore is the durable CallStore. Rows are insert-once and
// the two flag transitions are single guarded UPDATEs, so a consumed
// fingerprint can never move backwards.
type SQLiteCallStore struct {
	dsn    string
	shared bool

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteCallStore(dsn string) (*SQLiteCallStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("missing sqlite dsn")
	}
	s := &SQLiteCallStore{dsn: dsn}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewSQLiteCallStoreDB wraps an already opened handle. The caller keeps
// ownership and closes it.
func NewSQLiteCallStoreDB(sdb *sql.DB) (*SQLiteCallStore, error) {
	if sdb == nil {
		return nil, fmt.Errorf("nil sql db")
	}
	s := &SQLiteCallStore{db: sdb, shared: true}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteCallStore) Create(ctx context.Context, rec PendingCall) error {
	if s == nil {
		return fmt.Errorf("nil call store")
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO pending_calls (
  fingerprint, resource, encoded_op, payload, submitter,
  approved, finalized, succeeded,
  created_at_unix, finalized_at_unix
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
`, rec.Fingerprint.Hex(), rec.Resource.Hex(), rec.EncodedOp, rec.Payload, rec.Submitter.Hex(),
		boolInt(rec.Approved), boolInt(rec.Finalized), boolInt(rec.Succeeded),
		rec.CreatedAt.Unix(),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("fingerprint %s: %w", rec.Fingerprint.Hex(), identity.ErrDuplicateCall)
	}
	return err
}

func (s *SQLiteCallStore) Get(ctx context.Context, fp common.Hash) (PendingCall, bool, error) {
	if s == nil {
		return PendingCall{}, false, fmt.Errorf("nil call store")
	}
	if err := s.ensureOpen(); err != nil {
		return PendingCall{}, false, err
	}

	var (
		rec                            PendingCall
		fingerprint, resource, sender  string
		approved, finalized, succeeded int64
		createdAtUnix                  int64
		finalizedAtUnix                sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT fingerprint, resource, encoded_op, payload, submitter,
       approved, finalized, succeeded,
       created_at_unix, finalized_at_unix
FROM pending_calls WHERE fingerprint = ?
`, fp.Hex()).Scan(
		&fingerprint, &resource, &rec.EncodedOp, &rec.Payload, &sender,
		&approved, &finalized, &succeeded,
		&createdAtUnix, &finalizedAtUnix,
	)
	if err == sql.ErrNoRows {
		return PendingCall{}, false, nil
	}
	if err != nil {
		return PendingCall{}, false, err
	}

	rec.Fingerprint = common.HexToHash(fingerprint)
	rec.Resource, _ = identity.ParseAddress(resource)
	rec.Submitter, _ = identity.ParseAddress(sender)
	rec.Approved = approved != 0
	rec.Finalized = finalized != 0
	rec.Succeeded = succeeded != 0
	rec.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
	if finalizedAtUnix.Valid {
		t := time.Unix(finalizedAtUnix.Int64, 0).UTC()
		rec.FinalizedAt = &t
	}
	return rec, true, nil
}

func (s *SQLiteCallStore) Approve(ctx context.Context, fp common.Hash) error {
	if s == nil {
		return fmt.Errorf("nil call store")
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE pending_calls SET approved = 1
WHERE fingerprint = ? AND finalized = 0
`, fp.Hex())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.transitionErr(ctx, fp)
	}
	return nil
}

func (s *SQLiteCallStore) Finalize(ctx context.Context, fp common.Hash, succeeded bool) error {
	if s == nil {
		return fmt.Errorf("nil call store")
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE pending_calls
SET finalized = 1, succeeded = ?, finalized_at_unix = ?
WHERE fingerprint = ? AND finalized = 0
`, boolInt(succeeded), time.Now().UTC().Unix(), fp.Hex())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.transitionErr(ctx, fp)
	}
	return nil
}

func (s *SQLiteCallStore) ListPending(ctx context.Context, resource identity.Address) ([]PendingCall, error) {
	if s == nil {
		return nil, fmt.Errorf("nil call store")
	}
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	query := `
SELECT fingerprint FROM pending_calls
WHERE finalized = 0
`
	args := []any{}
	if (resource != identity.Address{}) {
		query += ` AND resource = ?`
		args = append(args, resource.Hex())
	}
	query += ` ORDER BY created_at_unix`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fps []common.Hash
	for rows.Next() {
		var fingerprint string
		if err := rows.Scan(&fingerprint); err != nil {
			return nil, err
		}
		fps = append(fps, common.HexToHash(fingerprint))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]PendingCall, 0, len(fps))
	for _, fp := range fps {
		rec, ok, err := s.Get(ctx, fp)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *SQLiteCallStore) Close() error {
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

// transitionErr distinguishes a missing row from a consumed one after
// a guarded UPDATE touched nothing.
func (s *SQLiteCallStore) transitionErr(ctx context.Context, fp common.Hash) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM pending_calls WHERE fingerprint = ?`, fp.Hex(),
	).Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("fingerprint %s: %w", fp.Hex(), identity.ErrNotFound)
	}
	return fmt.Errorf("fingerprint %s: %w", fp.Hex(), identity.ErrAlreadyFinalized)
}

func (s *SQLiteCallStore) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	if s.dsn == "" {
		return fmt.Errorf("call store is closed")
	}
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return err
	}
	s.db = db
	return s.migrate()
}

func (s *SQLiteCallStore) ensureOpen() error {
	if s.db != nil {
		return nil
	}
	return s.open()
}

func (s *SQLiteCallStore) migrate() error {
	if s.db == nil {
		return fmt.Errorf("sqlite db is not open")
	}
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS pending_calls (
  fingerprint TEXT PRIMARY KEY,
  resource TEXT NOT NULL,
  encoded_op BLOB NOT NULL,
  payload BLOB,
  submitter TEXT NOT NULL,
  approved INTEGER NOT NULL DEFAULT 0,
  finalized INTEGER NOT NULL DEFAULT 0,
  succeeded INTEGER NOT NULL DEFAULT 0,
  created_at_unix INTEGER NOT NULL,
  finalized_at_unix INTEGER
);
CREATE INDEX IF NOT EXISTS idx_pending_calls_resource ON pending_calls(resource, finalized);
`)
	return err
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
