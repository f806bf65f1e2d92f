package ledger

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/deedchain/pkg/deed"
)

// SQLBackend stores records in a single table via database/sql.
// It supports both Postgres (lib/pq) and SQLite (modernc.org/sqlite).
// A committed transaction is the durable unit.
type SQLBackend struct {
	db     *sql.DB
	insert string
}

// NewSQLBackend wraps db. driver selects the placeholder style: "postgres"
// uses $n, anything else uses ?.
func NewSQLBackend(db *sql.DB, driver string) *SQLBackend {
	insert := `INSERT INTO deeds (seq, id, prev_hash, self_hash, body) VALUES (?, ?, ?, ?, ?)`
	if driver == "postgres" {
		insert = `INSERT INTO deeds (seq, id, prev_hash, self_hash, body) VALUES ($1, $2, $3, $4, $5)`
	}
	return &SQLBackend{db: db, insert: insert}
}

// OpenSQL opens driver ("postgres" or "sqlite") at dsn and ensures the schema.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLBackend, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &IOError{Op: "open " + driver, Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &IOError{Op: "ping " + driver, Err: err}
	}
	b := NewSQLBackend(db, driver)
	if err := b.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

const deedSchema = `
CREATE TABLE IF NOT EXISTS deeds (
	seq BIGINT PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	prev_hash TEXT NOT NULL,
	self_hash TEXT NOT NULL UNIQUE,
	body TEXT NOT NULL
);
`

func (s *SQLBackend) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, deedSchema); err != nil {
		return &IOError{Op: "init schema", Err: err}
	}
	return nil
}

func (s *SQLBackend) Load(ctx context.Context) ([]deed.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM deeds ORDER BY seq`)
	if err != nil {
		return nil, &IOError{Op: "load", Err: err}
	}
	defer func() { _ = rows.Close() }()

	result := make([]deed.Record, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, &IOError{Op: "scan", Err: err}
		}
		r, err := deed.Decode([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrCorrupt, len(result)+1, err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &IOError{Op: "load", Err: err}
	}
	return result, nil
}

// Append inserts r as the next sequence number. The unique prev_hash chain
// is enforced by the Chain; the table constraints only guard against a
// second writer reusing an id or hash.
func (s *SQLBackend) Append(ctx context.Context, r deed.Record) error {
	body, err := deed.Encode(r)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &IOError{Op: "begin", RecordID: r.ID, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var next int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM deeds`).Scan(&next); err != nil {
		return &IOError{Op: "next seq", RecordID: r.ID, Err: err}
	}

	if _, err := tx.ExecContext(ctx, s.insert, next, r.ID, r.PrevHash, r.SelfHash, string(body)); err != nil {
		return &IOError{Op: "insert", RecordID: r.ID, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &IOError{Op: "commit", RecordID: r.ID, Err: err}
	}
	return nil
}

func (s *SQLBackend) Close() error {
	return s.db.Close()
}
