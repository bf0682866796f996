package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/stackrun-dev/stackrun/internal/journal"
)

// Sink writes journal entries to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New opens or creates the journal database.
// DSN forms:
//   - "sqlite:///path/to/file.db"
//   - "/path/to/file.db"
//   - ":memory:"
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty sqlite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite behaves best with a single writer connection.
	db.SetMaxOpenConns(1)

	s := &Sink{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS run_journal(
			run_id TEXT NOT NULL,
			type TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			mode TEXT NOT NULL,
			service TEXT NULL,
			pid INTEGER NULL,
			port INTEGER NULL,
			detail TEXT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_run_journal_run ON run_journal(run_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Append(ctx context.Context, e journal.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_journal(run_id, type, occurred_at, mode, service, pid, port, detail)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		e.RunID, string(e.Type), e.OccurredAt.UTC(), e.Mode,
		nullString(e.Service), nullInt(e.PID), nullInt(e.Port), nullString(e.Detail))
	return err
}

// Recent returns up to limit entries, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, type, occurred_at, mode,
		       COALESCE(service, ''), COALESCE(pid, 0), COALESCE(port, 0), COALESCE(detail, '')
		FROM run_journal ORDER BY rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []journal.Entry
	for rows.Next() {
		var e journal.Entry
		var typ string
		if err := rows.Scan(&e.RunID, &typ, &e.OccurredAt, &e.Mode, &e.Service, &e.PID, &e.Port, &e.Detail); err != nil {
			return nil, err
		}
		e.Type = journal.Type(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}
