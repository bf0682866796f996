package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/stackrun-dev/stackrun/internal/journal"
)

const defaultTable = "run_journal"

// Params identify the ClickHouse endpoint and target table.
type Params struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

// Sink writes journal entries over the native ClickHouse protocol.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(p Params) (*Sink, error) {
	if p.Addr == "" {
		return nil, errors.New("clickhouse journal requires an addr")
	}
	if p.Database == "" {
		p.Database = "default"
	}
	if p.Username == "" {
		p.Username = "default"
	}
	if p.Table == "" {
		p.Table = defaultTable
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{p.Addr},
		Auth: clickhouse.Auth{
			Database: p.Database,
			Username: p.Username,
			Password: p.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	s := &Sink{conn: conn, table: p.Table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id String,
		type String,
		occurred_at DateTime64(6),
		mode String,
		service String,
		pid UInt32,
		port UInt32,
		detail String
	) ENGINE = MergeTree()
	ORDER BY (occurred_at, run_id)`, s.table)
	return s.conn.Exec(ctx, q)
}

func (s *Sink) Append(ctx context.Context, e journal.Entry) error {
	q := fmt.Sprintf(
		`INSERT INTO %s (run_id, type, occurred_at, mode, service, pid, port, detail) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.table)
	err := s.conn.Exec(ctx, q,
		e.RunID,
		string(e.Type),
		e.OccurredAt.UTC(),
		e.Mode,
		e.Service,
		uint32(e.PID),  // #nosec G115 -- PIDs and ports are small positives
		uint32(e.Port), // #nosec G115
		e.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf(
		`SELECT run_id, type, occurred_at, mode, service, pid, port, detail FROM %s ORDER BY occurred_at DESC LIMIT %d`,
		s.table, limit)
	rows, err := s.conn.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []journal.Entry
	for rows.Next() {
		var (
			e         journal.Entry
			typ       string
			at        time.Time
			pid, port uint32
		)
		if err := rows.Scan(&e.RunID, &typ, &at, &e.Mode, &e.Service, &pid, &port, &e.Detail); err != nil {
			return nil, err
		}
		e.Type = journal.Type(typ)
		e.OccurredAt = at
		e.PID = int(pid)
		e.Port = int(port)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
