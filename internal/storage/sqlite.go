//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "tallybot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) SaveStatus(ctx context.Context, st Status) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if st.At.IsZero() {
		st.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO status(id, running, last_message, error, at) VALUES(1,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   running=excluded.running, last_message=excluded.last_message,
		   error=excluded.error, at=excluded.at`,
		st.Running, nullStr(st.LastMessage), nullStr(st.Error), st.At.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) LoadStatus(ctx context.Context) (Status, bool, error) {
	if s == nil || s.db == nil {
		return Status{}, false, ErrDisabled
	}
	var (
		st      Status
		msg, er sql.NullString
		at      string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT running, last_message, error, at FROM status WHERE id = 1`,
	).Scan(&st.Running, &msg, &er, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return Status{}, false, nil
	}
	if err != nil {
		return Status{}, false, err
	}
	st.LastMessage = msg.String
	st.Error = er.String
	if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
		st.At = t
	}
	return st, true, nil
}

func (s *sqliteStore) AppendDedup(ctx context.Context, channel, seq int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(chat_id, seq) VALUES(?,?) ON CONFLICT(chat_id, seq) DO NOTHING`,
		channel, seq,
	)
	return err
}

func (s *sqliteStore) PurgeDedup(ctx context.Context, channel int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE chat_id = ?`, channel)
	return err
}

func (s *sqliteStore) LoadDedup(ctx context.Context) ([]DedupKey, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, seq FROM dedup`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DedupKey
	for rows.Next() {
		var k DedupKey
		if err := rows.Scan(&k.Channel, &k.Seq); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveReportInterval(ctx context.Context, channel int64, minutes int) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO report(chat_id, minutes) VALUES(?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET minutes=excluded.minutes`,
		channel, minutes,
	)
	return err
}

func (s *sqliteStore) DeleteReportInterval(ctx context.Context, channel int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM report WHERE chat_id = ?`, channel)
	return err
}

func (s *sqliteStore) LoadReportIntervals(ctx context.Context) (map[int64]int, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, minutes FROM report`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]int{}
	for rows.Next() {
		var (
			chat    int64
			minutes int
		)
		if err := rows.Scan(&chat, &minutes); err != nil {
			return nil, err
		}
		out[chat] = minutes
	}
	return out, rows.Err()
}

func (s *sqliteStore) Compact(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
