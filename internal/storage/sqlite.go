package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "roomcast/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("sqlite WAL unavailable", logx.Err(err))
	}
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migrations)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendOutcome(ctx context.Context, r OutcomeRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	ok := 0
	if r.Success {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes(at, id, room, success, message, err) VALUES(?,?,?,?,?,?)`,
		r.At.UTC().Format(time.RFC3339Nano), nullStr(r.ID), nullStr(r.Room), ok, r.Message, nullStr(r.Error),
	)
	return err
}

func (s *sqliteStore) RecentOutcomes(ctx context.Context, limit int) ([]OutcomeRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, id, room, success, message, err FROM outcomes ORDER BY seq DESC LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var (
			at             string
			id, room, errS sql.NullString
			ok             int
			r              OutcomeRecord
		)
		if err := rows.Scan(&at, &id, &room, &ok, &r.Message, &errS); err != nil {
			return nil, err
		}
		if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			r.At = t
		}
		r.ID, r.Room, r.Error = id.String, room.String, errS.String
		r.Success = ok != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
