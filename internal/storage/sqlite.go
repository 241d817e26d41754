package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"wovbot/internal/task/scheduler"
	logx "wovbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db     *sql.DB
	log    logx.Logger
	closed atomic.Bool
}

func openSQLite(cfg Config, log logx.Logger) (JobStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	// Pragmas go in the DSN so every new connection gets them.
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}
	ctx, cancel := context.WithTimeout(context.Background(), busy+5*time.Second)
	defer cancel()
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite job store opened", logx.String("path", path), logx.Duration("busy_timeout", busy))
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
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadAll(ctx context.Context) ([]scheduler.JobDefinition, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, schedule, created_at, args FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scheduler.JobDefinition
	for rows.Next() {
		var id, name, sched, created, args string
		if err := rows.Scan(&id, &name, &sched, &created, &args); err != nil {
			return nil, err
		}
		def, err := decodeRow(id, name, sched, created, args)
		if err != nil {
			s.log.Warn("skipping corrupt job row", logx.String("id", id), logx.String("name", name), logx.Err(err))
			continue
		}
		out = append(out, def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortDefs(out)
	return out, nil
}

func (s *sqliteStore) Insert(ctx context.Context, def scheduler.JobDefinition) error {
	if s.closed.Load() {
		return ErrClosed
	}
	sched, err := json.Marshal(def.Schedule)
	if err != nil {
		return err
	}
	args := string(def.Args)
	if len(def.Args) == 0 {
		args = "null"
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs(id, name, schedule, created_at, args) VALUES(?,?,?,?,?)`,
		def.ID.String(), def.Name, string(sched), def.CreatedAt.Format(time.RFC3339Nano), args,
	)
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, id uuid.UUID) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id.String())
	return err
}

func decodeRow(id, name, sched, created, args string) (scheduler.JobDefinition, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return scheduler.JobDefinition{}, fmt.Errorf("id: %w", err)
	}
	var s scheduler.Schedule
	if err := json.Unmarshal([]byte(sched), &s); err != nil {
		return scheduler.JobDefinition{}, fmt.Errorf("schedule: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return scheduler.JobDefinition{}, fmt.Errorf("created_at: %w", err)
	}
	if !json.Valid([]byte(args)) {
		return scheduler.JobDefinition{}, errors.New("args: invalid json")
	}
	return scheduler.JobDefinition{
		ID:        uid,
		Name:      name,
		Schedule:  s,
		CreatedAt: at,
		Args:      json.RawMessage(args),
	}, nil
}
