package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"wovbot/internal/task/scheduler"
	logx "wovbot/pkg/logx"
)

var base = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func sampleDefs() []scheduler.JobDefinition {
	return []scheduler.JobDefinition{
		{
			ID:        uuid.New(),
			Name:      "ping",
			Schedule:  scheduler.Every(90 * time.Second),
			CreatedAt: base,
			Args:      json.RawMessage("null"),
		},
		{
			ID:        uuid.New(),
			Name:      "notify",
			Schedule:  scheduler.Once(base.Add(time.Hour).In(time.FixedZone("WIB", 7*3600))),
			CreatedAt: base.Add(time.Second),
			Args:      json.RawMessage(`{"text":"hello","chat_id":-100123}`),
		},
		{
			ID:        uuid.New(),
			Name:      "ping",
			Schedule:  scheduler.Cron("0 */5 * * * *"),
			CreatedAt: base.Add(2 * time.Second),
			Args:      json.RawMessage(`[1,2,3]`),
		},
	}
}

func openDriver(t *testing.T, driver, path string) JobStore {
	t.Helper()
	st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	return st
}

func assertSameDefs(t *testing.T, got, want []scheduler.JobDefinition) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.ID != w.ID || g.Name != w.Name || !g.CreatedAt.Equal(w.CreatedAt) {
			t.Fatalf("def %d = %+v, want %+v", i, g, w)
		}
		if string(g.Args) != string(w.Args) {
			t.Fatalf("def %d args = %s, want %s", i, g.Args, w.Args)
		}
		if g.Schedule.Kind() != w.Schedule.Kind() {
			t.Fatalf("def %d kind = %s, want %s", i, g.Schedule.Kind(), w.Schedule.Kind())
		}
		for _, q := range []time.Time{base, base.Add(7 * time.Minute), base.Add(2 * time.Hour)} {
			a, aok := g.Schedule.NextRun(q)
			b, bok := w.Schedule.NextRun(q)
			if aok != bok || !a.Equal(b) {
				t.Fatalf("def %d NextRun(%v) = %v,%v want %v,%v", i, q, a, aok, b, bok)
			}
		}
	}
}

func TestStoreContract(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"memory", "file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openDriver(t, driver, filepath.Join(t.TempDir(), "jobs.db"))
			defer st.Close()

			defs := sampleDefs()
			for _, d := range defs {
				if err := st.Insert(ctx, d); err != nil {
					t.Fatalf("Insert: %v", err)
				}
			}
			got, err := st.LoadAll(ctx)
			if err != nil {
				t.Fatalf("LoadAll: %v", err)
			}
			assertSameDefs(t, got, defs)

			if err := st.Delete(ctx, defs[1].ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := st.Delete(ctx, uuid.New()); err != nil {
				t.Fatalf("Delete unknown id: %v", err)
			}
			got, err = st.LoadAll(ctx)
			if err != nil {
				t.Fatalf("LoadAll: %v", err)
			}
			assertSameDefs(t, got, []scheduler.JobDefinition{defs[0], defs[2]})

			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if _, err := st.LoadAll(ctx); !errors.Is(err, ErrClosed) {
				t.Fatalf("LoadAll after close = %v, want ErrClosed", err)
			}
			if err := st.Insert(ctx, defs[1]); !errors.Is(err, ErrClosed) {
				t.Fatalf("Insert after close = %v, want ErrClosed", err)
			}
		})
	}
}

func TestDurableDriversSurviveReopen(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "state", "jobs.db")
			defs := sampleDefs()

			st := openDriver(t, driver, path)
			for _, d := range defs {
				if err := st.Insert(ctx, d); err != nil {
					t.Fatalf("Insert: %v", err)
				}
			}
			if err := st.Delete(ctx, defs[0].ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			st = openDriver(t, driver, path)
			defer st.Close()
			got, err := st.LoadAll(ctx)
			if err != nil {
				t.Fatalf("LoadAll: %v", err)
			}
			assertSameDefs(t, got, defs[1:])
		})
	}
}

func TestFileStoreSkipsCorruptJournalLines(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	defs := sampleDefs()

	st := openDriver(t, "file", path)
	if err := st.Insert(ctx, defs[0]); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	journal := filepath.Join(dir, "jobs.jobs.journal.jsonl")
	f, err := os.OpenFile(journal, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	good, _ := json.Marshal(journalRecord{Op: opInsert, ID: defs[1].ID, Def: &defs[1]})
	_, _ = f.WriteString("{not json\n")
	_, _ = f.WriteString(`{"op":"insert","id":"` + uuid.NewString() + `"}` + "\n")
	_, _ = f.WriteString(`{"op":"rename","id":"` + uuid.NewString() + `"}` + "\n")
	_, _ = f.Write(append(good, '\n'))
	_ = f.Close()

	st = openDriver(t, "file", path)
	defer st.Close()
	got, err := st.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	assertSameDefs(t, got, defs[:2])
}

func TestFileStoreCompacts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")

	st := openDriver(t, "file", path)
	keep := sampleDefs()[0]
	if err := st.Insert(ctx, keep); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	for i := 0; i < compactEvery; i++ {
		d := sampleDefs()[1]
		if err := st.Insert(ctx, d); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if err := st.Delete(ctx, d.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "jobs.jobs.snapshot.json")); err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "jobs.jobs.journal.jsonl"))
	if err != nil {
		t.Fatalf("journal missing: %v", err)
	}
	if info.Size() > 4096 {
		t.Fatalf("journal not compacted: %d bytes", info.Size())
	}

	st = openDriver(t, "file", path)
	defer st.Close()
	got, err := st.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	assertSameDefs(t, got, []scheduler.JobDefinition{keep})
}

func TestSQLiteSkipsCorruptRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.db")
	defs := sampleDefs()

	st := openDriver(t, "sqlite", path)
	if err := st.Insert(ctx, defs[0]); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	db := st.(*sqliteStore).db
	bad := []struct{ id, sched, created, args string }{
		{"not-a-uuid", `{"type":"interval","value":"1m"}`, base.Format(time.RFC3339Nano), "null"},
		{uuid.NewString(), `{"type":"weekly","value":"x"}`, base.Format(time.RFC3339Nano), "null"},
		{uuid.NewString(), `{"type":"interval","value":"1m"}`, "yesterday", "null"},
		{uuid.NewString(), `{"type":"interval","value":"1m"}`, base.Format(time.RFC3339Nano), "{oops"},
	}
	for _, b := range bad {
		if _, err := db.ExecContext(ctx, `INSERT INTO jobs(id, name, schedule, created_at, args) VALUES(?,?,?,?,?)`,
			b.id, "ping", b.sched, b.created, b.args); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	got, err := st.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	assertSameDefs(t, got, defs[:1])
	_ = st.Close()
}

func TestSQLiteDuplicateInsertFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openDriver(t, "sqlite", filepath.Join(t.TempDir(), "jobs.db"))
	defer st.Close()
	d := sampleDefs()[0]
	if err := st.Insert(ctx, d); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := st.Insert(ctx, d); err == nil {
		t.Fatal("duplicate id should fail")
	}
}

func TestSQLiteMigrationIsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jobs.db")
	for i := 0; i < 2; i++ {
		st := openDriver(t, "sqlite", path)
		_ = st.Close()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='jobs'`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 1 {
		t.Fatalf("jobs tables = %d", n)
	}
}

func TestOpenDrivers(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", "MEMORY"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if _, ok := st.(*memoryStore); !ok {
			t.Fatalf("Open(%q) = %T, want memory store", driver, st)
		}
		_ = st.Close()
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should fail")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("file driver without path should fail")
	}
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("sqlite driver without path should fail")
	}
}

func TestMemoryStoreCopiesArgs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewMemory()
	d := sampleDefs()[1]
	if err := st.Insert(ctx, d); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	d.Args[0] = 'X'
	got, _ := st.LoadAll(ctx)
	if got[0].Args[0] != '{' {
		t.Fatal("store shares args buffer with caller")
	}
}
