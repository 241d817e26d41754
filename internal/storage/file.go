package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"wovbot/internal/task/scheduler"
	logx "wovbot/pkg/logx"
)

const (
	opInsert = "insert"
	opDelete = "delete"

	compactEvery = 200
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.jobs.snapshot.json (JSON array of definitions)
//   - <prefix>.jobs.journal.jsonl (append-only insert/delete records)
//
// The journal is compacted into the snapshot on open and every
// compactEvery writes.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	defs         map[uuid.UUID]scheduler.JobDefinition

	writes int
}

type journalRecord struct {
	Op  string                   `json:"op"`
	ID  uuid.UUID                `json:"id"`
	Def *scheduler.JobDefinition `json:"def,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (JobStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".jobs.snapshot.json"
	journalPath := prefix + ".jobs.journal.jsonl"

	defs := map[uuid.UUID]scheduler.JobDefinition{}
	if err := loadSnapshot(snapPath, defs, log); err != nil && !errors.Is(err, os.ErrNotExist) {
		// Keep the unreadable file around instead of compacting over it.
		bad := fmt.Sprintf("%s.corrupt-%d", snapPath, time.Now().Unix())
		log.Error("job snapshot unreadable; moved aside", logx.String("path", snapPath), logx.String("moved_to", bad), logx.Err(err))
		_ = os.Rename(snapPath, bad)
	}
	replayed, err := replayJournal(journalPath, defs, log)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("replay journal: %w", err)
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		defs:         defs,
	}
	if replayed > 0 {
		if err := s.compactLocked(); err != nil {
			log.Warn("job journal compact failed", logx.Err(err))
		}
	}
	log.Debug("file job store opened", logx.String("prefix", prefix), logx.Int("jobs", len(defs)), logx.Int("replayed", replayed))
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) LoadAll(ctx context.Context) ([]scheduler.JobDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil, ErrClosed
	}
	out := make([]scheduler.JobDefinition, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, copyDef(d))
	}
	sortDefs(out)
	return out, nil
}

func (s *fileStore) Insert(ctx context.Context, def scheduler.JobDefinition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrClosed
	}
	d := copyDef(def)
	if err := s.appendLocked(journalRecord{Op: opInsert, ID: d.ID, Def: &d}); err != nil {
		return err
	}
	s.defs[d.ID] = d
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrClosed
	}
	if _, ok := s.defs[id]; !ok {
		return nil
	}
	if err := s.appendLocked(journalRecord{Op: opDelete, ID: id}); err != nil {
		return err
	}
	delete(s.defs, id)
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) appendLocked(rec journalRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := s.journalFile.Write(b); err != nil {
		return err
	}
	return s.journalFile.Sync()
}

func (s *fileStore) maybeCompactLocked() {
	s.writes++
	if s.writes%compactEvery != 0 {
		return
	}
	if err := s.compactLocked(); err != nil {
		s.log.Warn("job journal compact failed", logx.Err(err))
	}
}

func (s *fileStore) compactLocked() error {
	defs := make([]scheduler.JobDefinition, 0, len(s.defs))
	for _, d := range s.defs {
		defs = append(defs, d)
	}
	sortDefs(defs)

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(defs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, io.SeekEnd)
	return err
}

func loadSnapshot(path string, out map[uuid.UUID]scheduler.JobDefinition, log logx.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var raws []json.RawMessage
	if err := json.NewDecoder(f).Decode(&raws); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	for i, raw := range raws {
		var d scheduler.JobDefinition
		if err := json.Unmarshal(raw, &d); err != nil || d.ID == uuid.Nil {
			log.Warn("skipping corrupt snapshot entry", logx.Int("index", i), logx.Err(err))
			continue
		}
		out[d.ID] = d
	}
	return nil
}

func replayJournal(path string, out map[uuid.UUID]scheduler.JobDefinition, log logx.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	line := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(strings.TrimSpace(string(b))) == 0 {
			continue
		}
		var r journalRecord
		if err := json.Unmarshal(b, &r); err != nil || r.ID == uuid.Nil {
			log.Warn("skipping corrupt journal line", logx.Int("line", line), logx.Err(err))
			continue
		}
		switch r.Op {
		case opInsert:
			if r.Def == nil || r.Def.ID != r.ID {
				log.Warn("skipping journal insert without definition", logx.Int("line", line))
				continue
			}
			out[r.ID] = *r.Def
		case opDelete:
			delete(out, r.ID)
		default:
			log.Warn("skipping unknown journal op", logx.Int("line", line), logx.String("op", r.Op))
			continue
		}
		n++
	}
	return n, sc.Err()
}
