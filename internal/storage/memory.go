package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"wovbot/internal/task/scheduler"
)

type memoryStore struct {
	mu     sync.Mutex
	defs   map[uuid.UUID]scheduler.JobDefinition
	closed bool
}

// NewMemory returns a store that keeps definitions in process memory.
func NewMemory() JobStore {
	return &memoryStore{defs: map[uuid.UUID]scheduler.JobDefinition{}}
}

func (s *memoryStore) LoadAll(ctx context.Context) ([]scheduler.JobDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]scheduler.JobDefinition, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, copyDef(d))
	}
	sortDefs(out)
	return out, nil
}

func (s *memoryStore) Insert(ctx context.Context, def scheduler.JobDefinition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.defs[def.ID] = copyDef(def)
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.defs, id)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func copyDef(d scheduler.JobDefinition) scheduler.JobDefinition {
	d.Args = append(json.RawMessage(nil), d.Args...)
	return d
}
