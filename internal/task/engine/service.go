package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"wovbot/internal/eventbus"
	logx "wovbot/pkg/logx"
)

// Service runs tasks fire-and-forget: Submit spawns a detached goroutine and
// returns immediately. Handlers get a context that outlives whoever submitted
// them, so stopping the scheduler never cancels a running job.
type Service struct {
	log logx.Logger
	bus eventbus.Bus
	cfg Config

	base context.Context

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	inFlight  atomic.Int64
	started   atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:  cfg,
		log:  log,
		bus:  bus,
		base: context.Background(),
	}
}

// Submit starts t in its own goroutine.
func (s *Service) Submit(t Task) error {
	if t.Run == nil {
		return errors.New("task run func is nil")
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStopped
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.started.Add(1)
	s.inFlight.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Add(-1)
		s.run(t)
	}()
	return nil
}

func (s *Service) run(t Task) {
	start := time.Now()
	err := safeRun(s.base, t.Run)
	took := time.Since(start)

	item := HistoryItem{ID: t.ID, Name: t.Name, Started: start, Duration: took}
	if err != nil {
		s.failed.Add(1)
		item.Error = err.Error()
		s.log.Error("task failed", logx.String("task", t.Name), logx.String("id", t.ID), logx.Duration("took", took), logx.Err(err))
	} else {
		s.succeeded.Add(1)
		s.log.Debug("task done", logx.String("task", t.Name), logx.String("id", t.ID), logx.Duration("took", took))
	}
	s.pushHistory(item)

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TaskDone, Data: TaskEvent{
			ID:       t.ID,
			Name:     t.Name,
			Started:  start,
			Duration: took,
			Error:    item.Error,
		}})
	}
}

func safeRun(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

func (s *Service) pushHistory(it HistoryItem) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, it)
	if over := len(s.history) - s.cfg.HistorySize; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

// Close stops intake. Tasks already running are not interrupted.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Wait blocks until every submitted task has returned or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Snapshot() Snapshot {
	s.hmu.Lock()
	hist := make([]HistoryItem, len(s.history))
	copy(hist, s.history)
	s.hmu.Unlock()
	return Snapshot{
		InFlight:  int(s.inFlight.Load()),
		Started:   s.started.Load(),
		Succeeded: s.succeeded.Load(),
		Failed:    s.failed.Load(),
		History:   hist,
	}
}
