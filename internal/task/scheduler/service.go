package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"wovbot/internal/eventbus"
	"wovbot/internal/task/engine"
	logx "wovbot/pkg/logx"
)

func New(cfg Config, reg *Registry, store Store, exec Executor, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if reg == nil {
		reg = NewRegistry()
	}
	if exec == nil {
		exec = engine.New(engine.Config{}, log, bus)
	}
	s := &Service{
		jobs:  map[uuid.UUID]*ScheduledJob{},
		cfg:   cfg,
		now:   time.Now,
		log:   log,
		bus:   bus,
		reg:   reg,
		store: store,
		exec:  exec,
	}
	s.loc = loadLocation(cfg.Timezone, log)
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Enabled() bool { return s.cfg.Enabled }

func (s *Service) Registry() *Registry { return s.reg }

func (s *Service) clock() time.Time { return s.now().In(s.loc) }

// Now is the scheduler clock in its configured timezone.
func (s *Service) Now() time.Time { return s.clock() }

// LoadFromStore fills the live schedule from storage. Definitions whose
// schedule can no longer fire stay in storage but are not scheduled.
//
// On a storage error the schedule is left as is and the error is returned;
// callers are expected to log it and keep running.
func (s *Service) LoadFromStore(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	s.log.Info("loading jobs from store")
	defs, err := s.store.LoadAll(ctx)
	if err != nil {
		s.log.Error("load jobs failed; continuing with empty schedule", logx.Err(err))
		return 0, fmt.Errorf("load jobs: %w", err)
	}

	now := s.clock()
	loaded := 0
	s.mu.Lock()
	for _, def := range defs {
		next, ok := def.Schedule.NextRun(now)
		if !ok {
			fields := []logx.Field{logx.String("id", def.ID.String()), logx.String("name", def.Name), logx.String("schedule", def.Schedule.String())}
			if err := def.Schedule.cronError(); err != nil {
				fields = append(fields, logx.Err(err))
			}
			s.log.Warn("skipping job with no next run", fields...)
			continue
		}
		s.jobs[def.ID] = &ScheduledJob{Definition: def, NextRun: next}
		loaded++
		s.log.Debug("job loaded", logx.String("id", def.ID.String()), logx.String("name", def.Name), logx.Time("next_run", next))
	}
	total := len(s.jobs)
	s.mu.Unlock()

	s.log.Info("jobs loaded", logx.Int("loaded", loaded), logx.Int("stored", len(defs)), logx.Int("scheduled", total))
	return loaded, nil
}

// Run is the dispatch loop. It ticks every TickInterval until ctx is done.
// Handlers already dispatched keep running after Run returns.
func (s *Service) Run(ctx context.Context) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.runMu.Unlock()
	defer func() {
		s.runMu.Lock()
		s.running = false
		s.runMu.Unlock()
	}()

	s.log.Info("dispatch loop started", logx.Duration("tick", s.cfg.TickInterval), logx.String("tz", s.loc.String()))
	t := time.NewTicker(s.cfg.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("dispatch loop stopped")
			return nil
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one dispatch pass at the current time.
func (s *Service) Tick(ctx context.Context) TickReport {
	return s.tickAt(ctx, s.clock())
}

func (s *Service) tickAt(ctx context.Context, now time.Time) TickReport {
	var (
		fired   []ScheduledJob
		retired []JobDefinition
	)

	s.mu.Lock()
	for id, job := range s.jobs {
		if job.NextRun.After(now) {
			continue
		}
		last := now
		job.LastRun = &last
		next, ok := job.Definition.Schedule.NextRun(now)
		if ok {
			job.NextRun = next
		} else {
			delete(s.jobs, id)
			retired = append(retired, job.Definition)
		}
		fired = append(fired, job.clone())
	}
	s.mu.Unlock()

	for _, job := range fired {
		s.dispatch(job)
	}

	// Retirement deletes run outside the lock so a slow store cannot block
	// AddJob/RemoveJob or the next tick.
	if len(retired) > 0 {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
		for _, def := range retired {
			s.retire(sctx, def)
		}
		cancel()
	}

	if len(fired) > 0 {
		s.log.Debug("tick", logx.Int("fired", len(fired)), logx.Int("retired", len(retired)))
	}
	return TickReport{At: now, Fired: len(fired), Retired: len(retired)}
}

func (s *Service) dispatch(job ScheduledJob) {
	def := job.Definition
	id := def.ID.String()
	s.log.Info("executing job", logx.String("id", id), logx.String("name", def.Name))

	h, ok := s.reg.Get(def.Name)
	if !ok {
		s.log.Warn("job not registered; skipping execution", logx.String("id", id), logx.String("name", def.Name))
		return
	}
	args := def.Args
	err := s.exec.Submit(engine.Task{
		ID:   id,
		Name: def.Name,
		Run:  func(ctx context.Context) error { return h.Run(ctx, args) },
	})
	if err != nil {
		s.log.Warn("job dispatch failed", logx.String("id", id), logx.String("name", def.Name), logx.Err(err))
		return
	}
	s.publish(eventbus.JobFired, def, job.NextRun)
}

func (s *Service) retire(ctx context.Context, def JobDefinition) {
	fields := []logx.Field{logx.String("id", def.ID.String()), logx.String("name", def.Name)}
	if err := def.Schedule.cronError(); err != nil {
		s.log.Warn("malformed cron expression; retiring job", append(fields, logx.String("expr", def.Schedule.Expr()), logx.Err(err))...)
	} else {
		s.log.Info("retiring job", fields...)
	}
	if s.store != nil {
		if err := s.store.Delete(ctx, def.ID); err != nil {
			s.log.Error("failed to delete retired job", append(fields, logx.Err(err))...)
		}
	}
	s.publish(eventbus.JobRetired, def, time.Time{})
}

func (s *Service) publish(typ string, def JobDefinition, next time.Time) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: JobEvent{ID: def.ID.String(), Name: def.Name, NextRun: next}})
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
