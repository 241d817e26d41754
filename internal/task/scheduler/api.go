package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"wovbot/internal/eventbus"
	logx "wovbot/pkg/logx"
)

// AddJob persists a new definition for a registered job and, if its
// schedule can still fire, puts it into the live schedule.
//
// A definition whose schedule is already exhausted (e.g. Once in the past)
// is persisted but never scheduled; that is logged, not an error.
func (s *Service) AddJob(ctx context.Context, name string, sched Schedule, args json.RawMessage) (JobDefinition, error) {
	name = strings.TrimSpace(name)
	if _, ok := s.reg.Get(name); !ok {
		return JobDefinition{}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	if err := sched.Validate(); err != nil {
		return JobDefinition{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	norm, ok := normalizeArgs(args)
	if !ok {
		return JobDefinition{}, ErrInvalidArgs
	}

	now := s.clock()
	def := JobDefinition{
		ID:        uuid.New(),
		Name:      name,
		Schedule:  sched,
		CreatedAt: now,
		Args:      norm,
	}
	if s.store != nil {
		if err := s.store.Insert(ctx, def); err != nil {
			return JobDefinition{}, fmt.Errorf("persist job %s: %w: %w", def.ID, ErrStoreUnavailable, err)
		}
	}

	next, ok := sched.NextRun(now)
	if !ok {
		s.log.Warn("job persisted but will never fire", logx.String("id", def.ID.String()), logx.String("name", name), logx.String("schedule", sched.String()))
		return def, nil
	}

	s.mu.Lock()
	s.jobs[def.ID] = &ScheduledJob{Definition: def, NextRun: next}
	s.mu.Unlock()

	s.log.Info("job added", logx.String("id", def.ID.String()), logx.String("name", name), logx.Time("next_run", next))
	s.publish(eventbus.JobAdded, def, next)
	return def, nil
}

// RemoveJob deletes the job from storage, then from the live schedule.
// Storage errors are returned as is (wrapped); a job that was not scheduled
// yields ErrNotFound after the storage delete succeeded.
func (s *Service) RemoveJob(ctx context.Context, id uuid.UUID) error {
	if s.store != nil {
		if err := s.store.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete job %s: %w: %w", id, ErrStoreUnavailable, err)
		}
	}

	s.mu.Lock()
	job, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.log.Info("job removed", logx.String("id", id.String()), logx.String("name", job.Definition.Name))
	s.publish(eventbus.JobRemoved, job.Definition, job.NextRun)
	return nil
}

// Job returns a copy of the live entry for id.
func (s *Service) Job(id uuid.UUID) (ScheduledJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ScheduledJob{}, false
	}
	return j.clone(), true
}

// Jobs returns copies of all live entries ordered by next run.
func (s *Service) Jobs() []ScheduledJob {
	s.mu.Lock()
	out := make([]ScheduledJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextRun.Equal(out[j].NextRun) {
			return out[i].NextRun.Before(out[j].NextRun)
		}
		return out[i].Definition.ID.String() < out[j].Definition.ID.String()
	})
	return out
}

func (s *Service) Snapshot() Snapshot {
	return Snapshot{
		Enabled:      s.cfg.Enabled,
		Timezone:     s.loc.String(),
		TickInterval: s.cfg.TickInterval,
		Registered:   s.reg.Names(),
		Jobs:         s.Jobs(),
	}
}
