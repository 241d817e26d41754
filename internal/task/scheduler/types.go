package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"wovbot/internal/eventbus"
	"wovbot/internal/task/engine"
	logx "wovbot/pkg/logx"
)

const (
	defaultTickInterval = time.Minute
	defaultStoreTimeout = 10 * time.Second
)

// Config controls the scheduler.
type Config struct {
	Enabled bool

	// TickInterval is the wakeup cadence of the dispatch loop (default 1m).
	TickInterval time.Duration

	// Timezone is an IANA name; cron expressions are evaluated in it.
	Timezone string

	// StoreTimeout bounds retirement deletes issued from the dispatch loop.
	StoreTimeout time.Duration
}

// Store is the persistence contract the scheduler needs. Deleting an
// unknown id must not be an error.
type Store interface {
	LoadAll(ctx context.Context) ([]JobDefinition, error)
	Insert(ctx context.Context, def JobDefinition) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Executor runs a task without blocking the caller.
type Executor interface {
	Submit(t engine.Task) error
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

type Service struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*ScheduledJob

	cfg Config
	loc *time.Location
	now func() time.Time

	log   logx.Logger
	bus   eventbus.Bus
	reg   *Registry
	store Store
	exec  Executor

	runMu   sync.Mutex
	running bool
}

// TickReport summarizes one dispatch pass.
type TickReport struct {
	At      time.Time
	Fired   int
	Retired int
}

// JobEvent is the payload of job.* events on the bus.
type JobEvent struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run,omitempty"`
}

type Snapshot struct {
	Enabled      bool
	Timezone     string
	TickInterval time.Duration
	Registered   []string
	Jobs         []ScheduledJob
}
