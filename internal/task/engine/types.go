package engine

import (
	"context"
	"time"
)

// Config controls the execution engine.
//
// There is no worker count, queue or timeout: every task gets
// its own goroutine and runs until its handler returns.
type Config struct {
	HistorySize int
}

// Task is one handler invocation.
type Task struct {
	ID   string
	Name string
	Run  func(ctx context.Context) error
}

type HistoryItem struct {
	ID       string
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// TaskEvent is published on the event bus when a task finishes.
type TaskEvent struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Snapshot is a diagnostics view.
type Snapshot struct {
	InFlight  int
	Started   uint64
	Succeeded uint64
	Failed    uint64
	History   []HistoryItem
}
